package main

import (
	"fmt"
	"os"

	"github.com/tphakala/rtaudio/cmd"
	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/conf"
	"github.com/tphakala/rtaudio/internal/errors"
	"github.com/tphakala/rtaudio/internal/logging"
)

func main() {
	logging.Init()

	settings, err := conf.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "rejected: %v\n", err)
		os.Exit(1)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, audiocore.ErrConfiguration) || errors.Is(err, audiocore.ErrCapacity) {
			fmt.Fprintf(os.Stderr, "rejected: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}
