package config

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/rtaudio/internal/conf"
	"github.com/tphakala/rtaudio/internal/logging"
)

// Command creates the config command
func Command(settings *conf.Settings) *cobra.Command {
	var savePath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after config.yaml, environment variables and flags are applied, or save it as a new config file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), settings, savePath)
		},
	}
	cmd.Flags().StringVar(&savePath, "save", "", "Write the configuration to this file instead of stdout")

	return cmd
}

func run(w io.Writer, settings *conf.Settings, savePath string) error {
	if savePath == "" {
		return conf.WriteYAML(w, settings)
	}
	if err := conf.SaveYAMLConfig(savePath, settings); err != nil {
		return err
	}
	logging.Console("config").Info("configuration saved", "path", savePath)
	fmt.Fprintf(w, "saved %s\n", savePath)
	return nil
}
