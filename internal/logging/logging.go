// Package logging configures the process-wide slog loggers.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// LevelTrace sits below debug and is used for per-block detail
const LevelTrace = slog.Level(-8)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
}

var (
	mu                  sync.RWMutex
	level               = new(slog.LevelVar)
	structuredLogger    *slog.Logger
	humanReadableLogger *slog.Logger
)

// handlerOptions renames the custom levels and shares one dynamic level
// between both handlers.
func handlerOptions() *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				lvl, ok := a.Value.Any().(slog.Level)
				if !ok {
					return a
				}
				label, exists := levelNames[lvl]
				if !exists {
					label = lvl.String()
				}
				a.Value = slog.StringValue(label)
			}
			return a
		},
	}
}

// Init sets up JSON logs on stdout and human-readable logs on stderr.
func Init() {
	SetOutput(os.Stdout, os.Stderr)
}

// SetOutput redirects both loggers. The current level is preserved.
func SetOutput(structuredOutput, humanReadableOutput io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	structuredLogger = slog.New(slog.NewJSONHandler(structuredOutput, handlerOptions()))
	humanReadableLogger = slog.New(slog.NewTextHandler(humanReadableOutput, handlerOptions()))
	slog.SetDefault(structuredLogger)
}

// SetLevel changes the minimum level of both loggers at runtime.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Structured returns the JSON logger, or nil before Init.
func Structured() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return structuredLogger
}

// HumanReadable returns the text logger, or nil before Init.
func HumanReadable() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return humanReadableLogger
}

// ForService returns the structured logger tagged with a service attribute.
// Returns nil if Init() has not been called.
func ForService(serviceName string) *slog.Logger {
	base := Structured()
	if base == nil {
		return nil
	}
	return base.With("service", serviceName)
}

// Console returns the text logger tagged with component, for messages meant
// for whoever runs a command. Falls back to slog.Default before Init.
func Console(component string) *slog.Logger {
	logger := HumanReadable()
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}

// Component returns a logger for service/component that never is nil.
func Component(serviceName, component string) *slog.Logger {
	logger := ForService(serviceName)
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}
