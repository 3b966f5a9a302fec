// Package telemetry initializes opt-in Sentry error reporting
package telemetry

import (
	"fmt"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/rtaudio/internal/conf"
	"github.com/tphakala/rtaudio/internal/errors"
	"github.com/tphakala/rtaudio/internal/logging"
)

// Version is reported as the Sentry release
var Version = "dev"

// InitSentry enables error reporting when telemetry is configured. It is a
// no-op returning nil when disabled.
func InitSentry(settings *conf.Settings) error {
	logger := logging.Component("telemetry", "sentry")

	if !settings.Telemetry.Enabled {
		logger.Debug("sentry telemetry is disabled")
		return nil
	}
	if settings.Telemetry.DSN == "" {
		return errors.Newf("telemetry enabled without a DSN").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Telemetry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          fmt.Sprintf("rtaudio@%s", Version),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("sample_rate", fmt.Sprint(settings.Audio.SampleRate))
		scope.SetTag("buffer_size", fmt.Sprint(settings.Audio.BufferSize))
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	logger.Info("sentry telemetry enabled", "release", Version)
	return nil
}

// applyPrivacyFilters strips host identifying data from an event
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}

// Flush waits up to timeout for queued events and detaches the reporter
func Flush(timeout time.Duration) {
	if errors.GetTelemetryReporter() == nil {
		return
	}
	sentry.Flush(timeout)
	errors.SetTelemetryReporter(nil)
}
