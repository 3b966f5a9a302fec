package telemetry

import (
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtaudio/internal/conf"
	"github.com/tphakala/rtaudio/internal/errors"
)

func TestApplyPrivacyFilters(t *testing.T) {
	t.Parallel()

	event := sentry.NewEvent()
	event.User = sentry.User{ID: "42", IPAddress: "10.0.0.1"}
	event.ServerName = "studio-pc"
	event.Contexts = map[string]sentry.Context{
		"device":  {"arch": "amd64"},
		"os":      {"name": "linux"},
		"runtime": {"go": "1.25"},
		"buffer":  {"size": 512},
	}
	event.Extra = map[string]any{"component": "realtime", "path": "/home/user/take.wav"}
	event.Tags = map[string]string{"hostname": "studio-pc", "category": "processing"}

	got := applyPrivacyFilters(event)

	assert.True(t, got.User.IsEmpty())
	assert.Empty(t, got.ServerName)
	assert.Equal(t, []string{"buffer"}, keys(got.Contexts))
	assert.Equal(t, map[string]any{"component": "realtime"}, got.Extra)
	assert.Equal(t, map[string]string{"category": "processing"}, got.Tags)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestInitSentryDisabled(t *testing.T) {
	settings := &conf.Settings{}
	require.NoError(t, InitSentry(settings))
	assert.Nil(t, errors.GetTelemetryReporter())
	Flush(time.Millisecond)
}

func TestInitSentryRequiresDSN(t *testing.T) {
	settings := &conf.Settings{}
	settings.Telemetry.Enabled = true

	err := InitSentry(settings)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Nil(t, errors.GetTelemetryReporter())
}
