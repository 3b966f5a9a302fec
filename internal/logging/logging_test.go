package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForServiceBeforeInit(t *testing.T) {
	mu.Lock()
	saved := structuredLogger
	structuredLogger = nil
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		structuredLogger = saved
		mu.Unlock()
	})

	assert.Nil(t, ForService("audiocore"))
	assert.NotNil(t, Component("audiocore", "pool"))
}

func TestStructuredOutput(t *testing.T) {
	var structured, human bytes.Buffer
	SetOutput(&structured, &human)
	SetLevel(slog.LevelDebug)
	t.Cleanup(func() { SetLevel(slog.LevelInfo) })

	Component("audiocore", "pool").Info("buffer recycled", "id", "b1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(structured.Bytes(), &entry))
	assert.Equal(t, "audiocore", entry["service"])
	assert.Equal(t, "pool", entry["component"])
	assert.Equal(t, "b1", entry["id"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestTraceLevelName(t *testing.T) {
	var structured, human bytes.Buffer
	SetOutput(&structured, &human)
	SetLevel(LevelTrace)
	t.Cleanup(func() { SetLevel(slog.LevelInfo) })

	Component("audiocore", "realtime").Log(t.Context(), LevelTrace, "deep detail")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(structured.Bytes(), &entry))
	assert.Equal(t, "TRACE", entry["level"])

	SetLevel(slog.LevelDebug)
	structured.Reset()
	Component("audiocore", "realtime").Log(t.Context(), LevelTrace, "deep detail")
	assert.Zero(t, structured.Len())
}

func TestConsoleWritesText(t *testing.T) {
	var structured, human bytes.Buffer
	SetOutput(&structured, &human)

	Console("run").Info("processor started", "buffer_size", 256)

	assert.Zero(t, structured.Len())
	line := human.String()
	assert.Contains(t, line, "level=INFO")
	assert.Contains(t, line, "component=run")
	assert.Contains(t, line, "buffer_size=256")
}

func TestConsoleBeforeInit(t *testing.T) {
	mu.Lock()
	saved := humanReadableLogger
	humanReadableLogger = nil
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		humanReadableLogger = saved
		mu.Unlock()
	})

	assert.NotNil(t, Console("render"))
}

func TestSetLevelFilters(t *testing.T) {
	var structured, human bytes.Buffer
	SetOutput(&structured, &human)
	SetLevel(slog.LevelWarn)
	t.Cleanup(func() { SetLevel(slog.LevelInfo) })

	Structured().Info("hidden")
	assert.Zero(t, structured.Len())
}
