package diagnostics

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/audiocore/realtime"
	"github.com/tphakala/rtaudio/internal/observability"
)

type fixture struct {
	server    *Server
	processor *realtime.Processor
	manager   *audiocore.AudioBufferManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	cfg := realtime.DefaultConfig()
	cfg.Metrics = audiocore.NewMetricsCollector(m.AudioCore)
	processor, err := realtime.NewProcessor(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = processor.Close() })

	manager, err := audiocore.NewAudioBufferManager(audiocore.ManagerConfig{Metrics: cfg.Metrics})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return &fixture{
		server: NewServer(Options{
			Listen:    "127.0.0.1:0",
			Processor: processor,
			Manager:   manager,
			Metrics:   m,
		}),
		processor: processor,
		manager:   manager,
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestGetLatency(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := get(t, f.server.Handler(), "/api/v1/latency")
	require.Equal(t, http.StatusOK, rec.Code)

	info := decode[realtime.LatencyInfo](t, rec)
	assert.Equal(t, f.processor.GetLatencyInfo(), info)
	assert.Equal(t, 512, info.BufferSize)
	assert.Equal(t, 48000, info.SampleRate)
}

func TestGetStats(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	require.True(t, f.processor.ProcessInput(&audiocore.AudioData{
		Samples: audiocore.NewBlock(2, 512),
		Format:  audiocore.AudioFormat{SampleRate: 48000, Channels: 2},
	}))

	rec := get(t, f.server.Handler(), "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decode[StatsResponse](t, rec)
	assert.False(t, stats.Processing)
	assert.Equal(t, 1, stats.Queues.Input)
	assert.Zero(t, stats.Queues.Output)
	assert.Zero(t, stats.Performance.ProcessedBuffers)
}

func TestGetBuffers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	cfg, err := audiocore.NewBufferConfig(audiocore.TypeMemory, 48000, 2, 256, 0)
	require.NoError(t, err)
	buf, err := f.manager.CreateBuffer("track-1", audiocore.TypeMemory, cfg)
	require.NoError(t, err)
	_, err = buf.Write(audiocore.NewBlock(2, 64))
	require.NoError(t, err)

	rec := get(t, f.server.Handler(), "/api/v1/buffers")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[BuffersResponse](t, rec)
	assert.Equal(t, 1, resp.System.TotalBuffers)
	require.Len(t, resp.Buffers, 1)
	assert.Equal(t, "track-1", resp.Buffers[0].ID)
	assert.Equal(t, "memory", resp.Buffers[0].Type)
	assert.Equal(t, 256, resp.Buffers[0].Size)
	assert.Equal(t, int64(1), resp.Buffers[0].Metrics.WriteCount)
}

func TestGetBuffersReportsPoolIdleMemory(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	cfg, err := audiocore.NewBufferConfig(audiocore.TypePool, 48000, 2, 256, 0)
	require.NoError(t, err)
	_, err = f.manager.CreateBuffer("pooled", audiocore.TypePool, cfg)
	require.NoError(t, err)
	require.True(t, f.manager.RemoveBuffer("pooled"))

	rec := get(t, f.server.Handler(), "/api/v1/buffers")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[BuffersResponse](t, rec)
	assert.Zero(t, resp.System.TotalBuffers)
	assert.Positive(t, resp.System.PoolIdleMemoryMB)
	assert.Len(t, resp.Pools, 1)
}

func TestGetSystemCachesMemory(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	calls := 0
	f.server.hostMemory = func() (MemoryInfo, error) {
		calls++
		return MemoryInfo{Total: 1024, Used: 512, UsedPercent: 50}, nil
	}

	for range 3 {
		rec := get(t, f.server.Handler(), "/api/v1/system")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[SystemResponse](t, rec)
		require.NotNil(t, resp.Memory)
		assert.InDelta(t, 50.0, resp.Memory.UsedPercent, 0)
		assert.NotEmpty(t, resp.OS)
		assert.Positive(t, resp.NumCPU)
	}
	assert.Equal(t, 1, calls)
}

func TestGetSystemReportsMemoryError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.server.hostMemory = func() (MemoryInfo, error) {
		return MemoryInfo{}, stderrors.New("no /proc")
	}

	rec := get(t, f.server.Handler(), "/api/v1/system")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[SystemResponse](t, rec)
	assert.Nil(t, resp.Memory)
	assert.Equal(t, "no /proc", resp.MemoryError)
}

func TestMissingSourcesAnswerUnavailable(t *testing.T) {
	t.Parallel()
	s := NewServer(Options{})

	for _, path := range []string{"/api/v1/stats", "/api/v1/latency", "/api/v1/buffers"} {
		rec := get(t, s.Handler(), path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/metrics").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := get(t, f.server.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "audiocore_processor_processed_buffers_total")
	assert.Contains(t, rec.Body.String(), "audiocore_buffer_memory_mb")
}

func TestStartShutdown(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	assert.Nil(t, f.server.Addr())
	require.NoError(t, f.server.Start())
	require.NoError(t, f.server.Start())
	addr := f.server.Addr()
	require.NotNil(t, addr)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr.String() + "/api/v1/latency")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `"buffer_size":512`))
	client.CloseIdleConnections()

	require.NoError(t, f.server.Shutdown(t.Context()))
}

func TestShutdownBeforeStart(t *testing.T) {
	t.Parallel()
	assert.NoError(t, NewServer(Options{}).Shutdown(t.Context()))
}

func TestStartRejectsBadAddress(t *testing.T) {
	t.Parallel()
	s := NewServer(Options{Listen: "127.0.0.1:-1"})
	assert.Error(t, s.Start())
}
