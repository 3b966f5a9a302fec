package diagnostics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/audiocore/realtime"
)

// StatsResponse is the body of GET /api/v1/stats
type StatsResponse struct {
	Processing  bool                      `json:"processing"`
	Performance realtime.PerformanceStats `json:"performance"`
	Meters      map[string]realtime.Meter `json:"meters"`
	Queues      QueueDepths               `json:"queues"`
}

// QueueDepths reports processor queue occupancy
type QueueDepths struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// BufferInfo describes one registered buffer
type BufferInfo struct {
	ID      string                  `json:"id"`
	Type    string                  `json:"type"`
	State   string                  `json:"state"`
	Size    int                     `json:"size"`
	Metrics audiocore.BufferMetrics `json:"metrics"`
}

// BuffersResponse is the body of GET /api/v1/buffers
type BuffersResponse struct {
	System  audiocore.SystemMetrics        `json:"system"`
	Buffers []BufferInfo                   `json:"buffers"`
	Pools   map[string]audiocore.PoolStats `json:"pools"`
}

// MemoryInfo is a host memory snapshot
type MemoryInfo struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
}

// SystemResponse is the body of GET /api/v1/system
type SystemResponse struct {
	OS            string      `json:"os"`
	Architecture  string      `json:"architecture"`
	GoVersion     string      `json:"go_version"`
	NumCPU        int         `json:"num_cpu"`
	CPUBrand      string      `json:"cpu_brand"`
	PhysicalCPUs  int         `json:"physical_cores"`
	LogicalCPUs   int         `json:"logical_cores"`
	SIMD          []string    `json:"simd"`
	Goroutines    int         `json:"goroutines"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	Memory        *MemoryInfo `json:"memory,omitempty"`
	MemoryError   string      `json:"memory_error,omitempty"`
}

// startTime is the process start, for uptime reporting
var startTime = time.Now()

type errorResponse struct {
	Error string `json:"error"`
}

func unavailable(ctx echo.Context, what string) error {
	return ctx.JSON(http.StatusServiceUnavailable, errorResponse{Error: what + " not available"})
}

// GetStats handles GET /api/v1/stats
func (s *Server) GetStats(ctx echo.Context) error {
	if s.processor == nil {
		return unavailable(ctx, "processor")
	}
	input, output := s.processor.QueueDepths()
	return ctx.JSON(http.StatusOK, StatsResponse{
		Processing:  s.processor.IsProcessing(),
		Performance: s.processor.GetPerformanceStats(),
		Meters:      s.processor.Meters(),
		Queues:      QueueDepths{Input: input, Output: output},
	})
}

// GetLatency handles GET /api/v1/latency
func (s *Server) GetLatency(ctx echo.Context) error {
	if s.processor == nil {
		return unavailable(ctx, "processor")
	}
	return ctx.JSON(http.StatusOK, s.processor.GetLatencyInfo())
}

// GetBuffers handles GET /api/v1/buffers
func (s *Server) GetBuffers(ctx echo.Context) error {
	if s.manager == nil {
		return unavailable(ctx, "buffer manager")
	}

	resp := BuffersResponse{
		System:  s.manager.GetSystemMetrics(),
		Buffers: []BufferInfo{},
		Pools:   s.manager.PoolStats(),
	}
	for _, id := range s.manager.ListBuffers() {
		buf, ok := s.manager.GetBuffer(id)
		if !ok {
			// removed since listing
			continue
		}
		resp.Buffers = append(resp.Buffers, BufferInfo{
			ID:      id,
			Type:    buf.Type().String(),
			State:   buf.State().String(),
			Size:    buf.Size(),
			Metrics: buf.Metrics(),
		})
	}
	return ctx.JSON(http.StatusOK, resp)
}

// GetSystem handles GET /api/v1/system
func (s *Server) GetSystem(ctx echo.Context) error {
	resp := SystemResponse{
		OS:            runtime.GOOS,
		Architecture:  runtime.GOARCH,
		GoVersion:     runtime.Version(),
		NumCPU:        runtime.NumCPU(),
		CPUBrand:      cpuid.CPU.BrandName,
		PhysicalCPUs:  cpuid.CPU.PhysicalCores,
		LogicalCPUs:   cpuid.CPU.LogicalCores,
		SIMD:          simdFeatures(),
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
	}

	memory, err := s.cachedMemory()
	if err != nil {
		s.logger.Debug("host memory unavailable", "error", err)
		resp.MemoryError = err.Error()
	} else {
		resp.Memory = &memory
	}
	return ctx.JSON(http.StatusOK, resp)
}

// cachedMemory reads host memory at most once per hostCacheTTL
func (s *Server) cachedMemory() (MemoryInfo, error) {
	const key = "host_memory"
	if cached, found := s.cache.Get(key); found {
		if info, ok := cached.(MemoryInfo); ok {
			return info, nil
		}
	}
	info, err := s.hostMemory()
	if err != nil {
		return MemoryInfo{}, err
	}
	s.cache.Set(key, info, cache.DefaultExpiration)
	return info, nil
}

func readHostMemory() (MemoryInfo, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return MemoryInfo{}, err
	}
	return MemoryInfo{
		Total:       vm.Total,
		Used:        vm.Used,
		Available:   vm.Available,
		UsedPercent: vm.UsedPercent,
	}, nil
}

// simdFeatures lists the vector extensions relevant to DSP code
func simdFeatures() []string {
	features := []string{}
	for _, f := range []struct {
		id   cpuid.FeatureID
		name string
	}{
		{cpuid.SSE2, "sse2"},
		{cpuid.SSE4, "sse4.1"},
		{cpuid.AVX, "avx"},
		{cpuid.AVX2, "avx2"},
		{cpuid.FMA3, "fma3"},
		{cpuid.AVX512F, "avx512f"},
		{cpuid.ASIMD, "neon"},
	} {
		if cpuid.CPU.Supports(f.id) {
			features = append(features, f.name)
		}
	}
	return features
}
