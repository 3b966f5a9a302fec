package realtime

import "time"

// LatencyInfo describes the round trip latency of the current configuration.
// TotalLatencySamples is always the sum of the input, output and plugin
// latencies.
type LatencyInfo struct {
	BufferSize           int     `json:"buffer_size"`
	SampleRate           int     `json:"sample_rate"`
	InputLatencySamples  int     `json:"input_latency_samples"`
	OutputLatencySamples int     `json:"output_latency_samples"`
	PluginLatencySamples int     `json:"plugin_latency_samples"`
	TotalLatencySamples  int     `json:"total_latency_samples"`
	TotalLatencyMS       float64 `json:"total_latency_ms"`
	BufferLatencyMS      float64 `json:"buffer_latency_ms"`
}

// PerformanceStats is a copy of the processor counters
type PerformanceStats struct {
	BufferUnderruns    int64     `json:"buffer_underruns"`
	Xruns              int64     `json:"xruns"`
	ProcessedBuffers   int64     `json:"processed_buffers"`
	DroppedInputs      int64     `json:"dropped_inputs"`
	ProcessingFailures int64     `json:"processing_failures"`
	ProcessTimeSamples []float64 `json:"process_time_samples_ms"`
	MaxProcessTimeMS   float64   `json:"max_process_time_ms"`
	AvgProcessTimeMS   float64   `json:"avg_process_time_ms"`
	CPUUsage           float64   `json:"cpu_usage"`
	Since              time.Time `json:"since"`
}

// Meter is the level of one channel group
type Meter struct {
	Peak      float64   `json:"peak"` // highest absolute sample since reset
	RMS       float64   `json:"rms"`  // of the latest block
	Clipping  bool      `json:"clipping"`
	ClipCount int64     `json:"clip_count"` // samples at or above full scale since reset
	UpdatedAt time.Time `json:"updated_at"`
}
