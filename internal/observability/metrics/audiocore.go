// Package metrics provides audiocore metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AudioCoreMetrics contains Prometheus metrics for buffer management and
// the real-time processor.
type AudioCoreMetrics struct {
	registry *prometheus.Registry

	// Buffer manager metrics
	buffersActive      *prometheus.GaugeVec
	bufferMemoryMB     prometheus.Gauge
	hostMemoryPercent  prometheus.Gauge
	capacityRejections *prometheus.CounterVec
	bufferErrors       *prometheus.CounterVec

	// Buffer pool metrics
	bufferPoolSize      *prometheus.GaugeVec
	bufferPoolHits      *prometheus.CounterVec
	bufferPoolMisses    *prometheus.CounterVec
	bufferPoolEvictions *prometheus.CounterVec

	// Processor metrics
	queueDepth         *prometheus.GaugeVec
	processedBuffers   prometheus.Counter
	bufferUnderruns    prometheus.Counter
	xruns              *prometheus.CounterVec
	inputsDropped      *prometheus.CounterVec
	processingFailures *prometheus.CounterVec
	processingDuration prometheus.Histogram
	clipEvents         *prometheus.CounterVec

	// Export metrics
	exports *prometheus.CounterVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewAudioCoreMetrics creates and registers new audiocore metrics
func NewAudioCoreMetrics(registry *prometheus.Registry) (*AudioCoreMetrics, error) {
	m := &AudioCoreMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *AudioCoreMetrics) initMetrics() {
	m.buffersActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audiocore_buffers_active",
			Help: "Number of live buffers by type",
		},
		[]string{"buffer_type"},
	)

	m.bufferMemoryMB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "audiocore_buffer_memory_mb",
			Help: "Memory held by all live buffers in megabytes",
		},
	)

	m.hostMemoryPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "audiocore_host_memory_used_percent",
			Help: "Host memory usage sampled by the buffer manager",
		},
	)

	m.capacityRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiocore_buffer_capacity_rejections_total",
			Help: "Buffer allocations rejected by a memory limit",
		},
		[]string{"scope"}, // buffer, manager
	)

	m.bufferErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiocore_buffer_errors_total",
			Help: "Buffer operation errors",
		},
		[]string{"buffer_type", "error_type"},
	)

	m.bufferPoolSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audiocore_buffer_pool_size",
			Help: "Number of idle buffers in pool",
		},
		[]string{"pool"},
	)

	m.bufferPoolHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiocore_buffer_pool_hits_total",
			Help: "Total number of buffer pool hits",
		},
		[]string{"pool"},
	)

	m.bufferPoolMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiocore_buffer_pool_misses_total",
			Help: "Total number of buffer pool misses",
		},
		[]string{"pool"},
	)

	m.bufferPoolEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiocore_buffer_pool_evictions_total",
			Help: "Total number of buffer evictions",
		},
		[]string{"pool", "reason"},
	)

	m.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audiocore_processor_queue_depth",
			Help: "Blocks waiting in the processor queues",
		},
		[]string{"queue"}, // input, output
	)

	m.processedBuffers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audiocore_processor_processed_buffers_total",
			Help: "Blocks processed by the real-time loop",
		},
	)

	m.bufferUnderruns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audiocore_processor_underruns_total",
			Help: "Output polls that found no processed block",
		},
	)

	m.xruns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiocore_processor_xruns_total",
			Help: "Missed processing deadlines",
		},
		[]string{"reason"}, // deadline, failure, output_full
	)

	m.inputsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiocore_processor_inputs_dropped_total",
			Help: "Input blocks rejected by the processor",
		},
		[]string{"reason"}, // queue_full, format
	)

	m.processingFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiocore_processor_failures_total",
			Help: "Plugin chain failures contained by the processing loop",
		},
		[]string{"kind"}, // error, panic
	)

	m.processingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audiocore_processing_duration_seconds",
			Help:    "Time taken to process one block",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~200ms
		},
	)

	m.clipEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiocore_clip_events_total",
			Help: "Processed blocks containing full scale samples",
		},
		[]string{"group"},
	)

	m.exports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiocore_exports_total",
			Help: "Audio export operations",
		},
		[]string{"format", "status"},
	)

	m.collectors = []prometheus.Collector{
		m.buffersActive,
		m.bufferMemoryMB,
		m.hostMemoryPercent,
		m.capacityRejections,
		m.bufferErrors,
		m.bufferPoolSize,
		m.bufferPoolHits,
		m.bufferPoolMisses,
		m.bufferPoolEvictions,
		m.queueDepth,
		m.processedBuffers,
		m.bufferUnderruns,
		m.xruns,
		m.inputsDropped,
		m.processingFailures,
		m.processingDuration,
		m.clipEvents,
		m.exports,
	}
}

// Describe implements the Collector interface
func (m *AudioCoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *AudioCoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// Registry returns the registry the metrics were registered with.
func (m *AudioCoreMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Buffer manager recording methods

// UpdateBuffersActive sets the number of live buffers of one type
func (m *AudioCoreMetrics) UpdateBuffersActive(bufferType string, count int) {
	m.buffersActive.WithLabelValues(bufferType).Set(float64(count))
}

// UpdateBufferMemory sets the aggregate buffer memory
func (m *AudioCoreMetrics) UpdateBufferMemory(mb float64) {
	m.bufferMemoryMB.Set(mb)
}

// UpdateHostMemory sets the sampled host memory usage
func (m *AudioCoreMetrics) UpdateHostMemory(percent float64) {
	m.hostMemoryPercent.Set(percent)
}

// RecordCapacityRejection records an allocation refused by a memory limit
func (m *AudioCoreMetrics) RecordCapacityRejection(scope string) {
	m.capacityRejections.WithLabelValues(scope).Inc()
}

// RecordBufferErrors adds count failed buffer operations
func (m *AudioCoreMetrics) RecordBufferErrors(bufferType, errorType string, count int64) {
	m.bufferErrors.WithLabelValues(bufferType, errorType).Add(float64(count))
}

// Buffer pool recording methods

// UpdateBufferPoolSize sets the idle count of a pool
func (m *AudioCoreMetrics) UpdateBufferPoolSize(pool string, size int) {
	m.bufferPoolSize.WithLabelValues(pool).Set(float64(size))
}

// RecordBufferPoolHit records a buffer pool hit
func (m *AudioCoreMetrics) RecordBufferPoolHit(pool string) {
	m.bufferPoolHits.WithLabelValues(pool).Inc()
}

// RecordBufferPoolMiss records a buffer pool miss
func (m *AudioCoreMetrics) RecordBufferPoolMiss(pool string) {
	m.bufferPoolMisses.WithLabelValues(pool).Inc()
}

// RecordBufferPoolEviction records a buffer eviction
func (m *AudioCoreMetrics) RecordBufferPoolEviction(pool, reason string) {
	m.bufferPoolEvictions.WithLabelValues(pool, reason).Inc()
}

// Processor recording methods

// UpdateQueueDepth sets the depth of a processor queue
func (m *AudioCoreMetrics) UpdateQueueDepth(queue string, depth int) {
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordProcessedBuffer records one processed block and its duration in seconds
func (m *AudioCoreMetrics) RecordProcessedBuffer(duration float64) {
	m.processedBuffers.Inc()
	m.processingDuration.Observe(duration)
}

// RecordUnderrun records an output underrun
func (m *AudioCoreMetrics) RecordUnderrun() {
	m.bufferUnderruns.Inc()
}

// RecordXrun records a missed deadline
func (m *AudioCoreMetrics) RecordXrun(reason string) {
	m.xruns.WithLabelValues(reason).Inc()
}

// RecordInputDropped records a rejected input block
func (m *AudioCoreMetrics) RecordInputDropped(reason string) {
	m.inputsDropped.WithLabelValues(reason).Inc()
}

// RecordProcessingFailure records a contained plugin chain failure
func (m *AudioCoreMetrics) RecordProcessingFailure(kind string) {
	m.processingFailures.WithLabelValues(kind).Inc()
}

// RecordClipEvent records a clipping block for a channel group
func (m *AudioCoreMetrics) RecordClipEvent(group string) {
	m.clipEvents.WithLabelValues(group).Inc()
}

// RecordExport records an export attempt
func (m *AudioCoreMetrics) RecordExport(format, status string) {
	m.exports.WithLabelValues(format, status).Inc()
}
