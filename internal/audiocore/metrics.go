package audiocore

import (
	"time"

	"github.com/tphakala/rtaudio/internal/observability/metrics"
)

// MetricsCollector forwards audiocore events to Prometheus. A nil collector,
// or one built from nil metrics, discards everything.
type MetricsCollector struct {
	metrics *metrics.AudioCoreMetrics
}

// NewMetricsCollector wraps m. m may be nil.
func NewMetricsCollector(m *metrics.AudioCoreMetrics) *MetricsCollector {
	return &MetricsCollector{metrics: m}
}

func (mc *MetricsCollector) enabled() bool {
	return mc != nil && mc.metrics != nil
}

// RecordBufferCounts publishes live buffer counts by type and their memory
func (mc *MetricsCollector) RecordBufferCounts(byType map[string]int, memoryMB float64) {
	if !mc.enabled() {
		return
	}
	for _, t := range []BufferType{TypeMemory, TypeStreaming, TypeRing, TypePool} {
		mc.metrics.UpdateBuffersActive(t.String(), byType[t.String()])
	}
	mc.metrics.UpdateBufferMemory(memoryMB)
}

// RecordHostMemory publishes sampled host memory usage
func (mc *MetricsCollector) RecordHostMemory(percent float64) {
	if !mc.enabled() {
		return
	}
	mc.metrics.UpdateHostMemory(percent)
}

// RecordCapacityRejection records an allocation refused by a memory limit
func (mc *MetricsCollector) RecordCapacityRejection(scope string) {
	if !mc.enabled() {
		return
	}
	mc.metrics.RecordCapacityRejection(scope)
}

// RecordBufferErrors records count failed buffer operations
func (mc *MetricsCollector) RecordBufferErrors(bufferType BufferType, errorType string, count int64) {
	if !mc.enabled() || count <= 0 {
		return
	}
	mc.metrics.RecordBufferErrors(bufferType.String(), errorType, count)
}

// RecordPoolAcquire records a pool hit or miss and the idle count after it
func (mc *MetricsCollector) RecordPoolAcquire(pool string, hit bool, idle int) {
	if !mc.enabled() {
		return
	}
	if hit {
		mc.metrics.RecordBufferPoolHit(pool)
	} else {
		mc.metrics.RecordBufferPoolMiss(pool)
	}
	mc.metrics.UpdateBufferPoolSize(pool, idle)
}

// RecordPoolRelease records the idle count after a release and any eviction
func (mc *MetricsCollector) RecordPoolRelease(pool string, evicted bool, idle int) {
	if !mc.enabled() {
		return
	}
	if evicted {
		mc.metrics.RecordBufferPoolEviction(pool, "pool_full")
	}
	mc.metrics.UpdateBufferPoolSize(pool, idle)
}

// RecordQueueDepths publishes processor queue depths
func (mc *MetricsCollector) RecordQueueDepths(input, output int) {
	if !mc.enabled() {
		return
	}
	mc.metrics.UpdateQueueDepth("input", input)
	mc.metrics.UpdateQueueDepth("output", output)
}

// RecordBlockProcessed records one processed block
func (mc *MetricsCollector) RecordBlockProcessed(duration time.Duration) {
	if !mc.enabled() {
		return
	}
	mc.metrics.RecordProcessedBuffer(duration.Seconds())
}

// RecordUnderrun records an output underrun
func (mc *MetricsCollector) RecordUnderrun() {
	if !mc.enabled() {
		return
	}
	mc.metrics.RecordUnderrun()
}

// RecordXrun records a missed deadline with its reason
func (mc *MetricsCollector) RecordXrun(reason string) {
	if !mc.enabled() {
		return
	}
	mc.metrics.RecordXrun(reason)
}

// RecordInputDropped records a rejected input block
func (mc *MetricsCollector) RecordInputDropped(reason string) {
	if !mc.enabled() {
		return
	}
	mc.metrics.RecordInputDropped(reason)
}

// RecordProcessingFailure records a contained plugin chain failure
func (mc *MetricsCollector) RecordProcessingFailure(kind string) {
	if !mc.enabled() {
		return
	}
	mc.metrics.RecordProcessingFailure(kind)
}

// RecordClip records a clipping block in group
func (mc *MetricsCollector) RecordClip(group string) {
	if !mc.enabled() {
		return
	}
	mc.metrics.RecordClipEvent(group)
}

// RecordExport records an export with status "success" or "error"
func (mc *MetricsCollector) RecordExport(format string, err error) {
	if !mc.enabled() {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	mc.metrics.RecordExport(format, status)
}
