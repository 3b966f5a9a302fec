package realtime

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// perfStats accumulates processor counters. Process times are kept in a
// bounded FIFO of milliseconds.
type perfStats struct {
	mu          sync.Mutex
	historySize int
	history     *queue.Queue

	underruns int64
	xruns     int64
	processed int64
	dropped   int64
	failures  int64
	maxMS     float64
	since     time.Time
}

func newPerfStats(historySize int) *perfStats {
	return &perfStats{
		historySize: historySize,
		history:     queue.New(),
		since:       time.Now(),
	}
}

// recordProcessed adds one processing time and reports whether it missed
// the block period
func (s *perfStats) recordProcessed(elapsed, period time.Duration) bool {
	ms := float64(elapsed) / float64(time.Millisecond)
	late := period > 0 && elapsed > period

	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed++
	s.history.Add(ms)
	for s.history.Length() > s.historySize {
		s.history.Remove()
	}
	if ms > s.maxMS {
		s.maxMS = ms
	}
	if late {
		s.xruns++
	}
	return late
}

func (s *perfStats) recordXrun() {
	s.mu.Lock()
	s.xruns++
	s.mu.Unlock()
}

func (s *perfStats) recordFailure() {
	s.mu.Lock()
	s.failures++
	s.xruns++
	s.mu.Unlock()
}

func (s *perfStats) recordUnderrun() {
	s.mu.Lock()
	s.underruns++
	s.mu.Unlock()
}

func (s *perfStats) recordDrop() {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

// snapshot copies the counters. CPUUsage is the average processing time as
// a percentage of period.
func (s *perfStats) snapshot(period time.Duration) PerformanceStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := make([]float64, s.history.Length())
	var sum float64
	for i := range samples {
		samples[i] = s.history.Get(i).(float64)
		sum += samples[i]
	}

	stats := PerformanceStats{
		BufferUnderruns:    s.underruns,
		Xruns:              s.xruns,
		ProcessedBuffers:   s.processed,
		DroppedInputs:      s.dropped,
		ProcessingFailures: s.failures,
		ProcessTimeSamples: samples,
		MaxProcessTimeMS:   s.maxMS,
		Since:              s.since,
	}
	if len(samples) > 0 {
		stats.AvgProcessTimeMS = sum / float64(len(samples))
	}
	if periodMS := float64(period) / float64(time.Millisecond); periodMS > 0 {
		stats.CPUUsage = stats.AvgProcessTimeMS / periodMS * 100
	}
	return stats
}

func (s *perfStats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = queue.New()
	s.underruns, s.xruns, s.processed, s.dropped, s.failures = 0, 0, 0, 0, 0
	s.maxMS = 0
	s.since = time.Now()
}
