package realtime

import (
	"math"
	"sync"
	"time"

	"github.com/tphakala/rtaudio/internal/audiocore"
)

// clipThreshold is full scale; samples at or beyond it count as clipped
const clipThreshold = 1.0

// meterBank holds one meter per channel group
type meterBank struct {
	mu     sync.Mutex
	meters map[string]*Meter
}

func newMeterBank() *meterBank {
	return &meterBank{meters: make(map[string]*Meter)}
}

// update measures samples into the meter for group and reports whether the
// block clipped
func (mb *meterBank) update(group string, samples audiocore.Block) bool {
	var sum, peak float64
	var clipped int64
	count := 0
	for _, row := range samples {
		for _, s := range row {
			v := math.Abs(float64(s))
			sum += v * v
			peak = math.Max(peak, v)
			if v >= clipThreshold {
				clipped++
			}
		}
		count += len(row)
	}

	rms := 0.0
	if count > 0 {
		rms = math.Sqrt(sum / float64(count))
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()

	m, ok := mb.meters[group]
	if !ok {
		m = &Meter{}
		mb.meters[group] = m
	}
	m.Peak = math.Max(m.Peak, peak)
	m.RMS = rms
	m.Clipping = clipped > 0
	m.ClipCount += clipped
	m.UpdatedAt = time.Now()
	return clipped > 0
}

func (mb *meterBank) get(group string) (Meter, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	m, ok := mb.meters[group]
	if !ok {
		return Meter{}, false
	}
	return *m, true
}

func (mb *meterBank) groups() map[string]Meter {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	out := make(map[string]Meter, len(mb.meters))
	for group, m := range mb.meters {
		out[group] = *m
	}
	return out
}

func (mb *meterBank) reset() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	clear(mb.meters)
}
