package audiocore

import "time"

// opStats accumulates per buffer counters. Callers hold the buffer lock.
type opStats struct {
	readCount    int64
	writeCount   int64
	bytesRead    int64
	bytesWritten int64
	errorCount   int64
	readTotal    time.Duration
	readMax      time.Duration
	writeTotal   time.Duration
	writeMax     time.Duration
}

func (s *opStats) recordRead(bytes int, d time.Duration) {
	s.readCount++
	s.bytesRead += int64(bytes)
	s.readTotal += d
	s.readMax = max(s.readMax, d)
}

func (s *opStats) recordWrite(bytes int, d time.Duration) {
	s.writeCount++
	s.bytesWritten += int64(bytes)
	s.writeTotal += d
	s.writeMax = max(s.writeMax, d)
}

func (s *opStats) recordError() {
	s.errorCount++
}

func (s *opStats) snapshot() BufferMetrics {
	m := BufferMetrics{
		ReadCount:    s.readCount,
		WriteCount:   s.writeCount,
		BytesRead:    s.bytesRead,
		BytesWritten: s.bytesWritten,
		MaxReadTime:  s.readMax,
		MaxWriteTime: s.writeMax,
		ErrorCount:   s.errorCount,
	}
	if s.readCount > 0 {
		m.AvgReadTime = s.readTotal / time.Duration(s.readCount)
	}
	if s.writeCount > 0 {
		m.AvgWriteTime = s.writeTotal / time.Duration(s.writeCount)
	}
	return m
}
