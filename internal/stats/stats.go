// Package stats keeps live counters for a running harness. Workers feed it
// through the runner.Observer hooks; nothing in a worker ever reads it back.
package stats

import (
	"sync/atomic"
	"time"
)

// Stats holds real-time aggregated metrics
type Stats struct {
	Written       uint64
	WriteErrors   uint64
	WorkersDone   uint64
	WorkersFailed uint64

	Workers  int
	Expected uint64

	// Per-document write latency (microseconds)
	WriteLatency *SafeHistogram

	start time.Time
}

// Snapshot is a point-in-time copy sent to progress displays.
type Snapshot struct {
	Written       uint64
	WriteErrors   uint64
	Expected      uint64
	Workers       int
	WorkersDone   uint64
	WorkersFailed uint64
	Elapsed       time.Duration

	// Pre-calculated percentiles for the UI (cheap copy)
	MeanWriteMs float64
	P50WriteMs  float64
	P90WriteMs  float64
	P99WriteMs  float64
	MaxWriteMs  float64
}

func New(workers, docsPerWorker int) *Stats {
	return &Stats{
		Workers:      workers,
		Expected:     uint64(max(0, workers)) * uint64(max(0, docsPerWorker)),
		WriteLatency: NewSafeHistogram(),
		start:        time.Now(),
	}
}

func (s *Stats) ObserveWrite(_ int, latency time.Duration, err error) {
	if err != nil {
		atomic.AddUint64(&s.WriteErrors, 1)
		return
	}
	atomic.AddUint64(&s.Written, 1)
	s.WriteLatency.RecordDuration(latency)
}

func (s *Stats) ObserveDone(_ int, _ int, _ time.Duration, err error) {
	atomic.AddUint64(&s.WorkersDone, 1)
	if err != nil {
		atomic.AddUint64(&s.WorkersFailed, 1)
	}
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Written:       atomic.LoadUint64(&s.Written),
		WriteErrors:   atomic.LoadUint64(&s.WriteErrors),
		Expected:      s.Expected,
		Workers:       s.Workers,
		WorkersDone:   atomic.LoadUint64(&s.WorkersDone),
		WorkersFailed: atomic.LoadUint64(&s.WorkersFailed),
		Elapsed:       time.Since(s.start),
		MeanWriteMs:   s.WriteLatency.MeanMs(),
		P50WriteMs:    s.WriteLatency.QuantileMs(50),
		P90WriteMs:    s.WriteLatency.QuantileMs(90),
		P99WriteMs:    s.WriteLatency.QuantileMs(99),
		MaxWriteMs:    s.WriteLatency.MaxMs(),
	}
}

// Progress is the fraction of expected documents written, in [0,1].
func (s Snapshot) Progress() float64 {
	if s.Expected == 0 {
		if s.Workers > 0 && s.WorkersDone >= uint64(s.Workers) {
			return 1
		}
		return 0
	}
	return min(1, float64(s.Written)/float64(s.Expected))
}

// Rate is the overall document write rate since the stats were created.
func (s Snapshot) Rate() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Written) / s.Elapsed.Seconds()
}

// Done reports whether every worker has finished.
func (s Snapshot) Done() bool {
	return s.WorkersDone >= uint64(s.Workers)
}
