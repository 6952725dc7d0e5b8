package runner

import (
	"fmt"
	"strconv"
	"time"
)

const (
	DefaultStartDelay   = time.Second
	DefaultTickInterval = 200 * time.Millisecond
)

type Config struct {
	Host string
	Port int

	// StartDelay is the lead time used to compute the shared start instant
	// of a synchronized run.
	StartDelay time.Duration

	// WorkerID names worker idx. Defaults to the decimal index.
	WorkerID func(idx int) string
}

// WorkerResult is created once when a worker finishes and never changes
// afterwards.
type WorkerResult struct {
	WorkerID    string
	DocsWritten int
	// Duration covers the write loop only: connection setup and any wait
	// for the start instant are excluded. Zero when Err is set.
	Duration time.Duration
	Err      error
}

func (r WorkerResult) OK() bool { return r.Err == nil }

// OpsPerSec is the write rate of a successful worker.
func (r WorkerResult) OpsPerSec() float64 {
	if r.Err != nil || r.Duration <= 0 {
		return 0
	}
	return float64(r.DocsWritten) / r.Duration.Seconds()
}

// Observer receives progress callbacks from workers. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	ObserveWrite(worker int, latency time.Duration, err error)
	ObserveDone(worker int, written int, elapsed time.Duration, err error)
}

// Observers fans callbacks out to several observers.
type Observers []Observer

func (o Observers) ObserveWrite(worker int, latency time.Duration, err error) {
	for _, obs := range o {
		obs.ObserveWrite(worker, latency, err)
	}
}

func (o Observers) ObserveDone(worker int, written int, elapsed time.Duration, err error) {
	for _, obs := range o {
		obs.ObserveDone(worker, written, elapsed, err)
	}
}

// IndexWorkerID names workers by their start index.
func IndexWorkerID(idx int) string {
	return strconv.Itoa(idx)
}

// CompositeWorkerID names workers host:pid:index so ids stay unique when
// several harness processes report into the same run.
func CompositeWorkerID(host string, pid int) func(int) string {
	return func(idx int) string {
		return fmt.Sprintf("%s:%d:%d", host, pid, idx)
	}
}
