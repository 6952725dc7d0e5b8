// Package runner executes a workload with many concurrent workers, each over
// its own store connection, and collects their results in start order.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"docstress/internal/stats"
	"docstress/internal/store"
	"docstress/internal/workload"
)

// StatsUpdateChan carries live snapshots to progress displays.
type StatsUpdateChan chan stats.Snapshot

type Harness struct {
	Cfg      Config
	Observer Observer
	Logger   *slog.Logger

	// Optional live stats, pushed on Updates by StartTickLoop.
	Stats   *stats.Stats
	Updates StatsUpdateChan
}

func NewHarness(cfg Config, logger *slog.Logger) *Harness {
	if cfg.StartDelay <= 0 {
		cfg.StartDelay = DefaultStartDelay
	}
	if cfg.WorkerID == nil {
		cfg.WorkerID = IndexWorkerID
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Harness{Cfg: cfg, Logger: logger}
}

// Execute runs workerCount workers concurrently and waits for all of them.
// A failing worker never stops its siblings; its error is carried in its
// result. Results are returned in start order. With synchronized set and no
// explicit def.StartAt, every worker shares one start instant StartDelay from
// now.
func (h *Harness) Execute(
	ctx context.Context,
	def workload.Definition,
	workerCount int,
	adapter store.Adapter,
	synchronized bool,
) []WorkerResult {
	if workerCount <= 0 {
		return []WorkerResult{}
	}

	if synchronized && def.StartAt.IsZero() {
		def = def.WithStartAt(time.Now().Add(h.Cfg.StartDelay))
	}
	if !def.StartAt.IsZero() {
		h.Logger.Info("run.sync", slog.Time("start_at", def.StartAt))
	}

	results := make([]WorkerResult, workerCount)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(idx int, def workload.Definition) {
			defer wg.Done()
			results[idx] = h.runWorker(ctx, idx, def, adapter)
		}(i, def)
	}
	wg.Wait()

	return results
}

func (h *Harness) runWorker(
	ctx context.Context,
	idx int,
	def workload.Definition,
	adapter store.Adapter,
) WorkerResult {
	w := NewWorker(idx, h.Cfg.WorkerID(idx), h.Observer, h.Logger)

	conn, err := adapter.Connect(ctx, h.Cfg.Host, h.Cfg.Port)
	if err != nil {
		return w.finish(WorkerResult{WorkerID: w.ID, Err: err})
	}
	defer conn.Close()

	w.Logger.Debug("worker.connected", slog.String("server", store.Addr(h.Cfg.Host, h.Cfg.Port)))

	return w.Run(ctx, def, conn)
}

// StartTickLoop starts a goroutine that pushes stats updates until ctx is
// done.
func (h *Harness) StartTickLoop(ctx context.Context, interval time.Duration) {
	if h.Stats == nil || h.Updates == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.sendUpdate()
			}
		}
	}()
}

func (h *Harness) sendUpdate() {
	// Non-blocking send
	select {
	case h.Updates <- h.Stats.Snapshot():
	default:
		// Drop update if channel full, the display catches up on the next tick
	}
}
