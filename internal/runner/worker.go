package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docstress/internal/store"
	"docstress/internal/workload"
)

// Worker writes one workload over one connection.
type Worker struct {
	ID    string
	Index int

	Observer Observer
	Logger   *slog.Logger
}

func NewWorker(idx int, id string, obs Observer, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Worker{
		ID:       id,
		Index:    idx,
		Observer: obs,
		Logger:   logger.With(slog.String("worker", id)),
	}
}

// Run executes def against conn. The first failed write ends the run; the
// result then carries the error and the number of documents written before
// it. Run never retries.
func (w *Worker) Run(ctx context.Context, def workload.Definition, conn store.Conn) WorkerResult {
	res := WorkerResult{WorkerID: w.ID}

	if wait := def.StartDelay(time.Now()); wait > 0 {
		w.Logger.Info("worker.wait", slog.Float64("sec", wait.Seconds()))
		if err := sleep(ctx, wait); err != nil {
			res.Err = fmt.Errorf("worker %s: wait for start: %w", w.ID, err)
			return w.finish(res)
		}
	}

	if def.DocumentCount == 0 {
		return w.finish(res)
	}

	collection := def.Target()
	w.Logger.Debug("loop.start", slog.Int("n", def.DocumentCount))

	start := time.Now()
	for seq := 0; seq < def.DocumentCount; seq++ {
		if seq > 0 && def.PauseBetweenOps > 0 {
			if err := sleep(ctx, def.PauseBetweenOps); err != nil {
				res.Err = fmt.Errorf("worker %s failed after %d writes: %w", w.ID, seq, err)
				return w.finish(res)
			}
		}

		opStart := time.Now()
		err := conn.Write(ctx, collection, def.Document(seq, opStart))
		w.observeWrite(time.Since(opStart), err)
		if err != nil {
			res.Err = fmt.Errorf("worker %s failed after %d writes: %w", w.ID, seq, err)
			return w.finish(res)
		}
		res.DocsWritten++
	}
	res.Duration = time.Since(start)

	w.Logger.Debug("loop.end",
		slog.Int("n", res.DocsWritten),
		slog.Float64("dur", res.Duration.Seconds()),
	)

	return w.finish(res)
}

func (w *Worker) observeWrite(latency time.Duration, err error) {
	if w.Observer != nil {
		w.Observer.ObserveWrite(w.Index, latency, err)
	}
}

func (w *Worker) finish(res WorkerResult) WorkerResult {
	if res.Err != nil {
		w.Logger.Warn("worker.failed",
			slog.Int("written", res.DocsWritten),
			slog.String("error", res.Err.Error()),
		)
	}
	if w.Observer != nil {
		w.Observer.ObserveDone(w.Index, res.DocsWritten, res.Duration, res.Err)
	}
	return res
}

// sleep blocks for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
