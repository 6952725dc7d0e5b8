// Package metrics exposes harness progress as Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docstress/internal/runner"
)

const DefaultNamespace = "docstress"

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	Namespace string
	// Backend is attached to every series as a constant label.
	Backend         string
	LatencyBuckets  []float64
	DurationBuckets []float64
}

// Exporter is a runner.Observer that feeds Prometheus collectors.
type Exporter struct {
	writesTotal           *prom.CounterVec
	writeDurationSeconds  prom.Histogram
	workersFinishedTotal  *prom.CounterVec
	workerDurationSeconds prom.Histogram
	workersActive         prom.Gauge
}

var _ runner.Observer = (*Exporter)(nil)

// NewExporter creates and registers the harness collectors on reg. Collectors
// already registered by an earlier exporter are reused.
func NewExporter(reg prom.Registerer, opts ExporterOptions) (*Exporter, error) {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if len(opts.LatencyBuckets) == 0 {
		opts.LatencyBuckets = prom.ExponentialBuckets(0.0001, 2, 16)
	}
	if len(opts.DurationBuckets) == 0 {
		opts.DurationBuckets = prom.DefBuckets
	}
	labels := prom.Labels{"backend": normalizeLabel(opts.Backend, "unknown")}

	writesVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace:   opts.Namespace,
		Name:        "writes_total",
		Help:        "Documents written, by result.",
		ConstLabels: labels,
	}, []string{"result"})
	writeDuration := prom.NewHistogram(prom.HistogramOpts{
		Namespace:   opts.Namespace,
		Name:        "write_duration_seconds",
		Help:        "Latency of successful single document writes.",
		Buckets:     opts.LatencyBuckets,
		ConstLabels: labels,
	})
	finishedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace:   opts.Namespace,
		Name:        "workers_finished_total",
		Help:        "Workers that returned, by result.",
		ConstLabels: labels,
	}, []string{"result"})
	workerDuration := prom.NewHistogram(prom.HistogramOpts{
		Namespace:   opts.Namespace,
		Name:        "worker_duration_seconds",
		Help:        "Write loop duration of successful workers.",
		Buckets:     opts.DurationBuckets,
		ConstLabels: labels,
	})
	active := prom.NewGauge(prom.GaugeOpts{
		Namespace:   opts.Namespace,
		Name:        "workers_active",
		Help:        "Workers started and not yet finished.",
		ConstLabels: labels,
	})

	var err error
	if writesVec, err = registerCollector(reg, writesVec); err != nil {
		return nil, err
	}
	if writeDuration, err = registerCollector(reg, writeDuration); err != nil {
		return nil, err
	}
	if finishedVec, err = registerCollector(reg, finishedVec); err != nil {
		return nil, err
	}
	if workerDuration, err = registerCollector(reg, workerDuration); err != nil {
		return nil, err
	}
	if active, err = registerCollector(reg, active); err != nil {
		return nil, err
	}

	return &Exporter{
		writesTotal:           writesVec,
		writeDurationSeconds:  writeDuration,
		workersFinishedTotal:  finishedVec,
		workerDurationSeconds: workerDuration,
		workersActive:         active,
	}, nil
}

// Started raises the active worker gauge by n.
func (e *Exporter) Started(n int) {
	if e == nil {
		return
	}
	e.workersActive.Add(float64(n))
}

func (e *Exporter) ObserveWrite(_ int, latency time.Duration, err error) {
	if e == nil {
		return
	}
	if err != nil {
		e.writesTotal.WithLabelValues("error").Inc()
		return
	}
	e.writesTotal.WithLabelValues("ok").Inc()
	e.writeDurationSeconds.Observe(latency.Seconds())
}

func (e *Exporter) ObserveDone(_ int, _ int, elapsed time.Duration, err error) {
	if e == nil {
		return
	}
	e.workersActive.Dec()
	if err != nil {
		e.workersFinishedTotal.WithLabelValues("error").Inc()
		return
	}
	e.workersFinishedTotal.WithLabelValues("ok").Inc()
	e.workerDurationSeconds.Observe(elapsed.Seconds())
}

// Serve exposes g on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prom.Gatherer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics.listen", slog.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
