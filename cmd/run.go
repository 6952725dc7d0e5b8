package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"docstress/internal/cli"
	"docstress/internal/config"
	"docstress/internal/metrics"
	"docstress/internal/report"
	"docstress/internal/runner"
	"docstress/internal/stats"
	"docstress/internal/storage"
	"docstress/internal/store"
	"docstress/internal/tui/live"
	"docstress/internal/workload"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a write load against a document store",
	Example: `  docstress run -s db1 -t 16 -n 10000 --clear
  docstress run -s db1 -t 8 -w 1700000000   # start at a shared wall-clock second
  docstress run -s db1 -r                   # print recorded results`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(v)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}

		sess, err := openSession(ctx, cfg)
		if err != nil {
			return err
		}
		defer sess.Close()

		return runLoad(ctx, cmd.OutOrStdout(), cfg, sess)
	},
}

// newAdapter builds the store adapter named by cfg. Replaced in tests.
var newAdapter = func(cfg config.Config) (store.Adapter, error) {
	return store.Open(cfg.Backend, cfg.StoreOptions(logger))
}

func init() {
	addConnectionFlags(runCmd)

	f := runCmd.Flags()

	f.IntP("workers", "t", 1, "number of concurrent workers")
	f.IntP("ndocs", "n", 1000, "documents written by each worker")
	f.BoolP("clear", "c", false, "clear the data collection first (with -r: clear the results)")
	f.BoolP("results", "r", false, "print recorded results and exit")
	f.String("run-id", "", "run id (default: current unix time); filters -r output")
	f.Int64P("when", "w", 0, "start the timed loop at unix second `SEC` (default: now)")
	f.Bool("sync", false, "start every worker at one shared instant")
	f.Duration("pause", 0, "pause between two writes of a worker")
	f.Bool("composite-ids", false, "name workers host:pid:index")
	f.String("collection", workload.DefaultCollection, "collection documents are written to")
	f.String("message", workload.DefaultMessage, "message stored in every document")
	f.Bool("tui", false, "show the full-screen progress view")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	f.StringP("out", "o", "", "also export the run to `PREFIX`.csv and PREFIX.json")
}

// addConnectionFlags registers the flags shared by run and results.
func addConnectionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("host", "s", "", "server host (required)")
	f.IntP("port", "p", 27018, "server port")
	f.String("backend", "mongo", "store backend: mongo, rest, sql or memory")
	f.String("database", store.DefaultDatabase, "database name")
	f.String("write-concern", "ack", "write acknowledgement: none, ack, journal or majority")
	f.Duration("connect-timeout", store.DefaultConnectTimeout, "connection timeout")
	f.String("username", "", "store user")
	f.String("password", "", "store password")
	f.String("results-store", config.ResultsInStore, "where results are kept: store (report collection) or bolt (local file)")
	f.String("spool", "", "bolt results file (default ~/.docstress/results.db); with --results-store=store, runs that fail to persist are kept here")
}

// session is the pre-flight connection plus the results store built on it.
type session struct {
	adapter  store.Adapter
	conn     store.Conn
	results  storage.Store
	reporter *report.Reporter
}

func (s *session) Close() {
	s.results.Close()
	if _, shared := s.results.(*storage.CollectionStore); !shared {
		s.conn.Close()
	}
}

// openSession connects once to check the server is reachable and opens the
// results store.
func openSession(ctx context.Context, cfg config.Config) (*session, error) {
	adapter, err := newAdapter(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w: %w", config.ErrConfiguration, err)
	}

	conn, err := adapter.Connect(ctx, cfg.Host, cfg.Port)
	if err != nil {
		if !errors.Is(err, store.ErrConnection) {
			err = fmt.Errorf("%w: %w", store.ErrConnection, err)
		}
		return nil, err
	}

	var results storage.Store
	if cfg.ResultsStore == config.ResultsInBolt {
		path, err := cfg.SpoolPath()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("results: %w", err)
		}
		if results, err = storage.OpenBolt(path); err != nil {
			conn.Close()
			return nil, fmt.Errorf("results: %w", err)
		}
	} else {
		results = storage.NewCollectionStore(conn, storage.DefaultReportCollection)
	}

	return &session{
		adapter:  adapter,
		conn:     conn,
		results:  results,
		reporter: report.NewReporter(results, logger),
	}, nil
}

// runLoad runs the workload over sess, prints the record to out and persists
// it. Worker failures are reported after the record is saved.
func runLoad(ctx context.Context, out io.Writer, cfg config.Config, sess *session) error {
	if cfg.Results {
		return printResults(ctx, out, sess, cfg)
	}

	def := cfg.Workload()
	if cfg.Clear {
		if err := sess.conn.Clear(ctx, def.Target()); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
	}

	runID := cfg.RunID
	if runID == "" {
		runID = report.NewRunID(time.Now())
	}

	hcfg := runner.Config{Host: cfg.Host, Port: cfg.Port}
	if cfg.CompositeIDs {
		hcfg.WorkerID = runner.CompositeWorkerID(sess.reporter.Host, sess.reporter.ProcessID)
	}
	h := runner.NewHarness(hcfg, logger.With(slog.String("run", runID)))
	h.Stats = stats.New(cfg.Workers, cfg.Docs)
	h.Updates = make(runner.StatsUpdateChan, 100)
	observers := runner.Observers{h.Stats}

	if cfg.MetricsAddr != "" {
		reg := prom.NewRegistry()
		exp, err := metrics.NewExporter(reg, metrics.ExporterOptions{Backend: sess.adapter.Name()})
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		exp.Started(cfg.Workers)
		observers = append(observers, exp)

		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg, logger); err != nil {
				logger.Error("metrics.serve", slog.String("error", err.Error()))
			}
		}()
	}
	h.Observer = observers

	logger.Info("run.start",
		slog.String("run", runID),
		slog.Int("docs", cfg.Docs),
		slog.Int("workers", cfg.Workers),
		slog.String("server", store.Addr(cfg.Host, cfg.Port)),
		slog.String("backend", sess.adapter.Name()),
		slog.String("db", cfg.Database),
		slog.String("collection", def.Target()),
	)

	tickCtx, stopTicks := context.WithCancel(ctx)
	h.StartTickLoop(tickCtx, runner.DefaultTickInterval)

	var (
		results []runner.WorkerResult
		viewErr error
	)
	if cfg.TUI {
		view := tea.NewProgram(live.NewModel(store.Addr(cfg.Host, cfg.Port), h.Updates), tea.WithAltScreen())
		results, viewErr = executeWithTUI(ctx, view, h, def, cfg, sess.adapter)
		if viewErr != nil {
			logger.Error("tui.failed", slog.String("error", viewErr.Error()))
		}
	} else {
		cli.PrintHeader(os.Stderr, cfg, runID)
		done := make(chan struct{})
		monitorDone := make(chan struct{})
		go func() {
			cli.Monitor(os.Stderr, h.Updates, done)
			close(monitorDone)
		}()

		results = h.Execute(ctx, def, cfg.Workers, sess.adapter, cfg.Sync)
		close(done)
		<-monitorDone
	}
	stopTicks()

	meta := append(cfg.Metadata(sess.adapter.Name()), latencyMetadata(h.Stats.Snapshot())...)
	rec := sess.reporter.Aggregate(runID, meta, results)
	report.WriteSummary(out, rec)

	if cfg.Out != "" {
		if err := report.ExportCSV(rec, cfg.Out+".csv"); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if err := report.ExportJSON(rec, cfg.Out+".json"); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		fmt.Fprintf(os.Stderr, "💾 Reports saved to %s.{csv,json}\n", cfg.Out)
	}

	// Persist on a fresh context so an interrupted run is still recorded.
	pctx := context.WithoutCancel(ctx)
	if err := sess.reporter.Persist(pctx, rec); err != nil {
		if path, serr := spoolRecord(pctx, cfg, rec); serr == nil {
			fmt.Fprintf(os.Stderr, "💾 Results spooled to %s\n", path)
		}
		return errors.Join(fmt.Errorf("persist: %w", err), viewErr)
	}

	logger.Info("run.end", slog.String("run", runID), slog.Int("failed", rec.Failed()))

	if n := rec.Failed(); n > 0 {
		return errors.Join(fmt.Errorf("run %s: %d of %d workers failed", runID, n, len(rec.Results)), viewErr)
	}
	return viewErr
}

// program is the part of *tea.Program the live view needs.
type program interface {
	Run() (tea.Model, error)
	Send(msg tea.Msg)
}

// executeWithTUI runs the harness while view is on screen. It always waits
// for every worker, also when the view is detached or fails to start.
func executeWithTUI(
	ctx context.Context,
	view program,
	h *runner.Harness,
	def workload.Definition,
	cfg config.Config,
	adapter store.Adapter,
) ([]runner.WorkerResult, error) {
	finished := make(chan []runner.WorkerResult, 1)
	go func() {
		results := h.Execute(ctx, def, cfg.Workers, adapter, cfg.Sync)
		finished <- results
		view.Send(live.DoneMsg{Results: results})
	}()

	_, err := view.Run()
	results := <-finished
	if err != nil {
		return results, fmt.Errorf("tui: %w", err)
	}
	return results, nil
}

func latencyMetadata(snap stats.Snapshot) store.Doc {
	return store.Doc{
		{Key: "mean_write_ms", Value: snap.MeanWriteMs},
		{Key: "p50_write_ms", Value: snap.P50WriteMs},
		{Key: "p90_write_ms", Value: snap.P90WriteMs},
		{Key: "p99_write_ms", Value: snap.P99WriteMs},
		{Key: "max_write_ms", Value: snap.MaxWriteMs},
	}
}

// spoolRecord keeps rec in the --spool bolt file when the report collection
// refused it.
func spoolRecord(ctx context.Context, cfg config.Config, rec report.RunRecord) (string, error) {
	if cfg.Spool == "" || cfg.ResultsStore == config.ResultsInBolt {
		return "", errors.New("no spool file configured")
	}
	bs, err := storage.OpenBolt(cfg.Spool)
	if err != nil {
		return "", err
	}
	defer bs.Close()

	if err := report.NewReporter(bs, logger).Persist(ctx, rec); err != nil {
		return "", err
	}
	return bs.Path(), nil
}
