package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"docstress/internal/config"
	"docstress/internal/report"
	"docstress/internal/runner"
	"docstress/internal/storage"
	"docstress/internal/store"
	"docstress/internal/workload"
)

// resetFlags puts every flag of c back to its default so that values parsed
// by an earlier Execute do not leak into the next one.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
}

// withMemory makes every command use mem as its store and queues args for
// the next Execute. The returned buffer collects command output.
func withMemory(t *testing.T, mem *store.Memory, args ...string) *bytes.Buffer {
	t.Helper()

	prev := newAdapter
	newAdapter = func(config.Config) (store.Adapter, error) { return mem, nil }

	for _, c := range []*cobra.Command{rootCmd, runCmd, resultsCmd} {
		resetFlags(c)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)

	t.Cleanup(func() {
		newAdapter = prev
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	return &out
}

func execute(t *testing.T, mem *store.Memory, args ...string) (string, error) {
	t.Helper()
	out := withMemory(t, mem, args...)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunRequiresHostBeforeConnecting(t *testing.T) {
	mem := store.NewMemory()

	_, err := execute(t, mem, "run", "--backend", "memory", "-t", "2")
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	if got := mem.Connects(); got != 0 {
		t.Errorf("connects = %d, want 0", got)
	}
}

func TestRunConnectionFailure(t *testing.T) {
	mem := store.NewMemory()
	mem.FailConnect = errors.New("connection refused")

	_, err := execute(t, mem, "run", "--backend", "memory", "-s", "localhost", "-t", "3")
	if !errors.Is(err, store.ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection", err)
	}
	if want := "connection failed to localhost:27018: connection refused"; err.Error() != want {
		t.Errorf("err = %q, want %q", err, want)
	}
	if got := mem.Connects(); got != 1 {
		t.Errorf("connects = %d, want only the pre-flight one", got)
	}
	if got := mem.Count(workload.DefaultCollection); got != 0 {
		t.Errorf("data docs = %d, want 0", got)
	}
}

func TestRunWritesAndRecords(t *testing.T) {
	mem := store.NewMemory()

	out, err := execute(t, mem,
		"run", "--backend", "memory", "-s", "localhost", "-t", "3", "-n", "10", "--run-id", "r1")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := mem.Count(workload.DefaultCollection); got != 30 {
		t.Errorf("data docs = %d, want 30", got)
	}
	if got := mem.Count(storage.DefaultReportCollection); got != 3 {
		t.Errorf("report rows = %d, want 3", got)
	}
	if !strings.Contains(out, "RUN r1 RESULTS") {
		t.Errorf("summary missing from output:\n%s", out)
	}
}

func TestRunWorkerFailureExitCode(t *testing.T) {
	mem := store.NewMemory()
	mem.FailWriteAt = 4

	withMemory(t, mem, "run", "--backend", "memory", "-s", "localhost", "-t", "2", "-n", "10")
	if code := Execute(); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}

	if got := mem.Count(workload.DefaultCollection); got != 6 {
		t.Errorf("data docs = %d, want 3 per worker", got)
	}
	if got := mem.Count(storage.DefaultReportCollection); got != 2 {
		t.Errorf("report rows = %d, want 2 (failed runs are recorded)", got)
	}
}

func TestResultsClearNeedsAllRuns(t *testing.T) {
	mem := store.NewMemory()

	if _, err := execute(t, mem,
		"run", "--backend", "memory", "-s", "localhost", "-n", "1", "--run-id", "keep"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := execute(t, mem,
		"run", "--backend", "memory", "-s", "localhost", "-n", "1", "--run-id", "other"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	connects := mem.Connects()

	for _, args := range [][]string{
		{"results", "--backend", "memory", "-s", "localhost", "--run-id", "keep", "-c"},
		{"results", "--backend", "memory", "-s", "localhost", "--host-filter", "node7", "-c"},
		{"run", "--backend", "memory", "-s", "localhost", "-r", "--run-id", "keep", "-c"},
	} {
		_, err := execute(t, mem, args...)
		if !errors.Is(err, config.ErrConfiguration) {
			t.Errorf("%v: err = %v, want ErrConfiguration", args, err)
		}
	}

	if got := mem.Connects(); got != connects {
		t.Errorf("connects = %d, want %d", got, connects)
	}
	if got := mem.Count(storage.DefaultReportCollection); got != 2 {
		t.Errorf("report rows = %d, want both runs kept", got)
	}

	if _, err := execute(t, mem, "results", "--backend", "memory", "-s", "localhost", "-c"); err != nil {
		t.Fatalf("results -c failed: %v", err)
	}
	if got := mem.Count(storage.DefaultReportCollection); got != 0 {
		t.Errorf("report rows after clear = %d, want 0", got)
	}
}

func TestResultsHostFilter(t *testing.T) {
	mem := store.NewMemory()

	if _, err := execute(t, mem,
		"run", "--backend", "memory", "-s", "localhost", "-n", "1", "--run-id", "h1"); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	out, err := execute(t, mem, "results", "--backend", "memory", "-s", "localhost", "--host-filter", "no-such-host")
	if err != nil {
		t.Fatalf("results failed: %v", err)
	}
	if out != "" {
		t.Errorf("unexpected output for unknown host:\n%s", out)
	}

	host := report.NewReporter(nil, nil).Host
	out, err = execute(t, mem, "results", "--backend", "memory", "-s", "localhost", "--host-filter", host)
	if err != nil {
		t.Fatalf("results failed: %v", err)
	}
	if !strings.HasPrefix(out, "host,process_id,worker,run_id") || !strings.Contains(out, ",h1,") {
		t.Errorf("output = %q, want the h1 row", out)
	}
}

type brokenStore struct{}

func (brokenStore) Append(context.Context, []store.Doc) error {
	return errors.New("disk full")
}

func (brokenStore) Scan(context.Context, storage.Filter) iter.Seq2[store.Doc, error] {
	return func(func(store.Doc, error) bool) {}
}

func (brokenStore) Clear(context.Context) error { return nil }
func (brokenStore) Close() error                { return nil }

func TestPersistFailureSpools(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	conn, err := mem.Connect(ctx, "localhost", 1)
	if err != nil {
		t.Fatal(err)
	}
	sess := &session{
		adapter:  mem,
		conn:     conn,
		results:  brokenStore{},
		reporter: report.NewReporter(brokenStore{}, nil),
	}
	defer sess.Close()

	cfg := config.Default()
	cfg.Host = "localhost"
	cfg.Backend = "memory"
	cfg.Workers = 2
	cfg.Docs = 3
	cfg.RunID = "spooled"
	cfg.Spool = filepath.Join(t.TempDir(), "spool.db")

	err = runLoad(ctx, io.Discard, cfg, sess)
	if !errors.Is(err, report.ErrPersist) {
		t.Fatalf("err = %v, want ErrPersist", err)
	}

	bs, err := storage.OpenBolt(cfg.Spool)
	if err != nil {
		t.Fatalf("spool not written: %v", err)
	}
	defer bs.Close()

	rows := 0
	for _, err := range bs.Scan(ctx, storage.Filter{RunID: "spooled"}) {
		if err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		rows++
	}
	if rows != 2 {
		t.Errorf("spooled rows = %d, want 2", rows)
	}
}

func TestPersistFailureWithoutSpool(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	conn, _ := mem.Connect(ctx, "localhost", 1)

	sess := &session{
		adapter:  mem,
		conn:     conn,
		results:  brokenStore{},
		reporter: report.NewReporter(brokenStore{}, nil),
	}
	defer sess.Close()

	cfg := config.Default()
	cfg.Host = "localhost"
	cfg.Workers = 1
	cfg.Docs = 1

	if err := runLoad(ctx, io.Discard, cfg, sess); !errors.Is(err, report.ErrPersist) {
		t.Errorf("err = %v, want ErrPersist", err)
	}
}

type failingView struct{}

func (failingView) Run() (tea.Model, error) { return nil, errors.New("no terminal") }
func (failingView) Send(tea.Msg)            {}

func TestExecuteWithTUIWaitsForWorkers(t *testing.T) {
	mem := store.NewMemory()
	mem.WriteDelay = 2 * time.Millisecond

	cfg := config.Default()
	cfg.Host = "localhost"
	cfg.Workers = 3

	h := runner.NewHarness(runner.Config{Host: cfg.Host, Port: cfg.Port}, nil)
	def := workload.Definition{DocumentCount: 5}

	results, err := executeWithTUI(context.Background(), failingView{}, h, def, cfg, mem)
	if err == nil {
		t.Fatal("view error not returned")
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, res := range results {
		if res.Err != nil || res.DocsWritten != 5 {
			t.Errorf("worker %d: %+v", i, res)
		}
	}
	if got := mem.Count(def.Target()); got != 15 {
		t.Errorf("docs = %d, want 15", got)
	}
}

func TestMain(m *testing.M) {
	// Keep config files from the developer's home out of the tests.
	os.Setenv("HOME", os.TempDir())
	os.Exit(m.Run())
}
