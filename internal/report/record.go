// Package report turns worker results into run records, persists them as
// report rows and renders them back as tables.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"time"

	"docstress/internal/runner"
	"docstress/internal/storage"
	"docstress/internal/store"
)

// ErrPersist marks a run record that could not be written to the results
// store.
var ErrPersist = errors.New("persist")

// RunRecord is assembled once after every worker finished and never mutated
// afterwards.
type RunRecord struct {
	RunID     string
	Host      string
	ProcessID int
	Results   []runner.WorkerResult
	Metadata  store.Doc
}

// Reporter aggregates, persists and lists run records.
type Reporter struct {
	Host      string
	ProcessID int

	Store  storage.Store
	Logger *slog.Logger
}

// NewReporter captures the local host name and process id.
func NewReporter(st storage.Store, logger *slog.Logger) *Reporter {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reporter{
		Host:      host,
		ProcessID: os.Getpid(),
		Store:     st,
		Logger:    logger,
	}
}

// NewRunID derives a run id from t in unix seconds.
func NewRunID(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// Aggregate builds a RunRecord. It does no I/O and copies its inputs.
func (r *Reporter) Aggregate(runID string, metadata store.Doc, results []runner.WorkerResult) RunRecord {
	return RunRecord{
		RunID:     runID,
		Host:      r.Host,
		ProcessID: r.ProcessID,
		Results:   slices.Clone(results),
		Metadata:  metadata.Clone(),
	}
}

// Persist appends rec to the results store. On failure every worker result
// is still logged so that no duration is lost.
func (r *Reporter) Persist(ctx context.Context, rec RunRecord) error {
	if r.Store == nil {
		return fmt.Errorf("%w: run %s: no results store", ErrPersist, rec.RunID)
	}

	if err := r.Store.Append(ctx, rec.Rows()); err != nil {
		for _, res := range rec.Results {
			r.Logger.Error("report.unsaved",
				slog.String("run", rec.RunID),
				slog.String("worker", res.WorkerID),
				slog.Int("docs", res.DocsWritten),
				slog.Float64("dur", res.Duration.Seconds()),
			)
		}
		return fmt.Errorf("%w: run %s: %w", ErrPersist, rec.RunID, err)
	}

	r.Logger.Info("report.saved",
		slog.String("run", rec.RunID),
		slog.Int("rows", len(rec.Results)),
	)
	return nil
}

// List lazily yields the records in the results store. Consecutive rows that
// share run id, host and process id form one record.
func (r *Reporter) List(ctx context.Context, f storage.Filter) iter.Seq2[RunRecord, error] {
	return func(yield func(RunRecord, error) bool) {
		var (
			group []store.Doc
			key   string
		)

		for row, err := range r.Store.Scan(ctx, f) {
			if err != nil {
				yield(RunRecord{}, err)
				return
			}

			k := groupKey(row)
			if len(group) > 0 && k != key {
				if !yield(RecordFromRows(group), nil) {
					return
				}
				group = nil
			}
			key = k
			group = append(group, row)
		}

		if len(group) > 0 {
			yield(RecordFromRows(group), nil)
		}
	}
}

func groupKey(row store.Doc) string {
	run, _ := row.Get(storage.KeyRunID)
	host, _ := row.Get(storage.KeyHost)
	pid, _ := row.Get(storage.KeyProcessID)
	return fmt.Sprint(run, "\x00", host, "\x00", pid)
}

var rowKeys = []string{
	storage.KeyHost,
	storage.KeyProcessID,
	storage.KeyWorker,
	storage.KeyRunID,
	storage.KeyDuration,
	storage.KeyDocsWritten,
	storage.KeyError,
}

// Rows flattens rec into one report row per worker, metadata last.
func (rec RunRecord) Rows() []store.Doc {
	rows := make([]store.Doc, 0, len(rec.Results))
	for _, res := range rec.Results {
		var dur, errMsg any
		if res.Err != nil {
			errMsg = res.Err.Error()
		} else {
			dur = res.Duration.Seconds()
		}

		row := store.Doc{
			{Key: storage.KeyHost, Value: rec.Host},
			{Key: storage.KeyProcessID, Value: rec.ProcessID},
			{Key: storage.KeyWorker, Value: res.WorkerID},
			{Key: storage.KeyRunID, Value: rec.RunID},
			{Key: storage.KeyDuration, Value: dur},
			{Key: storage.KeyDocsWritten, Value: res.DocsWritten},
			{Key: storage.KeyError, Value: errMsg},
		}
		for _, f := range rec.Metadata {
			if !slices.Contains(rowKeys, f.Key) {
				row = append(row, f)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// RecordFromRows rebuilds a record from report rows. Metadata is taken from
// the first row.
func RecordFromRows(rows []store.Doc) RunRecord {
	var rec RunRecord
	if len(rows) == 0 {
		return rec
	}

	first := rows[0]
	rec.RunID = stringField(first, storage.KeyRunID)
	rec.Host = stringField(first, storage.KeyHost)
	rec.ProcessID = int(numberField(first, storage.KeyProcessID))

	for _, f := range first {
		if !slices.Contains(rowKeys, f.Key) && (len(f.Key) == 0 || f.Key[0] != '_') {
			rec.Metadata = append(rec.Metadata, f)
		}
	}

	for _, row := range rows {
		res := runner.WorkerResult{
			WorkerID:    stringField(row, storage.KeyWorker),
			DocsWritten: int(numberField(row, storage.KeyDocsWritten)),
			Duration:    time.Duration(numberField(row, storage.KeyDuration) * float64(time.Second)),
		}
		if msg := stringField(row, storage.KeyError); msg != "" {
			res.Err = errors.New(msg)
			res.Duration = 0
		}
		rec.Results = append(rec.Results, res)
	}
	return rec
}

// MaxDuration is the slowest successful worker's duration.
func (rec RunRecord) MaxDuration() time.Duration {
	var longest time.Duration
	for _, res := range rec.Results {
		longest = max(longest, res.Duration)
	}
	return longest
}

// TotalDocs sums documents written by every worker.
func (rec RunRecord) TotalDocs() int {
	n := 0
	for _, res := range rec.Results {
		n += res.DocsWritten
	}
	return n
}

// Failed counts workers that returned an error.
func (rec RunRecord) Failed() int {
	n := 0
	for _, res := range rec.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}

// OpsPerSec is the aggregate rate: all documents over the slowest worker.
func (rec RunRecord) OpsPerSec() float64 {
	longest := rec.MaxDuration()
	if longest <= 0 {
		return 0
	}
	return float64(rec.TotalDocs()) / longest.Seconds()
}

func stringField(row store.Doc, key string) string {
	v, ok := row.Get(key)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func numberField(row store.Doc, key string) float64 {
	v, _ := row.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}
