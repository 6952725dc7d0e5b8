// Package storage persists report rows, one row per worker of a run, and
// reads them back in insertion order.
package storage

import (
	"context"
	"fmt"
	"iter"

	"docstress/internal/store"
)

// Report row keys shared by every results store.
const (
	KeyHost        = "host"
	KeyProcessID   = "process_id"
	KeyWorker      = "worker"
	KeyRunID       = "run_id"
	KeyDuration    = "duration"
	KeyDocsWritten = "docs_written"
	KeyError       = "error"
)

const DefaultReportCollection = "report"

// Store is an append-only log of report rows.
type Store interface {
	Append(ctx context.Context, rows []store.Doc) error
	// Scan lazily yields the rows matching f in insertion order. Calling it
	// again restarts from the first row.
	Scan(ctx context.Context, f Filter) iter.Seq2[store.Doc, error]
	Clear(ctx context.Context) error
	Close() error
}

// Filter selects rows. Empty fields match everything.
type Filter struct {
	RunID string
	Host  string
}

// Match reports whether row passes f. Values are compared by their string
// form so numeric run ids written by older runs still match.
func (f Filter) Match(row store.Doc) bool {
	if f.RunID != "" && !fieldEquals(row, KeyRunID, f.RunID) {
		return false
	}
	if f.Host != "" && !fieldEquals(row, KeyHost, f.Host) {
		return false
	}
	return true
}

func fieldEquals(row store.Doc, key, want string) bool {
	v, ok := row.Get(key)
	if !ok {
		return false
	}
	return fmt.Sprint(v) == want
}
