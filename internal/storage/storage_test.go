package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"docstress/internal/store"
)

func row(run string, worker int) store.Doc {
	return store.Doc{
		{Key: KeyHost, Value: "node1"},
		{Key: KeyRunID, Value: run},
		{Key: KeyWorker, Value: worker},
	}
}

func collect(t *testing.T, s Store, f Filter) []store.Doc {
	t.Helper()
	var rows []store.Doc
	for r, err := range s.Scan(context.Background(), f) {
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		rows = append(rows, r)
	}
	return rows
}

func TestFilterMatch(t *testing.T) {
	r := store.Doc{{Key: KeyRunID, Value: json.Number("1700000000")}, {Key: KeyHost, Value: "a"}}

	tests := []struct {
		f    Filter
		want bool
	}{
		{Filter{}, true},
		{Filter{RunID: "1700000000"}, true},
		{Filter{RunID: "1"}, false},
		{Filter{Host: "a"}, true},
		{Filter{RunID: "1700000000", Host: "b"}, false},
	}

	for _, tt := range tests {
		if got := tt.f.Match(r); got != tt.want {
			t.Errorf("%+v.Match = %v, want %v", tt.f, got, tt.want)
		}
	}

	if (Filter{RunID: "x"}).Match(store.Doc{}) {
		t.Error("row without run_id matched a run filter")
	}
}

func TestBoltRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Append(ctx, []store.Doc{row("r1", 0), row("r1", 1)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append(ctx, []store.Doc{row("r2", 0)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	all := collect(t, s, Filter{})
	if len(all) != 3 {
		t.Fatalf("got %d rows, want 3", len(all))
	}
	for i, want := range []string{"r1", "r1", "r2"} {
		if v, _ := all[i].Get(KeyRunID); v != want {
			t.Errorf("row %d run = %v, want %s", i, v, want)
		}
	}
	if keys := all[0].Keys(); keys[0] != KeyHost || keys[1] != KeyRunID {
		t.Errorf("key order not preserved: %v", keys)
	}

	if got := len(collect(t, s, Filter{RunID: "r2"})); got != 1 {
		t.Errorf("filtered rows = %d, want 1", got)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if got := len(collect(t, s, Filter{})); got != 0 {
		t.Errorf("rows after clear = %d, want 0", got)
	}
}

func TestBoltScanPages(t *testing.T) {
	s, err := OpenBolt(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	defer s.Close()

	total := boltPageSize*2 + 7
	rows := make([]store.Doc, total)
	for i := range rows {
		rows[i] = row(fmt.Sprintf("r%d", i), i)
	}
	if err := s.Append(context.Background(), rows); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got := collect(t, s, Filter{})
	if len(got) != total {
		t.Fatalf("got %d rows, want %d", len(got), total)
	}
	for i, r := range got {
		if v, _ := r.Get(KeyRunID); v != fmt.Sprintf("r%d", i) {
			t.Fatalf("row %d run = %v, out of order", i, v)
		}
	}

	// early stop must not leak a transaction
	for range s.Scan(context.Background(), Filter{}) {
		break
	}
	if err := s.Append(context.Background(), []store.Doc{row("after", 0)}); err != nil {
		t.Errorf("Append after early stop failed: %v", err)
	}
}

func TestCollectionStore(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	conn, err := mem.Connect(ctx, "localhost", 27018)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	s := NewCollectionStore(conn, "")
	if err := s.Append(ctx, []store.Doc{row("r1", 0), row("r2", 0)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if got := mem.Count(DefaultReportCollection); got != 2 {
		t.Errorf("report collection holds %d rows, want 2", got)
	}
	if got := len(collect(t, s, Filter{RunID: "r1"})); got != 1 {
		t.Errorf("filtered rows = %d, want 1", got)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if got := mem.Count(DefaultReportCollection); got != 0 {
		t.Errorf("rows after clear = %d, want 0", got)
	}
}
