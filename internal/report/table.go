package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"

	"docstress/internal/store"
)

// TableWriter prints report rows as comma separated text. The header is
// taken from the first row written, skipping keys that start with "_". Every
// later row is printed against that header: missing keys render empty and
// keys the first row lacked are dropped.
type TableWriter struct {
	cw     *csv.Writer
	header []string
}

func NewTableWriter(w io.Writer) *TableWriter {
	return &TableWriter{cw: csv.NewWriter(w)}
}

func (t *TableWriter) WriteRow(row store.Doc) error {
	if t.header == nil {
		t.header = visibleKeys(row)
		if err := t.cw.Write(t.header); err != nil {
			return err
		}
	}

	values := make([]string, len(t.header))
	for i, key := range t.header {
		if v, ok := row.Get(key); ok {
			values[i] = FormatValue(v)
		}
	}
	return t.cw.Write(values)
}

func (t *TableWriter) Flush() error {
	t.cw.Flush()
	return t.cw.Error()
}

// RenderTable writes rows with a TableWriter.
func RenderTable(w io.Writer, rows []store.Doc) error {
	tw := NewTableWriter(w)
	for _, row := range rows {
		if err := tw.WriteRow(row); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// RenderRecords streams every record's rows into one table and returns the
// number of records printed.
func RenderRecords(w io.Writer, records iter.Seq2[RunRecord, error]) (int, error) {
	tw := NewTableWriter(w)
	n := 0
	for rec, err := range records {
		if err != nil {
			tw.Flush()
			return n, err
		}
		for _, row := range rec.Rows() {
			if err := tw.WriteRow(row); err != nil {
				return n, err
			}
		}
		n++
	}
	return n, tw.Flush()
}

func visibleKeys(row store.Doc) []string {
	keys := make([]string, 0, len(row))
	for _, f := range row {
		if strings.HasPrefix(f.Key, "_") {
			continue
		}
		keys = append(keys, f.Key)
	}
	return keys
}

// FormatValue is the string form of a report field. Nil renders empty.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format("2006-01-02 15:04:05.000000")
	case time.Duration:
		return strconv.FormatFloat(t.Seconds(), 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
