package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ExportCSV writes one line per worker of rec to filename.
// Schema: run,host,pid,worker,success,docs,elapsed_ms,ops_per_sec,failureMessage
func ExportCSV(rec RunRecord, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	// Header
	header := []string{
		"run", "host", "pid", "worker", "success",
		"docs", "elapsed_ms", "ops_per_sec", "failureMessage",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, res := range rec.Results {
		successStr := "true"
		errMsg := ""
		if res.Err != nil {
			successStr = "false"
			errMsg = res.Err.Error()
		}

		record := []string{
			rec.RunID,
			rec.Host,
			strconv.Itoa(rec.ProcessID),
			res.WorkerID,
			successStr,
			strconv.Itoa(res.DocsWritten),
			fmt.Sprintf("%d", res.Duration.Milliseconds()),
			fmt.Sprintf("%.2f", res.OpsPerSec()),
			errMsg,
		}

		if err := w.Write(record); err != nil {
			return err
		}
	}

	return w.Error()
}

type exportedWorker struct {
	Worker     string  `json:"worker"`
	Docs       int     `json:"docs"`
	DurationMs int64   `json:"duration_ms"`
	OpsPerSec  float64 `json:"ops_per_sec"`
	Error      string  `json:"error,omitempty"`
}

type exportedRun struct {
	RunID      string           `json:"run_id"`
	Host       string           `json:"host"`
	ProcessID  int              `json:"process_id"`
	ExportedAt time.Time        `json:"exported_at"`
	TotalDocs  int              `json:"total_docs"`
	Failed     int              `json:"failed"`
	OpsPerSec  float64          `json:"ops_per_sec"`
	Metadata   json.RawMessage  `json:"metadata"`
	Workers    []exportedWorker `json:"workers"`
}

// ExportJSON writes rec and its summary to a JSON file.
func ExportJSON(rec RunRecord, filename string) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}

	out := exportedRun{
		RunID:      rec.RunID,
		Host:       rec.Host,
		ProcessID:  rec.ProcessID,
		ExportedAt: time.Now(),
		TotalDocs:  rec.TotalDocs(),
		Failed:     rec.Failed(),
		OpsPerSec:  rec.OpsPerSec(),
		Metadata:   meta,
	}
	for _, res := range rec.Results {
		w := exportedWorker{
			Worker:     res.WorkerID,
			Docs:       res.DocsWritten,
			DurationMs: res.Duration.Milliseconds(),
			OpsPerSec:  res.OpsPerSec(),
		}
		if res.Err != nil {
			w.Error = res.Err.Error()
		}
		out.Workers = append(out.Workers, w)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
