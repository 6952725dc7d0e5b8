package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"docstress/internal/store"
	"docstress/internal/workload"
)

func valid() Config {
	c := Default()
	c.Host = "db1"
	return c
}

func TestDefaultNeedsHost(t *testing.T) {
	err := Default().Validate()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	if !strings.Contains(err.Error(), "--host") {
		t.Errorf("error does not name the host flag: %v", err)
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"negative docs", func(c *Config) { c.Docs = -5 }},
		{"negative pause", func(c *Config) { c.Pause = -time.Second }},
		{"bad port", func(c *Config) { c.Port = 70000 }},
		{"negative when", func(c *Config) { c.When = -1 }},
		{"backend", func(c *Config) { c.Backend = "cassandra" }},
		{"write concern", func(c *Config) { c.WriteConcern = "w9" }},
		{"results store", func(c *Config) { c.ResultsStore = "s3" }},
		{"clear one run", func(c *Config) { c.Results, c.Clear, c.RunID = true, true, "abc" }},
		{"clear one host", func(c *Config) { c.Results, c.Clear, c.HostFilter = true, true, "node7" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			if err := c.Validate(); !errors.Is(err, ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestZeroCountsAreValid(t *testing.T) {
	c := valid()
	c.Workers = 0
	c.Docs = 0
	if err := c.Validate(); err != nil {
		t.Errorf("zero workers and docs rejected: %v", err)
	}
}

func TestClearWithRunID(t *testing.T) {
	// A new run may clear the data collection and still pick its run id.
	c := valid()
	c.Clear = true
	c.RunID = "abc"
	if err := c.Validate(); err != nil {
		t.Errorf("run with --clear and --run-id rejected: %v", err)
	}

	// Printing everything and clearing afterwards is fine too.
	c = valid()
	c.Results = true
	c.Clear = true
	if err := c.Validate(); err != nil {
		t.Errorf("unfiltered results clear rejected: %v", err)
	}
}

func TestResultsFilter(t *testing.T) {
	c := valid()
	c.RunID = "42"
	c.HostFilter = "node7"

	f := c.ResultsFilter()
	if f.RunID != "42" || f.Host != "node7" {
		t.Errorf("filter = %+v", f)
	}
}

func TestLoadFromViper(t *testing.T) {
	t.Setenv("DOCSTRESS_HOST", "envhost")
	t.Setenv("DOCSTRESS_WRITE_CONCERN", "majority")

	v := NewViper()
	v.Set("workers", 8)
	v.Set("pause", "15ms")

	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Host != "envhost" {
		t.Errorf("host = %q, want envhost", c.Host)
	}
	if c.WriteConcern != "majority" {
		t.Errorf("write concern = %q", c.WriteConcern)
	}
	if c.Workers != 8 {
		t.Errorf("workers = %d, want 8", c.Workers)
	}
	if c.Pause != 15*time.Millisecond {
		t.Errorf("pause = %s", c.Pause)
	}
	if c.Docs != 1000 || c.Port != 27018 {
		t.Errorf("defaults lost: docs=%d port=%d", c.Docs, c.Port)
	}
}

func TestWorkload(t *testing.T) {
	c := valid()
	c.Docs = 10
	c.Pause = time.Millisecond

	def := c.Workload()
	if def.DocumentCount != 10 || def.PauseBetweenOps != time.Millisecond {
		t.Errorf("unexpected definition: %+v", def)
	}
	if !def.StartAt.IsZero() {
		t.Error("StartAt set without --when")
	}
	if def.Target() != workload.DefaultCollection {
		t.Errorf("target = %s", def.Target())
	}

	c.When = 1700000000
	if got := c.Workload().StartAt; !got.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("StartAt = %s", got)
	}
}

func TestStoreOptions(t *testing.T) {
	c := valid()
	c.WriteConcern = "journal"
	c.Database = "bench"

	opts := c.StoreOptions(nil)
	if opts.WriteConcern != store.WriteJournal || opts.Database != "bench" {
		t.Errorf("unexpected options: %+v", opts)
	}
}

func TestSpoolPath(t *testing.T) {
	c := valid()
	c.Spool = "/tmp/x.db"
	if p, err := c.SpoolPath(); err != nil || p != "/tmp/x.db" {
		t.Errorf("SpoolPath = %q, %v", p, err)
	}
}
