// Package config decodes and validates docstress settings gathered from
// flags, environment and the config file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"docstress/internal/storage"
	"docstress/internal/store"
	"docstress/internal/workload"
)

// ErrConfiguration marks settings rejected before any connection attempt.
var ErrConfiguration = errors.New("configuration")

const EnvPrefix = "DOCSTRESS"

// Results store kinds.
const (
	ResultsInStore = "store"
	ResultsInBolt  = "bolt"
)

// Config mirrors the run flags. Keys match the long flag names.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Workers int    `mapstructure:"workers"`
	Docs    int    `mapstructure:"ndocs"`
	Clear   bool   `mapstructure:"clear"`
	Results bool   `mapstructure:"results"`
	RunID   string `mapstructure:"run-id"`

	// HostFilter narrows printed results to rows recorded by one host.
	HostFilter string `mapstructure:"host-filter"`

	// When is a start instant in unix seconds; zero starts immediately.
	When  int64         `mapstructure:"when"`
	Sync  bool          `mapstructure:"sync"`
	Pause time.Duration `mapstructure:"pause"`

	// CompositeIDs names workers host:pid:index instead of index.
	CompositeIDs bool `mapstructure:"composite-ids"`

	Backend        string        `mapstructure:"backend"`
	Database       string        `mapstructure:"database"`
	Collection     string        `mapstructure:"collection"`
	Message        string        `mapstructure:"message"`
	WriteConcern   string        `mapstructure:"write-concern"`
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`

	ResultsStore string `mapstructure:"results-store"`
	Spool        string `mapstructure:"spool"`

	TUI         bool   `mapstructure:"tui"`
	MetricsAddr string `mapstructure:"metrics-addr"`
	Out         string `mapstructure:"out"`
	LogFile     string `mapstructure:"log-file"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Port:           27018,
		Workers:        1,
		Docs:           1000,
		Backend:        "mongo",
		Database:       store.DefaultDatabase,
		Collection:     workload.DefaultCollection,
		Message:        workload.DefaultMessage,
		WriteConcern:   string(store.WriteAck),
		ConnectTimeout: store.DefaultConnectTimeout,
		ResultsStore:   ResultsInStore,
	}
}

// NewViper returns a viper instance reading DOCSTRESS_* environment
// variables, with dashes in keys mapped to underscores.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every key so that Unmarshal also sees values that
// only come from the environment.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("ndocs", d.Docs)
	v.SetDefault("clear", d.Clear)
	v.SetDefault("results", d.Results)
	v.SetDefault("run-id", d.RunID)
	v.SetDefault("host-filter", d.HostFilter)
	v.SetDefault("when", d.When)
	v.SetDefault("sync", d.Sync)
	v.SetDefault("pause", d.Pause)
	v.SetDefault("composite-ids", d.CompositeIDs)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("database", d.Database)
	v.SetDefault("collection", d.Collection)
	v.SetDefault("message", d.Message)
	v.SetDefault("write-concern", d.WriteConcern)
	v.SetDefault("connect-timeout", d.ConnectTimeout)
	v.SetDefault("username", d.Username)
	v.SetDefault("password", d.Password)
	v.SetDefault("results-store", d.ResultsStore)
	v.SetDefault("spool", d.Spool)
	v.SetDefault("tui", d.TUI)
	v.SetDefault("metrics-addr", d.MetricsAddr)
	v.SetDefault("out", d.Out)
	v.SetDefault("log-file", d.LogFile)
}

// Load decodes v over the defaults. It does not validate.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return cfg, nil
}

// Validate checks everything that can be checked without a connection.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Host) == "" {
		add("--host is required")
	}
	// Clearing removes the whole results store, not just the printed rows.
	if c.Results && c.Clear && (c.RunID != "" || c.HostFilter != "") {
		add("--clear removes every recorded run and cannot be combined with --run-id or --host-filter")
	}
	if c.Port <= 0 || c.Port > 65535 {
		add("port %d out of range", c.Port)
	}
	if c.Workers < 0 {
		add("workers must be >= 0, got %d", c.Workers)
	}
	if c.When < 0 {
		add("when must be unix seconds >= 0, got %d", c.When)
	}
	if err := c.Workload().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Backend != "" && !slices.Contains(store.Backends(), c.Backend) {
		add("unknown backend %q (want one of %s)", c.Backend, strings.Join(store.Backends(), ", "))
	}
	if _, err := store.ParseWriteConcern(c.WriteConcern); err != nil {
		errs = append(errs, err)
	}
	if c.ConnectTimeout < 0 {
		add("connect timeout must be >= 0, got %s", c.ConnectTimeout)
	}
	switch c.ResultsStore {
	case "", ResultsInStore, ResultsInBolt:
	default:
		add("unknown results store %q (want %s or %s)", c.ResultsStore, ResultsInStore, ResultsInBolt)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// Workload is the per-worker workload described by c.
func (c Config) Workload() workload.Definition {
	def := workload.Definition{
		DocumentCount:   c.Docs,
		Message:         c.Message,
		Collection:      c.Collection,
		PauseBetweenOps: c.Pause,
	}
	if c.When > 0 {
		def.StartAt = time.Unix(c.When, 0)
	}
	return def
}

// StoreOptions are the adapter options described by c.
func (c Config) StoreOptions(logger *slog.Logger) store.Options {
	wc, _ := store.ParseWriteConcern(c.WriteConcern)
	return store.Options{
		Database:       c.Database,
		WriteConcern:   wc,
		ConnectTimeout: c.ConnectTimeout,
		Username:       c.Username,
		Password:       c.Password,
		Logger:         logger,
	}
}

// SpoolPath is the bbolt results file, defaulting to ~/.docstress/results.db.
func (c Config) SpoolPath() (string, error) {
	if c.Spool != "" {
		return c.Spool, nil
	}
	return storage.DefaultBoltPath()
}

// ResultsFilter selects the recorded rows to print.
func (c Config) ResultsFilter() storage.Filter {
	return storage.Filter{RunID: c.RunID, Host: c.HostFilter}
}

// Metadata is attached to every report row of a run.
func (c Config) Metadata(backend string) store.Doc {
	return store.Doc{
		{Key: "ndocs", Value: c.Docs},
		{Key: "nworkers", Value: c.Workers},
		{Key: "backend", Value: backend},
		{Key: "sync", Value: c.Sync},
	}
}
