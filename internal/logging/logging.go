// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const filePrefix = "docstress"

// Options select the level and destinations of the logger.
type Options struct {
	// Verbosity is the -v count: 0 warn, 1 info, 2 or more debug.
	Verbosity int
	// Level, when set, overrides Verbosity (debug, info, warn, error).
	Level string
	// Dir, when set, also writes the log to a timestamped file in Dir.
	Dir string
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// New returns the logger and a close func for the log file, if any.
func New(opts Options) (*slog.Logger, func() error, error) {
	level, err := resolveLevel(opts)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stderr
	if opts.Stderr != nil {
		out = opts.Stderr
	}
	closeFn := func() error { return nil }

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, nil, err
		}
		f, err := os.Create(filepath.Join(opts.Dir, FileName(time.Now())))
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(out, f)
		closeFn = f.Close
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
	}))
	return logger, closeFn, nil
}

// FileName is the log file name for a process started at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("%s_%s-%06d.log", filePrefix,
		t.Format("2006-01-02-15-04-05"), t.Nanosecond()/1000)
}

func resolveLevel(opts Options) (slog.Level, error) {
	if opts.Level != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(strings.ToUpper(opts.Level))); err != nil {
			return 0, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
		return l, nil
	}

	switch {
	case opts.Verbosity <= 0:
		return slog.LevelWarn, nil
	case opts.Verbosity == 1:
		return slog.LevelInfo, nil
	default:
		return slog.LevelDebug, nil
	}
}
