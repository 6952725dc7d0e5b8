// Package store abstracts the document store a stress run writes to. Every
// backend is an Adapter minting independent Conns; nothing in this package
// retries.
package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrConnection marks failures to reach the target store.
	ErrConnection = errors.New("connection failed")
	// ErrWrite marks a rejected or failed document write.
	ErrWrite = errors.New("write failed")
	// ErrUnknownBackend is returned by Open for unsupported backend names.
	ErrUnknownBackend = errors.New("unknown backend")
)

const (
	DefaultDatabase       = "stress"
	DefaultConnectTimeout = 2 * time.Second
)

// WriteConcern is the acknowledgement level requested for writes.
type WriteConcern string

const (
	WriteNone     WriteConcern = "none"
	WriteAck      WriteConcern = "ack"
	WriteJournal  WriteConcern = "journal"
	WriteMajority WriteConcern = "majority"
)

// ParseWriteConcern validates s. An empty string means WriteAck.
func ParseWriteConcern(s string) (WriteConcern, error) {
	switch wc := WriteConcern(strings.ToLower(strings.TrimSpace(s))); wc {
	case "":
		return WriteAck, nil
	case WriteNone, WriteAck, WriteJournal, WriteMajority:
		return wc, nil
	default:
		return "", fmt.Errorf("unknown write concern %q", s)
	}
}

// Options configure an Adapter. Zero values fall back to defaults.
type Options struct {
	Database       string
	WriteConcern   WriteConcern
	ConnectTimeout time.Duration
	Username       string
	Password       string
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Database == "" {
		o.Database = DefaultDatabase
	}
	if o.WriteConcern == "" {
		o.WriteConcern = WriteAck
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Adapter opens connections to one kind of store.
type Adapter interface {
	Name() string
	Connect(ctx context.Context, host string, port int) (Conn, error)
}

// Conn is a single connection. A Conn is owned by exactly one worker.
type Conn interface {
	Write(ctx context.Context, collection string, doc Doc) error
	Clear(ctx context.Context, collection string) error
	// Scan lazily yields every document of collection. The sequence is
	// finite; calling Scan again starts a fresh read.
	Scan(ctx context.Context, collection string) iter.Seq2[Doc, error]
	Close() error
}

// Backends lists the names accepted by Open.
func Backends() []string {
	return []string{"mongo", "rest", "sql", "memory"}
}

// Open returns the adapter registered under backend.
func Open(backend string, opts Options) (Adapter, error) {
	switch backend {
	case "mongo", "":
		return NewMongo(opts), nil
	case "rest":
		return NewREST(opts), nil
	case "sql":
		return NewSQL(opts), nil
	case "memory":
		return NewMemory(), nil
	}

	return nil, fmt.Errorf("%w %q (want one of %s)",
		ErrUnknownBackend, backend, strings.Join(Backends(), ", "))
}

// Addr joins host and port.
func Addr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func connectError(host string, port int, err error) error {
	return fmt.Errorf("%w to %s: %w", ErrConnection, Addr(host, port), err)
}

func writeError(collection string, err error) error {
	return fmt.Errorf("%w on %s: %w", ErrWrite, collection, err)
}
