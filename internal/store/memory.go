package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"
)

// Memory is an in-process store. It backs dry runs and tests and can inject
// connect and write failures.
type Memory struct {
	mu          sync.Mutex
	collections map[string][]Doc
	connects    int
	writes      int

	// FailConnect, when set, is returned (wrapped) by every Connect.
	FailConnect error
	// FailWriteAt makes the n-th write of every connection fail (1-indexed).
	FailWriteAt int
	// WriteDelay is slept before each write is stored.
	WriteDelay time.Duration
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string][]Doc)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Connect(_ context.Context, host string, port int) (Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connects++
	if m.FailConnect != nil {
		return nil, connectError(host, port, m.FailConnect)
	}
	return &memoryConn{store: m}, nil
}

// Count returns the number of documents in collection.
func (m *Memory) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collections[collection])
}

// Documents returns a copy of the documents in collection.
func (m *Memory) Documents(collection string) []Doc {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := make([]Doc, len(m.collections[collection]))
	copy(docs, m.collections[collection])
	return docs
}

// Connects returns how many connections were attempted.
func (m *Memory) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// Writes returns how many writes reached the store, failed ones included.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

type memoryConn struct {
	store  *Memory
	writes int
	closed bool
}

var errClosed = errors.New("connection closed")

func (c *memoryConn) Write(_ context.Context, collection string, doc Doc) error {
	if c.closed {
		return writeError(collection, errClosed)
	}
	c.writes++

	m := c.store
	if m.WriteDelay > 0 {
		time.Sleep(m.WriteDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	if m.FailWriteAt > 0 && c.writes == m.FailWriteAt {
		return writeError(collection, fmt.Errorf("injected failure on write %d", c.writes))
	}
	m.collections[collection] = append(m.collections[collection], doc.Clone())
	return nil
}

func (c *memoryConn) Clear(_ context.Context, collection string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	delete(c.store.collections, collection)
	return nil
}

func (c *memoryConn) Scan(_ context.Context, collection string) iter.Seq2[Doc, error] {
	return func(yield func(Doc, error) bool) {
		for _, doc := range c.store.Documents(collection) {
			if !yield(doc, nil) {
				return
			}
		}
	}
}

func (c *memoryConn) Close() error {
	c.closed = true
	return nil
}
