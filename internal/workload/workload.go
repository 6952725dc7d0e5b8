// Package workload describes the unit of work every stress worker executes.
package workload

import (
	"fmt"
	"time"

	"docstress/internal/store"
)

const (
	DefaultMessage    = "I am legend"
	DefaultCollection = "data"
)

// Document field names.
const (
	FieldSeq       = "seq"
	FieldCreatedAt = "created_at"
	FieldMessage   = "message"
)

// Definition is shared read-only by every worker of a run; the harness hands
// each worker its own copy.
type Definition struct {
	// DocumentCount is the number of documents a worker writes. Zero is a
	// legal no-op run.
	DocumentCount int
	Message       string
	Collection    string
	// StartAt, when non-zero, is the instant the timed write loop begins.
	StartAt time.Time
	// PauseBetweenOps is slept between two successive writes, never after
	// the last one.
	PauseBetweenOps time.Duration
}

// Validate rejects negative counts and pauses.
func (d Definition) Validate() error {
	if d.DocumentCount < 0 {
		return fmt.Errorf("document count must be >= 0, got %d", d.DocumentCount)
	}
	if d.PauseBetweenOps < 0 {
		return fmt.Errorf("pause between ops must be >= 0, got %s", d.PauseBetweenOps)
	}
	return nil
}

// WithStartAt returns a copy of d starting at t.
func (d Definition) WithStartAt(t time.Time) Definition {
	d.StartAt = t
	return d
}

// StartDelay is how long a worker invoked at now waits before its timed
// region. It is never negative.
func (d Definition) StartDelay(now time.Time) time.Duration {
	if d.StartAt.IsZero() {
		return 0
	}
	return max(0, d.StartAt.Sub(now))
}

// Document builds the payload for sequence number seq.
func (d Definition) Document(seq int, now time.Time) store.Doc {
	msg := d.Message
	if msg == "" {
		msg = DefaultMessage
	}
	return store.Doc{
		{Key: FieldSeq, Value: seq},
		{Key: FieldCreatedAt, Value: now},
		{Key: FieldMessage, Value: msg},
	}
}

// Target returns the collection documents are written to.
func (d Definition) Target() string {
	if d.Collection == "" {
		return DefaultCollection
	}
	return d.Collection
}
