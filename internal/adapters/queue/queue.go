// Package queue defines the transport ports between the ingest and
// aggregate workers. Implementations must deliver at least once and keep
// the relative order of messages that share a key
package queue

import (
	"context"
	"time"

	perr "gitpulse/internal/platform/errors"
)

// ErrClosed is returned once an adapter has been shut down
var ErrClosed = perr.New(perr.ErrorCodeUnavailable, "queue closed")

// Message is one queued record. Key picks the partition lane; records
// sharing a key keep their relative order
type Message struct {
	Key   []byte
	Value []byte

	// Partition and Offset identify a consumed message for commit
	// bookkeeping; publishers leave them zero
	Partition int
	Offset    int64

	Time time.Time
}

// Publisher pushes messages onto the queue. Publish returns once the
// broker has acknowledged the whole batch
type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
	Close() error
}

// Consumer pulls messages one at a time and commits them only after they
// are persisted; anything fetched but uncommitted comes back after a
// restart. Fetch blocks until a message arrives or ctx ends
type Consumer interface {
	Fetch(ctx context.Context) (Message, error)
	Commit(ctx context.Context, msgs ...Message) error
	Close() error
}
