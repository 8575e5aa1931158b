// Package domain defines the ingest worker contracts
package domain

import (
	"context"

	"gitpulse/internal/core/event"
)

// SourcePort is the abstract event feed the worker polls. One Poll returns
// at most one page; an empty page is a normal outcome (nothing new,
// conditional-fetch hit, or a cycle abandoned after capped retries)
type SourcePort interface {
	Poll(ctx context.Context) ([]event.Raw, error)
}

// WorkerPort runs the long-lived poll loop until the context ends
type WorkerPort interface {
	Run(ctx context.Context) error
}
