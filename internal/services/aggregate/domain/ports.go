// Package domain defines the aggregate worker contracts
package domain

import "context"

// WorkerPort runs the long-lived consume loop until the context ends
type WorkerPort interface {
	Run(ctx context.Context) error
}
