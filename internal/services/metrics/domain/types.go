// Package domain defines the metrics store types and read ports
package domain

import (
	"time"

	"gitpulse/internal/core/event"
)

// Entity is one tracked repository-like subject. Created lazily on the
// first observed event, never deleted
type Entity struct {
	EntityID      int64
	DisplayName   string
	Category      *string
	SizeMetric    int64
	FirstSeenAt   time.Time
	LastUpdatedAt time.Time
}

// EntityUpsert is the per-entity summary of one consumed batch, used for
// the lazy create. SizeMetric only seeds a brand new row; existing rows
// change size through deltas alone
type EntityUpsert struct {
	EntityID    int64
	DisplayName string
	Category    *string
	SizeMetric  int64
}

// MetricPoint is one processed event, append-only, keyed by EventID.
// VelocityScore is computed once at ingestion and never recomputed
type MetricPoint struct {
	EventID       string
	EntityID      int64
	EventType     event.Type
	OccurredAt    time.Time
	IngestedAt    time.Time
	Delta         int64
	VelocityScore float64
}

// TrendingRow is one entity in a windowed ranking
type TrendingRow struct {
	EntityID    int64
	DisplayName string
	Category    *string
	SizeMetric  int64
	Events      int64
	NetDelta    int64
	VelocitySum float64
}

// CategoryRow is one category's windowed totals
type CategoryRow struct {
	Category    string
	Events      int64
	VelocitySum float64
	Entities    int64
}

// TrendingQuery selects a window by name plus optional filters
type TrendingQuery struct {
	Window   string
	Category string
	Limit    int
}

// CategoryQuery selects a window by name for category totals
type CategoryQuery struct {
	Window string
	Limit  int
}

// Window is a resolved half-open time range [Since, Until)
type Window struct {
	Since time.Time
	Until time.Time
}

// EntityDelta is the net size change one batch applies to an entity
type EntityDelta struct {
	EntityID int64
	Delta    int64
}
