package domain

import "context"

// ReaderPort is the query surface the read layer consumes. Every range
// query runs over the half-open [now - window, now); results are computed
// from metric_points on each call, never from a materialized rollup
type ReaderPort interface {
	Trending(ctx context.Context, q TrendingQuery) ([]TrendingRow, error)
	Rising(ctx context.Context, q TrendingQuery) ([]TrendingRow, error)
	CategoryTotals(ctx context.Context, q CategoryQuery) ([]CategoryRow, error)
	EntityByID(ctx context.Context, id int64) (Entity, error)
	Windows() []string
}
