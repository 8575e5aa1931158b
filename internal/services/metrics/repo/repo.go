// Package repo implements the metrics store over Postgres
package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gitpulse/internal/modkit/repokit"
	"gitpulse/internal/services/metrics/domain"
)

type (
	pg     struct{ q repokit.Queryer }
	binder struct{}
)

// NewPG constructs a repo binder for Postgres
func NewPG() repokit.Binder[Storage] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) Storage { return &pg{q: q} }

// Storage is the metrics repository. The write half expects to run inside
// the aggregator's transaction; reads are safe on the plain pool
type Storage interface {
	// UpsertEntities creates missing entities and refreshes display_name
	// and category on existing ones. xs must be unique by EntityID.
	// Returns the stored size_metric per entity; for existing rows that is
	// the current value, not the carried one, and the touched rows stay
	// locked until the transaction ends
	UpsertEntities(ctx context.Context, xs []domain.EntityUpsert, at time.Time) (map[int64]int64, error)

	// FilterSeen returns which of eventIDs already have a metric point
	FilterSeen(ctx context.Context, eventIDs []string) (map[string]struct{}, error)

	// InsertPoints appends metric points, skipping event_ids already
	// present. Returns how many rows actually landed
	InsertPoints(ctx context.Context, xs []domain.MetricPoint) (int64, error)

	// ApplyDeltas adds each entity's net delta to its size_metric
	ApplyDeltas(ctx context.Context, deltas []domain.EntityDelta, at time.Time) error

	Trending(ctx context.Context, w domain.Window, category string, limit int) ([]domain.TrendingRow, error)
	Rising(ctx context.Context, w domain.Window, category string, limit int) ([]domain.TrendingRow, error)
	CategoryTotals(ctx context.Context, w domain.Window, limit int) ([]domain.CategoryRow, error)
	EntityByID(ctx context.Context, id int64) (domain.Entity, error)

	// DeleteOlderThan ages out metric points; entities stay
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// UpsertEntities implements Storage
func (s *pg) UpsertEntities(
	ctx context.Context,
	xs []domain.EntityUpsert,
	at time.Time,
) (map[int64]int64, error) {
	if len(xs) == 0 {
		return map[int64]int64{}, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO entities
		(entity_id, display_name, category, size_metric, first_seen_at, last_updated_at) VALUES `)

	args := make([]any, 0, len(xs)*6)
	for i, e := range xs {
		if i > 0 {
			sb.WriteByte(',')
		}
		base := i*6 + 1
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d)",
			base, base+1, base+2, base+3, base+4, base+5)
		args = append(args, e.EntityID, e.DisplayName, e.Category, e.SizeMetric, at, at)
	}
	// size_metric is deliberately absent from the update list: it seeds
	// once and moves only through ApplyDeltas afterwards
	sb.WriteString(` ON CONFLICT (entity_id) DO UPDATE SET
		display_name = EXCLUDED.display_name,
		category = COALESCE(EXCLUDED.category, entities.category),
		last_updated_at = EXCLUDED.last_updated_at
	RETURNING entity_id, size_metric`)

	rows, err := s.q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sizes := make(map[int64]int64, len(xs))
	for rows.Next() {
		var id, size int64
		if err := rows.Scan(&id, &size); err != nil {
			return nil, err
		}
		sizes[id] = size
	}
	return sizes, rows.Err()
}

// FilterSeen implements Storage
func (s *pg) FilterSeen(ctx context.Context, eventIDs []string) (map[string]struct{}, error) {
	if len(eventIDs) == 0 {
		return map[string]struct{}{}, nil
	}

	rows, err := s.q.Query(ctx,
		`SELECT event_id FROM metric_points WHERE event_id = ANY($1)`, eventIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		seen[id] = struct{}{}
	}
	return seen, rows.Err()
}

// InsertPoints implements Storage
func (s *pg) InsertPoints(ctx context.Context, xs []domain.MetricPoint) (int64, error) {
	if len(xs) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO metric_points
		(event_id, entity_id, event_type, occurred_at, ingested_at, delta, velocity_score) VALUES `)

	args := make([]any, 0, len(xs)*7)
	for i, p := range xs {
		if i > 0 {
			sb.WriteByte(',')
		}
		base := i*7 + 1
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base, base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args,
			p.EventID, p.EntityID, string(p.EventType),
			p.OccurredAt, p.IngestedAt, p.Delta, p.VelocityScore,
		)
	}
	// the genuine conditional upsert; the FilterSeen pre-pass is an
	// optimization, not the correctness guarantee
	sb.WriteString(` ON CONFLICT (event_id) DO NOTHING`)

	tag, err := s.q.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ApplyDeltas implements Storage
func (s *pg) ApplyDeltas(ctx context.Context, deltas []domain.EntityDelta, at time.Time) error {
	if len(deltas) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`UPDATE entities e SET
		size_metric = e.size_metric + d.delta,
		last_updated_at = `)

	args := make([]any, 0, len(deltas)*2+1)
	args = append(args, at)
	sb.WriteString("$1\n	FROM (VALUES ")
	for i, d := range deltas {
		if i > 0 {
			sb.WriteByte(',')
		}
		base := i*2 + 2
		if i == 0 {
			fmt.Fprintf(&sb, "($%d::bigint,$%d::bigint)", base, base+1)
		} else {
			fmt.Fprintf(&sb, "($%d,$%d)", base, base+1)
		}
		args = append(args, d.EntityID, d.Delta)
	}
	sb.WriteString(`) AS d(entity_id, delta)
	WHERE e.entity_id = d.entity_id`)

	_, err := s.q.Exec(ctx, sb.String(), args...)
	return err
}
