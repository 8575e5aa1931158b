package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/services/metrics/domain"

	"github.com/jackc/pgx/v5"
)

// Trending implements Storage
func (s *pg) Trending(
	ctx context.Context,
	w domain.Window,
	category string,
	limit int,
) ([]domain.TrendingRow, error) {
	return s.ranked(ctx, w, category, limit, "velocity_sum DESC")
}

// Rising implements Storage
func (s *pg) Rising(
	ctx context.Context,
	w domain.Window,
	category string,
	limit int,
) ([]domain.TrendingRow, error) {
	return s.ranked(ctx, w, category, limit, "net_delta DESC")
}

func (s *pg) ranked(
	ctx context.Context,
	w domain.Window,
	category string,
	limit int,
	order string,
) ([]domain.TrendingRow, error) {
	var sb strings.Builder
	var args []any
	arg := func(v any) string { args = append(args, v); return fmt.Sprintf("$%d", len(args)) }

	sb.WriteString(`
		SELECT e.entity_id, e.display_name, e.category, e.size_metric,
			COUNT(*) AS events,
			COALESCE(SUM(p.delta), 0) AS net_delta,
			COALESCE(SUM(p.velocity_score), 0) AS velocity_sum
		FROM metric_points p
		JOIN entities e ON e.entity_id = p.entity_id
		WHERE p.occurred_at >= ` + arg(w.Since) + ` AND p.occurred_at < ` + arg(w.Until) + `
	`)
	if category != "" {
		sb.WriteString("  AND e.category = " + arg(category) + "\n")
	}
	sb.WriteString("GROUP BY e.entity_id, e.display_name, e.category, e.size_metric\n")
	sb.WriteString("ORDER BY " + order + ", e.entity_id ASC\nLIMIT " + arg(limit))

	rows, err := s.q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.TrendingRow, 0, limit)
	for rows.Next() {
		var r domain.TrendingRow
		if err := rows.Scan(
			&r.EntityID, &r.DisplayName, &r.Category, &r.SizeMetric,
			&r.Events, &r.NetDelta, &r.VelocitySum,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CategoryTotals implements Storage
func (s *pg) CategoryTotals(
	ctx context.Context,
	w domain.Window,
	limit int,
) ([]domain.CategoryRow, error) {
	const q = `
		SELECT e.category,
			COUNT(*) AS events,
			COALESCE(SUM(p.velocity_score), 0) AS velocity_sum,
			COUNT(DISTINCT e.entity_id) AS entities
		FROM metric_points p
		JOIN entities e ON e.entity_id = p.entity_id
		WHERE p.occurred_at >= $1 AND p.occurred_at < $2
			AND e.category IS NOT NULL
		GROUP BY e.category
		ORDER BY velocity_sum DESC, e.category ASC
		LIMIT $3`

	rows, err := s.q.Query(ctx, q, w.Since, w.Until, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.CategoryRow, 0, limit)
	for rows.Next() {
		var r domain.CategoryRow
		if err := rows.Scan(&r.Category, &r.Events, &r.VelocitySum, &r.Entities); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EntityByID implements Storage
func (s *pg) EntityByID(ctx context.Context, id int64) (domain.Entity, error) {
	const q = `
		SELECT entity_id, display_name, category, size_metric, first_seen_at, last_updated_at
		FROM entities
		WHERE entity_id = $1`

	var e domain.Entity
	row := s.q.QueryRow(ctx, q, id)
	if err := row.Scan(
		&e.EntityID, &e.DisplayName, &e.Category,
		&e.SizeMetric, &e.FirstSeenAt, &e.LastUpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Entity{}, perr.NotFoundf("entity %d", id)
		}
		return domain.Entity{}, err
	}
	return e, nil
}
