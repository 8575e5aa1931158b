package service

import (
	"context"

	"gitpulse/internal/platform/logger"
	metricsdom "gitpulse/internal/services/metrics/domain"
)

// mirrorColumns matches the ClickHouse metric_points table
var mirrorColumns = []string{
	"event_id", "entity_id", "event_type",
	"occurred_at", "ingested_at", "delta", "velocity_score",
}

// mirrorPoints appends a committed batch to the analytics archive.
// Best effort: failure logs and degrades nothing, reads never consult
// the mirror for correctness
func (s *Svc) mirrorPoints(ctx context.Context, points []metricsdom.MetricPoint) {
	if s.mirror == nil || len(points) == 0 {
		return
	}
	rows := make([][]any, len(points))
	for i, p := range points {
		rows[i] = []any{
			p.EventID, p.EntityID, string(p.EventType),
			p.OccurredAt, p.IngestedAt, p.Delta, p.VelocityScore,
		}
	}
	if err := s.mirror.Insert(ctx, "metric_points", mirrorColumns, rows); err != nil {
		logger.C(ctx).Warn().Err(err).Int("points", len(points)).
			Msg("aggregate mirror append failed")
	}
}
