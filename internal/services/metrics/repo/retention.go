package repo

import (
	"context"
	"time"
)

// DeleteOlderThan implements Storage
func (s *pg) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM metric_points WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
