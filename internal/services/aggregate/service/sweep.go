package service

import (
	"context"
	"time"
)

// sweepLoop ages out metric points past the retention horizon. It runs
// inside the aggregate worker so the store keeps a single writer
func (s *Svc) sweepLoop(ctx context.Context) {
	log := s.log.With().Str("component", "sweep").Logger()
	log.Info().Dur("retention", s.cfg.Retention).Dur("every", s.cfg.SweepEvery).
		Msg("retention sweep starting")

	t := time.NewTicker(s.cfg.SweepEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		cutoff := now().UTC().Add(-s.cfg.Retention)
		n, err := s.binder.Bind(s.db).DeleteOlderThan(ctx, cutoff)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("retention sweep failed will retry next tick")
			continue
		}
		if n > 0 {
			log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("retention sweep done")
		}
	}
}
