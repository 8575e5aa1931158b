package service

import (
	"context"
	"sort"

	"gitpulse/internal/adapters/queue"
	"gitpulse/internal/core/event"
	"gitpulse/internal/core/velocity"
	"gitpulse/internal/modkit/repokit"
	"gitpulse/internal/platform/logger"
	"gitpulse/internal/services/aggregate/domain"
	metricsdom "gitpulse/internal/services/metrics/domain"
)

// batchPlan is one decoded batch arranged for processing: events grouped
// by entity, each group sorted by occurred_at so a later event always
// scores against the size its predecessors produced
type batchPlan struct {
	order   []int64                      // entity ids in first-arrival order
	byID    map[int64][]event.Normalized // occurred_at ascending per entity
	upserts []metricsdom.EntityUpsert
}

// decode drops corrupt messages and in-batch duplicate event ids, keeping
// the first copy of each id
func decode(ctx context.Context, msgs []queue.Message, res *domain.BatchResult) []event.Normalized {
	log := logger.C(ctx)
	evs := make([]event.Normalized, 0, len(msgs))
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		ev, err := event.Decode(m.Value)
		if err != nil {
			res.Corrupt++
			log.Warn().Err(err).Int("partition", m.Partition).Int64("offset", m.Offset).
				Msg("aggregate dropped corrupt message")
			continue
		}
		if _, dup := seen[ev.EventID]; dup {
			res.Dupes++
			continue
		}
		seen[ev.EventID] = struct{}{}
		evs = append(evs, ev)
	}
	return evs
}

// plan groups evs per entity and derives the entity upserts. The seed
// size and first-seen name come from the earliest event; display_name
// takes the latest observation; category takes the first non-null
func plan(evs []event.Normalized) batchPlan {
	p := batchPlan{byID: make(map[int64][]event.Normalized)}
	for _, ev := range evs {
		if _, ok := p.byID[ev.EntityID]; !ok {
			p.order = append(p.order, ev.EntityID)
		}
		p.byID[ev.EntityID] = append(p.byID[ev.EntityID], ev)
	}
	for _, id := range p.order {
		group := p.byID[id]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].OccurredAt.Before(group[j].OccurredAt)
		})
		up := metricsdom.EntityUpsert{
			EntityID:    id,
			DisplayName: group[len(group)-1].EntityName,
			SizeMetric:  group[0].SizeMetric,
		}
		for _, ev := range group {
			if ev.EntityCategory != nil {
				up.Category = ev.EntityCategory
				break
			}
		}
		p.upserts = append(p.upserts, up)
	}
	return p
}

// processBatch runs the fetch-score-upsert state machine inside one
// transaction. All-or-nothing per batch: any error rolls the whole thing
// back and the caller retries with the same messages
func (s *Svc) processBatch(
	ctx context.Context,
	msgs []queue.Message,
) (domain.BatchResult, []metricsdom.MetricPoint, error) {
	res := domain.BatchResult{Messages: len(msgs)}

	evs := decode(ctx, msgs, &res)
	if len(evs) == 0 {
		return res, nil, nil
	}
	p := plan(evs)
	res.Entities = len(p.upserts)

	ids := make([]string, len(evs))
	for i, ev := range evs {
		ids[i] = ev.EventID
	}

	var points []metricsdom.MetricPoint
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		st := s.binder.Bind(q)
		at := now().UTC()

		// fetch-phase: lazily create entities and take their current
		// sizes; the touched rows stay locked until commit
		sizes, err := st.UpsertEntities(ctx, p.upserts, at)
		if err != nil {
			return err
		}

		// replay pre-filter; the insert below still carries the genuine
		// conditional upsert
		replayed, err := st.FilterSeen(ctx, ids)
		if err != nil {
			return err
		}

		// score-phase: current state wins over the carried size, and a
		// running size inside the batch keeps per-entity ordering honest
		res.Replayed = 0
		points = points[:0]
		deltas := make([]metricsdom.EntityDelta, 0, len(p.order))
		for _, id := range p.order {
			running := sizes[id]
			var net int64
			for _, ev := range p.byID[id] {
				if _, dup := replayed[ev.EventID]; dup {
					res.Replayed++
					continue
				}
				points = append(points, metricsdom.MetricPoint{
					EventID:       ev.EventID,
					EntityID:      ev.EntityID,
					EventType:     ev.EventType,
					OccurredAt:    ev.OccurredAt,
					IngestedAt:    ev.IngestedAt,
					Delta:         ev.Delta,
					VelocityScore: velocity.Score(ev.EventType, running),
				})
				running += ev.Delta
				net += ev.Delta
			}
			if net != 0 {
				deltas = append(deltas, metricsdom.EntityDelta{EntityID: id, Delta: net})
			}
		}
		res.Points = len(points)

		// upsert-phase: points land exactly once per event_id, deltas
		// apply exactly once per unique id
		n, err := st.InsertPoints(ctx, points)
		if err != nil {
			return err
		}
		res.Inserted = int(n)
		if res.Inserted != len(points) {
			// only possible when another instance raced us onto the same
			// entities, which correct partitioning rules out
			logger.C(ctx).Warn().Int("points", len(points)).Int("inserted", res.Inserted).
				Msg("aggregate conditional upsert skipped rows")
		}

		return st.ApplyDeltas(ctx, deltas, at)
	})
	if err != nil {
		return res, nil, err
	}
	return res, points, nil
}
