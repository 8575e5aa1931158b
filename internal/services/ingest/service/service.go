// Package service contains the ingest poll-normalize-publish workflow
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gitpulse/internal/adapters/queue"
	"gitpulse/internal/core/normalize"
	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/platform/logger"
	"gitpulse/internal/services/ingest/domain"
)

// rollupEvery is how many cycles pass between info-level stat rollups
const rollupEvery = 30

// Seams for tests
var (
	now   = time.Now
	sleep = sleepCtx
)

// Config carries the ingest loop settings
type Config struct {
	// Interval is the poll cadence; zero takes the 10s default
	Interval time.Duration

	// SeenCap bounds the duplicate-suppression cache
	SeenCap int

	// PublishRetries caps publish attempts against a flapping broker
	// before the cycle's events are dropped with an error log
	PublishRetries int
	RetryBase      time.Duration
	RetryMax       time.Duration
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.SeenCap <= 0 {
		c.SeenCap = 4096
	}
	if c.PublishRetries <= 0 {
		c.PublishRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 30 * time.Second
	}
}

// Svc implements domain.WorkerPort
type Svc struct {
	src  domain.SourcePort
	pub  queue.Publisher
	cfg  Config
	seen *seenCache
	log  logger.Logger

	cycles int
	rollup domain.CycleResult
}

// New constructs the ingest service
//
// Panics on nil dependencies; both are startup wiring mistakes
func New(src domain.SourcePort, pub queue.Publisher, cfg Config) *Svc {
	if src == nil {
		panic("ingest.Service requires a non nil SourcePort")
	}
	if pub == nil {
		panic("ingest.Service requires a non nil Publisher")
	}
	cfg.defaults()
	return &Svc{
		src:  src,
		pub:  pub,
		cfg:  cfg,
		seen: newSeenCache(cfg.SeenCap),
		log:  *logger.Named("ingest"),
	}
}

// Run polls on the configured cadence until ctx ends. The in-flight cycle
// finishes before shutdown; the only errors that come back are context
// cancellation and a fatal source (zero usable credentials)
func (s *Svc) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.cfg.Interval).Msg("ingest loop starting")
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	for {
		res, err := s.Cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info().Msg("ingest loop stopping")
				return ctx.Err()
			}
			return err
		}
		s.account(res)

		select {
		case <-ctx.Done():
			s.log.Info().Msg("ingest loop stopping")
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Cycle runs one poll: fetch a page, normalize, dedupe, publish. Exported
// so tests can drive single cycles without the ticker
func (s *Svc) Cycle(ctx context.Context) (domain.CycleResult, error) {
	start := now()
	ctx = logger.WithCycle(ctx, uuid.NewString())
	log := logger.C(ctx)

	var res domain.CycleResult

	raws, err := s.src.Poll(ctx)
	if err != nil {
		return res, err
	}
	res.Fetched = len(raws)
	if len(raws) == 0 {
		res.Elapsed = now().Sub(start)
		return res, nil
	}

	msgs := make([]queue.Message, 0, len(raws))
	for _, raw := range raws {
		ev, nerr := normalize.Normalize(raw)
		if nerr != nil {
			res.Malformed++
			log.Warn().
				Str("event_id", nerr.EventID).
				Str("field", nerr.Field).
				Str("reason", nerr.Reason).
				Msg("ingest dropped malformed event")
			continue
		}
		if s.seen.SeenAndRecord(ev.EventID) {
			res.Deduped++
			continue
		}
		val, eerr := ev.Encode()
		if eerr != nil {
			res.Malformed++
			log.Error().Err(eerr).Str("event_id", ev.EventID).Msg("ingest encode failed dropping event")
			continue
		}
		msgs = append(msgs, queue.Message{Key: ev.Key(), Value: val, Time: ev.OccurredAt})
	}

	if len(msgs) > 0 {
		if err := s.publish(ctx, msgs); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Dropped = len(msgs)
			log.Error().Err(err).Int("events", len(msgs)).Msg("ingest publish failed dropping cycle events")
		} else {
			res.Published = len(msgs)
		}
	}

	res.Elapsed = now().Sub(start)
	log.Debug().
		Int("fetched", res.Fetched).
		Int("malformed", res.Malformed).
		Int("deduped", res.Deduped).
		Int("published", res.Published).
		Int("dropped", res.Dropped).
		Dur("elapsed", res.Elapsed).
		Msg("ingest cycle done")
	return res, nil
}

// publish pushes one cycle's events with capped backoff. Ingestion favors
// availability: a broker that stays down loses this cycle's events and the
// loop carries on
func (s *Svc) publish(ctx context.Context, msgs []queue.Message) error {
	var last error
	for attempt := 0; attempt < s.cfg.PublishRetries; attempt++ {
		if attempt > 0 {
			back := min(s.cfg.RetryBase<<uint(attempt-1), s.cfg.RetryMax)
			logger.C(ctx).Warn().Err(last).Dur("retry_in", back).Int("attempt", attempt).
				Msg("ingest publish retrying")
			if err := sleep(ctx, back); err != nil {
				return err
			}
		}
		last = s.pub.Publish(ctx, msgs...)
		if last == nil {
			return nil
		}
		if !perr.Retryable(last) {
			return last
		}
	}
	return last
}

// account folds a cycle into the rollup and emits the periodic info line
func (s *Svc) account(res domain.CycleResult) {
	s.cycles++
	s.rollup.Fetched += res.Fetched
	s.rollup.Malformed += res.Malformed
	s.rollup.Deduped += res.Deduped
	s.rollup.Published += res.Published
	s.rollup.Dropped += res.Dropped

	if s.cycles%rollupEvery != 0 {
		return
	}
	s.log.Info().
		Int("cycles", s.cycles).
		Int("fetched", s.rollup.Fetched).
		Int("malformed", s.rollup.Malformed).
		Int("deduped", s.rollup.Deduped).
		Int("published", s.rollup.Published).
		Int("dropped", s.rollup.Dropped).
		Int("seen_cached", s.seen.Len()).
		Msg("ingest rollup")
	s.rollup = domain.CycleResult{}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
