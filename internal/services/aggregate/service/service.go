// Package service contains the aggregate consume-score-persist workflow
package service

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"gitpulse/internal/adapters/queue"
	"gitpulse/internal/modkit/repokit"
	"gitpulse/internal/platform/logger"
	"gitpulse/internal/platform/store"
	"gitpulse/internal/services/aggregate/domain"
	metricsdom "gitpulse/internal/services/metrics/domain"
	"gitpulse/internal/services/metrics/repo"
)

// Seams for tests
var (
	now   = time.Now
	sleep = sleepCtx
)

// Degrader flags the worker not-ready while persistence keeps failing.
// The health registry satisfies it
type Degrader interface {
	Degrade(reason string)
	Clear()
}

// Config carries the aggregate loop settings
type Config struct {
	// BatchSize flushes a batch at this many messages
	BatchSize int

	// BatchWait flushes a started batch after this long even when short
	BatchWait time.Duration

	// MaxAttempts is how many consecutive persist failures pass before
	// the worker escalates; it never stops retrying
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration

	// Retention ages metric points out; zero disables the sweep
	Retention  time.Duration
	SweepEvery time.Duration
}

func (c *Config) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.BatchWait <= 0 {
		c.BatchWait = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 30 * time.Second
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = time.Hour
	}
}

// Option tweaks optional collaborators
type Option func(*Svc)

// WithDegrader wires the readiness escalation hook
func WithDegrader(d Degrader) Option {
	return func(s *Svc) { s.health = d }
}

// WithMirror wires the non-authoritative analytics archive. Appends are
// best effort after commit; reads never depend on it
func WithMirror(ch store.Clickhouse) Option {
	return func(s *Svc) { s.mirror = ch }
}

// Svc implements domain.WorkerPort
type Svc struct {
	consumer queue.Consumer
	db       repokit.TxRunner
	binder   repokit.Binder[repo.Storage]
	cfg      Config
	log      logger.Logger

	health Degrader
	mirror store.Clickhouse
}

// New constructs the aggregate service
//
// Panics on nil dependencies; all three are startup wiring mistakes
func New(c queue.Consumer, db repokit.TxRunner, binder repokit.Binder[repo.Storage], cfg Config, opts ...Option) *Svc {
	if c == nil {
		panic("aggregate.Service requires a non nil Consumer")
	}
	if db == nil {
		panic("aggregate.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("aggregate.Service requires a non nil Storage binder")
	}
	cfg.defaults()
	s := &Svc{
		consumer: c,
		db:       db,
		binder:   binder,
		cfg:      cfg,
		log:      *logger.Named("aggregate"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run consumes batches until ctx ends. The in-flight batch finishes and
// commits before shutdown; a batch is only ever acknowledged after its
// transaction commit, so a crash at any point redelivers safely
func (s *Svc) Run(ctx context.Context) error {
	s.log.Info().
		Int("batch_size", s.cfg.BatchSize).
		Dur("batch_wait", s.cfg.BatchWait).
		Msg("aggregate loop starting")

	if s.cfg.Retention > 0 {
		go s.sweepLoop(ctx)
	}

	for {
		msgs, err := s.collect(ctx)
		if err != nil {
			if len(msgs) > 0 {
				s.drain(ctx, msgs)
			}
			s.log.Info().Msg("aggregate loop stopping")
			return err
		}
		if len(msgs) == 0 {
			continue
		}
		if _, err := s.deliver(ctx, msgs); err != nil {
			s.log.Info().Msg("aggregate loop stopping")
			return err
		}
	}
}

// drain gives an in-flight batch one bounded delivery pass during
// shutdown; if the store stays down the batch is redelivered on restart
func (s *Svc) drain(ctx context.Context, msgs []queue.Message) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if _, err := s.deliver(dctx, msgs); err != nil {
		s.log.Error().Err(err).Int("messages", len(msgs)).
			Msg("aggregate in-flight batch left for redelivery")
	}
}

// collect gathers one batch: block for the first message, then top up
// until the size limit or the max wait, whichever first
func (s *Svc) collect(ctx context.Context) ([]queue.Message, error) {
	first, err := s.consumer.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
			return nil, err
		}
		s.log.Warn().Err(err).Msg("aggregate fetch failed backing off")
		if serr := sleep(ctx, s.cfg.RetryBase); serr != nil {
			return nil, serr
		}
		return nil, nil
	}

	msgs := make([]queue.Message, 0, s.cfg.BatchSize)
	msgs = append(msgs, first)

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.BatchWait)
	defer cancel()
	for len(msgs) < s.cfg.BatchSize {
		m, err := s.consumer.Fetch(waitCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break // max wait hit, flush what we have
			}
			return msgs, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// deliver persists one batch with capped-backoff retries, then commits
// its offsets and mirrors it. Only context cancellation comes back as an
// error; persistence trouble is retried forever with escalation
func (s *Svc) deliver(ctx context.Context, msgs []queue.Message) (domain.BatchResult, error) {
	start := now()
	ctx = logger.WithBatch(ctx, uuid.NewString())
	log := logger.C(ctx)

	var (
		res    domain.BatchResult
		points []metricsdom.MetricPoint
	)
	for attempt := 1; ; attempt++ {
		var err error
		res, points, err = s.processBatch(ctx, msgs)
		if err == nil {
			res.Attempts = attempt
			if attempt > 1 && s.health != nil {
				s.health.Clear()
			}
			break
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if attempt == s.cfg.MaxAttempts {
			if s.health != nil {
				s.health.Degrade("metric store persist failing: " + err.Error())
			}
			log.Error().Err(err).Int("attempts", attempt).
				Msg("aggregate persist failing repeatedly still retrying")
		}
		back := s.backoff(attempt)
		log.Warn().Err(err).Dur("retry_in", back).Int("attempt", attempt).
			Msg("aggregate persist failed rolling back and retrying")
		if serr := sleep(ctx, back); serr != nil {
			return res, serr
		}
	}

	if err := s.consumer.Commit(ctx, msgs...); err != nil {
		// redelivery after a lost commit is absorbed by the upsert
		log.Warn().Err(err).Msg("aggregate offset commit failed expecting redelivery")
	}
	s.mirrorPoints(ctx, points)

	res.Elapsed = now().Sub(start)
	log.Debug().
		Int("messages", res.Messages).
		Int("corrupt", res.Corrupt).
		Int("dupes", res.Dupes).
		Int("replayed", res.Replayed).
		Int("points", res.Points).
		Int("inserted", res.Inserted).
		Int("entities", res.Entities).
		Int("attempts", res.Attempts).
		Dur("elapsed", res.Elapsed).
		Msg("aggregate batch committed")
	return res, nil
}

// backoff is exponential from RetryBase with a half jitter, capped at RetryMax
func (s *Svc) backoff(attempt int) time.Duration {
	d := min(s.cfg.RetryBase<<uint(attempt-1), s.cfg.RetryMax)
	if d < 2 {
		return d
	}
	return d/2 + time.Duration(rand.Int63n(int64(d/2)))
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
