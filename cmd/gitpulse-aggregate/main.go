package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	migrations "gitpulse/db/migrations"
	"gitpulse/internal/modkit/repokit"
	"gitpulse/internal/platform/config"
	"gitpulse/internal/platform/health"
	"gitpulse/internal/platform/logger"
	phttp "gitpulse/internal/platform/net/http"
	"gitpulse/internal/platform/net/middleware"
	"gitpulse/internal/platform/store"

	queuekafka "gitpulse/internal/adapters/queue/kafka"
	"gitpulse/internal/core/version"
	aggsvc "gitpulse/internal/services/aggregate/service"
	metricsrepo "gitpulse/internal/services/metrics/repo"
)

func main() {
	root := config.New()
	cfg := root.Prefix("PULSE_")
	pgCfg := cfg.Prefix("PGSQL_")
	chCfg := cfg.Prefix("CLICKHOUSE_")
	qCfg := cfg.Prefix("QUEUE_")
	aggCfg := cfg.Prefix("AGG_")

	l := logger.Get()
	bi := version.Info()
	l.Info().Str("version", bi.Version).Str("commit", bi.Commit).Str("built", bi.Date).
		Msg("gitpulse-aggregate starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgURL := pgCfg.MustString("DBURL")
	if err := store.Migrate(pgURL, migrations.FS, "."); err != nil {
		l.Panic().Err(err).Msg("migrations failed")
	}

	st, err := store.Open(ctx, store.Config{
		AppName: "gitpulse-aggregate",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgURL,
			MaxConns:    int32(pgCfg.MayInt("MAXCONNS", 8)),
			SlowQueryMs: pgCfg.MayInt("SLOWMS", 250),
			LogSQL:      pgCfg.MayBool("LOGSQL", false),
		},
		CH: store.CHConfig{
			Enabled: chCfg.MayBool("ENABLED", false),
			URL:     chCfg.MayString("DBURL", ""),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	reader := queuekafka.NewReader(queuekafka.Options{
		Brokers: qCfg.MayCSV("BROKERS", []string{"localhost:9092"}),
		Topic:   qCfg.MayString("TOPIC", ""),
		GroupID: qCfg.MayString("GROUP", ""),
	})
	defer func() {
		if err := reader.Close(); err != nil {
			l.Error().Err(err).Msg("queue reader close failed")
		}
	}()

	// a stalled statement surfaces as a retryable rollback, never a hang
	db := repokit.WithBeginHooks(st.PG, repokit.StatementTimeout(10*time.Second))

	reg := health.NewRegistry("gitpulse-aggregate")
	reg.Register("store", st.Guard)

	opts := []aggsvc.Option{aggsvc.WithDegrader(reg)}
	if st.CH != nil {
		opts = append(opts, aggsvc.WithMirror(st.CH))
	}
	svc := aggsvc.New(reader, db, metricsrepo.NewPG(), aggsvc.Config{
		BatchSize:   aggCfg.MayInt("BATCHSIZE", 200),
		BatchWait:   aggCfg.MayDuration("BATCHWAIT", 2*time.Second),
		MaxAttempts: aggCfg.MayInt("MAXATTEMPTS", 5),
		RetryBase:   aggCfg.MayDuration("RETRYBASE", 500*time.Millisecond),
		RetryMax:    aggCfg.MayDuration("RETRYMAX", 30*time.Second),
		Retention:   cfg.MayDuration("RETENTION", 2160*time.Hour),
		SweepEvery:  cfg.MayDuration("SWEEP_EVERY", time.Hour),
	}, opts...)

	srv := phttp.NewServer(cfg, ":4181", func(m *phttp.Mux) {
		m.Use(middleware.Defaults()...)
		m.Use(middleware.AccessLogZerolog(middleware.AccessLogOptions{Slow: time.Second}))
	})
	reg.Mount(srv.Router())
	phttp.MountProfiler(srv.Router(), "/debug", cfg.MayBool("PROFILER", false))
	go func() {
		if err := srv.Run(ctx); err != nil {
			l.Error().Err(err).Msg("health server failed")
		}
	}()

	runErr := svc.Run(ctx)

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shCtx); serr != nil {
		l.Error().Err(serr).Msg("health server shutdown failed")
	}

	if runErr != nil && ctx.Err() == nil {
		l.Fatal().Err(runErr).Msg("aggregate worker failed")
	}
	l.Info().Msg("aggregate worker stopped")
}
