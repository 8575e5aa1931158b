package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"gitpulse/internal/platform/config"
	"gitpulse/internal/platform/health"
	"gitpulse/internal/platform/logger"
	phttp "gitpulse/internal/platform/net/http"
	"gitpulse/internal/platform/net/middleware"

	sourcegh "gitpulse/internal/adapters/source/github"
	queuekafka "gitpulse/internal/adapters/queue/kafka"
	"gitpulse/internal/core/version"
	ingestsvc "gitpulse/internal/services/ingest/service"
)

func main() {
	root := config.New()
	cfg := root.Prefix("PULSE_")
	srcCfg := cfg.Prefix("SOURCE_")
	ingCfg := cfg.Prefix("INGEST_")
	qCfg := cfg.Prefix("QUEUE_")

	l := logger.Get()
	bi := version.Info()
	l.Info().Str("version", bi.Version).Str("commit", bi.Commit).Str("built", bi.Date).
		Msg("gitpulse-ingest starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source := sourcegh.NewClient(sourcegh.Options{
		FeedURL:    srcCfg.MayString("URL", ""),
		UserAgent:  srcCfg.MayString("USERAGENT", ""),
		Timeout:    srcCfg.MayDuration("TIMEOUT", 10*time.Second),
		TokensCSV:  srcCfg.MustString("TOKENS"),
		PageSize:   ingCfg.MayInt("PAGESIZE", 100),
		MaxRetries: ingCfg.MayInt("MAXRETRIES", 3),
		RetryBase:  ingCfg.MayDuration("RETRYBASE", time.Second),
		RetryMax:   ingCfg.MayDuration("RETRYMAX", 60*time.Second),
	})

	writer := queuekafka.NewWriter(queuekafka.Options{
		Brokers: qCfg.MayCSV("BROKERS", []string{"localhost:9092"}),
		Topic:   qCfg.MayString("TOPIC", ""),
	})
	defer func() {
		if err := writer.Close(); err != nil {
			l.Error().Err(err).Msg("queue writer close failed")
		}
	}()

	svc := ingestsvc.New(source, writer, ingestsvc.Config{
		Interval:       ingCfg.MayDuration("INTERVAL", 10*time.Second),
		SeenCap:        ingCfg.MayInt("SEENCAP", 4096),
		PublishRetries: ingCfg.MayInt("PUBRETRIES", 3),
		RetryBase:      ingCfg.MayDuration("RETRYBASE", time.Second),
		RetryMax:       ingCfg.MayDuration("RETRYMAX", 60*time.Second),
	})

	reg := health.NewRegistry("gitpulse-ingest")
	srv := phttp.NewServer(cfg, ":4180", func(m *phttp.Mux) {
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

	err := svc.Run(ctx)

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shCtx); serr != nil {
		l.Error().Err(serr).Msg("health server shutdown failed")
	}

	if err != nil && ctx.Err() == nil {
		l.Fatal().Err(err).Msg("ingest worker failed")
	}
	l.Info().Msg("ingest worker stopped")
}
