package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/netatmo-ingest/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/netatmo-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/netatmo-ingest/internal/adapter/memory"
	"github.com/couchcryptid/netatmo-ingest/internal/adapter/netatmo"
	"github.com/couchcryptid/netatmo-ingest/internal/adapter/postgres"
	"github.com/couchcryptid/netatmo-ingest/internal/config"
	"github.com/couchcryptid/netatmo-ingest/internal/observability"
	"github.com/couchcryptid/netatmo-ingest/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Latest state lives in Postgres when DATABASE_URL is set.
	var (
		store     pipeline.LatestStore
		readiness []sharedobs.ReadinessChecker
	)
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
		readiness = append(readiness, pg)
		logger.Info("latest state store: postgres")
	} else {
		store = memory.NewStore(nil)
		logger.Warn("DATABASE_URL not set, latest state is kept in memory and lost on restart")
	}

	client := netatmo.NewClient(netatmo.Config{
		BaseURL:    cfg.NetatmoBaseURL,
		Timeout:    cfg.NetatmoTimeout,
		MaxRetries: cfg.NetatmoMaxRetries,
		Credentials: netatmo.Credentials{
			ClientID:     cfg.NetatmoClientID,
			ClientSecret: cfg.NetatmoClientSecret,
			Username:     cfg.NetatmoUsername,
			Password:     cfg.NetatmoPassword,
		},
	}, metrics, logger)

	writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, logger)

	ingester := pipeline.NewIngester(client, store, writer, netatmo.GridWindows{Size: cfg.WindowSize}, pipeline.Options{
		Region:      cfg.Region,
		Topic:       cfg.KafkaTopic,
		WindowDelay: cfg.WindowDelay,
		SensorTTL:   cfg.SensorTTL,
	}, logger, metrics)
	readiness = append(readiness, ingester)

	scheduler := pipeline.NewScheduler(cfg.IngestSchedule, ingester, logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.AllReady(readiness...), ingester, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ingest scheduler.
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Let an in-flight cycle observe the cancellation before closing its
	// collaborators.
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		logger.Warn("ingest cycle did not stop before shutdown timeout")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
