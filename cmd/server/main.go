package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Clark-Hu/movie-catalog/internal/config"
	httpserver "github.com/Clark-Hu/movie-catalog/internal/http"
	"github.com/Clark-Hu/movie-catalog/internal/logging"
	"github.com/Clark-Hu/movie-catalog/internal/metrics"
	"github.com/Clark-Hu/movie-catalog/internal/repository"
	"github.com/Clark-Hu/movie-catalog/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLogger := logging.New(logging.Config{})
	if err := config.LoadDotEnv(); err != nil {
		bootLogger.Fatal().Err(err).Msg("load .env")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("config error")
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	connTimeout := time.Duration(cfg.DBConnTimeoutSecs) * time.Second
	dbCtx, cancel := context.WithTimeout(ctx, connTimeout)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            connTimeout,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	}

	st, err := store.New(dbCtx, cfg.DBDriver, cfg.DBURL, storeOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer st.Close()

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		m.RegisterStore(st)
	}

	repo := repository.New(st)
	server := httpserver.New(cfg, st, repo, m, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
}
