// Command callsift serves the keyword-matching API for diarized call
// transcripts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/callsift/callsift/internal/config"
	"github.com/callsift/callsift/internal/health"
	"github.com/callsift/callsift/internal/match"
	"github.com/callsift/callsift/internal/observe"
	"github.com/callsift/callsift/internal/server"
	"github.com/callsift/callsift/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "callsift: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "callsift: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("callsift starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"environment", cfg.Server.Environment,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.Init(ctx)
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		slog.Error("failed to create database pool", "err", err)
		return 1
	}
	defer pool.Close()

	db := store.NewBreakerDB(pool, store.BreakerConfig{})
	st := store.NewPostgresStore(db)
	if err := st.Migrate(ctx); err != nil {
		slog.Error("database migration failed", "err", err)
		return 1
	}
	slog.Info("database ready")

	matcher := match.New(
		match.WithThreshold(cfg.Matching.Threshold),
		match.WithRoleMap(cfg.Matching.RoleMap()),
		match.WithParallelism(cfg.Matching.Parallelism),
	)

	srv := server.New(cfg, st, matcher, observe.DefaultMetrics(), health.Checker{
		Name: "database",
		Check: func(ctx context.Context) error {
			if !db.Healthy() {
				return store.ErrDatabaseUnavailable
			}
			return pool.Ping(ctx)
		},
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "err", err)
			return 1
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping")
	}

	if err := srv.Shutdown(); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
