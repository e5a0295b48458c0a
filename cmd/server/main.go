// Package main runs the backtest API server: candle storage behind it,
// replay runs and comparisons over HTTP, equity streaming over WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fx-backtest-lab/internal/api"
	"fx-backtest-lab/internal/backtest"
	"fx-backtest-lab/internal/config"
	"fx-backtest-lab/internal/metrics"
	fxsignal "fx-backtest-lab/internal/signal"
	"fx-backtest-lab/internal/storage"
	chstore "fx-backtest-lab/internal/storage/clickhouse"
	"fx-backtest-lab/internal/storage/memory"
	pgstore "fx-backtest-lab/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (defaults apply when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, cleanup, err := openStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	defer cleanup()

	runner := backtest.New(backtest.Options{
		Store:        store,
		Provider:     fxsignal.NewBreakout(),
		Reducer:      &metrics.Reducer{RiskFreeRate: cfg.Engine.RiskFreeRate},
		Logger:       logger,
		EquityStride: cfg.Engine.EquityStride,
	})
	cache := api.NewRunCache(cfg.Cache.MaxEntries, cfg.Cache.TTL.Std())
	server := api.NewServer(cfg.Server.Addr(), runner, cache, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		if err := server.Shutdown(); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
		cancel()
	}()

	if err := server.Start(); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}

// openStore selects the candle store backend. The returned cleanup closes
// any underlying connection pool.
func openStore(ctx context.Context, cfg config.Storage) (storage.CandleStore, func(), error) {
	switch cfg.Backend {
	case "memory":
		return memory.NewCandleStore(), func() {}, nil

	case "clickhouse":
		conn, err := chstore.NewConn(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return nil, nil, err
		}
		store := chstore.NewCandleStore(conn)
		if err := store.EnsureSchema(ctx); err != nil {
			conn.Close()
			return nil, nil, err
		}
		return store, func() { conn.Close() }, nil

	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		store := pgstore.NewCandleStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, func() { pool.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func buildLogger(cfg config.Logging) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
