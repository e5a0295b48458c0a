// Package main loads candle CSV files into the configured candle store.
// One file per instrument, named <INSTRUMENT>.csv.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"fx-backtest-lab/internal/config"
	"fx-backtest-lab/internal/domain"
	"fx-backtest-lab/internal/ingest"
	"fx-backtest-lab/internal/replay"
	"fx-backtest-lab/internal/storage"
	chstore "fx-backtest-lab/internal/storage/clickhouse"
	pgstore "fx-backtest-lab/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config")
	dataDir := flag.String("data-dir", "", "Directory with <INSTRUMENT>.csv files")
	timeframe := flag.String("timeframe", "H1", "Timeframe of the input bars (M5, M15, M30, H1, H4, D1)")
	aggregateTo := flag.String("aggregate-to", "", "Also store bars resampled to this coarser timeframe")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall ingest deadline")
	flag.Parse()

	if *dataDir == "" {
		fmt.Fprintln(os.Stderr, "-data-dir is required")
		os.Exit(2)
	}
	tf := domain.Timeframe(*timeframe)
	if !tf.Valid() {
		fmt.Fprintf(os.Stderr, "unknown timeframe %q\n", *timeframe)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, cleanup, err := openStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	defer cleanup()

	n, err := ingest.LoadDir(ctx, store, *dataDir, tf, logger)
	if err != nil {
		logger.Fatal("ingest", zap.Int("loaded", n), zap.Error(err))
	}
	logger.Info("ingest complete", zap.Int("candles", n))

	if *aggregateTo != "" {
		target := domain.Timeframe(*aggregateTo)
		if !target.Valid() {
			logger.Fatal("unknown aggregation timeframe", zap.String("timeframe", *aggregateTo))
		}
		if err := storeAggregated(ctx, store, tf, target, logger); err != nil {
			logger.Fatal("aggregate", zap.Error(err))
		}
	}
}

// storeAggregated resamples every instrument's ingested bars to a coarser
// timeframe and stores the result alongside the originals.
func storeAggregated(ctx context.Context, store storage.CandleStore, base, target domain.Timeframe, logger *zap.Logger) error {
	instruments, err := store.Instruments(ctx)
	if err != nil {
		return err
	}
	wideStart := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	wideEnd := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, inst := range instruments {
		candles, err := store.GetCandles(ctx, inst, base, wideStart, wideEnd)
		if err != nil {
			return fmt.Errorf("%s: %w", inst, err)
		}
		agg, err := replay.Aggregate(candles, target)
		if err != nil {
			return fmt.Errorf("%s: %w", inst, err)
		}
		if len(agg) == 0 {
			continue
		}
		if err := store.InsertBulk(ctx, agg); err != nil {
			return fmt.Errorf("%s: %w", inst, err)
		}
		logger.Info("stored aggregated bars",
			zap.String("instrument", inst),
			zap.String("timeframe", string(target)),
			zap.Int("candles", len(agg)))
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Storage) (storage.CandleStore, func(), error) {
	switch cfg.Backend {
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
		return nil, nil, fmt.Errorf("ingest requires a persistent backend, got %q", cfg.Backend)
	}
}
