// Package main runs one backtest from the command line: candle CSVs go
// into an in-memory store, the run executes, and the result prints as
// JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"fx-backtest-lab/internal/backtest"
	"fx-backtest-lab/internal/domain"
	"fx-backtest-lab/internal/ingest"
	"fx-backtest-lab/internal/metrics"
	"fx-backtest-lab/internal/signal"
	"fx-backtest-lab/internal/storage/memory"
)

func main() {
	dataDir := flag.String("data-dir", "", "Directory with <INSTRUMENT>.csv files")
	instruments := flag.String("instruments", "", "Comma-separated instruments, e.g. EUR_USD,USD_JPY")
	timeframe := flag.String("timeframe", "H1", "Bar timeframe (M5, M15, M30, H1, H4, D1)")
	start := flag.String("start", "", "Run start, RFC 3339 (defaults to all data)")
	end := flag.String("end", "", "Run end, RFC 3339 (defaults to all data)")
	capital := flag.Float64("capital", 10000, "Initial capital")
	risk := flag.Float64("risk", 0.01, "Risk per trade as a fraction of balance")
	confidence := flag.Float64("confidence", 60, "Minimum signal confidence [0, 100]")
	minRR := flag.Float64("min-rr", 1.5, "Minimum proposal risk-reward ratio")
	slippageModel := flag.String("slippage", domain.SlippageFixed, "Slippage model: fixed or session_scaled")
	slippagePips := flag.Float64("slippage-pips", 0.5, "Base slippage in pips")
	seed := flag.Int64("seed", 1, "PRNG seed for session-scaled slippage")
	parallel := flag.Bool("parallel", false, "Replay instruments concurrently")
	fullOutput := flag.Bool("full", false, "Print the full result instead of the summary")
	verbose := flag.Bool("verbose", false, "Log replay progress")
	flag.Parse()

	if *dataDir == "" || *instruments == "" {
		fmt.Fprintln(os.Stderr, "-data-dir and -instruments are required")
		flag.Usage()
		os.Exit(2)
	}
	tf := domain.Timeframe(*timeframe)
	if !tf.Valid() {
		fmt.Fprintf(os.Stderr, "unknown timeframe %q\n", *timeframe)
		os.Exit(2)
	}

	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(os.Stderr, "logger: %v\n", err)
			os.Exit(1)
		}
	}
	defer logger.Sync()

	ctx := context.Background()
	store := memory.NewCandleStore()
	if _, err := ingest.LoadDir(ctx, store, *dataDir, tf, logger); err != nil {
		fmt.Fprintf(os.Stderr, "load data: %v\n", err)
		os.Exit(1)
	}

	cfg := &domain.RunConfig{
		Instruments:    strings.Split(*instruments, ","),
		InitialCapital: *capital,
		RiskPerTrade:   *risk,
		Params: map[string]float64{
			domain.ParamConfidenceThreshold: *confidence,
			domain.ParamMinRiskReward:       *minRR,
		},
		SlippageModel: *slippageModel,
		SlippagePips:  *slippagePips,
		Seed:          *seed,
		Timeframe:     tf,
		Parallel:      *parallel,
	}
	if err := fillWindow(ctx, cfg, store, *start, *end); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	runner := backtest.New(backtest.Options{
		Store:    store,
		Provider: signal.NewBreakout(),
		Reducer:  &metrics.Reducer{},
		Logger:   logger,
	})
	res, err := runner.Run(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}

	var out any = res.Summarize()
	if *fullOutput {
		out = res
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		os.Exit(1)
	}
}

// fillWindow resolves the run window, defaulting each side to the loaded
// data's extent for the first instrument.
func fillWindow(ctx context.Context, cfg *domain.RunConfig, store *memory.CandleStore, start, end string) error {
	if start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return fmt.Errorf("bad -start: %w", err)
		}
		cfg.Start = t.UTC()
	}
	if end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return fmt.Errorf("bad -end: %w", err)
		}
		cfg.End = t.UTC()
	}
	if !cfg.Start.IsZero() && !cfg.End.IsZero() {
		return nil
	}

	wideStart := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	wideEnd := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
	candles, err := store.GetCandles(ctx, cfg.Instruments[0], cfg.Timeframe, wideStart, wideEnd)
	if err != nil {
		return fmt.Errorf("no data for %s: %w", cfg.Instruments[0], err)
	}
	if cfg.Start.IsZero() {
		cfg.Start = candles[0].Time
	}
	if cfg.End.IsZero() {
		cfg.End = candles[len(candles)-1].Time.Add(cfg.Timeframe.Duration())
	}
	return nil
}
