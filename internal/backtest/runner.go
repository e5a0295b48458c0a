// Package backtest orchestrates full replay runs: data loading, bar-by-bar
// replay per instrument, result merging, and metric reduction.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fx-backtest-lab/internal/domain"
	"fx-backtest-lab/internal/execution"
	"fx-backtest-lab/internal/idhash"
	"fx-backtest-lab/internal/metrics"
	"fx-backtest-lab/internal/replay"
	"fx-backtest-lab/internal/session"
	"fx-backtest-lab/internal/signal"
	"fx-backtest-lab/internal/storage"
)

const (
	// ParamWarmupBars is the optional parameter selecting how many leading
	// bars feed history without being decision points.
	ParamWarmupBars = "warmup_bars"

	defaultWarmupBars = 50

	// defaultEquityStride bounds the equity curve: one sample every N bars
	// plus the final bar.
	defaultEquityStride = 10
)

// Runner executes backtest runs against a candle store and a signal
// provider.
type Runner struct {
	store    storage.CandleStore
	provider signal.Provider
	guard    *replay.Guard
	reducer  *metrics.Reducer
	logger   *zap.Logger

	// EquityStride is the bar interval between equity samples.
	EquityStride int
}

// Options for creating a Runner.
type Options struct {
	Store    storage.CandleStore
	Provider signal.Provider
	Reducer  *metrics.Reducer
	Logger   *zap.Logger

	EquityStride int
}

// New creates a Runner.
func New(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reducer := opts.Reducer
	if reducer == nil {
		reducer = &metrics.Reducer{}
	}
	stride := opts.EquityStride
	if stride <= 0 {
		stride = defaultEquityStride
	}
	return &Runner{
		store:        opts.Store,
		provider:     opts.Provider,
		guard:        replay.NewGuard(),
		reducer:      reducer,
		logger:       logger,
		EquityStride: stride,
	}
}

// instrumentResult is one instrument's replay output before merging.
type instrumentResult struct {
	trades        []domain.Trade
	equity        []domain.EquityPoint
	rejectedFills int
}

// Run executes one backtest. Phases:
//  1. Validate the config
//  2. Load and validate candles per instrument
//  3. Replay each instrument bar by bar
//  4. Merge per-instrument outputs and reduce metrics
//
// Fatal RunErrors abort; skip errors (margin rejections) are counted and
// the run continues.
func (r *Runner) Run(ctx context.Context, cfg *domain.RunConfig) (*domain.RunResult, error) {
	started := time.Now()
	lc := newLifecycle()

	if err := lc.transition(StateValidating); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		lc.fail()
		return nil, domain.NewFatal(domain.StageValidation, "", "invalid run config", err)
	}

	series, err := r.loadCandles(ctx, cfg)
	if err != nil {
		lc.fail()
		return nil, err
	}

	if err := lc.transition(StateReplaying); err != nil {
		return nil, err
	}
	results, err := r.replayAll(ctx, cfg, series)
	if err != nil {
		lc.fail()
		return nil, err
	}

	if err := lc.transition(StateReducing); err != nil {
		return nil, err
	}
	trades := mergeTrades(results)
	equity := mergeEquity(cfg, results)
	res := r.reducer.Reduce(trades, equity, cfg)
	for _, ir := range results {
		res.RejectedFills += ir.rejectedFills
	}
	res.ExecutionSeconds = time.Since(started).Seconds()

	if err := lc.transition(StateCompleted); err != nil {
		return nil, err
	}
	r.logger.Info("run completed",
		zap.Int("instruments", len(cfg.Instruments)),
		zap.Int("trades", res.TotalTrades),
		zap.Int("rejected_fills", res.RejectedFills),
		zap.Float64("final_balance", res.FinalBalance),
		zap.Float64("execution_seconds", res.ExecutionSeconds))
	return res, nil
}

// loadCandles fetches every instrument's candles for the run window. A
// missing instrument is a fatal data error naming the instrument.
func (r *Runner) loadCandles(ctx context.Context, cfg *domain.RunConfig) (map[string][]domain.Candle, error) {
	series := make(map[string][]domain.Candle, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		candles, err := r.store.GetCandles(ctx, inst, cfg.Timeframe, cfg.Start, cfg.End)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, domain.NewFatal(domain.StageDataLoad, inst,
					fmt.Sprintf("no candle data for %s %s in [%s, %s)",
						inst, cfg.Timeframe,
						cfg.Start.Format(time.RFC3339), cfg.End.Format(time.RFC3339)),
					err)
			}
			return nil, domain.NewFatal(domain.StageDataLoad, inst, "candle query failed", err)
		}
		series[inst] = candles
	}
	return series, nil
}

// replayAll replays every instrument, concurrently when cfg.Parallel.
// Capital is split equally across instruments and each instrument draws
// its own seeded slippage stream, so the two modes produce identical
// results.
func (r *Runner) replayAll(ctx context.Context, cfg *domain.RunConfig, series map[string][]domain.Candle) ([]*instrumentResult, error) {
	share := cfg.InitialCapital / float64(len(cfg.Instruments))
	results := make([]*instrumentResult, len(cfg.Instruments))

	if !cfg.Parallel {
		for i, inst := range cfg.Instruments {
			ir, err := r.replayInstrument(ctx, cfg, inst, series[inst], share)
			if err != nil {
				return nil, err
			}
			results[i] = ir
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, inst := range cfg.Instruments {
		g.Go(func() error {
			ir, err := r.replayInstrument(gctx, cfg, inst, series[inst], share)
			if err != nil {
				return err
			}
			results[i] = ir
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// replayInstrument walks one instrument's candles. At each decision bar the
// provider sees only prior history; accepted proposals fill at the next
// bar's open. At most one position per instrument is open at a time.
func (r *Runner) replayInstrument(ctx context.Context, cfg *domain.RunConfig, instrument string, candles []domain.Candle, capital float64) (*instrumentResult, error) {
	warmup := defaultWarmupBars
	if v, ok := cfg.Params[ParamWarmupBars]; ok {
		warmup = int(v)
	}
	if warmup < 0 {
		warmup = 0
	}

	cursor, err := replay.NewCursor(candles, warmup)
	if err != nil {
		return nil, domain.NewFatal(domain.StageDataLoad, instrument, "cursor construction failed", err)
	}

	model, err := execution.NewModel(cfg, idhash.InstrumentSeed(cfg.Seed, instrument))
	if err != nil {
		return nil, domain.NewFatal(domain.StageValidation, instrument, "slippage model", err)
	}
	sim := execution.NewSimulator(model, r.guard, r.logger)
	adapter := signal.NewAdapter(r.provider, cfg.Params, cfg.SessionParams, r.logger)

	ir := &instrumentResult{}
	balance := capital
	peak := capital
	var pos *domain.OpenPosition
	seq := 0
	bar := 0
	decisionBars := cursor.Len() - warmup

	for !cursor.Done() {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewFatal(domain.StageReplay, instrument, "run cancelled", err)
		}
		cur := cursor.Current()

		// Exits resolve against bars strictly after the entry bar.
		if pos != nil && cur.Time.After(pos.EntryTime) {
			if trade, closed := sim.EvaluateExit(pos, cur); closed {
				balance += trade.PnL
				ir.trades = append(ir.trades, *trade)
				pos = nil
			}
		}

		if pos == nil && !session.MarketClosed(cur.Time) {
			if gerr := r.guard.CheckHistory(instrument, cursor.History(), cur.Time); gerr != nil {
				return nil, gerr
			}
			prop, perr := adapter.Propose(ctx, cursor.History(), cur.Time)
			if perr != nil {
				return nil, domain.NewFatal(domain.StageReplay, instrument, "signal provider failed", perr)
			}
			if prop != nil {
				if fb, ok := cursor.PeekNext(); ok {
					filled, rerr := sim.FillEntry(prop, fb, balance, cfg.RiskPerTrade,
						idhash.ComputeTradeID(instrument, prop.Direction, prop.Time.UnixMilli(), seq))
					seq++
					switch {
					case rerr != nil && rerr.Fatal():
						return nil, rerr
					case rerr != nil:
						ir.rejectedFills++
						r.logger.Debug("fill rejected",
							zap.String("instrument", instrument),
							zap.String("reason", rerr.Reason))
					default:
						pos = filled
					}
				}
			}
		}

		if bar%r.EquityStride == 0 || bar == decisionBars-1 {
			ir.equity = append(ir.equity, equityPoint(cur, balance, pos, &peak))
		}

		bar++
		cursor.Advance()
	}

	// A position still open at the end of data closes at the final bar's
	// close with no slippage.
	if pos != nil {
		last := candles[len(candles)-1]
		trade := sim.CloseAt(pos, last.Time, last.Close, 0, domain.ExitReasonTimeExit)
		balance += trade.PnL
		ir.trades = append(ir.trades, *trade)
		ir.equity = append(ir.equity, equityPoint(last, balance, nil, &peak))
	}

	return ir, nil
}

// equityPoint samples equity at a bar, marking any open position to the
// bar's close and updating the running peak.
func equityPoint(bar domain.Candle, balance float64, pos *domain.OpenPosition, peak *float64) domain.EquityPoint {
	equity := balance
	if pos != nil {
		equity += pos.UnrealizedPnL(bar.Close)
	}
	if equity > *peak {
		*peak = equity
	}
	dd := equity - *peak
	ddPct := 0.0
	if *peak > 0 {
		ddPct = dd / *peak * 100
	}
	return domain.EquityPoint{
		Time:        bar.Time,
		Balance:     balance,
		Equity:      equity,
		Drawdown:    dd,
		DrawdownPct: ddPct,
	}
}

// mergeTrades flattens per-instrument trade logs into one list ordered by
// entry time, trade id as the tiebreak. The ordering is independent of
// replay scheduling.
func mergeTrades(results []*instrumentResult) []domain.Trade {
	var out []domain.Trade
	for _, ir := range results {
		out = append(out, ir.trades...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].EntryTime.Before(out[j].EntryTime)
		}
		return out[i].TradeID < out[j].TradeID
	})
	return out
}

// mergeEquity combines per-instrument equity series into a single account
// curve. At each sampled timestamp the merged balance and equity are the
// sums of every instrument's last known values; drawdowns are recomputed
// against the merged running peak.
func mergeEquity(cfg *domain.RunConfig, results []*instrumentResult) []domain.EquityPoint {
	n := len(results)
	share := cfg.InitialCapital / float64(n)

	lastBalance := make([]float64, n)
	lastEquity := make([]float64, n)
	idx := make([]int, n)
	for i := range results {
		lastBalance[i] = share
		lastEquity[i] = share
	}

	var out []domain.EquityPoint
	peak := cfg.InitialCapital
	for {
		// Next timestamp across all series.
		best := -1
		var bestTime time.Time
		for i, ir := range results {
			if idx[i] >= len(ir.equity) {
				continue
			}
			t := ir.equity[idx[i]].Time
			if best == -1 || t.Before(bestTime) {
				best = i
				bestTime = t
			}
		}
		if best == -1 {
			break
		}

		// Consume every series sampled at this timestamp.
		for i, ir := range results {
			for idx[i] < len(ir.equity) && ir.equity[idx[i]].Time.Equal(bestTime) {
				lastBalance[i] = ir.equity[idx[i]].Balance
				lastEquity[i] = ir.equity[idx[i]].Equity
				idx[i]++
			}
		}

		var balance, equity float64
		for i := 0; i < n; i++ {
			balance += lastBalance[i]
			equity += lastEquity[i]
		}
		if equity > peak {
			peak = equity
		}
		dd := equity - peak
		ddPct := 0.0
		if peak > 0 {
			ddPct = dd / peak * 100
		}
		out = append(out, domain.EquityPoint{
			Time:        bestTime,
			Balance:     balance,
			Equity:      equity,
			Drawdown:    dd,
			DrawdownPct: ddPct,
		})
	}
	return out
}
