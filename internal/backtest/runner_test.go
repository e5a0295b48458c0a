package backtest

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"fx-backtest-lab/internal/domain"
	"fx-backtest-lab/internal/storage/memory"
)

// triggerProvider emits one long proposal at a fixed decision timestamp
// and nothing elsewhere.
type triggerProvider struct {
	at       time.Time
	proposal domain.TradeProposal
	err      error
	calls    int
}

func (p *triggerProvider) Generate(_ context.Context, _ []domain.Candle, ts time.Time, _ map[string]float64) (*domain.TradeProposal, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if !ts.Equal(p.at) {
		return nil, nil
	}
	out := p.proposal
	return &out, nil
}

func (p *triggerProvider) Name() string { return "trigger" }

// weekdayBars generates n flat daily bars at 12:00 UTC, weekdays only.
func weekdayBars(n int) []domain.Candle {
	out := make([]domain.Candle, 0, n)
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) // a Monday
	for len(out) < n {
		if wd := ts.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, domain.Candle{
				Instrument: "EUR_USD",
				Timeframe:  domain.TFD1,
				Time:       ts,
				Open:       1.1000, High: 1.1002, Low: 1.0998, Close: 1.1000,
				Volume: 1000,
			})
		}
		ts = ts.Add(24 * time.Hour)
	}
	return out
}

func baseConfig(candles []domain.Candle) *domain.RunConfig {
	return &domain.RunConfig{
		Start:          candles[0].Time,
		End:            candles[len(candles)-1].Time.Add(time.Hour),
		Instruments:    []string{"EUR_USD"},
		InitialCapital: 10000,
		RiskPerTrade:   0.01,
		Params: map[string]float64{
			domain.ParamConfidenceThreshold: 60,
			domain.ParamMinRiskReward:       1.5,
		},
		SlippageModel: domain.SlippageFixed,
		SlippagePips:  0.5,
		Timeframe:     domain.TFD1,
	}
}

func seedStore(t *testing.T, candles []domain.Candle) *memory.CandleStore {
	t.Helper()
	store := memory.NewCandleStore()
	if err := store.InsertBulk(context.Background(), candles); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

// End-to-end single-trade run: proposal at bar 60, fill at bar 61's open
// plus 0.5 pips, exit on the take-profit bar minus 0.3 pips.
func TestRunner_Run_SingleTrade(t *testing.T) {
	candles := weekdayBars(120)

	// Fill bar opens at 1.1005; the target bar touches 1.1100.
	candles[61].Open, candles[61].High, candles[61].Low, candles[61].Close = 1.1005, 1.1010, 1.1002, 1.1008
	candles[65].Open, candles[65].High, candles[65].Low, candles[65].Close = 1.1010, 1.1105, 1.1005, 1.1100

	provider := &triggerProvider{
		at: candles[60].Time,
		proposal: domain.TradeProposal{
			Instrument: "EUR_USD",
			Direction:  domain.DirectionLong,
			Entry:      1.1000,
			Stop:       1.0950,
			Target:     1.1100,
			Confidence: 80,
			Pattern:    "breakout",
		},
	}

	runner := New(Options{Store: seedStore(t, candles), Provider: provider})
	res, err := runner.Run(context.Background(), baseConfig(candles))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if res.TotalTrades != 1 {
		t.Fatalf("expected 1 trade, got %d", res.TotalTrades)
	}
	trade := res.Trades[0]

	if got, want := trade.EntryPrice, 1.10055; math.Abs(got-want) > 1e-9 {
		t.Errorf("entry price = %.6f, want %.6f", got, want)
	}
	if !trade.EntryTime.Equal(candles[61].Time) {
		t.Errorf("entry time = %s, want fill bar %s", trade.EntryTime, candles[61].Time)
	}
	if got, want := trade.ExitPrice, 1.10997; math.Abs(got-want) > 1e-9 {
		t.Errorf("exit price = %.6f, want %.6f", got, want)
	}
	if trade.ExitReason != domain.ExitReasonTakeProfit {
		t.Errorf("exit reason = %s, want %s", trade.ExitReason, domain.ExitReasonTakeProfit)
	}
	// 94.2 reward pips over the proposal's 50 risk pips.
	if got, want := trade.RiskRewardAchieved, 1.884; math.Abs(got-want) > 0.001 {
		t.Errorf("achieved RR = %.4f, want %.4f", got, want)
	}
	if res.FinalBalance <= res.InitialCapital {
		t.Errorf("winning run must grow the balance, got %.2f", res.FinalBalance)
	}
	if res.WinRate != 1 {
		t.Errorf("win rate = %.2f, want 1.0", res.WinRate)
	}
	if len(res.EquityCurve) == 0 {
		t.Fatal("equity curve must not be empty")
	}
	last := res.EquityCurve[len(res.EquityCurve)-1]
	if math.Abs(last.Balance-res.FinalBalance) > 1e-6 {
		t.Errorf("final equity point balance %.2f != final balance %.2f", last.Balance, res.FinalBalance)
	}
}

// Two runs of the same config produce bit-identical trade logs, and the
// parallel flag changes nothing.
func TestRunner_Run_Deterministic(t *testing.T) {
	candles := weekdayBars(120)
	candles[61].Open, candles[61].High, candles[61].Low, candles[61].Close = 1.1005, 1.1010, 1.1002, 1.1008
	candles[65].Open, candles[65].High, candles[65].Low, candles[65].Close = 1.1010, 1.1105, 1.1005, 1.1100

	newRunner := func() *Runner {
		return New(Options{
			Store: seedStore(t, candles),
			Provider: &triggerProvider{
				at: candles[60].Time,
				proposal: domain.TradeProposal{
					Instrument: "EUR_USD",
					Direction:  domain.DirectionLong,
					Entry:      1.1000,
					Stop:       1.0950,
					Target:     1.1100,
					Confidence: 80,
					Pattern:    "breakout",
				},
			},
		})
	}

	cfg := baseConfig(candles)
	cfg.SlippageModel = domain.SlippageSessionScaled
	cfg.Seed = 42

	first, err := newRunner().Run(context.Background(), cfg.Clone())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	par := cfg.Clone()
	par.Parallel = true
	second, err := newRunner().Run(context.Background(), par)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(first.Trades) != len(second.Trades) {
		t.Fatalf("trade counts differ: %d vs %d", len(first.Trades), len(second.Trades))
	}
	for i := range first.Trades {
		if first.Trades[i] != second.Trades[i] {
			t.Errorf("trade %d differs between runs:\n%+v\n%+v", i, first.Trades[i], second.Trades[i])
		}
	}
	if first.FinalBalance != second.FinalBalance {
		t.Errorf("final balances differ: %v vs %v", first.FinalBalance, second.FinalBalance)
	}
	if len(first.EquityCurve) != len(second.EquityCurve) {
		t.Errorf("equity curve lengths differ: %d vs %d", len(first.EquityCurve), len(second.EquityCurve))
	}
}

// A stop too close to entry under maximum risk fails the margin check; the
// rejection is counted, not fatal.
func TestRunner_Run_MarginRejection(t *testing.T) {
	candles := weekdayBars(120)
	candles[61].Open, candles[61].High = 1.1005, 1.1005

	provider := &triggerProvider{
		at: candles[60].Time,
		proposal: domain.TradeProposal{
			Instrument: "EUR_USD",
			Direction:  domain.DirectionLong,
			Entry:      1.1000,
			Stop:       1.0990, // 10 pips
			Target:     1.1030,
			Confidence: 80,
			Pattern:    "scalp",
		},
	}

	cfg := baseConfig(candles)
	cfg.RiskPerTrade = 0.1
	cfg.SlippagePips = 0

	runner := New(Options{Store: seedStore(t, candles), Provider: provider})
	res, err := runner.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("margin rejection must not abort the run: %v", err)
	}
	if res.RejectedFills != 1 {
		t.Errorf("rejected fills = %d, want 1", res.RejectedFills)
	}
	if res.TotalTrades != 0 {
		t.Errorf("trades = %d, want 0", res.TotalTrades)
	}
}

func TestRunner_Run_MissingInstrument(t *testing.T) {
	candles := weekdayBars(120)
	cfg := baseConfig(candles)
	cfg.Instruments = []string{"EUR_USD", "GBP_USD"}

	runner := New(Options{Store: seedStore(t, candles), Provider: &triggerProvider{}})
	_, err := runner.Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected data error for missing instrument")
	}
	var re *domain.RunError
	if !errors.As(err, &re) {
		t.Fatalf("expected RunError, got %T", err)
	}
	if re.Stage != domain.StageDataLoad {
		t.Errorf("stage = %s, want %s", re.Stage, domain.StageDataLoad)
	}
	if re.Instrument != "GBP_USD" {
		t.Errorf("instrument = %q, want GBP_USD", re.Instrument)
	}
}

func TestRunner_Run_InvalidConfig(t *testing.T) {
	candles := weekdayBars(60)
	cfg := baseConfig(candles)
	cfg.RiskPerTrade = 0.5

	runner := New(Options{Store: seedStore(t, candles), Provider: &triggerProvider{}})
	_, err := runner.Run(context.Background(), cfg)

	var re *domain.RunError
	if !errors.As(err, &re) {
		t.Fatalf("expected RunError, got %v", err)
	}
	if re.Stage != domain.StageValidation || !re.Fatal() {
		t.Errorf("want fatal validation error, got %+v", re)
	}
}

func TestRunner_Run_ProviderErrorIsFatal(t *testing.T) {
	candles := weekdayBars(120)
	provider := &triggerProvider{err: errors.New("model unavailable")}

	runner := New(Options{Store: seedStore(t, candles), Provider: provider})
	_, err := runner.Run(context.Background(), baseConfig(candles))

	var re *domain.RunError
	if !errors.As(err, &re) {
		t.Fatalf("expected RunError, got %v", err)
	}
	if re.Stage != domain.StageReplay || !re.Fatal() {
		t.Errorf("want fatal replay error, got %+v", re)
	}
}

// A position still open at the end of data closes on the final bar.
func TestRunner_Run_ForcedTimeExit(t *testing.T) {
	candles := weekdayBars(120)
	candles[116].Open, candles[116].High = 1.1005, 1.1005

	provider := &triggerProvider{
		at: candles[115].Time,
		proposal: domain.TradeProposal{
			Instrument: "EUR_USD",
			Direction:  domain.DirectionLong,
			Entry:      1.1000,
			Stop:       1.0900, // never touched
			Target:     1.1300, // never touched
			Confidence: 80,
			Pattern:    "swing",
		},
	}

	runner := New(Options{Store: seedStore(t, candles), Provider: provider})
	res, err := runner.Run(context.Background(), baseConfig(candles))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.TotalTrades != 1 {
		t.Fatalf("expected 1 forced trade, got %d", res.TotalTrades)
	}
	trade := res.Trades[0]
	if trade.ExitReason != domain.ExitReasonTimeExit {
		t.Errorf("exit reason = %s, want %s", trade.ExitReason, domain.ExitReasonTimeExit)
	}
	if !trade.ExitTime.Equal(candles[119].Time) {
		t.Errorf("exit time = %s, want final bar %s", trade.ExitTime, candles[119].Time)
	}
	if trade.ExitPrice != candles[119].Close {
		t.Errorf("forced exit fills at the final close without slippage, got %v", trade.ExitPrice)
	}
}

// randomProvider proposes on a seeded coin flip and records every decision
// it was asked for, flagging any history bar at or past the decision time.
type randomProvider struct {
	rng       *rand.Rand
	decisions map[time.Time]bool
	leaks     int
}

func (p *randomProvider) Generate(_ context.Context, history []domain.Candle, ts time.Time, _ map[string]float64) (*domain.TradeProposal, error) {
	for _, c := range history {
		if !c.Time.Before(ts) {
			p.leaks++
		}
	}
	if p.rng.Float64() > 0.2 || len(history) == 0 {
		return nil, nil
	}
	p.decisions[ts] = true

	entry := history[len(history)-1].Close
	dir, stop, target := domain.DirectionLong, entry-0.0030, entry+0.0060
	if p.rng.Intn(2) == 1 {
		dir, stop, target = domain.DirectionShort, entry+0.0030, entry-0.0060
	}
	return &domain.TradeProposal{
		Instrument: "EUR_USD",
		Direction:  dir,
		Entry:      entry,
		Stop:       stop,
		Target:     target,
		Confidence: 80,
		Pattern:    "noise",
	}, nil
}

func (p *randomProvider) Name() string { return "random" }

// randomWalkBars generates n valid weekday bars following a seeded random
// walk around 1.10.
func randomWalkBars(rng *rand.Rand, n int) []domain.Candle {
	out := make([]domain.Candle, 0, n)
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) // a Monday
	price := 1.1000
	for len(out) < n {
		if wd := ts.Weekday(); wd != time.Saturday && wd != time.Sunday {
			open := price
			cl := open + (rng.Float64()-0.5)*0.0040
			hi := math.Max(open, cl) + rng.Float64()*0.0015
			lo := math.Min(open, cl) - rng.Float64()*0.0015
			out = append(out, domain.Candle{
				Instrument: "EUR_USD",
				Timeframe:  domain.TFD1,
				Time:       ts,
				Open:       open, High: hi, Low: lo, Close: cl,
				Volume: 1000,
			})
			price = cl
		}
		ts = ts.Add(24 * time.Hour)
	}
	return out
}

// Over randomized candle sequences, the provider never sees a bar at or
// past its decision time and every fill lands on the bar immediately after
// the decision that produced it.
func TestRunner_Run_NoLookAheadProperty(t *testing.T) {
	for _, seed := range []int64{1, 7, 99} {
		rng := rand.New(rand.NewSource(seed))
		candles := randomWalkBars(rng, 250)

		provider := &randomProvider{rng: rng, decisions: map[time.Time]bool{}}
		runner := New(Options{Store: seedStore(t, candles), Provider: provider})

		res, err := runner.Run(context.Background(), baseConfig(candles))
		if err != nil {
			t.Fatalf("seed %d: run failed: %v", seed, err)
		}
		if provider.leaks != 0 {
			t.Fatalf("seed %d: provider saw %d history bars at or past the decision time", seed, provider.leaks)
		}

		barIdx := make(map[time.Time]int, len(candles))
		for i, c := range candles {
			barIdx[c.Time] = i
		}
		for _, tr := range res.Trades {
			i, ok := barIdx[tr.EntryTime]
			if !ok {
				t.Fatalf("seed %d: trade %s entered at %s, not a bar time", seed, tr.TradeID, tr.EntryTime)
			}
			if i == 0 {
				t.Fatalf("seed %d: trade %s filled on the first bar", seed, tr.TradeID)
			}
			decision := candles[i-1].Time
			if !provider.decisions[decision] {
				t.Errorf("seed %d: trade %s at %s has no proposal on the preceding bar %s",
					seed, tr.TradeID, tr.EntryTime, decision)
			}
			if !decision.Before(tr.EntryTime) {
				t.Errorf("seed %d: trade %s entry %s does not follow its decision %s",
					seed, tr.TradeID, tr.EntryTime, decision)
			}
		}
	}
}

func TestRunner_Compare_PartialFailure(t *testing.T) {
	candles := weekdayBars(120)
	candles[61].Open, candles[61].High, candles[61].Low, candles[61].Close = 1.1005, 1.1010, 1.1002, 1.1008
	candles[65].Open, candles[65].High, candles[65].Low, candles[65].Close = 1.1010, 1.1105, 1.1005, 1.1100

	provider := &triggerProvider{
		at: candles[60].Time,
		proposal: domain.TradeProposal{
			Instrument: "EUR_USD",
			Direction:  domain.DirectionLong,
			Entry:      1.1000,
			Stop:       1.0950,
			Target:     1.1100,
			Confidence: 80,
			Pattern:    "breakout",
		},
	}

	runner := New(Options{Store: seedStore(t, candles), Provider: provider})
	res, err := runner.Compare(context.Background(), baseConfig(candles), []Overlay{
		{Name: "baseline"},
		{Name: "broken", Params: map[string]float64{domain.ParamMinRiskReward: -1}},
	})
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}
	if len(res.Overlays) != 2 {
		t.Fatalf("expected 2 overlay results, got %d", len(res.Overlays))
	}

	baseline, broken := res.Overlays[0], res.Overlays[1]
	if baseline.Summary == nil || baseline.Err != "" {
		t.Errorf("baseline overlay must complete, got %+v", baseline)
	}
	if broken.Summary != nil || !strings.Contains(broken.Err, "validation") {
		t.Errorf("broken overlay must fail validation, got %+v", broken)
	}
	if !baseline.BestSharpe || !baseline.BestCAGR || !baseline.BestWinRate {
		t.Errorf("sole completed overlay must hold every best flag, got %+v", baseline)
	}
}

func TestRunner_Compare_OverlayLimit(t *testing.T) {
	candles := weekdayBars(60)
	runner := New(Options{Store: seedStore(t, candles), Provider: &triggerProvider{}})

	overlays := make([]Overlay, MaxCompareOverlays+1)
	for i := range overlays {
		overlays[i] = Overlay{Name: "o"}
	}
	_, err := runner.Compare(context.Background(), baseConfig(candles), overlays)
	if err == nil {
		t.Fatal("expected overlay limit error")
	}

	if _, err := runner.Compare(context.Background(), baseConfig(candles), nil); err == nil {
		t.Fatal("expected error for empty overlay list")
	}
}

func TestState_Transitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateInitialized, StateValidating, true},
		{StateValidating, StateReplaying, true},
		{StateReplaying, StateReducing, true},
		{StateReducing, StateCompleted, true},
		{StateReplaying, StateFailed, true},
		{StateInitialized, StateReplaying, false},
		{StateCompleted, StateFailed, false},
		{StateReplaying, StateValidating, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}
