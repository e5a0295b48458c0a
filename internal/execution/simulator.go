package execution

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"fx-backtest-lab/internal/domain"
	"fx-backtest-lab/internal/replay"
)

// Fixed exit slippage, in pips. Stops fill through faster markets than
// targets, so they carry the larger amount.
const (
	stopExitSlipPips   = 1.0
	targetExitSlipPips = 0.3
)

// DefaultMarginRatio corresponds to 50:1 leverage.
const DefaultMarginRatio = 0.02

// Simulator turns trade proposals into simulated fills and resolves
// stop-loss/take-profit touches on subsequent bars.
type Simulator struct {
	model       SlippageModel
	guard       *replay.Guard
	MarginRatio float64
	logger      *zap.Logger
}

// NewSimulator creates a simulator with the default margin ratio.
func NewSimulator(model SlippageModel, guard *replay.Guard, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		model:       model,
		guard:       guard,
		MarginRatio: DefaultMarginRatio,
		logger:      logger,
	}
}

// FillEntry fills an accepted proposal as a market order at the next bar's
// open, adjusted by the slippage model. The margin check must pass first;
// an insufficient-margin rejection is a Skip error, the run continues.
// A fill-timing violation is Fatal.
func (s *Simulator) FillEntry(p *domain.TradeProposal, fb replay.FillBar, balance, riskPerTrade float64, tradeID string) (*domain.OpenPosition, *domain.RunError) {
	next := fb.Candle()

	if err := s.guard.CheckFill(p.Instrument, fb.DecisionTime(), next.Time); err != nil {
		return nil, err
	}

	pipSize := domain.PipSize(p.Instrument)
	riskPips := math.Abs(p.Entry-p.Stop) / pipSize
	if riskPips <= 0 {
		return nil, domain.NewSkip(domain.StageReplay, p.Instrument, "degenerate stop distance", nil)
	}

	buying := p.Direction == domain.DirectionLong
	slipPips := s.model.Pips(p.Session, true)
	entryPrice := adversePrice(next.Open, slipPips, pipSize, buying)

	if ok, dev := s.guard.CheckFillPrice(next, entryPrice); !ok {
		s.logger.Warn("fill price deviates from fill bar open",
			zap.String("instrument", p.Instrument),
			zap.Float64("deviation_pct", dev))
	}

	stopDist := math.Abs(entryPrice - p.Stop)
	if stopDist <= 0 {
		return nil, domain.NewSkip(domain.StageReplay, p.Instrument, "slippage collapsed stop distance", nil)
	}
	units := balance * riskPerTrade / stopDist

	requiredMargin := next.Open * units * s.MarginRatio
	if requiredMargin > balance {
		return nil, domain.NewSkip(domain.StageReplay, p.Instrument,
			fmt.Sprintf("insufficient margin: required %.2f, available %.2f", requiredMargin, balance), nil)
	}

	return &domain.OpenPosition{
		TradeID:      tradeID,
		Instrument:   p.Instrument,
		Direction:    p.Direction,
		EntryTime:    next.Time,
		EntryPrice:   entryPrice,
		Stop:         p.Stop,
		Target:       p.Target,
		Units:        units,
		RiskAmount:   stopDist * units,
		RiskPips:     riskPips,
		EntrySlipPip: slipPips,
		Confidence:   p.Confidence,
		Pattern:      p.Pattern,
		Session:      p.Session,
	}, nil
}

// EvaluateExit checks one subsequent closed bar for an exit. Stop-loss is
// checked first and wins when both levels are touched in the same bar; the
// documented conservative tie-break, not a modeled intrabar path. Returns
// (nil, false) when the position stays open.
func (s *Simulator) EvaluateExit(pos *domain.OpenPosition, bar domain.Candle) (*domain.Trade, bool) {
	pipSize := domain.PipSize(pos.Instrument)
	long := pos.Direction == domain.DirectionLong

	stopHit := (long && bar.Low <= pos.Stop) || (!long && bar.High >= pos.Stop)
	if stopHit {
		// Exiting a long sells, exiting a short buys; either way the
		// slippage worsens the fill.
		exit := adversePrice(pos.Stop, stopExitSlipPips, pipSize, !long)
		t := s.close(pos, bar.Time, exit, domain.ExitReasonStopLoss, stopExitSlipPips)
		return t, true
	}

	targetHit := (long && bar.High >= pos.Target) || (!long && bar.Low <= pos.Target)
	if targetHit {
		exit := adversePrice(pos.Target, targetExitSlipPips, pipSize, !long)
		t := s.close(pos, bar.Time, exit, domain.ExitReasonTakeProfit, targetExitSlipPips)
		return t, true
	}

	return nil, false
}

// CloseAt force-closes a position at a given price, used for end-of-data
// time exits. slipPips is applied adversely; pass zero for a clean fill.
func (s *Simulator) CloseAt(pos *domain.OpenPosition, ts time.Time, price, slipPips float64, reason string) *domain.Trade {
	pipSize := domain.PipSize(pos.Instrument)
	exit := adversePrice(price, slipPips, pipSize, pos.Direction != domain.DirectionLong)
	return s.close(pos, ts, exit, reason, slipPips)
}

func (s *Simulator) close(pos *domain.OpenPosition, ts time.Time, exitPrice float64, reason string, exitSlip float64) *domain.Trade {
	pipSize := domain.PipSize(pos.Instrument)

	move := exitPrice - pos.EntryPrice
	if pos.Direction == domain.DirectionShort {
		move = -move
	}
	pnl := move * pos.Units
	pnlPips := move / pipSize

	rr := 0.0
	if pos.RiskPips > 0 {
		rr = pnlPips / pos.RiskPips
	}

	return &domain.Trade{
		TradeID:            pos.TradeID,
		Instrument:         pos.Instrument,
		Direction:          pos.Direction,
		EntryTime:          pos.EntryTime,
		EntryPrice:         pos.EntryPrice,
		Stop:               pos.Stop,
		Target:             pos.Target,
		ExitTime:           ts,
		ExitPrice:          exitPrice,
		ExitReason:         reason,
		Units:              pos.Units,
		RiskAmount:         pos.RiskAmount,
		PnL:                pnl,
		PnLPips:            pnlPips,
		RiskRewardAchieved: rr,
		EntrySlipPip:       pos.EntrySlipPip,
		ExitSlipPip:        exitSlip,
		Confidence:         pos.Confidence,
		Pattern:            pos.Pattern,
		Session:            pos.Session,
	}
}
