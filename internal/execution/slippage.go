// Package execution simulates order fills: entry at the next bar's open
// with slippage and margin checks, and intrabar stop/target resolution for
// open positions.
package execution

import (
	"fmt"
	"math/rand"

	"fx-backtest-lab/internal/domain"
)

// SlippageModel returns a pip magnitude for a fill. Applying it to a price
// always moves the price against the trader, entries and exits alike.
type SlippageModel interface {
	// Pips returns the slippage magnitude for a fill in the given session.
	// market distinguishes market orders (penalized) from resting orders.
	Pips(sess domain.Session, market bool) float64
}

// FixedSlippage applies a constant pip amount regardless of session.
type FixedSlippage struct {
	Amount float64
}

// Pips implements SlippageModel.
func (f FixedSlippage) Pips(domain.Session, bool) float64 { return f.Amount }

// Per-session liquidity multipliers: thinner sessions slip more.
var defaultSessionMultipliers = map[domain.Session]float64{
	domain.SessionOverlap: 0.8,
	domain.SessionLondon:  0.9,
	domain.SessionNewYork: 1.0,
	domain.SessionTokyo:   1.1,
	domain.SessionSydney:  1.3,
}

// SessionSlippage scales a base pip amount by session liquidity, penalizes
// market orders relative to resting orders, and adds bounded jitter from a
// seeded PRNG so runs stay deterministic.
type SessionSlippage struct {
	Base         float64
	Multipliers  map[domain.Session]float64
	MarketFactor float64 // applied to market orders, >= 1
	JitterFrac   float64 // bounded jitter fraction, [0, 1)

	rng *rand.Rand
}

// NewSessionSlippage builds a session-scaled model with default multipliers
// and the run's seed.
func NewSessionSlippage(base float64, seed int64) *SessionSlippage {
	return &SessionSlippage{
		Base:         base,
		Multipliers:  defaultSessionMultipliers,
		MarketFactor: 1.5,
		JitterFrac:   0.25,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// Pips implements SlippageModel.
func (s *SessionSlippage) Pips(sess domain.Session, market bool) float64 {
	m, ok := s.Multipliers[sess]
	if !ok {
		m = 1.0
	}
	pips := s.Base * m
	if market {
		pips *= s.MarketFactor
	}
	if s.JitterFrac > 0 && s.rng != nil {
		pips *= 1 + (s.rng.Float64()*2-1)*s.JitterFrac
	}
	return pips
}

// NewModel builds the slippage model selected by a run config. The seed
// is passed separately so callers replaying instruments concurrently can
// derive one PRNG stream per instrument.
func NewModel(cfg *domain.RunConfig, seed int64) (SlippageModel, error) {
	switch cfg.SlippageModel {
	case domain.SlippageFixed:
		return FixedSlippage{Amount: cfg.SlippagePips}, nil
	case domain.SlippageSessionScaled:
		return NewSessionSlippage(cfg.SlippagePips, seed), nil
	default:
		return nil, fmt.Errorf("unknown slippage model %q", cfg.SlippageModel)
	}
}

// adversePrice moves a price against the trader by a pip magnitude:
// buyers pay more, sellers receive less.
func adversePrice(price, pips, pipSize float64, buying bool) float64 {
	if buying {
		return price + pips*pipSize
	}
	return price - pips*pipSize
}
