// Package signal wraps an externally supplied signal provider and sequences
// its calls so it only ever sees history available at decision time.
package signal

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"fx-backtest-lab/internal/domain"
	"fx-backtest-lab/internal/session"
)

// Provider generates trade proposals from historical candles. Implemented
// externally (pattern detection, signal scoring); consumed here as a pure
// function of (history, timestamp, params). Returning (nil, nil) means no
// signal at this decision point.
type Provider interface {
	Generate(ctx context.Context, history []domain.Candle, ts time.Time, params map[string]float64) (*domain.TradeProposal, error)

	// Name returns the provider identifier.
	Name() string
}

// Adapter sequences provider calls and normalizes their output. Its only
// responsibilities are passing exactly the history the cursor exposes,
// attaching the session label and session-merged parameters, and discarding
// proposals outside the configured risk-reward bounds.
type Adapter struct {
	provider  Provider
	universal map[string]float64
	overrides map[domain.Session]map[string]float64
	logger    *zap.Logger
}

// NewAdapter creates an adapter over a provider and the run's parameters.
func NewAdapter(provider Provider, universal map[string]float64, overrides map[domain.Session]map[string]float64, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		provider:  provider,
		universal: universal,
		overrides: overrides,
		logger:    logger,
	}
}

// Propose calls the provider for one decision point. history must be the
// cursor's window: every bar strictly before decision. Discarded proposals
// (below confidence, outside RR bounds) return (nil, nil); a provider error
// is passed through.
func (a *Adapter) Propose(ctx context.Context, history []domain.Candle, decision time.Time) (*domain.TradeProposal, error) {
	sess, params := session.EffectiveParams(a.universal, a.overrides, decision)

	p, err := a.provider.Generate(ctx, history, decision, params)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	p.Time = decision
	p.Session = sess

	if p.Confidence < params[domain.ParamConfidenceThreshold] {
		a.logger.Debug("proposal below confidence threshold",
			zap.String("instrument", p.Instrument),
			zap.Float64("confidence", p.Confidence))
		return nil, nil
	}

	rr := p.RiskReward()
	minRR := params[domain.ParamMinRiskReward]
	maxRR := math.Inf(1)
	if v, ok := params[domain.ParamMaxRiskReward]; ok {
		maxRR = v
	}
	if rr < minRR || rr > maxRR {
		a.logger.Debug("proposal outside risk-reward bounds",
			zap.String("instrument", p.Instrument),
			zap.Float64("risk_reward", rr),
			zap.Float64("min", minRR))
		return nil, nil
	}

	return p, nil
}

// ProviderName returns the wrapped provider's identifier.
func (a *Adapter) ProviderName() string { return a.provider.Name() }
