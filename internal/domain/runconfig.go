package domain

import (
	"fmt"
	"time"
)

// Well-known universal parameter keys. The parameter map is open-ended;
// these two are mandatory.
const (
	ParamConfidenceThreshold = "confidence_threshold" // [0, 100]
	ParamMinRiskReward       = "min_risk_reward"      // > 0
	ParamMaxRiskReward       = "max_risk_reward"      // optional, > min when set
)

// Slippage model selectors for RunConfig.SlippageModel.
const (
	SlippageFixed         = "fixed"
	SlippageSessionScaled = "session_scaled"
)

// RunConfig describes one backtest run. Immutable for the run's duration.
type RunConfig struct {
	Start          time.Time                     // inclusive, UTC
	End            time.Time                     // exclusive, UTC
	Instruments    []string                      // non-empty
	InitialCapital float64                       // > 0
	RiskPerTrade   float64                       // fraction, 0 < r <= 0.1
	Params         map[string]float64            // universal parameters
	SessionParams  map[Session]map[string]float64 // optional per-session overrides
	SlippageModel  string                        // "fixed" | "session_scaled"
	SlippagePips   float64                       // base pip magnitude, >= 0
	Seed           int64                         // PRNG seed for jittered slippage
	Timeframe      Timeframe
	Parallel       bool // replay instruments concurrently
}

// Validate rejects malformed configs with a field-level reason.
// All violations are configuration errors surfaced before any replay.
func (c *RunConfig) Validate() error {
	if c.Start.IsZero() || c.End.IsZero() {
		return fmt.Errorf("start and end timestamps are required")
	}
	if !c.Start.Before(c.End) {
		return fmt.Errorf("start %s must precede end %s",
			c.Start.Format(time.RFC3339), c.End.Format(time.RFC3339))
	}
	if len(c.Instruments) == 0 {
		return fmt.Errorf("instrument list must be non-empty")
	}
	for _, inst := range c.Instruments {
		if inst == "" {
			return fmt.Errorf("instrument list contains an empty name")
		}
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive, got %.2f", c.InitialCapital)
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade > 0.1 {
		return fmt.Errorf("risk per trade must be in (0, 0.1], got %.4f", c.RiskPerTrade)
	}
	if !c.Timeframe.Valid() {
		return fmt.Errorf("unknown timeframe %q", c.Timeframe)
	}
	switch c.SlippageModel {
	case SlippageFixed, SlippageSessionScaled:
	default:
		return fmt.Errorf("unknown slippage model %q", c.SlippageModel)
	}
	if c.SlippagePips < 0 {
		return fmt.Errorf("slippage pips must be non-negative, got %.2f", c.SlippagePips)
	}
	ct, ok := c.Params[ParamConfidenceThreshold]
	if !ok {
		return fmt.Errorf("parameter %q is required", ParamConfidenceThreshold)
	}
	if ct < 0 || ct > 100 {
		return fmt.Errorf("parameter %q must be in [0, 100], got %.2f", ParamConfidenceThreshold, ct)
	}
	mrr, ok := c.Params[ParamMinRiskReward]
	if !ok {
		return fmt.Errorf("parameter %q is required", ParamMinRiskReward)
	}
	if mrr <= 0 {
		return fmt.Errorf("parameter %q must be positive, got %.2f", ParamMinRiskReward, mrr)
	}
	if maxrr, ok := c.Params[ParamMaxRiskReward]; ok && maxrr <= mrr {
		return fmt.Errorf("parameter %q must exceed %q", ParamMaxRiskReward, ParamMinRiskReward)
	}
	return nil
}

// Clone returns a deep copy. Overlays in a comparison batch mutate only
// their own copy.
func (c *RunConfig) Clone() *RunConfig {
	out := *c
	out.Instruments = append([]string(nil), c.Instruments...)
	out.Params = make(map[string]float64, len(c.Params))
	for k, v := range c.Params {
		out.Params[k] = v
	}
	if c.SessionParams != nil {
		out.SessionParams = make(map[Session]map[string]float64, len(c.SessionParams))
		for s, m := range c.SessionParams {
			inner := make(map[string]float64, len(m))
			for k, v := range m {
				inner[k] = v
			}
			out.SessionParams[s] = inner
		}
	}
	return &out
}
