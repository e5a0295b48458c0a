package domain

import "time"

// Direction of a proposed or open trade.
type Direction string

// Trade directions.
const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// TradeProposal is produced by the signal adapter for a single decision
// point. Transient: consumed immediately by the execution simulator or
// discarded.
type TradeProposal struct {
	Instrument string
	Direction  Direction
	Time       time.Time // decision timestamp
	Entry      float64   // proposed entry price
	Stop       float64   // stop-loss level
	Target     float64   // take-profit level
	Confidence float64   // [0, 100]
	Pattern    string    // originating pattern label
	Session    Session   // attached by the adapter
}

// RiskReward returns reward distance over risk distance. Zero when the
// stop distance is degenerate.
func (p *TradeProposal) RiskReward() float64 {
	risk := p.Entry - p.Stop
	reward := p.Target - p.Entry
	if p.Direction == DirectionShort {
		risk, reward = -risk, -reward
	}
	if risk <= 0 {
		return 0
	}
	return reward / risk
}
