package domain

import "time"

// OpenPosition is a filled, not yet closed trade. Owned exclusively by the
// per-run replay state; created on fill, converted into a Trade on exit.
type OpenPosition struct {
	TradeID    string // deterministic hash
	Instrument string
	Direction  Direction

	EntryTime  time.Time // timestamp of the fill bar, strictly after decision time
	EntryPrice float64   // next-bar open adjusted by slippage
	Stop       float64
	Target     float64

	Units        float64 // position size in base units
	RiskAmount   float64 // currency at risk when the stop is hit
	RiskPips     float64 // |proposed entry - stop| in pips, RR denominator
	EntrySlipPip float64 // slippage applied on the entry leg, pips

	Confidence float64
	Pattern    string
	Session    Session // session of the decision bar
}

// UnrealizedPnL marks the position to a price in currency terms.
func (p *OpenPosition) UnrealizedPnL(price float64) float64 {
	d := price - p.EntryPrice
	if p.Direction == DirectionShort {
		d = -d
	}
	return d * p.Units
}
