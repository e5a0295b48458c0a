package domain

import "time"

// EquityPoint is a sampled snapshot of run equity. Sampled at a fixed bar
// stride (not every bar) to bound memory; monotonic by timestamp.
type EquityPoint struct {
	Time        time.Time `json:"time"`
	Balance     float64   `json:"balance"`  // realized cash
	Equity      float64   `json:"equity"`   // balance + unrealized P&L
	Drawdown    float64   `json:"drawdown"` // equity - running peak, <= 0
	DrawdownPct float64   `json:"drawdown_pct"` // <= 0, pct of the running peak
}
