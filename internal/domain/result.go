package domain

import "time"

// BreakdownStats is the metric subset recomputed per session or per
// instrument from the filtered trade log.
type BreakdownStats struct {
	Trades       int     `json:"trades"`
	Wins         int     `json:"wins"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	TotalPnL     float64 `json:"total_pnl"`
	Expectancy   float64 `json:"expectancy"`
}

// RunResult aggregates everything a finished run produces. Built once at
// the end of a run and read-only afterwards.
type RunResult struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Instruments    []string  `json:"instruments"`
	InitialCapital float64   `json:"initial_capital"`
	FinalBalance   float64   `json:"final_balance"`

	TotalReturnPct float64 `json:"total_return_pct"`
	CAGR           float64 `json:"cagr"`
	Sharpe         float64 `json:"sharpe"`
	Sortino        float64 `json:"sortino"`
	Calmar         float64 `json:"calmar"`

	MaxDrawdown    float64 `json:"max_drawdown"`     // currency
	MaxDrawdownPct float64 `json:"max_drawdown_pct"` // pct of peak at the trough

	TotalTrades   int     `json:"total_trades"`
	WinRate       float64 `json:"win_rate"`
	ProfitFactor  float64 `json:"profit_factor"`
	Expectancy    float64 `json:"expectancy"`      // mean P&L per closed trade
	ExpectancyR   float64 `json:"expectancy_r"`    // as fraction of mean risk amount
	RejectedFills int     `json:"rejected_fills"`  // margin rejections, non-fatal

	Trades      []Trade       `json:"trades"`
	EquityCurve []EquityPoint `json:"equity_curve"`

	BySession    map[Session]BreakdownStats `json:"by_session"`
	ByInstrument map[string]BreakdownStats  `json:"by_instrument"`

	ExecutionSeconds float64 `json:"execution_seconds"`
}

// Summary is the condensed view returned by the run and compare endpoints.
type Summary struct {
	TotalTrades      int     `json:"total_trades"`
	WinRate          float64 `json:"win_rate"`
	TotalReturnPct   float64 `json:"total_return_pct"`
	CAGR             float64 `json:"cagr"`
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"`
	Sharpe           float64 `json:"sharpe"`
	ProfitFactor     float64 `json:"profit_factor"`
	ExecutionSeconds float64 `json:"execution_seconds"`
}

// Summarize condenses a RunResult for API responses.
func (r *RunResult) Summarize() Summary {
	return Summary{
		TotalTrades:      r.TotalTrades,
		WinRate:          r.WinRate,
		TotalReturnPct:   r.TotalReturnPct,
		CAGR:             r.CAGR,
		MaxDrawdownPct:   r.MaxDrawdownPct,
		Sharpe:           r.Sharpe,
		ProfitFactor:     r.ProfitFactor,
		ExecutionSeconds: r.ExecutionSeconds,
	}
}
