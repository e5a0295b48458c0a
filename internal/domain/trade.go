package domain

import "time"

// Exit reason codes.
const (
	ExitReasonStopLoss   = "stop_loss"
	ExitReasonTakeProfit = "take_profit"
	ExitReasonTimeExit   = "time_exit"
	ExitReasonManual     = "manual"
)

// Trade is the immutable closed-position record. Append-only, one per
// instrument-direction episode.
type Trade struct {
	TradeID    string    `json:"trade_id"`
	Instrument string    `json:"instrument"`
	Direction  Direction `json:"direction"`

	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	Stop       float64   `json:"stop"`
	Target     float64   `json:"target"`

	ExitTime   time.Time `json:"exit_time"`
	ExitPrice  float64   `json:"exit_price"`
	ExitReason string    `json:"exit_reason"`

	Units      float64 `json:"units"`
	RiskAmount float64 `json:"risk_amount"`

	PnL     float64 `json:"pnl"`      // realized, account currency
	PnLPips float64 `json:"pnl_pips"` // realized, pips

	RiskRewardAchieved float64 `json:"risk_reward_achieved"` // reward pips / initial risk pips

	EntrySlipPip float64 `json:"entry_slippage_pips"`
	ExitSlipPip  float64 `json:"exit_slippage_pips"`

	Confidence float64 `json:"confidence"`
	Pattern    string  `json:"pattern"`
	Session    Session `json:"session"`
}

// Win reports whether the trade closed with positive realized P&L.
func (t *Trade) Win() bool { return t.PnL > 0 }
