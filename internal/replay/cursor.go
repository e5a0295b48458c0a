// Package replay iterates historical candles in strict chronological order.
// It is the only component that reveals market data to the rest of the
// engine, which is what makes the no-look-ahead guarantee enforceable.
package replay

import (
	"time"

	"fx-backtest-lab/internal/domain"
)

// Cursor steps through a candle sequence bar by bar. At each step i >= W
// (the warm-up length) it exposes the current closed candle and the history
// [0, i). Advancing the cursor is the only way to reveal more data.
type Cursor struct {
	candles []domain.Candle
	warmup  int
	idx     int // index of the current decision bar
}

// NewCursor validates the sequence and positions the cursor at the first
// decision bar. Empty or unsorted input is rejected before iteration.
func NewCursor(candles []domain.Candle, warmup int) (*Cursor, error) {
	if len(candles) == 0 {
		return nil, ErrEmptyInput
	}
	for i := 1; i < len(candles); i++ {
		if !candles[i-1].Time.Before(candles[i].Time) {
			return nil, ErrUnsorted
		}
	}
	if warmup < 0 {
		warmup = 0
	}
	if warmup >= len(candles) {
		return nil, ErrWarmupTooLong
	}
	return &Cursor{candles: candles, warmup: warmup, idx: warmup}, nil
}

// Done reports whether the cursor has stepped past the last bar.
func (c *Cursor) Done() bool { return c.idx >= len(c.candles) }

// Current returns the candle at the decision point. The decision timestamp
// is this bar's close; the bar itself is already closed.
func (c *Cursor) Current() domain.Candle { return c.candles[c.idx] }

// History returns all candles strictly before the current bar. The slice
// shares the cursor's backing array and must be treated as read-only.
func (c *Cursor) History() []domain.Candle { return c.candles[:c.idx] }

// Advance moves to the next bar. Calling Advance past the end is a no-op.
func (c *Cursor) Advance() {
	if c.idx < len(c.candles) {
		c.idx++
	}
}

// PeekNext exposes the bar after the current one, wrapped in a FillBar so
// it can only be consumed for order-fill simulation. Returns false on the
// final bar. The signal adapter never receives a FillBar.
func (c *Cursor) PeekNext() (FillBar, bool) {
	if c.idx+1 >= len(c.candles) {
		return FillBar{}, false
	}
	return FillBar{
		candle:       c.candles[c.idx+1],
		decisionTime: c.candles[c.idx].Time,
	}, true
}

// Len returns the total number of candles in the sequence.
func (c *Cursor) Len() int { return len(c.candles) }

// FillBar wraps the single future bar revealed for simulating a market
// order fill at its open. Fields are unexported so only this package can
// construct one; consumers read, they never forge.
type FillBar struct {
	candle       domain.Candle
	decisionTime time.Time
}

// Candle returns the wrapped bar.
func (f FillBar) Candle() domain.Candle { return f.candle }

// DecisionTime returns the timestamp of the decision bar the fill
// originates from.
func (f FillBar) DecisionTime() time.Time { return f.decisionTime }
