package replay

import (
	"fmt"
	"math"
	"time"

	"fx-backtest-lab/internal/domain"
)

// Guard holds the look-ahead invariant checks invoked before every signal
// generation and every fill. A tripped guard is a correctness bug in the
// simulator or its inputs: always fatal, never retried or downgraded.
type Guard struct {
	// MaxFillDeviationPct flags a fill price that strays too far from the
	// open of the bar used to fill it. This one is a warning, not fatal.
	MaxFillDeviationPct float64
}

// NewGuard returns a guard with the default fill-deviation tolerance.
func NewGuard() *Guard {
	return &Guard{MaxFillDeviationPct: 1.0}
}

// CheckHistory verifies that every candle visible at a decision point has
// already happened: the last (and therefore every) timestamp in history is
// strictly earlier than the decision timestamp.
func (g *Guard) CheckHistory(instrument string, history []domain.Candle, decision time.Time) *domain.RunError {
	if len(history) == 0 {
		return nil
	}
	last := history[len(history)-1].Time
	if !last.Before(decision) {
		return domain.NewFatal(domain.StageReplay, instrument,
			fmt.Sprintf("look-ahead: history ends at %s, decision at %s",
				last.Format(time.RFC3339), decision.Format(time.RFC3339)), nil)
	}
	// The sequence is sorted on cursor construction, so checking the tail
	// covers the whole window. A mis-sorted window is its own violation.
	for i := 1; i < len(history); i++ {
		if !history[i-1].Time.Before(history[i].Time) {
			return domain.NewFatal(domain.StageReplay, instrument,
				fmt.Sprintf("look-ahead: history not ascending at index %d", i), nil)
		}
	}
	return nil
}

// CheckFill verifies that a fill happens strictly after the decision that
// ordered it.
func (g *Guard) CheckFill(instrument string, decision, fill time.Time) *domain.RunError {
	if !fill.After(decision) {
		return domain.NewFatal(domain.StageReplay, instrument,
			fmt.Sprintf("look-ahead: fill at %s not after decision at %s",
				fill.Format(time.RFC3339), decision.Format(time.RFC3339)), nil)
	}
	return nil
}

// CheckFillPrice reports whether a simulated fill price is consistent with
// the bar used to fill it. A large deviation from the bar's open is
// suspicious but not fatal; the caller logs it and continues.
func (g *Guard) CheckFillPrice(bar domain.Candle, price float64) (ok bool, deviationPct float64) {
	if bar.Open <= 0 {
		return false, 0
	}
	deviationPct = math.Abs(price-bar.Open) / bar.Open * 100
	return deviationPct <= g.MaxFillDeviationPct, deviationPct
}
