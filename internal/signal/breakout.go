package signal

import (
	"context"
	"time"

	"fx-backtest-lab/internal/domain"
)

// Breakout parameter keys, all optional.
const (
	// ParamBreakoutLookback is the channel length in bars.
	ParamBreakoutLookback = "breakout_lookback"
	// ParamBreakoutStopBars is how many recent bars set the stop level.
	ParamBreakoutStopBars = "breakout_stop_bars"

	defaultBreakoutLookback = 20
	defaultBreakoutStopBars = 5
)

// Breakout is a reference provider: it proposes a long when the latest
// close clears the high of the preceding channel, and a short on the
// mirror condition. Confidence scales with how far the close cleared the
// channel relative to its width.
type Breakout struct{}

// NewBreakout creates the reference breakout provider.
func NewBreakout() *Breakout { return &Breakout{} }

// Name implements Provider.
func (b *Breakout) Name() string { return "breakout" }

// Generate implements Provider.
func (b *Breakout) Generate(_ context.Context, history []domain.Candle, _ time.Time, params map[string]float64) (*domain.TradeProposal, error) {
	lookback := intParam(params, ParamBreakoutLookback, defaultBreakoutLookback)
	stopBars := intParam(params, ParamBreakoutStopBars, defaultBreakoutStopBars)
	if len(history) < lookback+1 {
		return nil, nil
	}
	// stop_bars is user-supplied and may exceed the available history.
	if stopBars > len(history) {
		stopBars = len(history)
	}

	last := history[len(history)-1]
	channel := history[len(history)-1-lookback : len(history)-1]

	var hi, lo float64
	for i, c := range channel {
		if i == 0 || c.High > hi {
			hi = c.High
		}
		if i == 0 || c.Low < lo {
			lo = c.Low
		}
	}
	width := hi - lo
	if width <= 0 {
		return nil, nil
	}

	recent := history[len(history)-stopBars:]

	switch {
	case last.Close > hi:
		stop := recent[0].Low
		for _, c := range recent[1:] {
			if c.Low < stop {
				stop = c.Low
			}
		}
		if stop >= last.Close {
			return nil, nil
		}
		return &domain.TradeProposal{
			Instrument: last.Instrument,
			Direction:  domain.DirectionLong,
			Entry:      last.Close,
			Stop:       stop,
			Target:     last.Close + 2*(last.Close-stop),
			Confidence: breakoutConfidence(last.Close-hi, width),
			Pattern:    "channel_breakout",
		}, nil

	case last.Close < lo:
		stop := recent[0].High
		for _, c := range recent[1:] {
			if c.High > stop {
				stop = c.High
			}
		}
		if stop <= last.Close {
			return nil, nil
		}
		return &domain.TradeProposal{
			Instrument: last.Instrument,
			Direction:  domain.DirectionShort,
			Entry:      last.Close,
			Stop:       stop,
			Target:     last.Close - 2*(stop-last.Close),
			Confidence: breakoutConfidence(lo-last.Close, width),
			Pattern:    "channel_breakout",
		}, nil
	}

	return nil, nil
}

// breakoutConfidence maps the breakout margin to [50, 100]: clearing the
// channel by half its width or more scores full confidence.
func breakoutConfidence(margin, width float64) float64 {
	score := 50 + 100*margin/width
	if score > 100 {
		return 100
	}
	return score
}

func intParam(params map[string]float64, key string, def int) int {
	if v, ok := params[key]; ok && v > 0 {
		return int(v)
	}
	return def
}
