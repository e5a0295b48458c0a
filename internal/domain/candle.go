package domain

import (
	"fmt"
	"strings"
	"time"
)

// Candle represents a single OHLCV bar. Immutable once produced by a
// candle store; ordered by Time, unique per (instrument, timeframe, time).
type Candle struct {
	Instrument string    // e.g. "EUR_USD"
	Timeframe  Timeframe // bar interval
	Time       time.Time // bar open time, UTC
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
}

// Validate checks structural well-formedness of a single bar.
func (c *Candle) Validate() error {
	if c.Time.IsZero() {
		return fmt.Errorf("candle has zero timestamp")
	}
	if c.High < c.Low {
		return fmt.Errorf("candle at %s: high %.6f < low %.6f", c.Time.Format(time.RFC3339), c.High, c.Low)
	}
	if c.Open <= 0 || c.Close <= 0 || c.High <= 0 || c.Low <= 0 {
		return fmt.Errorf("candle at %s: non-positive price", c.Time.Format(time.RFC3339))
	}
	if c.Open > c.High || c.Open < c.Low || c.Close > c.High || c.Close < c.Low {
		return fmt.Errorf("candle at %s: open/close outside high-low range", c.Time.Format(time.RFC3339))
	}
	return nil
}

// Timeframe is a bar interval identifier.
type Timeframe string

// Supported timeframes.
const (
	TFM5  Timeframe = "M5"
	TFM15 Timeframe = "M15"
	TFM30 Timeframe = "M30"
	TFH1  Timeframe = "H1"
	TFH4  Timeframe = "H4"
	TFD1  Timeframe = "D1"
)

// Duration returns the bar interval length. Zero for unknown timeframes.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TFM5:
		return 5 * time.Minute
	case TFM15:
		return 15 * time.Minute
	case TFM30:
		return 30 * time.Minute
	case TFH1:
		return time.Hour
	case TFH4:
		return 4 * time.Hour
	case TFD1:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether the timeframe is one of the supported constants.
func (tf Timeframe) Valid() bool {
	return tf.Duration() > 0
}

// PipSize returns the pip increment for an instrument: 0.01 for
// JPY-quoted pairs, 0.0001 otherwise.
func PipSize(instrument string) float64 {
	if strings.HasSuffix(instrument, "JPY") {
		return 0.01
	}
	return 0.0001
}
