package replay

import (
	"fmt"

	"fx-backtest-lab/internal/domain"
)

// Aggregate resamples base-timeframe candles into a coarser timeframe using
// only completed source bars. Buckets are aligned to the target interval
// (truncated timestamps); a trailing partial bucket is dropped so a
// multi-timeframe consumer can never observe a bar still in progress.
func Aggregate(candles []domain.Candle, target domain.Timeframe) ([]domain.Candle, error) {
	if len(candles) == 0 {
		return nil, ErrEmptyInput
	}
	base := candles[0].Timeframe
	baseDur, targetDur := base.Duration(), target.Duration()
	if baseDur == 0 || targetDur == 0 {
		return nil, fmt.Errorf("unknown timeframe in aggregation: %q -> %q", base, target)
	}
	if targetDur <= baseDur || targetDur%baseDur != 0 {
		return nil, fmt.Errorf("target %s is not a multiple of base %s", target, base)
	}
	perBucket := int(targetDur / baseDur)

	out := make([]domain.Candle, 0, len(candles)/perBucket)
	i := 0
	for i < len(candles) {
		bucketStart := candles[i].Time.Truncate(targetDur)
		bucketEnd := bucketStart.Add(targetDur)

		agg := candles[i]
		agg.Timeframe = target
		agg.Time = bucketStart
		n := 1
		j := i + 1
		for j < len(candles) && candles[j].Time.Before(bucketEnd) {
			c := candles[j]
			if c.High > agg.High {
				agg.High = c.High
			}
			if c.Low < agg.Low {
				agg.Low = c.Low
			}
			agg.Close = c.Close
			agg.Volume += c.Volume
			n++
			j++
		}

		// Drop partial buckets at either edge: the coarse bar only exists
		// once every source bar inside it has closed.
		switch {
		case n == perBucket:
			out = append(out, agg)
		case i == 0 || j == len(candles):
			// leading series offset or trailing bucket still in progress
		default:
			// An interior bucket with missing bars means a gap in the
			// source series; aggregation does not paper over it.
			return nil, fmt.Errorf("incomplete bucket at %s: %d of %d bars", bucketStart, n, perBucket)
		}
		i = j
	}
	return out, nil
}
