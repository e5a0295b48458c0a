// Package storage defines the candle-source boundary consumed by the
// replay engine. Implementations live in subpackages (memory, clickhouse,
// postgres); the engine only ever sees this interface.
package storage

import (
	"context"
	"time"

	"fx-backtest-lab/internal/domain"
)

// CandleStore provides access to historical candle storage.
type CandleStore interface {
	// InsertBulk adds candles, validating each bar. Fails the entire batch
	// on any duplicate (instrument, timeframe, time) key.
	InsertBulk(ctx context.Context, candles []domain.Candle) error

	// GetCandles retrieves candles for an instrument/timeframe within
	// [start, end), ordered by time ASC. Returns ErrNotFound when the
	// range holds no data.
	GetCandles(ctx context.Context, instrument string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error)

	// Instruments lists distinct instruments with stored data.
	Instruments(ctx context.Context) ([]string, error)
}
