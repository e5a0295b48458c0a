package storage

import "errors"

// Storage errors for append-only candle stores.
var (
	// ErrNotFound is returned when no candles exist for the requested
	// instrument, timeframe and range.
	ErrNotFound = errors.New("no candle data found")

	// ErrDuplicateKey is returned when inserting a candle whose
	// (instrument, timeframe, time) key already exists. Candle history is
	// append-only; stores do not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
