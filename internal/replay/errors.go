package replay

import "errors"

// Cursor construction errors. All fatal: a cursor never starts iterating
// over bad input and never silently skips bars.
var (
	// ErrEmptyInput is returned for an empty candle sequence.
	ErrEmptyInput = errors.New("candle sequence is empty")

	// ErrUnsorted is returned when candles are not strictly ascending by
	// timestamp.
	ErrUnsorted = errors.New("candle sequence is not strictly ascending by timestamp")

	// ErrWarmupTooLong is returned when the warm-up length leaves no bars
	// to replay.
	ErrWarmupTooLong = errors.New("warm-up length leaves no bars to replay")
)
