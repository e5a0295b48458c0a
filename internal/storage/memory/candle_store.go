// Package memory provides in-memory storage implementations used by tests
// and the stub server mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"fx-backtest-lab/internal/domain"
	"fx-backtest-lab/internal/storage"
)

type candleKey struct {
	instrument string
	timeframe  domain.Timeframe
	ts         int64
}

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[candleKey]domain.Candle
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{data: make(map[candleKey]domain.Candle)}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk adds candles atomically. Fails the entire batch on any
// duplicate or malformed bar.
func (s *CandleStore) InsertBulk(_ context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[candleKey]struct{}, len(candles))
	for i := range candles {
		c := &candles[i]
		if c.Instrument == "" || !c.Timeframe.Valid() {
			return storage.ErrInvalidInput
		}
		if err := c.Validate(); err != nil {
			return storage.ErrInvalidInput
		}
		k := candleKey{c.Instrument, c.Timeframe, c.Time.UnixNano()}
		if _, dup := batch[k]; dup {
			return storage.ErrDuplicateKey
		}
		if _, dup := s.data[k]; dup {
			return storage.ErrDuplicateKey
		}
		batch[k] = struct{}{}
	}

	for _, c := range candles {
		s.data[candleKey{c.Instrument, c.Timeframe, c.Time.UnixNano()}] = c
	}
	return nil
}

// GetCandles retrieves candles within [start, end), ordered by time ASC.
func (s *CandleStore) GetCandles(_ context.Context, instrument string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Candle
	for k, c := range s.data {
		if k.instrument != instrument || k.timeframe != tf {
			continue
		}
		if c.Time.Before(start) || !c.Time.Before(end) {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, storage.ErrNotFound
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// Instruments lists distinct instruments with stored data, sorted.
func (s *CandleStore) Instruments(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for k := range s.data {
		seen[k.instrument] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for inst := range seen {
		out = append(out, inst)
	}
	sort.Strings(out)
	return out, nil
}
