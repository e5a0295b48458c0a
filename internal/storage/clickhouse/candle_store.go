package clickhouse

import (
	"context"
	"fmt"
	"time"

	"fx-backtest-lab/internal/domain"
	"fx-backtest-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// EnsureSchema creates the candles table when absent.
func (s *CandleStore) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS candles (
			instrument  LowCardinality(String),
			timeframe   LowCardinality(String),
			ts          DateTime64(3, 'UTC'),
			open        Float64,
			high        Float64,
			low         Float64,
			close       Float64,
			volume      Float64
		) ENGINE = MergeTree()
		ORDER BY (instrument, timeframe, ts)
	`
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create candles table: %w", err)
	}
	return nil
}

// InsertBulk adds candles in one batch. Fails the batch on a duplicate
// (instrument, timeframe, ts) key or a malformed bar.
func (s *CandleStore) InsertBulk(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	type key struct {
		instrument string
		timeframe  domain.Timeframe
		ts         int64
	}
	seen := make(map[key]struct{}, len(candles))
	for i := range candles {
		c := &candles[i]
		if c.Instrument == "" || !c.Timeframe.Valid() {
			return storage.ErrInvalidInput
		}
		if err := c.Validate(); err != nil {
			return storage.ErrInvalidInput
		}
		k := key{c.Instrument, c.Timeframe, c.Time.UnixMilli()}
		if _, dup := seen[k]; dup {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, c := range candles {
		exists, err := s.exists(ctx, c.Instrument, c.Timeframe, c.Time)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (instrument, timeframe, ts, open, high, low, close, volume)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, c := range candles {
		if err := batch.Append(
			c.Instrument, string(c.Timeframe), c.Time.UTC(),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetCandles retrieves candles within [start, end), ordered by ts ASC.
func (s *CandleStore) GetCandles(ctx context.Context, instrument string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error) {
	query := `
		SELECT instrument, timeframe, ts, open, high, low, close, volume
		FROM candles
		WHERE instrument = ? AND timeframe = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`
	rows, err := s.conn.Query(ctx, query, instrument, string(tf), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []domain.Candle
	for rows.Next() {
		var c domain.Candle
		var tfStr string
		if err := rows.Scan(&c.Instrument, &tfStr, &c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Timeframe = domain.Timeframe(tfStr)
		c.Time = c.Time.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w", err)
	}
	if len(out) == 0 {
		return nil, storage.ErrNotFound
	}
	return out, nil
}

// Instruments lists distinct instruments with stored data, sorted.
func (s *CandleStore) Instruments(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT instrument FROM candles ORDER BY instrument`)
	if err != nil {
		return nil, fmt.Errorf("query instruments: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var inst string
		if err := rows.Scan(&inst); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *CandleStore) exists(ctx context.Context, instrument string, tf domain.Timeframe, ts time.Time) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM candles
		WHERE instrument = ? AND timeframe = ? AND ts = ?
	`, instrument, string(tf), ts.UTC()).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
