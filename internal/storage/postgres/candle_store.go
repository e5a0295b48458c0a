package postgres

import (
	"context"
	"fmt"
	"time"

	"fx-backtest-lab/internal/domain"
	"fx-backtest-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using PostgreSQL.
type CandleStore struct {
	pool *Pool
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(pool *Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// EnsureSchema creates the candles table when absent.
func (s *CandleStore) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS candles (
			instrument TEXT             NOT NULL,
			timeframe  TEXT             NOT NULL,
			ts         TIMESTAMPTZ      NOT NULL,
			open       DOUBLE PRECISION NOT NULL,
			high       DOUBLE PRECISION NOT NULL,
			low        DOUBLE PRECISION NOT NULL,
			close      DOUBLE PRECISION NOT NULL,
			volume     DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (instrument, timeframe, ts)
		)
	`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create candles table: %w", err)
	}
	return nil
}

// InsertBulk adds candles in one transaction. Fails the entire batch on
// any duplicate (instrument, timeframe, ts) key or malformed bar.
func (s *CandleStore) InsertBulk(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	for i := range candles {
		c := &candles[i]
		if c.Instrument == "" || !c.Timeframe.Valid() {
			return storage.ErrInvalidInput
		}
		if err := c.Validate(); err != nil {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range candles {
		_, err := tx.Exec(ctx, `
			INSERT INTO candles (instrument, timeframe, ts, open, high, low, close, volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, c.Instrument, string(c.Timeframe), c.Time.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert candle: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetCandles retrieves candles within [start, end), ordered by ts ASC.
func (s *CandleStore) GetCandles(ctx context.Context, instrument string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT instrument, timeframe, ts, open, high, low, close, volume
		FROM candles
		WHERE instrument = $1 AND timeframe = $2 AND ts >= $3 AND ts < $4
		ORDER BY ts ASC
	`, instrument, string(tf), start.UTC(), end.UTC())
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
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT instrument FROM candles ORDER BY instrument`)
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
