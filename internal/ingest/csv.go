// Package ingest loads historical candle data into a candle store. The
// input format is one CSV file per instrument with a
// time,open,high,low,close,volume header.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"fx-backtest-lab/internal/domain"
	"fx-backtest-lab/internal/storage"
)

// batchSize bounds one InsertBulk call.
const batchSize = 5000

// ReadCandles parses one instrument's CSV stream. Timestamps are RFC 3339
// or integer unix seconds; rows must be chronological.
func ReadCandles(r io.Reader, instrument string, tf domain.Timeframe) ([]domain.Candle, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var out []domain.Candle
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		c, err := parseRow(row, cols, instrument, tf)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(out) > 0 && !out[len(out)-1].Time.Before(c.Time) {
			return nil, fmt.Errorf("line %d: timestamps must be strictly ascending", line)
		}
		out = append(out, c)
	}
	return out, nil
}

// LoadFile reads one CSV file and inserts its candles. The instrument name
// is the file's base name without extension, e.g. EUR_USD.csv.
func LoadFile(ctx context.Context, store storage.CandleStore, path string, tf domain.Timeframe, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	instrument := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	candles, err := ReadCandles(f, instrument, tf)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	for start := 0; start < len(candles); start += batchSize {
		end := start + batchSize
		if end > len(candles) {
			end = len(candles)
		}
		if err := store.InsertBulk(ctx, candles[start:end]); err != nil {
			return start, fmt.Errorf("%s: insert batch at row %d: %w", path, start, err)
		}
	}

	logger.Info("loaded candle file",
		zap.String("instrument", instrument),
		zap.String("timeframe", string(tf)),
		zap.Int("candles", len(candles)))
	return len(candles), nil
}

// LoadDir loads every .csv file under dir.
func LoadDir(ctx context.Context, store storage.CandleStore, dir string, tf domain.Timeframe, logger *zap.Logger) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return 0, err
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("no csv files in %s", dir)
	}

	total := 0
	for _, path := range paths {
		n, err := LoadFile(ctx, store, path, tf, logger)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type columns struct {
	time, open, high, low, close, volume int
}

func mapColumns(header []string) (columns, error) {
	cols := columns{time: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "time", "timestamp", "date":
			cols.time = i
		case "open":
			cols.open = i
		case "high":
			cols.high = i
		case "low":
			cols.low = i
		case "close":
			cols.close = i
		case "volume":
			cols.volume = i
		}
	}
	if cols.time < 0 || cols.open < 0 || cols.high < 0 || cols.low < 0 || cols.close < 0 {
		return cols, fmt.Errorf("header must name time, open, high, low, close columns, got %v", header)
	}
	return cols, nil
}

func parseRow(row []string, cols columns, instrument string, tf domain.Timeframe) (domain.Candle, error) {
	ts, err := parseTimestamp(row[cols.time])
	if err != nil {
		return domain.Candle{}, err
	}

	prices := make([]float64, 4)
	for i, idx := range []int{cols.open, cols.high, cols.low, cols.close} {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("price column %d: %w", idx, err)
		}
		prices[i] = v
	}

	volume := 0.0
	if cols.volume >= 0 && cols.volume < len(row) && strings.TrimSpace(row[cols.volume]) != "" {
		volume, err = strconv.ParseFloat(strings.TrimSpace(row[cols.volume]), 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("volume column: %w", err)
		}
	}

	return domain.Candle{
		Instrument: instrument,
		Timeframe:  tf,
		Time:       ts,
		Open:       prices[0],
		High:       prices[1],
		Low:        prices[2],
		Close:      prices[3],
		Volume:     volume,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is neither unix seconds nor RFC 3339", s)
	}
	return t.UTC(), nil
}
