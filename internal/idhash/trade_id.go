package idhash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"fx-backtest-lab/internal/domain"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(instrument|direction|entry_time_unix_ms|seq)
// Returns hex-encoded hash (64 characters).
//
// seq disambiguates trades of the same instrument and direction opened
// at the same timestamp within a run.
func ComputeTradeID(
	instrument string,
	direction domain.Direction,
	entryTimeUnixMs int64,
	seq int,
) string {
	data := fmt.Sprintf("%s|%s|%d|%d",
		instrument,
		string(direction),
		entryTimeUnixMs,
		seq,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// InstrumentSeed derives a per-instrument RNG seed from a run seed so
// that parallel and sequential replays of the same configuration draw
// identical slippage jitter.
func InstrumentSeed(runSeed int64, instrument string) int64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(runSeed))

	h := sha256.New()
	h.Write(buf[:])
	h.Write([]byte(instrument))
	sum := h.Sum(nil)

	return int64(binary.BigEndian.Uint64(sum[:8]))
}
