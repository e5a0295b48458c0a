package session

import (
	"time"

	"fx-backtest-lab/internal/domain"
)

// MergeParams returns the effective parameter set for a session: override
// keys win, unspecified keys fall back to universal. The returned map is a
// fresh copy; callers may not mutate shared config state through it.
func MergeParams(universal map[string]float64, overrides map[domain.Session]map[string]float64, sess domain.Session) map[string]float64 {
	effective := make(map[string]float64, len(universal))
	for k, v := range universal {
		effective[k] = v
	}
	if overrides == nil {
		return effective
	}
	for k, v := range overrides[sess] {
		effective[k] = v
	}
	return effective
}

// EffectiveParams classifies ts and merges the matching override set.
func EffectiveParams(universal map[string]float64, overrides map[domain.Session]map[string]float64, ts time.Time) (domain.Session, map[string]float64) {
	sess := Classify(ts)
	return sess, MergeParams(universal, overrides, sess)
}
