package metrics

import "fx-backtest-lab/internal/domain"

// breakdownBy recomputes the metric subset over the trade log filtered by
// an arbitrary key (session, instrument).
func breakdownBy[K comparable](trades []domain.Trade, key func(domain.Trade) K) map[K]domain.BreakdownStats {
	groups := make(map[K][]domain.Trade)
	for _, t := range trades {
		k := key(t)
		groups[k] = append(groups[k], t)
	}

	out := make(map[K]domain.BreakdownStats, len(groups))
	for k, group := range groups {
		stats := domain.BreakdownStats{
			Trades:       len(group),
			WinRate:      winRate(group),
			ProfitFactor: profitFactor(group),
		}
		for _, t := range group {
			if t.Win() {
				stats.Wins++
			}
			stats.TotalPnL += t.PnL
		}
		stats.Expectancy, _ = expectancy(group)
		out[k] = stats
	}
	return out
}
