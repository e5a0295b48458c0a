// Package metrics reduces a finished trade log and equity series into the
// standard performance report. Pure functions, no I/O.
package metrics

import (
	"math"
	"time"

	"fx-backtest-lab/internal/domain"
)

// PeriodsPerYear is the annualization assumption for Sharpe and Sortino.
const PeriodsPerYear = 252

// ProfitFactorCap is the sentinel reported when gross loss is zero and
// gross profit is positive. A large finite value, not infinity, so the
// report stays JSON-serializable and comparable.
const ProfitFactorCap = 9999.0

// Reducer computes a RunResult from run outputs.
type Reducer struct {
	// RiskFreeRate is the annualized risk-free rate subtracted in the
	// Sharpe numerator.
	RiskFreeRate float64
}

// Reduce builds the performance report. Single-shot: called once per run
// after every instrument is fully replayed.
func (r *Reducer) Reduce(trades []domain.Trade, equity []domain.EquityPoint, cfg *domain.RunConfig) *domain.RunResult {
	res := &domain.RunResult{
		Start:          cfg.Start,
		End:            cfg.End,
		Instruments:    append([]string(nil), cfg.Instruments...),
		InitialCapital: cfg.InitialCapital,
		FinalBalance:   cfg.InitialCapital,
		Trades:         trades,
		EquityCurve:    equity,
	}
	if len(equity) > 0 {
		res.FinalBalance = equity[len(equity)-1].Balance
	}

	res.TotalReturnPct = (res.FinalBalance - cfg.InitialCapital) / cfg.InitialCapital * 100
	res.CAGR = cagr(cfg.InitialCapital, res.FinalBalance, cfg.Start, cfg.End)

	returns := periodReturns(equity)
	res.Sharpe = sharpe(returns, r.RiskFreeRate)
	res.Sortino = sortino(returns, r.RiskFreeRate)

	dd, ddPct := maxDrawdown(equity)
	res.MaxDrawdown = dd
	res.MaxDrawdownPct = ddPct
	if ddPct > 0 {
		res.Calmar = res.CAGR / (ddPct / 100)
	}

	res.TotalTrades = len(trades)
	res.WinRate = winRate(trades)
	res.ProfitFactor = profitFactor(trades)
	res.Expectancy, res.ExpectancyR = expectancy(trades)

	res.BySession = breakdownBy(trades, func(t domain.Trade) domain.Session { return t.Session })
	res.ByInstrument = breakdownBy(trades, func(t domain.Trade) string { return t.Instrument })

	return res
}

// periodReturns derives the simple return series from consecutive equity
// balances. Zero-balance periods are skipped rather than dividing by zero.
func periodReturns(equity []domain.EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Balance
		if prev == 0 {
			continue
		}
		out = append(out, (equity[i].Balance-prev)/prev)
	}
	return out
}

// sharpe annualizes assuming PeriodsPerYear periods. Sample stddev (n-1).
func sharpe(returns []float64, riskFree float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	sd := stddev(returns, m)
	if sd == 0 {
		return 0
	}
	annMean := m * PeriodsPerYear
	annSd := sd * math.Sqrt(PeriodsPerYear)
	return (annMean - riskFree) / annSd
}

// sortino is Sharpe with only negative-return deviations in the
// denominator. Zero (undefined) when no downside periods exist.
func sortino(returns []float64, riskFree float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var downSq float64
	downN := 0
	for _, ret := range returns {
		if ret < 0 {
			downSq += ret * ret
			downN++
		}
	}
	if downN == 0 {
		return 0
	}
	downDev := math.Sqrt(downSq / float64(downN))
	if downDev == 0 {
		return 0
	}
	annMean := mean(returns) * PeriodsPerYear
	annDown := downDev * math.Sqrt(PeriodsPerYear)
	return (annMean - riskFree) / annDown
}

// maxDrawdown returns the deepest peak-to-trough decline in currency and
// as a percentage of the peak at the point of maximum drawdown. Both are
// reported as positive magnitudes.
func maxDrawdown(equity []domain.EquityPoint) (float64, float64) {
	var peak, maxDD, maxDDPct float64
	for i, p := range equity {
		if i == 0 || p.Balance > peak {
			peak = p.Balance
		}
		dd := peak - p.Balance
		if dd > maxDD {
			maxDD = dd
			if peak > 0 {
				maxDDPct = dd / peak * 100
			}
		}
	}
	return maxDD, maxDDPct
}

func cagr(initial, final float64, start, end time.Time) float64 {
	if initial <= 0 || final <= 0 {
		return 0
	}
	days := end.Sub(start).Hours() / 24
	if days <= 0 {
		return 0
	}
	return math.Pow(final/initial, 365.25/days) - 1
}

func winRate(trades []domain.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.Win() {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

func profitFactor(trades []domain.Trade) float64 {
	var grossProfit, grossLoss float64
	for _, t := range trades {
		if t.PnL > 0 {
			grossProfit += t.PnL
		} else {
			grossLoss += -t.PnL
		}
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return ProfitFactorCap
		}
		return 0
	}
	return grossProfit / grossLoss
}

// expectancy returns mean realized P&L per closed trade, and the same as a
// fraction of the mean risk amount.
func expectancy(trades []domain.Trade) (float64, float64) {
	if len(trades) == 0 {
		return 0, 0
	}
	var totalPnL, totalRisk float64
	for _, t := range trades {
		totalPnL += t.PnL
		totalRisk += t.RiskAmount
	}
	exp := totalPnL / float64(len(trades))
	meanRisk := totalRisk / float64(len(trades))
	if meanRisk == 0 {
		return exp, 0
	}
	return exp, exp / meanRisk
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(xs []float64, m float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		d := x - m
		s += d * d
	}
	return math.Sqrt(s / float64(n-1))
}
