package backtest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fx-backtest-lab/internal/domain"
)

// MaxCompareOverlays bounds one comparison batch.
const MaxCompareOverlays = 10

// compareConcurrency bounds how many overlay runs execute at once.
const compareConcurrency = 4

// Overlay is one named parameter variation applied on top of a base run
// config.
type Overlay struct {
	Name          string                                `json:"name"`
	Params        map[string]float64                    `json:"params,omitempty"`
	SessionParams map[domain.Session]map[string]float64 `json:"session_params,omitempty"`
}

// OverlayResult is one overlay's outcome within a comparison. Err is set
// and Summary nil when the overlay's run failed; other overlays are
// unaffected.
type OverlayResult struct {
	Name    string          `json:"name"`
	Summary *domain.Summary `json:"summary,omitempty"`
	Err     string          `json:"error,omitempty"`

	BestSharpe  bool `json:"best_sharpe"`
	BestCAGR    bool `json:"best_cagr"`
	BestWinRate bool `json:"best_win_rate"`
}

// CompareResult holds every overlay's outcome in input order.
type CompareResult struct {
	Overlays []OverlayResult `json:"overlays"`
}

// Compare runs the base config once per overlay and marks the best overlay
// by Sharpe, CAGR, and win rate among those that completed. Overlay
// failures are isolated; on cancellation, overlays that already completed
// still report.
func (r *Runner) Compare(ctx context.Context, base *domain.RunConfig, overlays []Overlay) (*CompareResult, error) {
	if len(overlays) == 0 {
		return nil, domain.NewFatal(domain.StageValidation, "", "comparison requires at least one overlay", nil)
	}
	if len(overlays) > MaxCompareOverlays {
		return nil, domain.NewFatal(domain.StageValidation, "",
			fmt.Sprintf("comparison limited to %d overlays, got %d", MaxCompareOverlays, len(overlays)), nil)
	}

	out := make([]OverlayResult, len(overlays))

	g := &errgroup.Group{}
	g.SetLimit(compareConcurrency)
	for i, ov := range overlays {
		g.Go(func() error {
			out[i] = r.runOverlay(ctx, base, ov)
			return nil
		})
	}
	_ = g.Wait()

	markBest(out)
	return &CompareResult{Overlays: out}, nil
}

func (r *Runner) runOverlay(ctx context.Context, base *domain.RunConfig, ov Overlay) OverlayResult {
	cfg := base.Clone()
	for k, v := range ov.Params {
		cfg.Params[k] = v
	}
	if len(ov.SessionParams) > 0 {
		if cfg.SessionParams == nil {
			cfg.SessionParams = make(map[domain.Session]map[string]float64)
		}
		for sess, m := range ov.SessionParams {
			inner := make(map[string]float64, len(m))
			for k, v := range m {
				inner[k] = v
			}
			cfg.SessionParams[sess] = inner
		}
	}

	res, err := r.Run(ctx, cfg)
	if err != nil {
		r.logger.Warn("comparison overlay failed",
			zap.String("overlay", ov.Name),
			zap.Error(err))
		return OverlayResult{Name: ov.Name, Err: err.Error()}
	}
	summary := res.Summarize()
	return OverlayResult{Name: ov.Name, Summary: &summary}
}

// markBest flags the completed overlay with the highest Sharpe, CAGR, and
// win rate. Ties keep the earliest overlay in input order.
func markBest(results []OverlayResult) {
	sharpe, cagr, win := -1, -1, -1
	for i, or := range results {
		if or.Summary == nil {
			continue
		}
		if sharpe == -1 || or.Summary.Sharpe > results[sharpe].Summary.Sharpe {
			sharpe = i
		}
		if cagr == -1 || or.Summary.CAGR > results[cagr].Summary.CAGR {
			cagr = i
		}
		if win == -1 || or.Summary.WinRate > results[win].Summary.WinRate {
			win = i
		}
	}
	if sharpe >= 0 {
		results[sharpe].BestSharpe = true
	}
	if cagr >= 0 {
		results[cagr].BestCAGR = true
	}
	if win >= 0 {
		results[win].BestWinRate = true
	}
}
