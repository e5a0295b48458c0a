package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fx-backtest-lab/internal/backtest"
	"fx-backtest-lab/internal/domain"
	"fx-backtest-lab/internal/storage"
)

// Handler serves the backtest endpoints.
type Handler struct {
	runner *backtest.Runner
	cache  *RunCache
	logger *zap.Logger
}

// NewHandler creates a handler over a runner and result cache.
func NewHandler(runner *backtest.Runner, cache *RunCache, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{runner: runner, cache: cache, logger: logger}
}

// runRequest is the JSON body of POST /backtest/run.
type runRequest struct {
	Start          string                                `json:"start" binding:"required"`
	End            string                                `json:"end" binding:"required"`
	Instruments    []string                              `json:"instruments" binding:"required"`
	InitialCapital float64                               `json:"initial_capital" binding:"required"`
	RiskPerTrade   float64                               `json:"risk_per_trade" binding:"required"`
	Params         map[string]float64                    `json:"params" binding:"required"`
	SessionParams  map[domain.Session]map[string]float64 `json:"session_params"`
	SlippageModel  string                                `json:"slippage_model"`
	SlippagePips   float64                               `json:"slippage_pips"`
	Seed           int64                                 `json:"seed"`
	Timeframe      string                                `json:"timeframe" binding:"required"`
	Parallel       bool                                  `json:"parallel"`
}

func (r *runRequest) toConfig() (*domain.RunConfig, error) {
	start, err := parseTime(r.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseTime(r.End)
	if err != nil {
		return nil, err
	}
	model := r.SlippageModel
	if model == "" {
		model = domain.SlippageFixed
	}
	return &domain.RunConfig{
		Start:          start,
		End:            end,
		Instruments:    r.Instruments,
		InitialCapital: r.InitialCapital,
		RiskPerTrade:   r.RiskPerTrade,
		Params:         r.Params,
		SessionParams:  r.SessionParams,
		SlippageModel:  model,
		SlippagePips:   r.SlippagePips,
		Seed:           r.Seed,
		Timeframe:      domain.Timeframe(r.Timeframe),
		Parallel:       r.Parallel,
	}, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is not RFC 3339: %w", s, err)
	}
	return t.UTC(), nil
}

// compareRequest is the JSON body of POST /backtest/compare.
type compareRequest struct {
	Config   runRequest         `json:"config" binding:"required"`
	Overlays []backtest.Overlay `json:"overlays" binding:"required"`
}

// RunBacktest executes one run synchronously and caches the full result
// under a fresh run id.
func (h *Handler) RunBacktest(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := req.toConfig()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.runner.Run(c.Request.Context(), cfg)
	if err != nil {
		h.writeRunError(c, err)
		return
	}

	id := uuid.NewString()
	h.cache.Put(id, res)

	c.JSON(http.StatusOK, gin.H{
		"run_id":  id,
		"summary": res.Summarize(),
	})
}

// GetRun returns a cached run's full result.
func (h *Handler) GetRun(c *gin.Context) {
	id := c.Param("id")
	res, ok := h.cache.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found", "run_id": id})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "result": res})
}

// DeleteRun evicts a cached run.
func (h *Handler) DeleteRun(c *gin.Context) {
	id := c.Param("id")
	if !h.cache.Delete(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found", "run_id": id})
		return
	}
	c.Status(http.StatusNoContent)
}

// CompareBacktests runs the base config under each overlay and returns
// summaries with best-metric flags. Overlay failures are reported inline.
func (h *Handler) CompareBacktests(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := req.Config.toConfig()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.runner.Compare(c.Request.Context(), cfg, req.Overlays)
	if err != nil {
		h.writeRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// writeRunError maps run error stages to HTTP statuses: validation to
// 400, missing data to 404, everything else to 500. The data-load stage
// also covers query failures and malformed series; only a genuinely
// absent dataset is a 404.
func (h *Handler) writeRunError(c *gin.Context, err error) {
	var re *domain.RunError
	if !errors.As(err, &re) {
		h.logger.Error("run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case re.Stage == domain.StageValidation:
		status = http.StatusBadRequest
	case re.Stage == domain.StageDataLoad && errors.Is(re.Err, storage.ErrNotFound):
		status = http.StatusNotFound
	}

	h.logger.Warn("run failed",
		zap.String("stage", string(re.Stage)),
		zap.String("instrument", re.Instrument),
		zap.Error(err))
	c.JSON(status, gin.H{
		"error":      re.Reason,
		"stage":      re.Stage,
		"instrument": re.Instrument,
	})
}
