package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fx-backtest-lab/internal/domain"
)

const streamWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// streamFrame is one WebSocket message on the equity stream.
type streamFrame struct {
	Type   string              `json:"type"` // "point" | "done"
	Point  *domain.EquityPoint `json:"point,omitempty"`
	Total  int                 `json:"total,omitempty"`
	Sent   int                 `json:"sent,omitempty"`
	Result *domain.Summary     `json:"summary,omitempty"`
}

// StreamEquity streams a cached run's equity curve point by point over a
// WebSocket, then a closing frame with the run summary. The run id is
// resolved before the upgrade so a missing run is a plain 404.
func (h *Handler) StreamEquity(c *gin.Context) {
	id := c.Param("id")
	res, ok := h.cache.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found", "run_id": id})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("run_id", id), zap.Error(err))
		return
	}
	defer conn.Close()

	total := len(res.EquityCurve)
	for i := range res.EquityCurve {
		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		frame := streamFrame{Type: "point", Point: &res.EquityCurve[i], Total: total, Sent: i + 1}
		if err := conn.WriteJSON(frame); err != nil {
			h.logger.Debug("equity stream aborted",
				zap.String("run_id", id),
				zap.Int("sent", i),
				zap.Error(err))
			return
		}
	}

	summary := res.Summarize()
	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(streamFrame{Type: "done", Total: total, Sent: total, Result: &summary}); err != nil {
		return
	}

	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
