// Package api exposes backtest runs over HTTP: trigger and fetch runs,
// compare parameter overlays, and stream equity curves over WebSocket.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fx-backtest-lab/internal/backtest"
)

// Server is the HTTP front end over a backtest runner.
type Server struct {
	engine *gin.Engine
	server *http.Server
	logger *zap.Logger
}

// NewServer wires routes and middleware over a runner and result cache.
func NewServer(addr string, runner *backtest.Runner, cache *RunCache, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(loggerMiddleware(logger))

	s := &Server{
		engine: engine,
		logger: logger,
		server: &http.Server{
			Addr:    addr,
			Handler: engine,
		},
	}

	handler := NewHandler(runner, cache, logger)
	s.setupRoutes(handler)
	return s
}

func (s *Server) setupRoutes(h *Handler) {
	bt := s.engine.Group("/backtest")
	{
		bt.POST("/run", h.RunBacktest)
		bt.POST("/compare", h.CompareBacktests)
		bt.GET("/:id", h.GetRun)
		bt.GET("/:id/stream", h.StreamEquity)
		bt.DELETE("/:id", h.DeleteRun)
	}

	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Start blocks serving HTTP until shutdown.
func (s *Server) Start() error {
	s.logger.Info("api listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests with a 5s deadline.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Engine exposes the router, for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
