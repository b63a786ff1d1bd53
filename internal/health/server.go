// Package health serves the liveness and status endpoints polled by uptime
// monitors.
package health

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StatusProvider interface {
	Ready() bool
	GuildCount() int
	Latency() time.Duration
	BotUser() string
}

type Server struct {
	engine   *gin.Engine
	http     *http.Server
	provider StatusProvider
	service  string
	logger   *zap.Logger
	started  time.Time
	now      func() time.Time
}

func NewServer(addr, service string, provider StatusProvider, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:   engine,
		provider: provider,
		service:  service,
		logger:   logger,
		now:      time.Now,
	}
	s.started = s.now()

	engine.GET("/", s.healthHandler)
	engine.GET("/health", s.healthHandler)
	engine.GET("/status", s.statusHandler)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks until the listener fails or Shutdown is called. A clean
// shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("health server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	body := gin.H{
		"status":    "online",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"service":   s.service,
	}
	if s.provider != nil {
		ready := s.provider.Ready()
		body["bot_ready"] = ready
		body["guilds_count"] = 0
		body["latency"] = nil
		if ready {
			body["guilds_count"] = s.provider.GuildCount()
			body["latency"] = millis(s.provider.Latency())
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) statusHandler(c *gin.Context) {
	if s.provider == nil || !s.provider.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "bot_not_ready",
			"message": "Discord bot is not ready yet",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "operational",
		"bot_user":   s.provider.BotUser(),
		"guilds":     s.provider.GuildCount(),
		"latency_ms": millis(s.provider.Latency()),
		"uptime":     s.now().Sub(s.started).Truncate(time.Second).String(),
		"ready":      true,
	})
}

// millis rounds to two decimals.
func millis(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Millisecond)*100) / 100
}
