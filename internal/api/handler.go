package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"backtest-core/internal/eventbus"
	"backtest-core/internal/strategies"
	"backtest-core/internal/store"
)

// Server wires the HTTP surface around the simulation core, the
// durable store, and the run-progress event bus.
type Server struct {
	Router *gin.Engine
	Store  *store.Store
	Bus    *eventbus.Bus
	http   *http.Server

	Presets map[string]strategies.Preset

	JWTSecret      string
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewServer builds the gin engine and registers all routes.
func NewServer(st *store.Store, bus *eventbus.Bus, presets []strategies.Preset, jwtSecret, apiKey string, rps float64, burst int) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())

	presetByID := make(map[string]strategies.Preset, len(presets))
	for _, p := range presets {
		presetByID[p.ID] = p
	}

	s := &Server{
		Router:         r,
		Store:          st,
		Bus:            bus,
		Presets:        presetByID,
		JWTSecret:      jwtSecret,
		APIKey:         apiKey,
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.streamRunProgress)

	v1 := s.Router.Group("/api/v1")
	{
		v1.POST("/auth/token", s.issueToken)
		v1.GET("/strategies", s.listStrategyPresets)

		protected := v1.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		protected.Use(RateLimitMiddleware(s.RateLimitRPS, s.RateLimitBurst))
		{
			protected.POST("/runs", s.submitRun)
			protected.GET("/runs/:id", s.getRun)
			protected.GET("/runs/:id/orders", s.getRunOrders)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// Start runs the HTTP server on addr (blocking) until Shutdown is
// called, mirroring the signal-driven shutdown the binary uses.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// shutdownTimeout bounds how long in-flight requests get to drain.
const shutdownTimeout = 10 * time.Second

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
