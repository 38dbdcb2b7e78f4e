// Package server is the HTTP + WebSocket read surface over the chain clients
// and the indexed trade history.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/predictfi/predict-go/internal/server/handler"
	"github.com/predictfi/predict-go/internal/server/middleware"
	"github.com/predictfi/predict-go/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Prices    *handler.PriceHandler
	Positions *handler.PositionHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux
// and the logging and CORS middleware applied. wsHub may be nil when no price
// bus is configured.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market endpoints.
	mux.HandleFunc("GET /api/chains/{chain}/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/chains/{chain}/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/chains/{chain}/markets/{address}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/chains/{chain}/markets/{address}/quote", handlers.Markets.Quote)
	mux.HandleFunc("GET /api/chains/{chain}/markets/{address}/prices", handlers.Prices.GetPrices)

	// Per-user endpoints.
	mux.HandleFunc("GET /api/chains/{chain}/users/{user}/markets", handlers.Markets.UserMarkets)
	mux.HandleFunc("GET /api/chains/{chain}/users/{user}/positions", handlers.Positions.UserPositions)

	// Position and trade-history endpoints.
	mux.HandleFunc("GET /api/chains/{chain}/markets/{address}/positions/{user}", handlers.Positions.GetPosition)
	mux.HandleFunc("GET /api/chains/{chain}/markets/{address}/trades", handlers.Positions.MarketHistory)
	mux.HandleFunc("GET /api/chains/{chain}/traders/{user}/trades", handlers.Positions.TraderHistory)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
