package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pricegraph/internal/config"
	"pricegraph/internal/governor"
)

// Server is the HTTP/WebSocket surface over a SnapshotProvider (§6.3).
type Server struct {
	cfg      config.APIConfig
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer wires the estimator query routes, the discovery endpoint, and
// the WebSocket push hub behind a single *http.Server.
func NewServer(cfg config.APIConfig, provider SnapshotProvider, gov *governor.LoadTracker, queryTimeout time.Duration, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(provider, gov, queryTimeout, cfg, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/v1/markets", handlers.HandleMarkets)
	mux.HandleFunc("/api/v1/exchange_rate", handlers.HandleExchangeRate)
	mux.HandleFunc("/api/v1/estimate_limit_price", handlers.HandleLimitPrice)
	mux.HandleFunc("/api/v1/estimate_amounts_at_price", handlers.HandleAmountsAtPrice)
	mux.HandleFunc("/api/v1/order_for_sell_amount", handlers.HandleOrderForSellAmount)
	mux.HandleFunc("/api/v1/order_for_limit_price", handlers.HandleOrderForLimitPrice)
	mux.HandleFunc("/api/v1/transitive_orderbook", handlers.HandleTransitiveOrderbook)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start runs the hub loop and blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info("estimator server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.logger.Info("stopping estimator server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// PublishSnapshot broadcasts a "snapshot" event to every connected
// WebSocket client, called by the engine each time a new batch has been
// ingested and the estimator rebuilt over it.
func (s *Server) PublishSnapshot(batchID uint32, orderCount int, hash string) {
	s.hub.Broadcast(Event{
		Type:      "snapshot",
		Timestamp: time.Now(),
		Data:      SnapshotEvent{BatchID: batchID, OrderCount: orderCount, Hash: hash},
	})
}
