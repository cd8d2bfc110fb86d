// Command estimator-server runs the pricegraph HTTP/WebSocket estimator
// service: it polls an ingester for the encoded orderbook snapshot,
// rebuilds a pricegraph.Estimator over each new batch, and answers
// transitive exchange-rate, fillable-volume, and orderbook-ladder queries
// over HTTP.
//
// Architecture:
//
//	main.go                 — entry point: loads config, starts the engine, waits for SIGINT/SIGTERM
//	internal/engine         — orchestrator: feed poll -> store cache -> pricegraph rebuild -> api serve
//	internal/feed           — rate-limited REST polling of the snapshot ingester
//	internal/store          — on-disk cache of the last-known-good snapshot
//	internal/governor       — per-query deadlines and a rolling query-load/backpressure tracker
//	internal/discovery      — ranks (base, quote) pairs with active orders
//	internal/api            — HTTP handlers and WebSocket push hub
//	pkg/pricegraph          — the graph/fill-loop core this service is a thin shell around
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"pricegraph/internal/config"
	"pricegraph/internal/engine"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("POLYGRAPH_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	logger.Info("pricegraph estimator server started",
		"addr", cfg.API.Addr,
		"feed_url", cfg.Feed.URL,
		"poll_interval", cfg.Feed.PollInterval,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
