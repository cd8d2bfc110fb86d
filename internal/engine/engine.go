// Package engine is the orchestrator of the estimator server.
//
// It wires together the subsystems that give the pricegraph core a live
// snapshot to query: feed polls the ingester, store caches the last-known
// good snapshot, and the engine rebuilds an Estimator each time a new
// batch arrives. The HTTP surface (internal/api) reads the current
// Estimator through the SnapshotProvider interface this package
// implements; it never reaches into graph internals.
//
// Lifecycle: New() -> Start() -> [runs until SIGINT] -> Stop()
package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"pricegraph/internal/api"
	"pricegraph/internal/config"
	"pricegraph/internal/feed"
	"pricegraph/internal/governor"
	"pricegraph/internal/store"
	"pricegraph/pkg/pricegraph"
)

// Engine owns the feed poll loop and the current Estimator snapshot.
type Engine struct {
	cfg    config.Config
	client *feed.Client
	cache  *store.Cache
	gov    *governor.LoadTracker
	logger *slog.Logger

	apiServer *api.Server

	mu      sync.RWMutex
	est     *pricegraph.Estimator
	orders  []*pricegraph.Order
	batchID uint32
	hash    common.Hash
	ready   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires the feed client, file cache, and load tracker. If a cached
// snapshot exists on disk it is loaded synchronously so the engine can
// serve queries immediately, before the first live poll completes.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	cache, err := store.Open(cfg.Store.CacheFile, cfg.Store.GzipWrite)
	if err != nil {
		return nil, err
	}

	client := feed.NewClient(&cfg, logger)
	gov := governor.NewLoadTracker(cfg.Governor.LoadWindow, cfg.Governor.QueryTimeout, cfg.Governor.BackpressureRatio)

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:    cfg,
		client: client,
		cache:  cache,
		gov:    gov,
		logger: logger.With("component", "engine"),
		ctx:    ctx,
		cancel: cancel,
	}

	if batchID, raw, err := cache.Load(); err != nil {
		logger.Warn("failed to load cached snapshot", "error", err)
	} else if raw != nil {
		decoded, err := pricegraph.Decode(raw)
		if err != nil {
			logger.Warn("cached snapshot failed to decode, ignoring", "error", err)
		} else if err := e.rebuild(decoded, batchID, store.Fingerprint(raw)); err != nil {
			logger.Warn("cached snapshot failed to rebuild", "error", err)
		} else {
			logger.Info("loaded cached snapshot", "batch_id", batchID, "orders", len(decoded.Orders))
		}
	}

	return e, nil
}

// Start launches the API server and the feed poll loop.
func (e *Engine) Start() error {
	e.apiServer = api.NewServer(e.cfg.API, e, e.gov, e.cfg.Governor.QueryTimeout, e.logger)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.apiServer.Start(); err != nil {
			e.logger.Error("api server failed", "error", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.client.Run(e.ctx, e.cfg.Feed.PollInterval, e.onSnapshot)
	}()

	return nil
}

// Stop cancels the poll loop and shuts down the API server.
func (e *Engine) Stop() {
	e.logger.Info("shutting down")

	e.cancel()

	if e.apiServer != nil {
		if err := e.apiServer.Stop(); err != nil {
			e.logger.Error("failed to stop api server", "error", err)
		}
	}

	e.wg.Wait()
	e.logger.Info("shutdown complete")
}

// onSnapshot is the feed's callback for each successfully polled batch: it
// rebuilds the Estimator, persists the raw snapshot to disk, and notifies
// connected WebSocket clients.
func (e *Engine) onSnapshot(snap *feed.Snapshot) {
	hash := store.Fingerprint(snap.Raw)
	if err := e.rebuild(snap.Decoded, snap.BatchID, hash); err != nil {
		e.logger.Error("failed to rebuild estimator", "batch_id", snap.BatchID, "error", err)
		return
	}

	if err := e.cache.Save(snap.BatchID, snap.Raw); err != nil {
		e.logger.Error("failed to persist snapshot", "batch_id", snap.BatchID, "error", err)
	}

	if e.apiServer != nil {
		e.apiServer.PublishSnapshot(snap.BatchID, len(snap.Decoded.Orders), hash.Hex())
	}
}

// rebuild constructs a fresh Orderbook and Estimator over decoded at
// batchID and swaps them in atomically. Construction-time DroppedEdges are
// logged once per rebuild per §4.9, not surfaced to query callers. hash
// fingerprints the raw bytes the snapshot was decoded from, letting
// SnapshotHash distinguish cache hits from genuinely new batches even when
// the ingester repeats a batch id.
func (e *Engine) rebuild(decoded *pricegraph.Decoded, batchID uint32, hash common.Hash) error {
	opts := []pricegraph.Option{
		pricegraph.WithDustThreshold(pricegraph.NewAmount(e.cfg.Graph.DustThreshold)),
	}
	ob := pricegraph.New(decoded, batchID, opts...)

	var estOpts []pricegraph.EstimatorOption
	if e.cfg.Graph.DefaultMaxHops > 0 {
		estOpts = append(estOpts, pricegraph.WithMaxHops(e.cfg.Graph.DefaultMaxHops))
	}

	est, err := pricegraph.NewEstimator(ob, estOpts...)
	if err != nil {
		return err
	}

	if dropped := est.DroppedEdges(); len(dropped) > 0 {
		e.logger.Warn("orders dropped while building graph", "batch_id", batchID, "count", len(dropped))
	}

	e.mu.Lock()
	e.est = est
	e.orders = decoded.Orders
	e.batchID = batchID
	e.hash = hash
	e.ready = true
	e.mu.Unlock()

	return nil
}

// Estimator implements api.SnapshotProvider.
func (e *Engine) Estimator() (*pricegraph.Estimator, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready {
		return nil, errNotReady
	}
	return e.est, nil
}

// Orders implements api.SnapshotProvider.
func (e *Engine) Orders() []*pricegraph.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orders
}

// BatchID implements api.SnapshotProvider.
func (e *Engine) BatchID() uint32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.batchID
}

// SnapshotHash implements api.SnapshotProvider.
func (e *Engine) SnapshotHash() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hash.Hex()
}
