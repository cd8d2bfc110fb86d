// Package feed polls the external ingester that serves the encoded
// orderbook snapshot (§6.1/§6.4) and hands decoded snapshots to callers.
//
// Every request is rate-limited via a token bucket and retried on 5xx
// errors, mirroring the teacher's exchange.Client — except there is
// exactly one endpoint category here (GET snapshot), so there is one
// bucket, not three.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"pricegraph/internal/config"
	"pricegraph/pkg/pricegraph"
)

// Snapshot is one poll's decoded result: the orders/balances pricegraph.New
// needs plus the batch id the ingester reported them valid at.
type Snapshot struct {
	Decoded *pricegraph.Decoded
	BatchID uint32
	Raw     []byte // retained for internal/store's cache write
}

// Client polls the ingester's encoded-orderbook endpoint.
type Client struct {
	http   *resty.Client
	rl     *TokenBucket
	logger *slog.Logger
}

// NewClient builds a feed Client from config.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.Feed.URL).
		SetTimeout(cfg.Feed.RequestTimeout).
		SetRetryCount(cfg.Feed.MaxRetries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	rate := cfg.Feed.RateLimitPerSec
	burst := float64(cfg.Feed.RateLimitBurst)
	if rate <= 0 {
		rate = 2
	}
	if burst <= 0 {
		burst = 4
	}

	return &Client{
		http:   httpClient,
		rl:     NewTokenBucket(burst, rate),
		logger: logger,
	}
}

// snapshotResponse is the ingester's wire envelope: the raw §4.1-encoded
// order bytes plus the batch id they are valid at.
type snapshotResponse struct {
	BatchID uint32 `json:"batch_id"`
	Data    []byte `json:"data"` // base64-decoded automatically by encoding/json
}

// Poll fetches and decodes the current orderbook snapshot.
func (c *Client) Poll(ctx context.Context) (*Snapshot, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}

	var result snapshotResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/snapshot")
	if err != nil {
		return nil, fmt.Errorf("poll snapshot: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("poll snapshot: status %d: %s", resp.StatusCode(), resp.String())
	}

	decoded, err := pricegraph.Decode(result.Data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	c.logger.Debug("polled orderbook snapshot",
		"batch_id", result.BatchID, "orders", len(decoded.Orders), "bytes", len(result.Data))

	return &Snapshot{Decoded: decoded, BatchID: result.BatchID, Raw: result.Data}, nil
}

// Run polls on cfg's interval until ctx is cancelled, invoking onSnapshot
// with each successfully decoded snapshot. Poll errors are logged and
// skipped rather than stopping the loop — a transient ingester outage
// should not bring estimation to a halt; the last good snapshot (or the
// on-disk cache, via internal/store) remains in effect.
func (c *Client) Run(ctx context.Context, interval time.Duration, onSnapshot func(*Snapshot)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snap, err := c.Poll(ctx)
		if err != nil {
			c.logger.Warn("feed poll failed", "error", err)
		} else {
			onSnapshot(snap)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
