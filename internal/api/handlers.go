package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"pricegraph/internal/config"
	"pricegraph/internal/discovery"
	"pricegraph/internal/governor"
	"pricegraph/pkg/pricegraph"
)

// Handlers holds everything the HTTP surface needs beyond the request
// itself: the snapshot provider, the per-query deadline/backpressure
// governor, the broadcast hub, and the CORS allow-list.
type Handlers struct {
	provider SnapshotProvider
	governor *governor.LoadTracker
	deadline time.Duration
	cfg      config.APIConfig
	hub      *Hub
	logger   *slog.Logger
}

// NewHandlers builds a Handlers instance.
func NewHandlers(provider SnapshotProvider, gov *governor.LoadTracker, deadline time.Duration, cfg config.APIConfig, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		provider: provider,
		governor: gov,
		deadline: deadline,
		cfg:      cfg,
		hub:      hub,
		logger:   logger.With("component", "api-handlers"),
	}
}

// HandleHealth is a liveness probe; it never touches the snapshot.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleMarkets lists the (base, quote) pairs with active orders, ranked
// by the discovery package's liquidity score.
func (h *Handlers) HandleMarkets(w http.ResponseWriter, r *http.Request) {
	markets := discovery.Discover(h.provider.Orders(), h.provider.BatchID())
	resp := make([]MarketResponse, len(markets))
	for i, m := range markets {
		resp[i] = toMarketResponse(m)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleExchangeRate serves GET /api/v1/exchange_rate?sell=&buy=.
func (h *Handlers) HandleExchangeRate(w http.ResponseWriter, r *http.Request) {
	sell, buy, ok := h.parsePair(w, r)
	if !ok {
		return
	}
	h.withEstimator(w, r, func(ctx context.Context, est *pricegraph.Estimator) {
		price, found, err := est.EstimateExchangeRate(ctx, sell, buy)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ExchangeRateResponse{Found: found, Price: price})
	})
}

// HandleLimitPrice serves GET /api/v1/estimate_limit_price?sell=&buy=&sell_amount=.
func (h *Handlers) HandleLimitPrice(w http.ResponseWriter, r *http.Request) {
	sell, buy, ok := h.parsePair(w, r)
	if !ok {
		return
	}
	sellAmount, err := parseAmount(r.URL.Query().Get("sell_amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sell_amount", "")
		return
	}
	h.withEstimator(w, r, func(ctx context.Context, est *pricegraph.Estimator) {
		buyAmt, filled, err := est.EstimateLimitPrice(ctx, sell, buy, sellAmount)
		if err != nil {
			writeErr(w, err)
			return
		}
		resp := LimitPriceResponse{Filled: filled}
		if filled {
			resp.BuyAmount = amountJSON(buyAmt)
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// HandleAmountsAtPrice serves GET /api/v1/estimate_amounts_at_price?sell=&buy=&price_in_quote=.
func (h *Handlers) HandleAmountsAtPrice(w http.ResponseWriter, r *http.Request) {
	sell, buy, ok := h.parsePair(w, r)
	if !ok {
		return
	}
	priceInQuote, err := strconv.ParseFloat(r.URL.Query().Get("price_in_quote"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid price_in_quote", "")
		return
	}
	h.withEstimator(w, r, func(ctx context.Context, est *pricegraph.Estimator) {
		buyAmt, sellAmt, err := est.EstimateAmountsAtPrice(ctx, sell, buy, priceInQuote)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, AmountsAtPriceResponse{BuyAmount: amountJSON(buyAmt), SellAmount: amountJSON(sellAmt)})
	})
}

// HandleOrderForSellAmount serves GET /api/v1/order_for_sell_amount?sell=&buy=&sell_amount=.
func (h *Handlers) HandleOrderForSellAmount(w http.ResponseWriter, r *http.Request) {
	sell, buy, ok := h.parsePair(w, r)
	if !ok {
		return
	}
	sellAmount, err := parseAmount(r.URL.Query().Get("sell_amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sell_amount", "")
		return
	}
	h.withEstimator(w, r, func(ctx context.Context, est *pricegraph.Estimator) {
		sellAmt, buyAmt, err := est.OrderForSellAmount(ctx, sell, buy, sellAmount)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, OrderForSellAmountResponse{SellAmount: amountJSON(sellAmt), BuyAmount: amountJSON(buyAmt)})
	})
}

// HandleOrderForLimitPrice serves GET /api/v1/order_for_limit_price?sell=&buy=&price_in_quote=.
func (h *Handlers) HandleOrderForLimitPrice(w http.ResponseWriter, r *http.Request) {
	sell, buy, ok := h.parsePair(w, r)
	if !ok {
		return
	}
	priceInQuote, err := strconv.ParseFloat(r.URL.Query().Get("price_in_quote"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid price_in_quote", "")
		return
	}
	h.withEstimator(w, r, func(ctx context.Context, est *pricegraph.Estimator) {
		sellAmt, buyAmt, err := est.OrderForLimitPrice(ctx, sell, buy, priceInQuote)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, AmountsAtPriceResponse{BuyAmount: amountJSON(buyAmt), SellAmount: amountJSON(sellAmt)})
	})
}

// HandleTransitiveOrderbook serves GET /api/v1/transitive_orderbook?base=&quote=.
func (h *Handlers) HandleTransitiveOrderbook(w http.ResponseWriter, r *http.Request) {
	base, quote, ok := h.parseTokenPair(w, r, "base", "quote")
	if !ok {
		return
	}
	h.withEstimator(w, r, func(ctx context.Context, est *pricegraph.Estimator) {
		ladder, err := est.TransitiveOrderbook(ctx, base, quote)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, LadderResponse{Bids: toLevelJSON(ladder.Bids), Asks: toLevelJSON(ladder.Asks)})
	})
}

// HandleWebSocket upgrades the connection and sends an initial snapshot
// event before leaving the client subscribed to the broadcast hub.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return isOriginAllowed(req.Header.Get("Origin"), h.cfg, req.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(h.hub, conn)

	evt := Event{
		Type:      "snapshot",
		Timestamp: time.Now(),
		Data:      SnapshotEvent{BatchID: h.provider.BatchID(), OrderCount: len(h.provider.Orders()), Hash: h.provider.SnapshotHash()},
	}
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal initial snapshot", "error", err)
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.Warn("failed to send initial snapshot to client")
	}
}

// parsePair reads the common sell/buy query params, writing a 400 response
// and returning ok=false on any parse failure.
func (h *Handlers) parsePair(w http.ResponseWriter, r *http.Request) (sell, buy pricegraph.Token, ok bool) {
	return h.parseTokenPair(w, r, "sell", "buy")
}

func (h *Handlers) parseTokenPair(w http.ResponseWriter, r *http.Request, aName, bName string) (a, b pricegraph.Token, ok bool) {
	av, err := strconv.ParseUint(r.URL.Query().Get(aName), 10, 16)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+aName, "")
		return 0, 0, false
	}
	bv, err := strconv.ParseUint(r.URL.Query().Get(bName), 10, 16)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+bName, "")
		return 0, 0, false
	}
	return pricegraph.Token(av), pricegraph.Token(bv), true
}

// withEstimator runs fn with a freshly-built estimator under the
// governor's deadline, recording the query's duration on the load tracker
// regardless of outcome, and writing a 503 if the book hasn't been loaded
// yet or a 500 if building the query graph panicked.
func (h *Handlers) withEstimator(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, est *pricegraph.Estimator)) {
	est, err := h.provider.Estimator()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot loaded yet", "")
		return
	}

	if hash := h.provider.SnapshotHash(); hash != "" {
		w.Header().Set("ETag", hash)
	}

	ctx, cancel := governor.Deadline(r.Context(), h.deadline)
	defer cancel()

	start := time.Now()
	fn(ctx, est)
	h.governor.Record(time.Since(start))
}

func writeErr(w http.ResponseWriter, err error) {
	var pgErr *pricegraph.Error
	if errors.As(err, &pgErr) {
		status := http.StatusInternalServerError
		if pgErr.Kind == pricegraph.KindCancelled {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, pgErr.Error(), pgErr.Kind.String())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error(), "")
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func isOriginAllowed(origin string, cfg config.APIConfig, reqHost string) bool {
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	normalized := normalizeOrigin(originURL.Scheme, originURL.Host)
	if normalized == "" {
		return false
	}

	if len(cfg.AllowedOrigins) > 0 {
		for _, allowed := range cfg.AllowedOrigins {
			u, err := url.Parse(allowed)
			if err != nil {
				continue
			}
			if normalized == normalizeOrigin(u.Scheme, u.Host) {
				return true
			}
		}
		return false
	}

	host := strings.ToLower(originURL.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	reqHostname := normalizeHost(reqHost)
	return reqHostname != "" && host == reqHostname
}

func normalizeOrigin(scheme, host string) string {
	if scheme == "" || host == "" {
		return ""
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host)
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostport)
}
