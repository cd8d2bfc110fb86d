package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"pricegraph/internal/config"
	"pricegraph/internal/governor"
	"pricegraph/pkg/pricegraph"
)

func TestIsOriginAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origin  string
		cfg     config.APIConfig
		reqHost string
		want    bool
	}{
		{
			name:    "empty origin is allowed",
			origin:  "",
			cfg:     config.APIConfig{},
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "localhost origin allowed by default",
			origin:  "http://localhost:8080",
			cfg:     config.APIConfig{},
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "non-local origin denied by default",
			origin:  "https://evil.example",
			cfg:     config.APIConfig{},
			reqHost: "localhost:8080",
			want:    false,
		},
		{
			name:    "allowlist permits exact origin",
			origin:  "https://dash.example.com",
			cfg:     config.APIConfig{AllowedOrigins: []string{"https://dash.example.com"}},
			reqHost: "0.0.0.0:8080",
			want:    true,
		},
		{
			name:    "allowlist denies everything else",
			origin:  "https://evil.example",
			cfg:     config.APIConfig{AllowedOrigins: []string{"https://dash.example.com"}},
			reqHost: "0.0.0.0:8080",
			want:    false,
		},
		{
			name:    "same host allowed when no allowlist",
			origin:  "https://mm.internal:8080",
			cfg:     config.APIConfig{},
			reqHost: "mm.internal:8080",
			want:    true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isOriginAllowed(tt.origin, tt.cfg, tt.reqHost); got != tt.want {
				t.Fatalf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

// fakeProvider serves a single fixed Estimator built over two orders, token
// 0 -> token 1, so handler tests never need a live feed or store.
type fakeProvider struct {
	est     *pricegraph.Estimator
	orders  []*pricegraph.Order
	batchID uint32
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	orders := []*pricegraph.Order{
		{
			ID:            1,
			Owner:         common.HexToAddress("0x01"),
			SellToken:     0,
			BuyToken:      1,
			Numerator:     pricegraph.NewAmount(1),
			Denominator:   pricegraph.NewAmount(1),
			RemainingSell: pricegraph.NewAmount(1000),
			ValidFrom:     0,
			ValidUntil:    10,
		},
	}
	decoded := &pricegraph.Decoded{
		Orders: orders,
		Balances: map[pricegraph.BalanceKey]*pricegraph.Amount{
			{User: common.HexToAddress("0x01"), Token: 0}: pricegraph.NewAmount(1000),
		},
	}
	ob := pricegraph.New(decoded, 5)
	est, err := pricegraph.NewEstimator(ob)
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	return &fakeProvider{est: est, orders: orders, batchID: 5}
}

func (f *fakeProvider) Estimator() (*pricegraph.Estimator, error) { return f.est, nil }
func (f *fakeProvider) Orders() []*pricegraph.Order                { return f.orders }
func (f *fakeProvider) BatchID() uint32                            { return f.batchID }
func (f *fakeProvider) SnapshotHash() string                       { return "0xfake" }

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	provider := newFakeProvider(t)
	gov := governor.NewLoadTracker(time.Minute, 2*time.Second, 0.5)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandlers(provider, gov, time.Second, config.APIConfig{}, NewHub(logger), logger)
}

func TestHandleExchangeRateReturnsPrice(t *testing.T) {
	t.Parallel()
	h := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exchange_rate?sell=0&buy=1", nil)
	rr := httptest.NewRecorder()
	h.HandleExchangeRate(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}
	var resp ExchangeRateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Found {
		t.Fatal("expected a path to be found")
	}
	if resp.Price <= 0 || resp.Price >= 1 {
		t.Fatalf("Price = %v, want in (0, 1) after fee", resp.Price)
	}
}

func TestHandleExchangeRateRejectsMalformedToken(t *testing.T) {
	t.Parallel()
	h := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exchange_rate?sell=notanumber&buy=1", nil)
	rr := httptest.NewRecorder()
	h.HandleExchangeRate(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestHandleMarketsListsActivePair(t *testing.T) {
	t.Parallel()
	h := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/markets", nil)
	rr := httptest.NewRecorder()
	h.HandleMarkets(rr, req)

	var resp []MarketResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("got %d markets, want 1", len(resp))
	}
	if resp[0].Base != 0 || resp[0].Quote != 1 {
		t.Fatalf("Base/Quote = %d/%d, want 0/1", resp[0].Base, resp[0].Quote)
	}
}

func TestHandleTransitiveOrderbookHasNoBidsWithoutReverseOrders(t *testing.T) {
	t.Parallel()
	h := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transitive_orderbook?base=0&quote=1", nil)
	rr := httptest.NewRecorder()
	h.HandleTransitiveOrderbook(rr, req)

	var resp LadderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Asks) == 0 {
		t.Fatal("expected at least one ask level")
	}
	if len(resp.Bids) != 0 {
		t.Fatalf("got %d bid levels, want 0 (no reverse orders posted)", len(resp.Bids))
	}
}
