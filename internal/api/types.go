package api

import (
	"time"

	"github.com/shopspring/decimal"

	"pricegraph/internal/discovery"
	"pricegraph/pkg/pricegraph"
)

// SnapshotProvider is everything the HTTP surface needs from whatever is
// holding the current orderbook snapshot. Implemented by internal/engine's
// Engine; kept as an interface here so handlers can be tested against a
// fake without spinning up a feed or a store.
type SnapshotProvider interface {
	// Estimator returns the façade built over the most recent snapshot, or
	// an error if no snapshot has been loaded yet.
	Estimator() (*pricegraph.Estimator, error)
	// Orders returns every order in the most recent snapshot, active or
	// not, for the discovery endpoint to filter and rank.
	Orders() []*pricegraph.Order
	// BatchID returns the batch id of the most recent snapshot.
	BatchID() uint32
	// SnapshotHash returns the hex-encoded Keccak256 fingerprint of the raw
	// bytes the current snapshot was decoded from, for cache/ETag staleness
	// checks.
	SnapshotHash() string
}

// amountJSON renders an *Amount as a decimal string, exact to the atom
// regardless of magnitude (§4.2's 128-bit-and-up amounts do not fit a JSON
// number without risking precision loss in common JSON decoders).
func amountJSON(a *pricegraph.Amount) string {
	if a == nil {
		return "0"
	}
	return decimal.NewFromBigInt(a.ToBig(), 0).String()
}

// parseAmount parses a decimal atom-amount string back into an Amount,
// saturating on overflow the same way the decode path does.
func parseAmount(s string) (*pricegraph.Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return pricegraph.AmountFromBig(d.BigInt()), nil
}

// ExchangeRateResponse answers estimate_exchange_rate.
type ExchangeRateResponse struct {
	Found bool    `json:"found"`
	Price float64 `json:"price,omitempty"`
}

// LimitPriceResponse answers estimate_limit_price.
type LimitPriceResponse struct {
	Filled    bool   `json:"filled"`
	BuyAmount string `json:"buy_amount,omitempty"`
}

// AmountsAtPriceResponse answers estimate_amounts_at_price and, reordered,
// order_for_limit_price.
type AmountsAtPriceResponse struct {
	BuyAmount  string `json:"buy_amount"`
	SellAmount string `json:"sell_amount"`
}

// OrderForSellAmountResponse answers order_for_sell_amount.
type OrderForSellAmountResponse struct {
	SellAmount string `json:"sell_amount"`
	BuyAmount  string `json:"buy_amount"`
}

// LevelJSON is one rung of a ladder, rendered with a bounded decimal
// representation instead of a raw float64 so clients don't have to guess
// how many digits are meaningful.
type LevelJSON struct {
	Price  string `json:"price"`
	Volume string `json:"volume"`
}

// LadderResponse answers transitive_orderbook.
type LadderResponse struct {
	Bids []LevelJSON `json:"bids"`
	Asks []LevelJSON `json:"asks"`
}

func toLevelJSON(levels []pricegraph.Level) []LevelJSON {
	out := make([]LevelJSON, len(levels))
	for i, l := range levels {
		out[i] = LevelJSON{
			Price:  decimal.NewFromFloat(l.Price).String(),
			Volume: decimal.NewFromFloat(l.Volume).String(),
		}
	}
	return out
}

// MarketResponse answers the GET /api/v1/markets discovery endpoint.
type MarketResponse struct {
	Base       uint16  `json:"base"`
	Quote      uint16  `json:"quote"`
	OrderCount int     `json:"order_count"`
	Liquidity  string  `json:"liquidity"`
	Score      float64 `json:"score"`
}

func toMarketResponse(m discovery.Market) MarketResponse {
	return MarketResponse{
		Base:       uint16(m.Base),
		Quote:      uint16(m.Quote),
		OrderCount: m.OrderCount,
		Liquidity:  decimal.NewFromFloat(m.Liquidity).String(),
		Score:      m.Score,
	}
}

// ErrorResponse is the JSON body written on any handler failure, one flat
// shape regardless of the underlying pricegraph.Kind.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Event is the envelope pushed to every connected WebSocket client.
type Event struct {
	Type      string      `json:"type"` // "snapshot" or "markets"
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// SnapshotEvent is the payload of a "snapshot" Event: a new batch has been
// ingested and the estimator has been rebuilt over it.
type SnapshotEvent struct {
	BatchID    uint32 `json:"batch_id"`
	OrderCount int    `json:"order_count"`
	Hash       string `json:"hash"`
}
