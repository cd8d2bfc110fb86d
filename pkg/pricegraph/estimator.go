package pricegraph

import (
	"context"
	"sort"
)

// Estimator is the public query façade over a single Orderbook snapshot
// (§4.5/C7). It is the only type most callers need: it owns the graph
// construction and fill-loop plumbing, and recovers from any internal
// panic at its boundary, turning it into an InternalError per §7 rather
// than letting it escape to the caller.
type Estimator struct {
	ob      *Orderbook
	maxHops int
	dropped []DroppedEdge
}

// EstimatorOption configures an Estimator.
type EstimatorOption func(*estimatorConfig)

type estimatorConfig struct {
	maxHops int
}

// WithMaxHops overrides the default hop bound (the number of distinct
// tokens in the book minus one) used by every query this Estimator runs.
func WithMaxHops(hops int) EstimatorOption {
	return func(c *estimatorConfig) { c.maxHops = hops }
}

// NewEstimator builds an Estimator over ob, which must already be filtered
// to a batch id via New (§4.3). It does not mutate ob: every query clones
// the Orderbook internally before running the fill loop, per §5's "queries
// mutate a private clone, never the canonical instance".
func NewEstimator(ob *Orderbook, opts ...EstimatorOption) (est *Estimator, err error) {
	defer func() {
		if r := recover(); r != nil {
			est = nil
			err = internalErrorFromPanic(r)
		}
	}()

	cfg := &estimatorConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	// Built once up front purely to surface construction-time DroppedEdge
	// diagnostics; discarded otherwise since every query rebuilds its own
	// graph over a fresh clone.
	_, dropped := NewGraph(ob)
	return &Estimator{
		ob:      ob,
		maxHops: cfg.maxHops,
		dropped: dropped,
	}, nil
}

// DroppedEdges reports the orders NewEstimator could not represent as
// graph edges (overflowed or non-positive effective price), for the
// service layer to log once per rebuild (§4.9).
func (est *Estimator) DroppedEdges() []DroppedEdge {
	return est.dropped
}

// freshGraph clones the Orderbook and rebuilds a private Graph over it, the
// mutation boundary every query operates behind (§5).
func (est *Estimator) freshGraph() *Graph {
	clone := est.ob.Clone()
	g, _ := NewGraph(clone)
	return g
}

func (est *Estimator) hopLimit() int {
	return est.maxHops
}

// internalErrorFromPanic wraps an arbitrary recovered panic value as an
// InternalError, the single place in the package allowed to convert a
// panic into a normal error return (§7: "the estimator façade recovers
// once at its boundary").
func internalErrorFromPanic(r interface{}) error {
	if e, ok := r.(error); ok {
		return wrapErr(KindInternalError, e, "internal error")
	}
	return newErr(KindInternalError, -1, -1, "internal error")
}

// cancelFromContext adapts a context.Context into the fill loop's
// cancelFunc, polled once per path filled (§5's cooperative cancellation).
func cancelFromContext(ctx context.Context) cancelFunc {
	if ctx == nil {
		return nil
	}
	return func() bool {
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}
}

// EstimateExchangeRate returns the price of the single cheapest path from
// sell to buy, without filling anything (§4.5 item 3). The returned price
// is in buy-atoms-per-sell-atom units, after fees.
func (est *Estimator) EstimateExchangeRate(ctx context.Context, sell, buy Token) (price float64, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			price, ok, err = 0, false, internalErrorFromPanic(r)
		}
	}()

	g := est.freshGraph()
	path, found := g.findPath(sell, buy, est.hopLimit())
	if !found {
		return 0, false, nil
	}
	return weightToPrice(path.weight), true, nil
}

// priceInQuoteToFloor converts an external "price in quote" threshold (the
// conventional quote-cost-per-base-unit a caller thinks in) into the
// internal minPrice floor runFillLoop expects: the forward sell->buy rate,
// which for a quote->base fill is base-per-quote, the reciprocal of
// price-in-quote (§4.5 items 3/6). priceInQuote <= 0 is treated as no
// floor at all (an unbounded price is never satisfiable as a real limit).
func priceInQuoteToFloor(priceInQuote float64) *float64 {
	if priceInQuote <= 0 {
		return nil
	}
	floor := 1 / priceInQuote
	return &floor
}

// EstimateAmountsAtPrice fills sell->buy paths, best price first, stopping
// once the remaining path's cost exceeds priceInQuote (quote atoms per
// base atom), and returns the total buy/sell volume transacted — always,
// whether or not the book had enough depth to exhaust further (§4.5 item
// 3 / API's estimate_amounts_at_price).
func (est *Estimator) EstimateAmountsAtPrice(ctx context.Context, sell, buy Token, priceInQuote float64) (buyAmt, sellAmt *Amount, err error) {
	defer func() {
		if r := recover(); r != nil {
			buyAmt, sellAmt, err = nil, nil, internalErrorFromPanic(r)
		}
	}()

	g := est.freshGraph()
	res, err := runFillLoop(g, sell, buy, est.hopLimit(), nil, priceInQuoteToFloor(priceInQuote), cancelFromContext(ctx))
	if err != nil {
		return nil, nil, err
	}
	return res.totalBuy, res.totalSell, nil
}

// EstimateLimitPrice sells exactly sellAmount atoms of sell into buy along
// best-price-first paths and returns the resulting buy amount, or ok=false
// if sellAmount could not be fully filled anywhere in the book (§4.5 item
// 2 / API's estimate_limit_price, despite the name: it returns an amount,
// not a price).
func (est *Estimator) EstimateLimitPrice(ctx context.Context, sell, buy Token, sellAmount *Amount) (buyAmt *Amount, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			buyAmt, ok, err = nil, false, internalErrorFromPanic(r)
		}
	}()

	g := est.freshGraph()
	res, err := runFillLoop(g, sell, buy, est.hopLimit(), sellAmount, nil, cancelFromContext(ctx))
	if err != nil {
		return nil, false, err
	}
	if !res.exhausted {
		return nil, false, nil
	}
	return res.totalBuy, true, nil
}

// OrderForSellAmount runs the same computation as EstimateLimitPrice but
// always returns the aggregate (Σsell, Σbuy) pair actually transacted, even
// when sellAmount could not be fully satisfied — no None-wrapping (§4.5
// item 5).
func (est *Estimator) OrderForSellAmount(ctx context.Context, sell, buy Token, sellAmount *Amount) (sellAmt, buyAmt *Amount, err error) {
	defer func() {
		if r := recover(); r != nil {
			sellAmt, buyAmt, err = nil, nil, internalErrorFromPanic(r)
		}
	}()

	g := est.freshGraph()
	res, err := runFillLoop(g, sell, buy, est.hopLimit(), sellAmount, nil, cancelFromContext(ctx))
	if err != nil {
		return nil, nil, err
	}
	return res.totalSell, res.totalBuy, nil
}

// OrderForLimitPrice runs the same computation as EstimateAmountsAtPrice but
// is named to match the API's order_for_limit_price entry point (§4.5 item
// 6): fill sell->buy paths no worse than priceInQuote until the book is
// exhausted, returning the aggregate pair transacted.
func (est *Estimator) OrderForLimitPrice(ctx context.Context, sell, buy Token, priceInQuote float64) (sellAmt, buyAmt *Amount, err error) {
	buyAmt, sellAmt, err = est.EstimateAmountsAtPrice(ctx, sell, buy, priceInQuote)
	return sellAmt, buyAmt, err
}

// TransitiveOrderbook returns the aggregated bid/ask ladder between base
// and quote (§4.5 item 1): asks are base->quote fills (selling base for
// quote), bids are quote->base fills (selling quote for base), each
// exhausted to the edge of the restricted market graph. Both ladders are
// reported in ascending-price order, non-decreasing per level (§8).
func (est *Estimator) TransitiveOrderbook(ctx context.Context, base, quote Token) (ladder Ladder, err error) {
	defer func() {
		if r := recover(); r != nil {
			ladder, err = Ladder{}, internalErrorFromPanic(r)
		}
	}()

	cancel := cancelFromContext(ctx)

	// Each side of the ladder fills independently against its own cloned
	// Orderbook: asks and bids must not observe each other's fills, since
	// a real trader choosing one side does not consume the other's
	// liquidity (§4.5 item 1).
	askMarket := est.freshGraph().RestrictToMarket(base, quote, est.hopLimit())
	askMarket.Reduce()
	asks, err := runFillLoop(askMarket, base, quote, est.hopLimit(), nil, nil, cancel)
	if err != nil {
		return Ladder{}, err
	}

	bidMarket := est.freshGraph().RestrictToMarket(base, quote, est.hopLimit())
	bidMarket.Reduce()
	rawBids, err := runFillLoop(bidMarket, quote, base, est.hopLimit(), nil, nil, cancel)
	if err != nil {
		return Ladder{}, err
	}

	// rawBids.levels are in the quote->base path's own convention: price is
	// base-per-quote and volume is the quote atoms sold. Bids must be
	// reported in the same units as asks (price in quote-per-base, volume
	// in base atoms), so both are converted here (§4.5 item 1: "computed
	// symmetrically as asks on the reversed market, then price-inverted").
	bidLevels := make([]Level, len(rawBids.levels))
	for i, l := range rawBids.levels {
		bidLevels[i] = Level{Price: 1 / l.Price, Volume: l.Volume * l.Price}
	}

	sort.Slice(asks.levels, func(i, j int) bool { return asks.levels[i].Price < asks.levels[j].Price })
	sort.Slice(bidLevels, func(i, j int) bool { return bidLevels[i].Price > bidLevels[j].Price })

	return Ladder{Bids: bidLevels, Asks: asks.levels}, nil
}
