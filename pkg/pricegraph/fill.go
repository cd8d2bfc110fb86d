package pricegraph

import "math"

// maxFillableAtSource computes cap_P, the maximum amount of the path's
// source token that can be pushed through every edge on path without
// exceeding any edge's capacity (§4.6):
//
//	cap_P = min_i ( capacity_i * product_{j<i} p_eff_j )
//
// Capacities are integer atoms; the running product is accumulated in
// float64 alongside the path search's own weights, and converted back to
// an integer floor at each edge — consistent with §4.2's model of
// searching in f64 rate space while bookkeeping capacity in atom space.
func maxFillableAtSource(path *foundPath) *Amount {
	prefix := 1.0
	var best *Amount
	for _, e := range path.edges {
		capAtSource := floatToAmountFloor(amountToFloat(e.capacity) * prefix)
		if best == nil || capAtSource.Cmp(best) < 0 {
			best = capAtSource
		}
		prefix *= e.pEff
	}
	if best == nil {
		return new(Amount)
	}
	return best
}

// fillPath fully fills path up to min(cap_P, demand) atoms of its source
// token, applying the proportional fill to every edge along the way
// (§4.6's final loop: "apply_fill on edge i with sell-amount = fill *
// product_{j<i} (1/p_eff,j)"). It returns the amount actually filled at
// the source and the per-edge Fill records, or an error if an edge's
// capacity was violated (which would indicate an invariant violation,
// since maxFillableAtSource should already have bounded fill to be safe).
func (g *Graph) fillPath(path *foundPath, demand *Amount) (*Amount, []Fill, error) {
	capP := maxFillableAtSource(path)
	fillAmt := minAmount(capP, demand)
	if fillAmt.IsZero() {
		return fillAmt, nil, nil
	}

	fillFloat := amountToFloat(fillAmt)
	fills := make([]Fill, 0, len(path.edges))
	prefix := 1.0
	for _, e := range path.edges {
		sellFloat := fillFloat / prefix
		sellAmt := floatToAmountFloor(sellFloat)
		// Defensive clamp: floating-point rounding along a long path could
		// otherwise push a computed sell amount a hair past the edge's
		// true integer capacity; the true bound was already enforced by
		// maxFillableAtSource, so clamping here changes nothing about
		// correctness, only about tolerating float round-off.
		if sellAmt.Cmp(e.capacity) > 0 {
			sellAmt = e.capacity.Clone()
		}

		if err := g.ApplyFill(e.id, sellAmt); err != nil {
			return nil, nil, err
		}

		buyAmt := floatToAmountFloor(amountToFloat(sellAmt) * e.pEff)
		fills = append(fills, Fill{
			OrderID:   e.orderID(),
			SellToken: e.sellToken,
			BuyToken:  e.buyToken,
			SellAmt:   sellAmt,
			BuyAmt:    buyAmt,
		})
		prefix *= e.pEff
	}
	return fillAmt, fills, nil
}

// fillLoopResult is the accumulated outcome of repeatedly filling the
// cheapest path, shared by every C7 query (§4.6).
type fillLoopResult struct {
	levels      []Level
	totalSell   *Amount
	totalBuy    *Amount
	allFills    []Fill
	exhausted   bool // demand fully met (only meaningful when demand != nil)
	pathsFilled int
}

// cancelFunc is polled once per fill-loop iteration, the cooperative
// cancellation protocol §5 recommends.
type cancelFunc func() bool

// maxIterationsGuard bounds the fill loop even if a caller's cancelFunc is
// nil and demand is unbounded (transitive_orderbook), so a malformed graph
// can never spin forever: each successful fill strictly shrinks some
// edge's capacity below dust or shrinks the remaining demand, so the loop
// terminates well before this in any well-formed graph. This is a
// backstop, not a normal exit path.
const maxIterationsGuard = 1_000_000

// runFillLoop is the shared C6 driver: repeatedly find the cheapest
// source->sink path, stop if none remains or the path's price falls below
// minPrice (nil means unbounded), fill it up to the remaining demand (nil
// means unbounded — fill to exhaustion), and record one Level per path.
// Paths are discovered best-price-first (highest source->sink rate), so
// price only decreases across iterations, making "drops below minPrice" the
// natural stopping rule for a caller-supplied price floor (§4.6/§4.5).
// Returns ErrCancelled if cancel reports true before an iteration starts.
func runFillLoop(g *Graph, source, sink Token, maxHops int, demand *Amount, minPrice *float64, cancel cancelFunc) (*fillLoopResult, error) {
	res := &fillLoopResult{
		totalSell: new(Amount),
		totalBuy:  new(Amount),
	}
	if source == sink {
		res.exhausted = demand == nil || demand.IsZero()
		return res, nil
	}

	for iter := 0; iter < maxIterationsGuard; iter++ {
		if cancel != nil && cancel() {
			return nil, newErr(KindCancelled, -1, -1, "query cancelled")
		}
		if demand != nil && res.totalSell.Cmp(demand) >= 0 {
			res.exhausted = true
			break
		}

		path, ok := g.findPath(source, sink, maxHops)
		if !ok {
			break
		}

		price := weightToPrice(path.weight)
		if minPrice != nil && price < *minPrice {
			break
		}

		remaining := demand
		if remaining != nil {
			remaining = new(Amount).Sub(demand, res.totalSell)
		} else {
			remaining = maxAmountValue()
		}

		filled, fills, err := g.fillPath(path, remaining)
		if err != nil {
			return nil, err
		}
		if filled.IsZero() {
			break
		}

		buy := floatToAmountFloor(amountToFloat(filled) * price)
		res.levels = append(res.levels, Level{Price: price, Volume: amountToFloat(filled)})
		res.allFills = append(res.allFills, fills...)
		res.totalSell = new(Amount).Add(res.totalSell, filled)
		res.totalBuy = new(Amount).Add(res.totalBuy, buy)
		res.pathsFilled++
	}

	if demand != nil && res.totalSell.Cmp(demand) >= 0 {
		res.exhausted = true
	}
	return res, nil
}

// maxAmountValue returns the largest representable Amount, used as an
// effectively-unbounded demand cap for queries with no explicit limit.
func maxAmountValue() *Amount {
	return new(Amount).SetAllOne()
}

// amountToFloat converts an Amount to float64 via big.Float, rounding to
// nearest — used wherever the numeric model crosses from atom space into
// rate/volume space (§4.2, §6.2: "loss of precision beyond 2^53 is
// accepted and documented").
func amountToFloat(a *Amount) float64 {
	return ratioToFloatBig(a.ToBig(), bigOne)
}

// floatToAmountFloor converts a non-negative float64 to an Amount, flooring
// (truncating towards zero) and saturating at the Amount maximum for
// infinities or out-of-range values.
func floatToAmountFloor(f float64) *Amount {
	if f <= 0 || math.IsNaN(f) {
		return new(Amount)
	}
	if math.IsInf(f, 1) {
		return maxAmountValue()
	}
	bf := bigFloatFromFloat64(f)
	bi, _ := bf.Int(nil)
	return AmountFromBig(bi)
}
