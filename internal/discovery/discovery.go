// Package discovery lists the (base, quote) token pairs with at least one
// active order and ranks them by a naive liquidity score, a convenience
// endpoint complementing the per-pair pricegraph queries (§6's per-market
// surface has no "what markets exist" entry point of its own).
//
// Ranking is grounded on the teacher's market.Scanner opportunity-ranking
// loop: filter to a candidate subset, score each, sort descending. There is
// no external API to poll here — the candidate set is simply every active
// order in the current snapshot — so this package scores rather than
// fetches.
package discovery

import (
	"math"
	"math/big"
	"sort"

	"pricegraph/pkg/pricegraph"
)

// pairKey is an unordered token pair, canonicalized so (a, b) and (b, a)
// collapse to the same market.
type pairKey struct {
	lo, hi pricegraph.Token
}

func keyOf(a, b pricegraph.Token) pairKey {
	if a <= b {
		return pairKey{lo: a, hi: b}
	}
	return pairKey{lo: b, hi: a}
}

// Market summarizes one (base, quote) pair's activity in the current
// snapshot.
type Market struct {
	Base       pricegraph.Token
	Quote      pricegraph.Token
	OrderCount int
	Liquidity  float64 // naive: sum of RemainingSell across both directions, atoms as float64
	Score      float64 // log-dampened liquidity * sqrt(order count)
}

// Discover filters orders to those active at batchID, groups them by
// unordered token pair, and returns the resulting markets sorted by
// descending score.
func Discover(orders []*pricegraph.Order, batchID uint32) []Market {
	byPair := make(map[pairKey]*Market)

	for _, o := range orders {
		if !o.IsActive(batchID) {
			continue
		}
		k := keyOf(o.SellToken, o.BuyToken)
		m, ok := byPair[k]
		if !ok {
			m = &Market{Base: k.lo, Quote: k.hi}
			byPair[k] = m
		}
		m.OrderCount++
		m.Liquidity += amountToFloat(o.RemainingSell)
	}

	out := make([]Market, 0, len(byPair))
	for _, m := range byPair {
		m.Score = math.Log1p(m.Liquidity) * math.Sqrt(float64(m.OrderCount))
		out = append(out, *m)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Base != out[j].Base {
			return out[i].Base < out[j].Base
		}
		return out[i].Quote < out[j].Quote
	})
	return out
}

// amountToFloat converts an Amount to a float64 via big.Float, tolerating
// values well beyond float64's exact range the same way the core library's
// own rate-space conversions do.
func amountToFloat(a *pricegraph.Amount) float64 {
	f := new(big.Float).SetInt(a.ToBig())
	v, _ := f.Float64()
	return v
}
