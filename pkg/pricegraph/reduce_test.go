package pricegraph

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// ringBook builds the two-node profitable ring from the worked example in
// §8/S1: order A sells token 0 for token 1 at 2:1 (p_eff = 1.998, clearly
// profitable to walk), order B sells token 1 back for token 0 at 1:1
// (p_eff = 0.999). The combined weight is negative, so the pair forms a
// negative cycle Reduce must pre-fill.
func ringBook(t *testing.T) *Orderbook {
	t.Helper()
	u := common.HexToAddress("0x30")
	v := common.HexToAddress("0x31")
	decoded := &Decoded{
		Orders: []*Order{
			{ID: 1, Owner: u, SellToken: 0, BuyToken: 1, Numerator: NewAmount(2), Denominator: NewAmount(1), RemainingSell: NewAmount(100), ValidFrom: 0, ValidUntil: 10},
			{ID: 2, Owner: v, SellToken: 1, BuyToken: 0, Numerator: NewAmount(1), Denominator: NewAmount(1), RemainingSell: NewAmount(100), ValidFrom: 0, ValidUntil: 10},
		},
		Balances: map[BalanceKey]*Amount{
			{User: u, Token: 0}: NewAmount(100),
			{User: v, Token: 1}: NewAmount(100),
		},
	}
	return New(decoded, 5)
}

func TestFindNegativeCycleDetectsProfitableRing(t *testing.T) {
	t.Parallel()
	g, _ := NewGraph(ringBook(t))

	cycle, ok := g.findNegativeCycle()
	if !ok {
		t.Fatal("expected a negative cycle to be found")
	}
	if cycle.weight >= 0 {
		t.Fatalf("cycle weight = %v, want negative", cycle.weight)
	}
	if len(cycle.edges) != 2 {
		t.Fatalf("cycle has %d edges, want 2", len(cycle.edges))
	}
}

func TestReduceFillsNegativeCycleToExhaustion(t *testing.T) {
	t.Parallel()
	g, _ := NewGraph(ringBook(t))

	fills := g.Reduce()
	if len(fills) == 0 {
		t.Fatal("expected Reduce to produce at least one fill")
	}

	var soldToken0 Amount
	for _, f := range fills {
		if f.SellToken == 0 {
			soldToken0.Add(&soldToken0, f.SellAmt)
		}
	}
	if soldToken0.Cmp(NewAmount(100)) != 0 {
		t.Fatalf("total token0 sold across the ring = %v, want 100 (order A's full capacity, §8 S1)", &soldToken0)
	}

	if len(g.EdgesFrom(0)) != 0 {
		t.Fatal("order A should be fully exhausted and pruned after Reduce")
	}
	if len(g.EdgesFrom(1)) == 0 {
		t.Fatal("order B should still have remaining capacity after Reduce (it was only partially filled)")
	}
}

func TestReduceIsIdempotent(t *testing.T) {
	t.Parallel()
	g, _ := NewGraph(ringBook(t))

	g.Reduce()
	if _, ok := g.findNegativeCycle(); ok {
		t.Fatal("expected no negative cycle to remain after a single Reduce pass")
	}

	again := g.Reduce()
	if len(again) != 0 {
		t.Fatalf("second Reduce call produced %d fills, want 0 (idempotent)", len(again))
	}
}

func TestReduceNoopOnAcyclicGraph(t *testing.T) {
	t.Parallel()
	g, _ := NewGraph(chainBook(t))

	fills := g.Reduce()
	if len(fills) != 0 {
		t.Fatalf("Reduce on an acyclic graph produced %d fills, want 0", len(fills))
	}
}

// marketChainBook builds a 0->1->2->3 chain so RestrictToMarket's hop-count
// bound can be exercised between non-adjacent tokens.
func marketChainBook(t *testing.T) *Orderbook {
	t.Helper()
	a := common.HexToAddress("0x40")
	b := common.HexToAddress("0x41")
	c := common.HexToAddress("0x42")
	decoded := &Decoded{
		Orders: []*Order{
			{ID: 1, Owner: a, SellToken: 0, BuyToken: 1, Numerator: NewAmount(1), Denominator: NewAmount(1), RemainingSell: NewAmount(100), ValidFrom: 0, ValidUntil: 10},
			{ID: 2, Owner: b, SellToken: 1, BuyToken: 2, Numerator: NewAmount(1), Denominator: NewAmount(1), RemainingSell: NewAmount(100), ValidFrom: 0, ValidUntil: 10},
			{ID: 3, Owner: c, SellToken: 2, BuyToken: 3, Numerator: NewAmount(1), Denominator: NewAmount(1), RemainingSell: NewAmount(100), ValidFrom: 0, ValidUntil: 10},
		},
		Balances: map[BalanceKey]*Amount{
			{User: a, Token: 0}: NewAmount(100),
			{User: b, Token: 1}: NewAmount(100),
			{User: c, Token: 2}: NewAmount(100),
		},
	}
	return New(decoded, 5)
}

func TestRestrictToMarketDropsEdgesBeyondHopCap(t *testing.T) {
	t.Parallel()
	g, _ := NewGraph(marketChainBook(t))

	restricted := g.RestrictToMarket(0, 3, 1)
	if len(restricted.AllEdges()) != 0 {
		t.Fatalf("maxHops=1 between tokens 3 hops apart should keep no edges, got %d", len(restricted.AllEdges()))
	}
}

func TestRestrictToMarketKeepsEdgesOnQualifyingPaths(t *testing.T) {
	t.Parallel()
	g, _ := NewGraph(marketChainBook(t))

	restricted := g.RestrictToMarket(0, 3, 3)
	if len(restricted.AllEdges()) != 3 {
		t.Fatalf("maxHops=3 should keep all 3 edges on the qualifying chain, got %d", len(restricted.AllEdges()))
	}
	if _, ok := restricted.findPath(0, 3, 0); !ok {
		t.Fatal("expected the restricted graph to still support a path from 0 to 3")
	}
}
