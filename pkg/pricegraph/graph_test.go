package pricegraph

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func simpleBook(t *testing.T) *Orderbook {
	t.Helper()
	u := common.HexToAddress("0x01")
	v := common.HexToAddress("0x02")
	decoded := &Decoded{
		Orders: []*Order{
			{ID: 1, Owner: u, SellToken: 0, BuyToken: 1, Numerator: NewAmount(1), Denominator: NewAmount(1), RemainingSell: NewAmount(1000), ValidFrom: 0, ValidUntil: 10},
			{ID: 1, Owner: v, SellToken: 1, BuyToken: 2, Numerator: NewAmount(1), Denominator: NewAmount(1), RemainingSell: NewAmount(1000), ValidFrom: 0, ValidUntil: 10},
		},
		Balances: map[BalanceKey]*Amount{
			{User: u, Token: 0}: NewAmount(1000),
			{User: v, Token: 1}: NewAmount(1000),
		},
	}
	return New(decoded, 5)
}

func TestNewGraphBuildsAdjacency(t *testing.T) {
	t.Parallel()
	ob := simpleBook(t)
	g, dropped := NewGraph(ob)
	if len(dropped) != 0 {
		t.Fatalf("unexpected dropped edges: %+v", dropped)
	}
	edges := g.EdgesFrom(0)
	if len(edges) != 1 || edges[0].buyToken != 1 {
		t.Fatalf("EdgesFrom(0) = %+v, want single edge to token 1", edges)
	}
	if len(g.AllEdges()) != 2 {
		t.Fatalf("AllEdges() has %d edges, want 2", len(g.AllEdges()))
	}
}

func TestNewGraphDropsNonPositivePriceEdges(t *testing.T) {
	t.Parallel()
	u := common.HexToAddress("0x03")
	decoded := &Decoded{
		Orders: []*Order{
			{ID: 1, Owner: u, SellToken: 0, BuyToken: 1, Numerator: NewAmount(0), Denominator: NewAmount(1), RemainingSell: NewAmount(100), ValidFrom: 0, ValidUntil: 10},
		},
		Balances: map[BalanceKey]*Amount{
			{User: u, Token: 0}: NewAmount(100),
		},
	}
	ob := New(decoded, 5)
	g, dropped := NewGraph(ob)
	if len(dropped) != 1 {
		t.Fatalf("got %d dropped edges, want 1", len(dropped))
	}
	if len(g.AllEdges()) != 0 {
		t.Fatalf("expected no edges to survive a zero-numerator order")
	}
}

func TestApplyFillPrunesExhaustedEdge(t *testing.T) {
	t.Parallel()
	ob := simpleBook(t)
	g, _ := NewGraph(ob)

	edge := g.EdgesFrom(0)[0]
	if err := g.ApplyFill(edge.id, NewAmount(1000)); err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}
	if len(g.EdgesFrom(0)) != 0 {
		t.Fatalf("exhausted edge should have been pruned from adjacency")
	}
	if _, ok := g.index[edge.id]; ok {
		t.Fatalf("exhausted edge should have been removed from the index")
	}
}

func TestApplyFillRefreshesSharedCapacityAcrossEdges(t *testing.T) {
	t.Parallel()
	u := common.HexToAddress("0x04")
	decoded := &Decoded{
		Orders: []*Order{
			{ID: 1, Owner: u, SellToken: 0, BuyToken: 1, Numerator: NewAmount(1), Denominator: NewAmount(1), RemainingSell: NewAmount(50), ValidFrom: 0, ValidUntil: 10},
			{ID: 2, Owner: u, SellToken: 0, BuyToken: 2, Numerator: NewAmount(1), Denominator: NewAmount(1), RemainingSell: NewAmount(50), ValidFrom: 0, ValidUntil: 10},
		},
		Balances: map[BalanceKey]*Amount{
			{User: u, Token: 0}: NewAmount(60),
		},
	}
	ob := New(decoded, 5)
	g, _ := NewGraph(ob)

	first := g.EdgesFrom(0)[0]
	if err := g.ApplyFill(first.id, NewAmount(20)); err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}

	for _, e := range g.EdgesFrom(0) {
		if e.id != first.id && e.capacity.Cmp(NewAmount(40)) != 0 {
			t.Fatalf("sibling edge capacity = %v, want 40", e.capacity)
		}
	}
}
