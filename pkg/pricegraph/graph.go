package pricegraph

import "sort"

// DroppedEdge records an order that could not be represented as a graph
// edge because its effective price overflowed or evaluated to a
// non-positive rate (§4.2: "An edge with p_eff <= 0 is dropped"). The
// service layer logs these once per rebuild per §4.9; the library itself
// never logs.
type DroppedEdge struct {
	OrderID OrderID
	Owner   User
	Reason  string
}

// edge is one directed graph edge: a reference back to its order plus the
// precomputed weight and effective price the path search and fill loop
// need. Capacity is mutable — fills touch it in place (§9: "do not
// pre-materialize per-edge capacities as immutable; they are joint state").
type edge struct {
	id        globalID
	sellToken Token
	buyToken  Token
	weight    float64 // -ln(p_eff); what path search minimizes
	pEff      float64
	capacity  *Amount
	order     *Order // the underlying order, for tie-break and reporting
}

// orderID returns the underlying order's wire-format id, used for the
// deterministic path tie-break in §4.6.
func (e *edge) orderID() OrderID { return e.order.ID }

// Graph is a token-indexed directed multigraph over an Orderbook's active
// orders (§4.4/C4). It does not own the orders — it references them by
// globalID back into the Orderbook it was built from — and it is mutated
// in lockstep with that Orderbook via ApplyFill.
type Graph struct {
	ob    *Orderbook
	adj   map[Token][]*edge // sell-token -> edges, sorted ascending by weight
	index map[globalID]*edge
	nodes map[Token]struct{}
}

// NewGraph builds the price graph over ob's current active orders. Node 0
// (the fee token) is always present even if no order touches it (§4.4).
func NewGraph(ob *Orderbook) (*Graph, []DroppedEdge) {
	g := &Graph{
		ob:    ob,
		adj:   make(map[Token][]*edge),
		index: make(map[globalID]*edge),
		nodes: map[Token]struct{}{FeeToken: {}},
	}

	var dropped []DroppedEdge
	for i, st := range ob.states {
		id := globalID(i)
		cap := ob.capacity(id)
		if cap.Cmp(ob.dustThreshold) < 0 {
			continue
		}
		pEff, ok := effectivePrice(st.order.Numerator, st.order.Denominator)
		if !ok {
			dropped = append(dropped, DroppedEdge{
				OrderID: st.order.ID,
				Owner:   st.order.Owner,
				Reason:  "effective price overflowed or was non-positive",
			})
			continue
		}

		e := &edge{
			id:        id,
			sellToken: st.order.SellToken,
			buyToken:  st.order.BuyToken,
			weight:    edgeWeight(pEff),
			pEff:      pEff,
			capacity:  cap,
			order:     st.order,
		}
		g.adj[e.sellToken] = append(g.adj[e.sellToken], e)
		g.index[id] = e
		g.nodes[e.sellToken] = struct{}{}
		g.nodes[e.buyToken] = struct{}{}
	}

	for _, edges := range g.adj {
		sortEdgesByWeight(edges)
	}
	return g, dropped
}

func sortEdgesByWeight(edges []*edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].weight != edges[j].weight {
			return edges[i].weight < edges[j].weight
		}
		return edges[i].id < edges[j].id
	})
}

// Nodes returns the set of tokens present in the graph (including the fee
// token), in ascending order for deterministic iteration.
func (g *Graph) Nodes() []Token {
	out := make([]Token, 0, len(g.nodes))
	for t := range g.nodes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EdgesFrom returns the edges leaving sellToken, sorted ascending by
// weight (cheapest p_eff first). The returned slice must not be mutated by
// callers.
func (g *Graph) EdgesFrom(sellToken Token) []*edge {
	return g.adj[sellToken]
}

// AllEdges returns every edge in the graph, for reduce/restrict passes that
// need a flat view (§4.8).
func (g *Graph) AllEdges() []*edge {
	out := make([]*edge, 0, len(g.index))
	for _, e := range g.index {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// ApplyFill deducts sellAmount from the edge's underlying order via the
// Orderbook, then refreshes the capacity of every edge sharing the same
// (owner, sell-token) balance (§4.4: "touched edges... re-sorts each
// affected adjacency list if weights changed" — weights never change on a
// fill, only capacities, so no re-sort is needed, only pruning of
// exhausted edges).
func (g *Graph) ApplyFill(id globalID, sellAmount *Amount) error {
	touched, err := g.ob.ApplyFill(id, sellAmount)
	if err != nil {
		return err
	}

	g.refreshCapacity(id)
	for _, t := range touched {
		g.refreshCapacity(t)
	}
	return nil
}

// refreshCapacity recomputes one edge's capacity from the Orderbook and
// prunes it from the graph if it has fallen to or below the dust
// threshold.
func (g *Graph) refreshCapacity(id globalID) {
	e, ok := g.index[id]
	if !ok {
		return
	}
	cap := g.ob.capacity(id)
	if cap.Cmp(g.ob.dustThreshold) < 0 {
		g.removeEdge(e)
		return
	}
	e.capacity = cap
}

func (g *Graph) removeEdge(e *edge) {
	delete(g.index, e.id)
	edges := g.adj[e.sellToken]
	for i, other := range edges {
		if other.id == e.id {
			g.adj[e.sellToken] = append(edges[:i], edges[i+1:]...)
			break
		}
	}
}
