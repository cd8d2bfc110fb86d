package pricegraph

// reduceIterationsGuard bounds Reduce's fixed-point loop. Every iteration
// either fills a ring to exhaustion (removing at least one edge from the
// graph) or finds no negative cycle and stops, so the loop cannot run more
// than once per edge ever present.
const reduceIterationsGuard = 100_000

// Reduce repeatedly finds and pre-fills negative-weight cycles (rings of
// orders whose combined effective price is profitable to walk all the way
// around, §4.8) until none remain. A negative cycle is filled the same way
// fillPath fills a linear path — the "source" and "sink" are simply the
// same token — with fill bounded by the smallest capacity found anywhere
// around the ring. Reduce mutates g in place and returns the Fill records
// it produced, most-recent last.
//
// This is idempotent: once no negative cycle remains, calling Reduce again
// is a no-op (§8's "ring-free-after-reduce" and "idempotent reduce"
// properties).
func (g *Graph) Reduce() []Fill {
	var allFills []Fill
	for i := 0; i < reduceIterationsGuard; i++ {
		cycle, ok := g.findNegativeCycle()
		if !ok {
			break
		}
		filled, fills, err := g.fillPath(cycle, maxAmountValue())
		allFills = append(allFills, fills...)
		if err != nil || filled.IsZero() {
			// Capacity bookkeeping or a pruned edge made the detected cycle
			// unfillable after all; stop rather than loop on the same
			// detection forever.
			break
		}
	}
	return allFills
}

// findNegativeCycle looks for any cycle in g whose summed edge weight is
// negative (equivalently: whose product of p_eff exceeds 1, a profitable
// ring per §4.8). It uses the standard Bellman-Ford trick of seeding every
// node's distance at 0 (as if each had a free edge from a virtual source),
// then checking whether an (|V|+1)-th relaxation round still improves any
// node — if so, that node lies on or downstream of a negative cycle, and
// walking its parent pointers |V| steps is guaranteed to land inside the
// cycle itself.
func (g *Graph) findNegativeCycle() (*foundPath, bool) {
	nodes := g.Nodes()
	idx := make(map[Token]int, len(nodes))
	for i, t := range nodes {
		idx[t] = i
	}
	edges := g.sortedEdges()

	dist := make([]float64, len(nodes))
	parent := make([]*edge, len(nodes))

	var last *edge
	for round := 0; round < len(nodes); round++ {
		last = nil
		for _, e := range edges {
			u, v := idx[e.sellToken], idx[e.buyToken]
			cand := dist[u] + e.weight
			if cand < dist[v] {
				dist[v] = cand
				parent[v] = e
				last = e
			}
		}
		if last == nil {
			return nil, false
		}
	}

	// One more round: if anything still relaxes, its target is on a
	// negative cycle.
	var onCycle Token
	found := false
	for _, e := range edges {
		u, v := idx[e.sellToken], idx[e.buyToken]
		if dist[u]+e.weight < dist[v] {
			onCycle = e.buyToken
			dist[v] = dist[u] + e.weight
			parent[v] = e
			found = true
			break
		}
	}
	if !found {
		return nil, false
	}

	cur := onCycle
	for i := 0; i < len(nodes); i++ {
		e := parent[idx[cur]]
		if e == nil {
			return nil, false
		}
		cur = e.sellToken
	}
	// cur is now guaranteed to lie on the cycle; walk it around exactly once.
	start := cur
	var edges2 []*edge
	weight := 0.0
	for {
		e := parent[idx[cur]]
		if e == nil {
			return nil, false
		}
		edges2 = append(edges2, e)
		weight += e.weight
		cur = e.sellToken
		if cur == start {
			break
		}
		if len(edges2) > len(nodes) {
			return nil, false // defensive: malformed parent chain
		}
	}
	for i, j := 0, len(edges2)-1; i < j; i, j = i+1, j-1 {
		edges2[i], edges2[j] = edges2[j], edges2[i]
	}
	return &foundPath{edges: edges2, weight: weight}, true
}

// RestrictToMarket returns a new Graph containing only edges that lie on
// some path from base to quote (in either direction) of at most maxHops
// edges (§4.8's market projection). It is used to scope a query to the
// pair of interest before running the fill loop, which both bounds search
// cost and guarantees the fill loop can only ever touch orders relevant to
// that market.
func (g *Graph) RestrictToMarket(base, quote Token, maxHops int) *Graph {
	if maxHops <= 0 {
		maxHops = len(g.nodes) - 1
	}

	fwd := g.bfsHops(base, maxHops, false)
	bwd := g.bfsHops(quote, maxHops, true)

	out := &Graph{
		ob:    g.ob,
		adj:   make(map[Token][]*edge),
		index: make(map[globalID]*edge),
		nodes: map[Token]struct{}{FeeToken: {}},
	}
	for _, e := range g.sortedEdges() {
		uHops, uOK := fwd[e.sellToken]
		vHops, vOK := bwd[e.buyToken]
		if !uOK || !vOK {
			continue
		}
		if uHops+1+vHops > maxHops {
			continue
		}
		out.adj[e.sellToken] = append(out.adj[e.sellToken], e)
		out.index[e.id] = e
		out.nodes[e.sellToken] = struct{}{}
		out.nodes[e.buyToken] = struct{}{}
	}
	for _, edges := range out.adj {
		sortEdgesByWeight(edges)
	}
	return out
}

// bfsHops computes, for every node reachable from start within maxHops
// edges, the minimum hop count to reach it. When reverse is true it walks
// the graph backwards (by buy-token), giving the minimum hop count to
// reach quote from each node instead.
func (g *Graph) bfsHops(start Token, maxHops int, reverse bool) map[Token]int {
	adj := g.adj
	if reverse {
		adj = g.reverseAdj()
	}

	dist := map[Token]int{start: 0}
	frontier := []Token{start}
	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []Token
		for _, t := range frontier {
			for _, e := range adj[t] {
				n := e.buyToken
				if reverse {
					n = e.sellToken
				}
				if _, seen := dist[n]; seen {
					continue
				}
				dist[n] = hop + 1
				next = append(next, n)
			}
		}
		frontier = next
	}
	return dist
}

// reverseAdj builds a buy-token -> edges adjacency, the mirror of g.adj,
// for backward BFS from the quote token.
func (g *Graph) reverseAdj() map[Token][]*edge {
	out := make(map[Token][]*edge)
	for _, e := range g.sortedEdges() {
		out[e.buyToken] = append(out[e.buyToken], e)
	}
	return out
}
