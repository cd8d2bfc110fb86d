package pricegraph

import (
	"container/heap"
	"sort"
)

// foundPath is the single cheapest source-to-sink path the search found:
// the ordered edges to traverse and the summed weight (never the product —
// §9: "all path comparisons must happen in -ln (summed) space").
type foundPath struct {
	edges  []*edge
	weight float64
}

// hops reports the number of edges in the path.
func (p *foundPath) hops() int { return len(p.edges) }

// maxOrderID is the tie-break key from §4.6: "lowest max order-id along
// the path".
func (p *foundPath) maxOrderID() OrderID {
	var max OrderID
	for i, e := range p.edges {
		id := e.orderID()
		if i == 0 || id > max {
			max = id
		}
	}
	return max
}

// betterPath reports whether candidate should replace current under the
// §4.6 ordering: ascending weight, then ascending hop count, then
// ascending max-order-id. current may be nil (candidate always wins then).
func betterPath(current, candidate *foundPath) bool {
	if current == nil {
		return true
	}
	if candidate.weight != current.weight {
		return candidate.weight < current.weight
	}
	if candidate.hops() != current.hops() {
		return candidate.hops() < current.hops()
	}
	return candidate.maxOrderID() < current.maxOrderID()
}

// findPath returns the single cheapest path from source to sink with at
// most maxHops edges (§4.7/C5). Ties are broken first by hop count, then
// by the lowest maximum order-id along the path (§4.6), making the result
// fully deterministic. Returns false if no path exists or source == sink.
func (g *Graph) findPath(source, sink Token, maxHops int) (*foundPath, bool) {
	if source == sink {
		return nil, false
	}
	if maxHops <= 0 {
		maxHops = len(g.nodes) - 1
	}
	if maxHops <= 0 {
		return nil, false
	}

	if g.allWeightsNonNegative() {
		if p, ok := g.dijkstraPath(source, sink); ok && p.hops() <= maxHops {
			return p, true
		}
		// Unbounded Dijkstra's best path violates the hop cap (or none
		// exists) — fall back to the hop-bounded search below, which only
		// considers paths within the cap.
	}
	return g.boundedBellmanFord(source, sink, maxHops)
}

// allWeightsNonNegative reports whether every edge has p_eff <= 1 (w >= 0),
// letting the search use the faster Dijkstra relaxation per §4.7.
func (g *Graph) allWeightsNonNegative() bool {
	for _, e := range g.index {
		if e.weight < 0 {
			return false
		}
	}
	return true
}

// sortedEdges returns every edge sorted by globalID, giving every caller
// (including repeated relaxation rounds) the same deterministic iteration
// order — required for §8's determinism property, since ranging directly
// over the edge-index map would make tie-break outcomes depend on Go's
// randomized map order.
func (g *Graph) sortedEdges() []*edge {
	edges := g.AllEdges()
	sort.Slice(edges, func(i, j int) bool { return edges[i].id < edges[j].id })
	return edges
}

// boundedBellmanFord finds the cheapest path using at most maxHops edges by
// relaxing layer by layer: dist[k][v] is the shortest distance to v using
// at most k edges, found by extending dist[k-1] by one more edge or
// carrying it forward unchanged. This both bounds the hop count exactly as
// §4.6 requires and tolerates negative edge weights without looping
// forever on a negative cycle, since the layer count is capped.
func (g *Graph) boundedBellmanFord(source, sink Token, maxHops int) (*foundPath, bool) {
	nodes := g.Nodes()
	idx := make(map[Token]int, len(nodes))
	for i, t := range nodes {
		idx[t] = i
	}
	edges := g.sortedEdges()

	const inf = 1e308
	dist := make([]float64, len(nodes))
	parent := make([]*edge, len(nodes))
	for i := range dist {
		dist[i] = inf
	}
	dist[idx[source]] = 0

	var best *foundPath
	considerSink := func() {
		d := dist[idx[sink]]
		if d >= inf {
			return
		}
		p := reconstruct(parent, idx, source, sink, d)
		if p != nil && betterPath(best, p) {
			best = p
		}
	}

	for hop := 1; hop <= maxHops; hop++ {
		next := append([]float64(nil), dist...)
		nextParent := append([]*edge(nil), parent...)

		for _, e := range edges {
			u, ok := idx[e.sellToken]
			if !ok || dist[u] >= inf {
				continue
			}
			v := idx[e.buyToken]
			cand := dist[u] + e.weight
			if cand < next[v] {
				next[v] = cand
				nextParent[v] = e
			}
		}

		dist, parent = next, nextParent
		considerSink()
	}

	if best == nil {
		return nil, false
	}
	return best, true
}

func reconstruct(parent []*edge, idx map[Token]int, source, sink Token, weight float64) *foundPath {
	var edges []*edge
	cur := sink
	seen := make(map[Token]bool)
	for cur != source {
		if seen[cur] {
			return nil // defensive: would indicate a cycle in the parent chain
		}
		seen[cur] = true
		e := parent[idx[cur]]
		if e == nil {
			return nil
		}
		edges = append(edges, e)
		cur = e.sellToken
	}
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}
	return &foundPath{edges: edges, weight: weight}
}

// dijkstraPath runs ordinary Dijkstra relaxation (valid because weights
// are non-negative), ignoring the hop cap. The caller checks the result
// against the cap and falls back to the bounded search if it's exceeded.
func (g *Graph) dijkstraPath(source, sink Token) (*foundPath, bool) {
	const inf = 1e308
	tokens := g.Nodes()
	idx := make(map[Token]int, len(tokens))
	for i, t := range tokens {
		idx[t] = i
	}

	dist := make([]float64, len(tokens))
	parent := make([]*edge, len(tokens))
	visited := make([]bool, len(tokens))
	for i := range dist {
		dist[i] = inf
	}
	dist[idx[source]] = 0

	pq := &pqueue{{token: source, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		top := heap.Pop(pq).(pqItem)
		ti := idx[top.token]
		if visited[ti] {
			continue
		}
		visited[ti] = true
		if top.token == sink {
			break
		}
		for _, e := range g.adj[top.token] {
			vi := idx[e.buyToken]
			nd := dist[ti] + e.weight
			if nd < dist[vi] || (nd == dist[vi] && (parent[vi] == nil || e.id < parent[vi].id)) {
				dist[vi] = nd
				parent[vi] = e
				heap.Push(pq, pqItem{token: e.buyToken, dist: nd})
			}
		}
	}

	if dist[idx[sink]] >= inf {
		return nil, false
	}
	return reconstruct(parent, idx, source, sink, dist[idx[sink]]), true
}

type pqItem struct {
	token Token
	dist  float64
}

type pqueue []pqItem

func (q pqueue) Len() int { return len(q) }
func (q pqueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].token < q[j].token
}
func (q pqueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *pqueue) Push(x interface{}) { *q = append(*q, x.(pqItem)) }
func (q *pqueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
