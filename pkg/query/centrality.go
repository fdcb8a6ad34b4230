package query

import (
	"sort"

	"github.com/xeolabs/amemcore/pkg/graph"
)

// CentralityAlgorithm selects which centrality measure to compute.
type CentralityAlgorithm int

const (
	Degree CentralityAlgorithm = iota
	PageRank
	Betweenness
)

const (
	pageRankDamping   = 0.85
	pageRankTolerance = 1e-6
	pageRankMaxIter   = 100
)

// CentralityParams configures a centrality computation.
type CentralityParams struct {
	Algorithm  CentralityAlgorithm
	EdgeTypes  []graph.EdgeType
	EventTypes []graph.EventType
	TopK       int
}

// CentralityScore is one node's centrality result.
type CentralityScore struct {
	NodeID uint64
	Score  float64
}

// CentralityResult reports ranked scores plus PageRank convergence info.
type CentralityResult struct {
	Scores    []CentralityScore
	Converged bool
	Iterations int
}

// Centrality computes the requested centrality measure restricted to the
// given whitelist of edge types, with an optional event-type filter and
// top-k truncation.
func (e *Engine) Centrality(g *graph.MemoryGraph, params CentralityParams) *CentralityResult {
	edgeSet := edgeTypeSet(params.EdgeTypes)
	typeFilter := edgeTypeSetEvent(params.EventTypes)

	var result *CentralityResult
	switch params.Algorithm {
	case Degree:
		result = degreeCentrality(g, edgeSet)
	case PageRank:
		result = pageRankCentrality(g, edgeSet)
	case Betweenness:
		result = betweennessCentrality(g, edgeSet)
	}

	if len(typeFilter) > 0 {
		filtered := result.Scores[:0:0]
		for _, s := range result.Scores {
			if n, ok := g.GetNode(s.NodeID); ok && typeFilter[n.EventType] {
				filtered = append(filtered, s)
			}
		}
		result.Scores = filtered
	}

	sort.SliceStable(result.Scores, func(i, j int) bool { return result.Scores[i].Score > result.Scores[j].Score })
	if params.TopK > 0 && len(result.Scores) > params.TopK {
		result.Scores = result.Scores[:params.TopK]
	}
	return result
}

func degreeCentrality(g *graph.MemoryGraph, edgeSet map[graph.EdgeType]bool) *CentralityResult {
	counts := make(map[uint64]int)
	for _, n := range g.Nodes() {
		counts[n.ID] = 0
	}
	for _, ed := range g.Edges() {
		if !edgeSet[ed.EdgeType] {
			continue
		}
		counts[ed.SourceID]++
		counts[ed.TargetID]++
	}
	scores := make([]CentralityScore, 0, len(counts))
	for id, c := range counts {
		scores = append(scores, CentralityScore{id, float64(c)})
	}
	return &CentralityResult{Scores: scores}
}

func pageRankCentrality(g *graph.MemoryGraph, edgeSet map[graph.EdgeType]bool) *CentralityResult {
	nodes := g.Nodes()
	n := len(nodes)
	if n == 0 {
		return &CentralityResult{}
	}

	outEdges := make(map[uint64][]uint64)
	outDegree := make(map[uint64]int)
	for _, ed := range g.Edges() {
		if !edgeSet[ed.EdgeType] {
			continue
		}
		outEdges[ed.SourceID] = append(outEdges[ed.SourceID], ed.TargetID)
		outDegree[ed.SourceID]++
	}

	rank := make(map[uint64]float64, n)
	for _, nd := range nodes {
		rank[nd.ID] = 1.0 / float64(n)
	}

	converged := false
	iter := 0
	for ; iter < pageRankMaxIter; iter++ {
		next := make(map[uint64]float64, n)
		dangling := 0.0
		for _, nd := range nodes {
			next[nd.ID] = (1 - pageRankDamping) / float64(n)
			if outDegree[nd.ID] == 0 {
				dangling += rank[nd.ID]
			}
		}
		danglingShare := pageRankDamping * dangling / float64(n)
		for id := range next {
			next[id] += danglingShare
		}
		for _, nd := range nodes {
			share := rank[nd.ID]
			deg := outDegree[nd.ID]
			if deg == 0 {
				continue
			}
			contribution := pageRankDamping * share / float64(deg)
			for _, target := range outEdges[nd.ID] {
				next[target] += contribution
			}
		}

		maxDiff := 0.0
		for id, v := range next {
			diff := v - rank[id]
			if diff < 0 {
				diff = -diff
			}
			if diff > maxDiff {
				maxDiff = diff
			}
		}
		rank = next
		if maxDiff < pageRankTolerance {
			converged = true
			iter++
			break
		}
	}

	scores := make([]CentralityScore, 0, n)
	for _, nd := range nodes {
		scores = append(scores, CentralityScore{nd.ID, rank[nd.ID]})
	}
	return &CentralityResult{Scores: scores, Converged: converged, Iterations: iter}
}

// betweennessCentrality runs Brandes' algorithm over unweighted BFS from
// every node: shortest-path counting followed by the backward dependency
// accumulation.
func betweennessCentrality(g *graph.MemoryGraph, edgeSet map[graph.EdgeType]bool) *CentralityResult {
	nodes := g.Nodes()
	scores := make(map[uint64]float64, len(nodes))
	for _, nd := range nodes {
		scores[nd.ID] = 0
	}

	for _, source := range nodes {
		dist := map[uint64]int{source.ID: 0}
		sigma := map[uint64]float64{source.ID: 1}
		var order []uint64
		predecessors := map[uint64][]uint64{}
		queue := []uint64{source.ID}

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			order = append(order, cur)
			for _, h := range neighborsOf(g, cur, Both, edgeSet) {
				if _, seen := dist[h.id]; !seen {
					dist[h.id] = dist[cur] + 1
					queue = append(queue, h.id)
				}
				if dist[h.id] == dist[cur]+1 {
					sigma[h.id] += sigma[cur]
					predecessors[h.id] = append(predecessors[h.id], cur)
				}
			}
		}

		delta := map[uint64]float64{}
		for i := len(order) - 1; i >= 0; i-- {
			w := order[i]
			for _, v := range predecessors[w] {
				delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
			}
			if w != source.ID {
				scores[w] += delta[w]
			}
		}
	}

	out := make([]CentralityScore, 0, len(scores))
	for id, s := range scores {
		out = append(out, CentralityScore{id, s / 2})
	}
	return &CentralityResult{Scores: out}
}
