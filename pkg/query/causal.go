package query

import "github.com/xeolabs/amemcore/pkg/graph"

// CausalParams configures an impact analysis.
type CausalParams struct {
	NodeID          uint64
	MaxDepth        uint32
	DependencyTypes []graph.EdgeType
}

// CausalResult reports everything that directly or indirectly depends on
// RootID via the given dependency edge types.
type CausalResult struct {
	RootID              uint64
	Dependents          []uint64
	DependencyTree       map[uint64][]DependencyEdge
	AffectedDecisions    int
	AffectedInferences   int
}

// DependencyEdge names a dependent node and the edge type linking it.
type DependencyEdge struct {
	NodeID   uint64
	EdgeType graph.EdgeType
}

// Causal walks incoming dependency edges breadth-first from NodeID to find
// every node that depends on it, directly or transitively.
func (e *Engine) Causal(g *graph.MemoryGraph, params CausalParams) (*CausalResult, error) {
	if _, ok := g.GetNode(params.NodeID); !ok {
		return nil, graph.NotFound("node", params.NodeID)
	}

	depSet := edgeTypeSet(params.DependencyTypes)
	var dependents []uint64
	tree := make(map[uint64][]DependencyEdge)
	visited := map[uint64]bool{params.NodeID: true}
	queue := []queueEntry{{params.NodeID, 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= params.MaxDepth {
			continue
		}
		for _, ed := range g.EdgesTo(cur.id) {
			if depSet[ed.EdgeType] && !visited[ed.SourceID] {
				visited[ed.SourceID] = true
				dependents = append(dependents, ed.SourceID)
				tree[cur.id] = append(tree[cur.id], DependencyEdge{ed.SourceID, ed.EdgeType})
				queue = append(queue, queueEntry{ed.SourceID, cur.depth + 1})
			}
		}
	}

	result := &CausalResult{RootID: params.NodeID, Dependents: dependents, DependencyTree: tree}
	for _, id := range dependents {
		n, ok := g.GetNode(id)
		if !ok {
			continue
		}
		switch n.EventType {
		case graph.EventDecision:
			result.AffectedDecisions++
		case graph.EventInference:
			result.AffectedInferences++
		}
	}
	return result, nil
}
