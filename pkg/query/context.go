package query

import "github.com/xeolabs/amemcore/pkg/graph"

// SubGraph is the neighborhood extracted around a center node.
type SubGraph struct {
	Nodes    []graph.CognitiveEvent
	Edges    []graph.Edge
	CenterID uint64
}

var allEdgeTypes = []graph.EdgeType{
	graph.EdgeCausedBy, graph.EdgeSupports, graph.EdgeContradicts, graph.EdgeSupersedes,
	graph.EdgeRelatedTo, graph.EdgePartOf, graph.EdgeTemporalNext,
}

// Context returns nodeID, every edge-typed neighbor reachable within depth
// hops in either direction, and the edges connecting them.
func (e *Engine) Context(g *graph.MemoryGraph, nodeID uint64, depth uint32) (*SubGraph, error) {
	if _, ok := g.GetNode(nodeID); !ok {
		return nil, graph.NotFound("node", nodeID)
	}

	visited, _, _, err := bfsTraverse(g, nodeID, allEdgeTypes, Both, depth, 0, 0)
	if err != nil {
		return nil, err
	}

	visitedSet := make(map[uint64]bool, len(visited))
	nodes := make([]graph.CognitiveEvent, 0, len(visited))
	for _, id := range visited {
		visitedSet[id] = true
		if n, ok := g.GetNode(id); ok {
			nodes = append(nodes, n)
		}
	}

	var edges []graph.Edge
	for _, ed := range g.Edges() {
		if visitedSet[ed.SourceID] && visitedSet[ed.TargetID] {
			edges = append(edges, ed)
		}
	}

	return &SubGraph{Nodes: nodes, Edges: edges, CenterID: nodeID}, nil
}
