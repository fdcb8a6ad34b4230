package query

import "github.com/xeolabs/amemcore/pkg/graph"

// maxResolveHops bounds the Supersedes walk against cyclical data.
const maxResolveHops = 100

// Resolve follows Supersedes edges forward from nodeID to find the latest
// version of a node, stopping after maxResolveHops.
func (e *Engine) Resolve(g *graph.MemoryGraph, nodeID uint64) (graph.CognitiveEvent, error) {
	if _, ok := g.GetNode(nodeID); !ok {
		return graph.CognitiveEvent{}, graph.NotFound("node", nodeID)
	}

	current := nodeID
	for i := 0; i < maxResolveHops; i++ {
		var supersededBy uint64
		found := false
		for _, ed := range g.EdgesTo(current) {
			if ed.EdgeType == graph.EdgeSupersedes {
				supersededBy = ed.SourceID
				found = true
				break
			}
		}
		if !found {
			break
		}
		current = supersededBy
	}

	node, ok := g.GetNode(current)
	if !ok {
		return graph.CognitiveEvent{}, graph.NotFound("node", current)
	}
	return node, nil
}
