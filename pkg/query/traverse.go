package query

import "github.com/xeolabs/amemcore/pkg/graph"

// TraversalDirection selects which edge direction a BFS walk follows.
type TraversalDirection int

const (
	Forward TraversalDirection = iota
	Backward
	Both
)

// TraversalParams configures Traverse.
type TraversalParams struct {
	StartID      uint64
	EdgeTypes    []graph.EdgeType
	Direction    TraversalDirection
	MaxDepth     uint32
	MaxResults   int
	MinConfidence float32
}

// TraversalResult is the outcome of Traverse.
type TraversalResult struct {
	Visited        []uint64
	EdgesTraversed []graph.Edge
	Depths         map[uint64]uint32
}

// Traverse walks the graph breadth-first from StartID, following only the
// given edge types in the given direction, up to MaxDepth hops and
// MaxResults nodes, skipping neighbors below MinConfidence.
func (e *Engine) Traverse(g *graph.MemoryGraph, params TraversalParams) (*TraversalResult, error) {
	visited, edgesTraversed, depths, err := bfsTraverse(g, params.StartID, params.EdgeTypes, params.Direction, params.MaxDepth, params.MaxResults, params.MinConfidence)
	if err != nil {
		return nil, err
	}
	return &TraversalResult{Visited: visited, EdgesTraversed: edgesTraversed, Depths: depths}, nil
}

type queueEntry struct {
	id    uint64
	depth uint32
}

func bfsTraverse(g *graph.MemoryGraph, startID uint64, edgeTypes []graph.EdgeType, direction TraversalDirection, maxDepth uint32, maxResults int, minConfidence float32) ([]uint64, []graph.Edge, map[uint64]uint32, error) {
	if _, ok := g.GetNode(startID); !ok {
		return nil, nil, nil, graph.NotFound("node", startID)
	}
	if maxResults <= 0 {
		maxResults = int(^uint(0) >> 1)
	}

	edgeSet := edgeTypeSet(edgeTypes)
	visited := map[uint64]bool{startID: true}
	visitedOrder := []uint64{startID}
	var edgesTraversed []graph.Edge
	depths := map[uint64]uint32{startID: 0}
	queue := []queueEntry{{startID, 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		if len(visitedOrder) >= maxResults {
			break
		}

		type neighbor struct {
			id   uint64
			edge graph.Edge
		}
		var neighbors []neighbor
		if direction == Forward || direction == Both {
			for _, ed := range g.EdgesFrom(cur.id) {
				if edgeSet[ed.EdgeType] {
					neighbors = append(neighbors, neighbor{ed.TargetID, ed})
				}
			}
		}
		if direction == Backward || direction == Both {
			for _, ed := range g.EdgesTo(cur.id) {
				if edgeSet[ed.EdgeType] {
					neighbors = append(neighbors, neighbor{ed.SourceID, ed})
				}
			}
		}

		for _, n := range neighbors {
			if visited[n.id] {
				continue
			}
			if len(visitedOrder) >= maxResults {
				break
			}
			node, ok := g.GetNode(n.id)
			if !ok || node.Confidence < minConfidence {
				continue
			}
			visited[n.id] = true
			visitedOrder = append(visitedOrder, n.id)
			depths[n.id] = cur.depth + 1
			edgesTraversed = append(edgesTraversed, n.edge)
			queue = append(queue, queueEntry{n.id, cur.depth + 1})
		}
	}

	return visitedOrder, edgesTraversed, depths, nil
}
