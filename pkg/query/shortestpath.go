package query

import (
	"container/heap"

	"github.com/xeolabs/amemcore/pkg/graph"
)

// epsilon floors Dijkstra edge cost so a weight of 1.0 never yields a
// zero-cost hop.
const epsilon = 1e-6

// ShortestPathParams configures a path search between two nodes.
type ShortestPathParams struct {
	FromID, ToID uint64
	EdgeTypes    []graph.EdgeType
	Direction    TraversalDirection
	Weighted     bool
}

// ShortestPathResult reports whether a path was found, its total cost, and
// the node/edge sequence.
type ShortestPathResult struct {
	Found bool
	Cost  float64
	Path  []uint64
	Edges []graph.Edge
}

// ShortestPath runs plain BFS when Weighted is false, or Dijkstra with
// cost = 1 - edge.weight (floored at epsilon) otherwise.
func (e *Engine) ShortestPath(g *graph.MemoryGraph, params ShortestPathParams) (*ShortestPathResult, error) {
	if _, ok := g.GetNode(params.FromID); !ok {
		return nil, graph.NotFound("node", params.FromID)
	}
	if _, ok := g.GetNode(params.ToID); !ok {
		return nil, graph.NotFound("node", params.ToID)
	}

	edgeSet := edgeTypeSet(params.EdgeTypes)
	if params.FromID == params.ToID {
		return &ShortestPathResult{Found: true, Cost: 0, Path: []uint64{params.FromID}}, nil
	}

	if !params.Weighted {
		return bfsShortestPath(g, params, edgeSet)
	}
	return dijkstraShortestPath(g, params, edgeSet)
}

type hop struct {
	id   uint64
	edge graph.Edge
}

func neighborsOf(g *graph.MemoryGraph, id uint64, direction TraversalDirection, edgeSet map[graph.EdgeType]bool) []hop {
	var out []hop
	if direction == Forward || direction == Both {
		for _, ed := range g.EdgesFrom(id) {
			if edgeSet[ed.EdgeType] {
				out = append(out, hop{ed.TargetID, ed})
			}
		}
	}
	if direction == Backward || direction == Both {
		for _, ed := range g.EdgesTo(id) {
			if edgeSet[ed.EdgeType] {
				out = append(out, hop{ed.SourceID, ed})
			}
		}
	}
	return out
}

func bfsShortestPath(g *graph.MemoryGraph, params ShortestPathParams, edgeSet map[graph.EdgeType]bool) (*ShortestPathResult, error) {
	prevNode := map[uint64]uint64{}
	prevEdge := map[uint64]graph.Edge{}
	visited := map[uint64]bool{params.FromID: true}
	queue := []uint64{params.FromID}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == params.ToID {
			break
		}
		for _, n := range neighborsOf(g, cur, params.Direction, edgeSet) {
			if visited[n.id] {
				continue
			}
			visited[n.id] = true
			prevNode[n.id] = cur
			prevEdge[n.id] = n.edge
			queue = append(queue, n.id)
		}
	}

	if !visited[params.ToID] {
		return &ShortestPathResult{Found: false}, nil
	}
	path, edges := reconstructPath(params.FromID, params.ToID, prevNode, prevEdge)
	return &ShortestPathResult{Found: true, Cost: float64(len(edges)), Path: path, Edges: edges}, nil
}

type pqItem struct {
	id   uint64
	dist float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

func dijkstraShortestPath(g *graph.MemoryGraph, params ShortestPathParams, edgeSet map[graph.EdgeType]bool) (*ShortestPathResult, error) {
	dist := map[uint64]float64{params.FromID: 0}
	prevNode := map[uint64]uint64{}
	prevEdge := map[uint64]graph.Edge{}
	visited := map[uint64]bool{}

	pq := &priorityQueue{{params.FromID, 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true
		if cur.id == params.ToID {
			break
		}
		for _, n := range neighborsOf(g, cur.id, params.Direction, edgeSet) {
			cost := float64(1 - n.edge.Weight)
			if cost < epsilon {
				cost = epsilon
			}
			newDist := dist[cur.id] + cost
			if d, ok := dist[n.id]; !ok || newDist < d {
				dist[n.id] = newDist
				prevNode[n.id] = cur.id
				prevEdge[n.id] = n.edge
				heap.Push(pq, pqItem{n.id, newDist})
			}
		}
	}

	if !visited[params.ToID] {
		return &ShortestPathResult{Found: false}, nil
	}
	path, edges := reconstructPath(params.FromID, params.ToID, prevNode, prevEdge)
	return &ShortestPathResult{Found: true, Cost: dist[params.ToID], Path: path, Edges: edges}, nil
}

func reconstructPath(from, to uint64, prevNode map[uint64]uint64, prevEdge map[uint64]graph.Edge) ([]uint64, []graph.Edge) {
	var path []uint64
	var edges []graph.Edge
	cur := to
	for cur != from {
		path = append([]uint64{cur}, path...)
		edges = append([]graph.Edge{prevEdge[cur]}, edges...)
		cur = prevNode[cur]
	}
	path = append([]uint64{from}, path...)
	return path, edges
}
