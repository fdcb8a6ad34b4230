// Package query implements the read-only query engine: traversal, pattern
// filtering, causal impact, BM25 text search, hybrid fusion, similarity,
// shortest path, centrality, belief revision, gap detection, analogical
// search, consolidation, drift, and memory quality. Every operation takes a
// parameter struct and returns a result struct. Consolidate is the one
// operation that mutates the graph (unless its DryRun is set); the rest only
// read it.
package query

import "github.com/xeolabs/amemcore/pkg/graph"

// Engine runs queries against a MemoryGraph. It holds no state of its own;
// every method takes the graph explicitly so one Engine can serve any
// number of graphs (mirroring the Write Engine's shape).
type Engine struct{}

// New creates a query engine.
func New() *Engine { return &Engine{} }

func edgeTypeSet(types []graph.EdgeType) map[graph.EdgeType]bool {
	set := make(map[graph.EdgeType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}
