package query

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xeolabs/amemcore/pkg/graph"
)

func TestTraverseIngestScenario(t *testing.T) {
	g := graph.New(0)
	a, err := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "a"})
	require.NoError(t, err)
	b, err := g.AddNode(graph.CognitiveEvent{EventType: graph.EventDecision, Content: "b"})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge(graph.NewEdge(a, b, graph.EdgeSupports, 0.9)))
	g.EnsureAdjacency()

	e := New()
	forward, err := e.Traverse(g, TraversalParams{
		StartID: a, EdgeTypes: []graph.EdgeType{graph.EdgeSupports}, Direction: Forward,
		MaxDepth: 1, MaxResults: 10,
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{a, b}, forward.Visited)

	backward, err := e.Traverse(g, TraversalParams{
		StartID: a, EdgeTypes: []graph.EdgeType{graph.EdgeSupports}, Direction: Backward,
		MaxDepth: 1, MaxResults: 10,
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{a}, backward.Visited)
}

func TestBM25RankingScenario(t *testing.T) {
	g := graph.New(0)
	a, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "the sky is blue"})
	_, _ = g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "rust is fast and memory safe"})
	c, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "blue whales are mammals"})

	e := New()
	hits := e.TextSearch(g, TextSearchParams{Query: "blue", MaxResults: 10})

	ids := make(map[uint64]bool, len(hits))
	for _, h := range hits {
		ids[h.NodeID] = true
		require.Greater(t, h.Score, float32(0))
	}
	require.True(t, ids[a])
	require.True(t, ids[c])
	require.Len(t, hits, 2)
}

func TestShortestPathWeightedScenario(t *testing.T) {
	g := graph.New(0)
	n1, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "1"})
	n2, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "2"})
	n3, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "3"})
	n4, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "4"})

	require.NoError(t, g.AddEdge(graph.NewEdge(n1, n2, graph.EdgeRelatedTo, 0.9)))
	require.NoError(t, g.AddEdge(graph.NewEdge(n1, n3, graph.EdgeRelatedTo, 0.1)))
	require.NoError(t, g.AddEdge(graph.NewEdge(n3, n2, graph.EdgeRelatedTo, 0.9)))
	require.NoError(t, g.AddEdge(graph.NewEdge(n2, n4, graph.EdgeRelatedTo, 0.9)))
	g.EnsureAdjacency()

	e := New()
	result, err := e.ShortestPath(g, ShortestPathParams{
		FromID: n1, ToID: n4, EdgeTypes: []graph.EdgeType{graph.EdgeRelatedTo},
		Direction: Forward, Weighted: true,
	})
	require.NoError(t, err)
	require.True(t, result.Found)
	require.Equal(t, []uint64{n1, n2, n4}, result.Path)
	require.InDelta(t, 0.2, result.Cost, 1e-6)
}

func TestResolveIsIdempotent(t *testing.T) {
	g := graph.New(0)
	n, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "x", Confidence: 0.9})
	nPrime, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventCorrection, Content: "x revised", Confidence: 1})
	require.NoError(t, g.AddEdge(graph.NewEdge(nPrime, n, graph.EdgeSupersedes, 1)))
	g.EnsureAdjacency()

	e := New()
	resolved, err := e.Resolve(g, n)
	require.NoError(t, err)
	require.Equal(t, nPrime, resolved.ID)

	resolvedAgain, err := e.Resolve(g, resolved.ID)
	require.NoError(t, err)
	require.Equal(t, resolved.ID, resolvedAgain.ID)
}

func TestCausalImpactCountsDecisionsAndInferences(t *testing.T) {
	g := graph.New(0)
	root, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "root"})
	decision, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventDecision, Content: "d"})
	inference, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventInference, Content: "i"})
	require.NoError(t, g.AddEdge(graph.NewEdge(decision, root, graph.EdgeCausedBy, 0.8)))
	require.NoError(t, g.AddEdge(graph.NewEdge(inference, root, graph.EdgeSupports, 0.8)))
	g.EnsureAdjacency()

	e := New()
	result, err := e.Causal(g, CausalParams{
		NodeID: root, MaxDepth: 5,
		DependencyTypes: []graph.EdgeType{graph.EdgeCausedBy, graph.EdgeSupports},
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{decision, inference}, result.Dependents)
	require.Equal(t, 1, result.AffectedDecisions)
	require.Equal(t, 1, result.AffectedInferences)
}
