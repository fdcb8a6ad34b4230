package write

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xeolabs/amemcore/pkg/graph"
)

func TestIngestTouchesExistingEdgeTargets(t *testing.T) {
	g := graph.New(0)
	existing, err := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "existing"})
	require.NoError(t, err)

	e := New(0)
	newID := g.NextID()
	result, err := e.Ingest(g, []graph.CognitiveEvent{
		{EventType: graph.EventDecision, Content: "new decision"},
	}, []graph.Edge{
		graph.NewEdge(newID, existing, graph.EdgeSupports, 0.8),
	})
	require.NoError(t, err)
	require.Len(t, result.NewNodeIDs, 1)
	require.Equal(t, newID, result.NewNodeIDs[0])
	require.Equal(t, []uint64{existing}, result.TouchedNodeIDs)

	node, _ := g.GetNode(existing)
	require.Equal(t, uint32(1), node.AccessCount)
}

func TestCorrectSupersedesOldNode(t *testing.T) {
	g := graph.New(0)
	e := New(0)
	n, err := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "x", Confidence: 0.9})
	require.NoError(t, err)

	newID, err := e.Correct(g, n, "x revised", 0)
	require.NoError(t, err)

	old, _ := g.GetNode(n)
	require.Zero(t, old.Confidence)

	edges := g.EdgesFrom(newID)
	require.Len(t, edges, 1)
	require.Equal(t, graph.EdgeSupersedes, edges[0].EdgeType)
	require.Equal(t, n, edges[0].TargetID)
}

func TestCorrectUnknownNodeFails(t *testing.T) {
	g := graph.New(0)
	e := New(0)
	_, err := e.Correct(g, 999, "x", 0)
	require.Error(t, err)
	var amemErr *graph.AmemError
	require.ErrorAs(t, err, &amemErr)
	require.Equal(t, graph.KindNotFound, amemErr.Kind)
}

func TestCompressSessionLinksMembers(t *testing.T) {
	g := graph.New(0)
	e := New(0)
	a, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "a", SessionID: 1})
	b, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "b", SessionID: 1})

	episodeID, err := e.CompressSession(g, 1, "summary")
	require.NoError(t, err)

	incoming := g.EdgesTo(episodeID)
	require.Len(t, incoming, 2)
	sources := map[uint64]bool{incoming[0].SourceID: true, incoming[1].SourceID: true}
	require.True(t, sources[a])
	require.True(t, sources[b])
}

func TestDecayOfStaleUnaccessedNode(t *testing.T) {
	const microsPerDay = 86_400_000_000
	now := int64(200 * microsPerDay)
	n := graph.CognitiveEvent{
		EventType:    graph.EventFact,
		LastAccessed: now - 100*microsPerDay,
		AccessCount:  0,
	}
	score := CalculateDecay(n, now)
	require.InDelta(t, 0, score, 1e-6)
}

func TestRunDecayUpdatesAllNodes(t *testing.T) {
	g := graph.New(0)
	e := New(0)
	id, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "a", AccessCount: 0})

	report := e.RunDecay(g, graph.NowMicros())
	require.GreaterOrEqual(t, report.NodesDecayed, 0)
	node, _ := g.GetNode(id)
	require.GreaterOrEqual(t, node.DecayScore, float32(0))
	require.LessOrEqual(t, node.DecayScore, float32(1))
}
