package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddNodeAssignsSequentialIDs(t *testing.T) {
	g := New(0)
	id1, err := g.AddNode(CognitiveEvent{EventType: EventFact, Content: "a"})
	require.NoError(t, err)
	id2, err := g.AddNode(CognitiveEvent{EventType: EventDecision, Content: "b"})
	require.NoError(t, err)
	require.Equal(t, uint64(0), id1)
	require.Equal(t, uint64(1), id2)
	require.Equal(t, 2, g.NodeCount())
}

func TestAddNodeRejectsOversizedContent(t *testing.T) {
	g := New(0)
	big := make([]byte, MaxContentSize+1)
	_, err := g.AddNode(CognitiveEvent{EventType: EventFact, Content: string(big)})
	require.Error(t, err)
	var amemErr *AmemError
	require.ErrorAs(t, err, &amemErr)
	require.Equal(t, KindContentTooLarge, amemErr.Kind)
}

func TestAddNodeRejectsDimensionMismatch(t *testing.T) {
	g := New(4)
	_, err := g.AddNode(CognitiveEvent{EventType: EventFact, Content: "x", FeatureVec: []float32{1, 2}})
	require.Error(t, err)
}

func TestAddEdgeRejectsSelfLoop(t *testing.T) {
	g := New(0)
	id, _ := g.AddNode(CognitiveEvent{EventType: EventFact, Content: "a"})
	err := g.AddEdge(Edge{SourceID: id, TargetID: id, EdgeType: EdgeRelatedTo, Weight: 1})
	require.Error(t, err)
}

func TestAddEdgeRejectsDuplicate(t *testing.T) {
	g := New(0)
	a, _ := g.AddNode(CognitiveEvent{EventType: EventFact, Content: "a"})
	b, _ := g.AddNode(CognitiveEvent{EventType: EventFact, Content: "b"})
	require.NoError(t, g.AddEdge(Edge{SourceID: a, TargetID: b, EdgeType: EdgeSupports, Weight: 1}))
	err := g.AddEdge(Edge{SourceID: a, TargetID: b, EdgeType: EdgeSupports, Weight: 0.5})
	require.Error(t, err)
}

func TestAddEdgeRejectsUnknownEndpoint(t *testing.T) {
	g := New(0)
	a, _ := g.AddNode(CognitiveEvent{EventType: EventFact, Content: "a"})
	err := g.AddEdge(Edge{SourceID: a, TargetID: 999, EdgeType: EdgeSupports, Weight: 1})
	require.Error(t, err)
	var amemErr *AmemError
	require.ErrorAs(t, err, &amemErr)
	require.Equal(t, KindNotFound, amemErr.Kind)
}

func TestEnsureAdjacencyIdempotent(t *testing.T) {
	g := New(0)
	a, _ := g.AddNode(CognitiveEvent{EventType: EventFact, Content: "a"})
	b, _ := g.AddNode(CognitiveEvent{EventType: EventDecision, Content: "b"})
	require.NoError(t, g.AddEdge(Edge{SourceID: a, TargetID: b, EdgeType: EdgeSupports, Weight: 1}))

	g.EnsureAdjacency()
	first := g.EdgesFrom(a)
	g.EnsureAdjacency()
	second := g.EdgesFrom(a)
	require.Equal(t, first, second)
	require.Len(t, g.EdgesFrom(a), 1)
	require.Len(t, g.EdgesTo(b), 1)
}

func TestBuilderProducesValidGraph(t *testing.T) {
	b := NewBuilder()
	n := b.AddFact("node n", 0, 0.9)
	correction := b.AddCorrection("node n revised", 0, n)
	g, err := b.Build()
	require.NoError(t, err)

	old, ok := g.GetNode(n)
	require.True(t, ok)
	require.Zero(t, old.Confidence)

	newNode, ok := g.GetNode(correction)
	require.True(t, ok)
	require.Equal(t, EventCorrection, newNode.EventType)
}

func TestRewireIncomingRedirectsEdgesAndDropsDuplicates(t *testing.T) {
	g := New(0)
	survivor, _ := g.AddNode(CognitiveEvent{EventType: EventFact, Content: "a"})
	loser, _ := g.AddNode(CognitiveEvent{EventType: EventFact, Content: "b"})
	other, _ := g.AddNode(CognitiveEvent{EventType: EventFact, Content: "c"})
	require.NoError(t, g.AddEdge(Edge{SourceID: other, TargetID: loser, EdgeType: EdgeSupports, Weight: 1}))
	require.NoError(t, g.AddEdge(Edge{SourceID: other, TargetID: survivor, EdgeType: EdgeSupports, Weight: 1}))

	g.RewireIncoming(loser, survivor)
	g.EnsureAdjacency()

	edges := g.EdgesFrom(other)
	require.Len(t, edges, 1)
	require.Equal(t, survivor, edges[0].TargetID)
}

func TestTokenizeDropsStopwordsAndShortTokens(t *testing.T) {
	tokens := Tokenize("The sky is blue, a big blue sky!")
	require.NotContains(t, tokens, "the")
	require.NotContains(t, tokens, "is")
	require.Contains(t, tokens, "sky")
	require.Contains(t, tokens, "blue")
}
