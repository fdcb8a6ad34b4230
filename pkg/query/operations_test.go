package query

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xeolabs/amemcore/pkg/graph"
)

func TestPatternFiltersAndSorts(t *testing.T) {
	g := graph.New(0)
	_, _ = g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "a", Confidence: 0.2})
	_, _ = g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "b", Confidence: 0.9})
	_, _ = g.AddNode(graph.CognitiveEvent{EventType: graph.EventDecision, Content: "c", Confidence: 0.9})

	e := New()
	minConf := float32(0.5)
	results := e.Pattern(g, PatternParams{
		EventTypes:    []graph.EventType{graph.EventFact},
		MinConfidence: &minConf,
		SortBy:        HighestConfidence,
		MaxResults:    10,
	})
	require.Len(t, results, 1)
	require.Equal(t, "b", results[0].Content)
}

func TestCentralityDegree(t *testing.T) {
	g := graph.New(0)
	a, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "a"})
	b, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "b"})
	c, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "c"})
	require.NoError(t, g.AddEdge(graph.NewEdge(a, b, graph.EdgeRelatedTo, 0.5)))
	require.NoError(t, g.AddEdge(graph.NewEdge(c, b, graph.EdgeRelatedTo, 0.5)))
	g.EnsureAdjacency()

	e := New()
	result := e.Centrality(g, CentralityParams{Algorithm: Degree, EdgeTypes: []graph.EdgeType{graph.EdgeRelatedTo}})
	byID := make(map[uint64]float64)
	for _, s := range result.Scores {
		byID[s.NodeID] = s.Score
	}
	require.Equal(t, 2.0, byID[b])
	require.Equal(t, 1.0, byID[a])
}

func TestGapDetectionFindsUnjustifiedDecision(t *testing.T) {
	g := graph.New(0)
	d, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventDecision, Content: "ship it", Confidence: 0.9})

	e := New()
	report := e.DetectGaps(g, GapParams{LowConfidenceThreshold: 0.3, MinDownstreamSupport: 1, CorrectionRateThreshold: 0.5, StaleDecayThreshold: 0.1, StaleDownstreamMin: 1})
	found := false
	for _, gap := range report.Gaps {
		if gap.NodeID == d && gap.Kind == UnjustifiedDecision {
			found = true
		}
	}
	require.True(t, found)
}

func TestQualityReportToMap(t *testing.T) {
	g := graph.New(0)
	_, _ = g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "a", Confidence: 0.1})

	e := New()
	report := e.MemoryQuality(g, QualityParams{LowConfidenceThreshold: 0.5, StaleDecayThreshold: 0.5})
	m := report.ToMap()
	require.Equal(t, 1, m["node_count"])
	require.Equal(t, 1, m["low_confidence_count"])
}

func TestConsolidateDedupKeepsHighestConfidence(t *testing.T) {
	g := graph.New(0)
	low, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "the sky is blue today", Confidence: 0.4})
	high, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "the sky is blue today", Confidence: 0.9})
	other, _ := g.AddNode(graph.CognitiveEvent{EventType: graph.EventFact, Content: "unrelated", Confidence: 0.5})
	require.NoError(t, g.AddEdge(graph.NewEdge(other, low, graph.EdgeRelatedTo, 0.5)))
	g.EnsureAdjacency()

	e := New()
	report := e.Consolidate(g, ConsolidationParams{JaccardThreshold: 0.9, DryRun: false})
	require.True(t, report.Applied)

	node, _ := g.GetNode(low)
	require.Zero(t, node.Confidence)

	edges := g.EdgesFrom(other)
	require.Len(t, edges, 1)
	require.Equal(t, high, edges[0].TargetID)
}
