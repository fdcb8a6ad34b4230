package query

import (
	"sort"

	"github.com/xeolabs/amemcore/pkg/graph"
)

// AnalogicalParams configures an analogical-structure search. Exactly one
// of AnchorID or AnchorText should be set; AnchorText falls back to the
// best BM25 match as the anchor.
type AnalogicalParams struct {
	AnchorID          *uint64
	AnchorText        string
	K                 uint32
	TopK              int
	ExcludeSessionIDs []uint32
}

// AnalogicalMatch is one candidate analogous to the anchor, with both
// structural and content sub-scores.
type AnalogicalMatch struct {
	NodeID              uint64
	StructuralSimilarity float32
	ContentSimilarity    float32
	CombinedScore         float32
}

// Analogical finds nodes whose k-neighborhood has an edge-type and node-type
// profile similar to the anchor's, combined with content similarity.
func (e *Engine) Analogical(g *graph.MemoryGraph, params AnalogicalParams) ([]AnalogicalMatch, error) {
	anchorID, err := e.resolveAnchor(g, params)
	if err != nil {
		return nil, err
	}

	excluded := make(map[uint32]bool, len(params.ExcludeSessionIDs))
	for _, s := range params.ExcludeSessionIDs {
		excluded[s] = true
	}

	anchorSub, err := e.Context(g, anchorID, params.K)
	if err != nil {
		return nil, err
	}
	anchorEdgeProfile := typeMultiset(anchorSub.Edges)
	anchorNodeProfile := nodeTypeMultiset(anchorSub.Nodes)
	anchorNode, _ := g.GetNode(anchorID)

	var matches []AnalogicalMatch
	for _, n := range g.Nodes() {
		if n.ID == anchorID || excluded[n.SessionID] {
			continue
		}
		sub, err := e.Context(g, n.ID, params.K)
		if err != nil {
			continue
		}
		structSim := multisetSimilarity(anchorEdgeProfile, typeMultiset(sub.Edges)) * 0.5
		structSim += multisetSimilarity(anchorNodeProfile, nodeTypeMultiset(sub.Nodes)) * 0.5

		contentSim := cosineSimilarity(anchorNode.FeatureVec, n.FeatureVec)

		combined := 0.5*structSim + 0.5*contentSim
		matches = append(matches, AnalogicalMatch{n.ID, structSim, contentSim, combined})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].CombinedScore > matches[j].CombinedScore })
	if params.TopK > 0 && len(matches) > params.TopK {
		matches = matches[:params.TopK]
	}
	return matches, nil
}

func (e *Engine) resolveAnchor(g *graph.MemoryGraph, params AnalogicalParams) (uint64, error) {
	if params.AnchorID != nil {
		if _, ok := g.GetNode(*params.AnchorID); !ok {
			return 0, graph.NotFound("node", *params.AnchorID)
		}
		return *params.AnchorID, nil
	}
	hits := e.TextSearch(g, TextSearchParams{Query: params.AnchorText, MaxResults: 1})
	if len(hits) == 0 {
		return 0, graph.NewError(graph.KindNotFound, "no anchor match for text")
	}
	return hits[0].NodeID, nil
}

func typeMultiset(edges []graph.Edge) map[graph.EdgeType]int {
	m := make(map[graph.EdgeType]int)
	for _, e := range edges {
		m[e.EdgeType]++
	}
	return m
}

func nodeTypeMultiset(nodes []graph.CognitiveEvent) map[graph.EventType]int {
	m := make(map[graph.EventType]int)
	for _, n := range nodes {
		m[n.EventType]++
	}
	return m
}

// multisetSimilarity is a weighted Jaccard over two count multisets.
func multisetSimilarity[K comparable](a, b map[K]int) float32 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	keys := make(map[K]bool, len(a)+len(b))
	for k := range a {
		keys[k] = true
	}
	for k := range b {
		keys[k] = true
	}
	var inter, union int
	for k := range keys {
		x, y := a[k], b[k]
		if x < y {
			inter += x
			union += y
		} else {
			inter += y
			union += x
		}
	}
	if union == 0 {
		return 1
	}
	return float32(inter) / float32(union)
}
