package query

import (
	"math"
	"sort"

	"github.com/xeolabs/amemcore/pkg/graph"
)

// SimilarityParams configures a feature-vector nearest-neighbor search.
type SimilarityParams struct {
	QueryVec        []float32
	TopK            int
	MinSimilarity   float32
	EventTypes      []graph.EventType
	SkipZeroVectors bool
}

// SimilarityMatch is one ranked result of Similarity.
type SimilarityMatch struct {
	NodeID     uint64
	Similarity float32
}

// Similarity ranks nodes by cosine similarity of their feature vector
// against QueryVec.
func (e *Engine) Similarity(g *graph.MemoryGraph, params SimilarityParams) []SimilarityMatch {
	typeFilter := edgeTypeSetEvent(params.EventTypes)

	var matches []SimilarityMatch
	for _, n := range g.Nodes() {
		if len(typeFilter) > 0 && !typeFilter[n.EventType] {
			continue
		}
		if params.SkipZeroVectors && isZeroVector(n.FeatureVec) {
			continue
		}
		sim := cosineSimilarity(params.QueryVec, n.FeatureVec)
		if sim >= params.MinSimilarity {
			matches = append(matches, SimilarityMatch{NodeID: n.ID, Similarity: sim})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if params.TopK > 0 && len(matches) > params.TopK {
		matches = matches[:params.TopK]
	}
	return matches
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// cosineSimilarity returns 0 for mismatched dimensions or zero-magnitude
// vectors rather than NaN.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func edgeTypeSetEvent(types []graph.EventType) map[graph.EventType]bool {
	set := make(map[graph.EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}
