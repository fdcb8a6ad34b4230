package query

import (
	"sort"

	"github.com/xeolabs/amemcore/pkg/graph"
)

// rrfK is the Reciprocal Rank Fusion rank-damping constant.
const rrfK = 60

// HybridParams runs BM25 and, when QueryVec is non-empty, cosine similarity,
// fusing both rankings with Reciprocal Rank Fusion.
type HybridParams struct {
	Query      string
	QueryVec   []float32
	TextWeight float32
	VecWeight  float32
	EventTypes []graph.EventType
	MaxResults int
}

// HybridHit carries both sub-scores and sub-ranks alongside the fused score.
type HybridHit struct {
	NodeID      uint64
	Score       float32
	TextScore   float32
	TextRank    int // 0 = not ranked
	VecScore    float32
	VecRank     int
}

// Hybrid fuses text and vector search results: score = text_weight/(k+text_rank) + vec_weight/(k+vec_rank).
func (e *Engine) Hybrid(g *graph.MemoryGraph, params HybridParams) []HybridHit {
	textHits := e.TextSearch(g, TextSearchParams{Query: params.Query, EventTypes: params.EventTypes})

	var vecHits []SimilarityMatch
	if len(params.QueryVec) > 0 {
		vecHits = e.Similarity(g, SimilarityParams{
			QueryVec:        params.QueryVec,
			EventTypes:      params.EventTypes,
			SkipZeroVectors: true,
			MinSimilarity:   -1,
		})
	}

	textRank := make(map[uint64]int, len(textHits))
	textScore := make(map[uint64]float32, len(textHits))
	for i, h := range textHits {
		textRank[h.NodeID] = i + 1
		textScore[h.NodeID] = h.Score
	}
	vecRank := make(map[uint64]int, len(vecHits))
	vecScore := make(map[uint64]float32, len(vecHits))
	for i, h := range vecHits {
		vecRank[h.NodeID] = i + 1
		vecScore[h.NodeID] = h.Similarity
	}

	allIDs := make(map[uint64]bool, len(textHits)+len(vecHits))
	for id := range textRank {
		allIDs[id] = true
	}
	for id := range vecRank {
		allIDs[id] = true
	}

	hits := make([]HybridHit, 0, len(allIDs))
	for id := range allIDs {
		var score float32
		if r, ok := textRank[id]; ok {
			score += params.TextWeight / float32(rrfK+r)
		}
		if r, ok := vecRank[id]; ok {
			score += params.VecWeight / float32(rrfK+r)
		}
		hits = append(hits, HybridHit{
			NodeID:    id,
			Score:     score,
			TextScore: textScore[id],
			TextRank:  textRank[id],
			VecScore:  vecScore[id],
			VecRank:   vecRank[id],
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].NodeID < hits[j].NodeID
	})
	if params.MaxResults > 0 && len(hits) > params.MaxResults {
		hits = hits[:params.MaxResults]
	}
	return hits
}
