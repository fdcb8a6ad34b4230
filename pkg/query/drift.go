package query

import (
	"sort"

	"github.com/xeolabs/amemcore/pkg/graph"
)

// ChangeType classifies how a node relates to the topic's prior state.
type ChangeType int

const (
	Unchanged ChangeType = iota
	ConfidenceShift
	Supersede
	Contradiction
)

// DriftParams selects the topic to track.
type DriftParams struct {
	TopicText string
	TopicVec  []float32
	MinScore  float32
}

// DriftSnapshot is one node's position in the topic's timeline.
type DriftSnapshot struct {
	NodeID     uint64
	SessionID  uint32
	CreatedAt  int64
	ChangeType ChangeType
}

// DriftResult summarizes how a topic evolved across sessions.
type DriftResult struct {
	Timeline        []DriftSnapshot
	StabilityScore  float32
	LikelyToChange  bool
}

// Drift collects nodes relevant to a topic across every session and
// classifies how each relates to the rest of the timeline.
func (e *Engine) Drift(g *graph.MemoryGraph, params DriftParams) *DriftResult {
	var relevant []graph.CognitiveEvent
	if params.TopicText != "" {
		for _, hit := range e.TextSearch(g, TextSearchParams{Query: params.TopicText, MinScore: params.MinScore}) {
			if n, ok := g.GetNode(hit.NodeID); ok {
				relevant = append(relevant, n)
			}
		}
	}
	if len(params.TopicVec) > 0 {
		seen := make(map[uint64]bool, len(relevant))
		for _, n := range relevant {
			seen[n.ID] = true
		}
		for _, m := range e.Similarity(g, SimilarityParams{QueryVec: params.TopicVec, MinSimilarity: params.MinScore, SkipZeroVectors: true}) {
			if seen[m.NodeID] {
				continue
			}
			if n, ok := g.GetNode(m.NodeID); ok {
				relevant = append(relevant, n)
			}
		}
	}

	sort.SliceStable(relevant, func(i, j int) bool { return relevant[i].CreatedAt < relevant[j].CreatedAt })

	supersededIDs := make(map[uint64]bool)
	contradictedIDs := make(map[uint64]bool)
	for _, n := range relevant {
		for _, ed := range g.EdgesFrom(n.ID) {
			switch ed.EdgeType {
			case graph.EdgeSupersedes:
				supersededIDs[ed.TargetID] = true
			case graph.EdgeContradicts:
				contradictedIDs[ed.TargetID] = true
				contradictedIDs[n.ID] = true
			}
		}
	}

	timeline := make([]DriftSnapshot, 0, len(relevant))
	changes := 0
	var prevConfidence float32
	for i, n := range relevant {
		kind := Unchanged
		switch {
		case contradictedIDs[n.ID]:
			kind = Contradiction
		case supersededIDs[n.ID]:
			kind = Supersede
		case i > 0 && absf32(n.Confidence-prevConfidence) > 0.2:
			kind = ConfidenceShift
		}
		if kind != Unchanged {
			changes++
		}
		prevConfidence = n.Confidence
		timeline = append(timeline, DriftSnapshot{NodeID: n.ID, SessionID: n.SessionID, CreatedAt: n.CreatedAt, ChangeType: kind})
	}

	changeRate := float32(0)
	if len(timeline) > 0 {
		changeRate = float32(changes) / float32(len(timeline))
	}
	stability := 1 - changeRate

	return &DriftResult{Timeline: timeline, StabilityScore: stability, LikelyToChange: stability < 0.5}
}

func absf32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
