package query

import (
	"sort"

	"github.com/xeolabs/amemcore/pkg/graph"
)

// PatternSort orders Pattern results.
type PatternSort int

const (
	MostRecent PatternSort = iota
	HighestConfidence
	MostAccessed
	MostImportant
)

// PatternParams filters nodes by event type, session, confidence range,
// creation window, and decay score.
type PatternParams struct {
	EventTypes    []graph.EventType
	MinConfidence *float32
	MaxConfidence *float32
	SessionIDs    []uint32
	CreatedAfter  *int64
	CreatedBefore *int64
	MinDecayScore *float32
	MaxResults    int
	SortBy        PatternSort
}

// Pattern returns nodes matching params, sorted and truncated.
func (e *Engine) Pattern(g *graph.MemoryGraph, params PatternParams) []graph.CognitiveEvent {
	var candidates []graph.CognitiveEvent

	switch {
	case len(params.EventTypes) > 0:
		seen := make(map[uint64]bool)
		for _, t := range params.EventTypes {
			for _, id := range g.NodesByType(t) {
				if seen[id] {
					continue
				}
				seen[id] = true
				if n, ok := g.GetNode(id); ok {
					candidates = append(candidates, n)
				}
			}
		}
	case len(params.SessionIDs) > 0:
		seen := make(map[uint64]bool)
		for _, sid := range params.SessionIDs {
			for _, id := range g.NodesBySession(sid) {
				if seen[id] {
					continue
				}
				seen[id] = true
				if n, ok := g.GetNode(id); ok {
					candidates = append(candidates, n)
				}
			}
		}
	default:
		candidates = append(candidates, g.Nodes()...)
	}

	if len(params.EventTypes) > 0 {
		typeSet := make(map[graph.EventType]bool, len(params.EventTypes))
		for _, t := range params.EventTypes {
			typeSet[t] = true
		}
		candidates = filterEvents(candidates, func(n graph.CognitiveEvent) bool { return typeSet[n.EventType] })
	}
	if len(params.SessionIDs) > 0 {
		sessionSet := make(map[uint32]bool, len(params.SessionIDs))
		for _, s := range params.SessionIDs {
			sessionSet[s] = true
		}
		candidates = filterEvents(candidates, func(n graph.CognitiveEvent) bool { return sessionSet[n.SessionID] })
	}
	if params.MinConfidence != nil {
		min := *params.MinConfidence
		candidates = filterEvents(candidates, func(n graph.CognitiveEvent) bool { return n.Confidence >= min })
	}
	if params.MaxConfidence != nil {
		max := *params.MaxConfidence
		candidates = filterEvents(candidates, func(n graph.CognitiveEvent) bool { return n.Confidence <= max })
	}
	if params.CreatedAfter != nil {
		after := *params.CreatedAfter
		candidates = filterEvents(candidates, func(n graph.CognitiveEvent) bool { return n.CreatedAt >= after })
	}
	if params.CreatedBefore != nil {
		before := *params.CreatedBefore
		candidates = filterEvents(candidates, func(n graph.CognitiveEvent) bool { return n.CreatedAt <= before })
	}
	if params.MinDecayScore != nil {
		min := *params.MinDecayScore
		candidates = filterEvents(candidates, func(n graph.CognitiveEvent) bool { return n.DecayScore >= min })
	}

	switch params.SortBy {
	case MostRecent:
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].CreatedAt > candidates[j].CreatedAt })
	case HighestConfidence:
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Confidence > candidates[j].Confidence })
	case MostAccessed:
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].AccessCount > candidates[j].AccessCount })
	case MostImportant:
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].DecayScore > candidates[j].DecayScore })
	}

	if params.MaxResults > 0 && len(candidates) > params.MaxResults {
		candidates = candidates[:params.MaxResults]
	}
	return candidates
}

func filterEvents(in []graph.CognitiveEvent, keep func(graph.CognitiveEvent) bool) []graph.CognitiveEvent {
	out := in[:0:0]
	for _, n := range in {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}
