package query

import "github.com/xeolabs/amemcore/pkg/graph"

// GapKind classifies a detected knowledge gap.
type GapKind int

const (
	UnjustifiedDecision GapKind = iota
	SingleSourceInference
	LowConfidenceFoundation
	UnstableKnowledge
	StaleEvidence
)

// GapParams configures gap detection thresholds.
type GapParams struct {
	LowConfidenceThreshold float32
	MinDownstreamSupport   int
	CorrectionRateThreshold float32
	StaleDecayThreshold    float32
	StaleDownstreamMin     int
}

// Gap is one detected knowledge gap.
type Gap struct {
	NodeID         uint64
	Kind           GapKind
	Severity       float32
	DownstreamCount int
}

// GapReport bundles every detected gap with an overall health score.
type GapReport struct {
	Gaps        []Gap
	HealthScore float32
}

// DetectGaps scans the graph for unjustified decisions, single-source
// inferences, low-confidence foundations with downstream reliance, unstable
// (heavily corrected) knowledge, and stale evidence still relied upon.
func (e *Engine) DetectGaps(g *graph.MemoryGraph, params GapParams) *GapReport {
	var gaps []Gap

	downstreamCount := func(id uint64) int {
		return len(g.EdgesTo(id))
	}
	supportInCount := func(id uint64, types ...graph.EdgeType) int {
		set := edgeTypeSet(types)
		count := 0
		for _, ed := range g.EdgesTo(id) {
			if set[ed.EdgeType] {
				count++
			}
		}
		return count
	}

	for _, n := range g.Nodes() {
		switch n.EventType {
		case graph.EventDecision:
			if supportInCount(n.ID, graph.EdgeSupports, graph.EdgeCausedBy) == 0 {
				gaps = append(gaps, Gap{n.ID, UnjustifiedDecision, 0.8, downstreamCount(n.ID)})
			}
		case graph.EventInference:
			if supportInCount(n.ID, graph.EdgeSupports) == 1 {
				gaps = append(gaps, Gap{n.ID, SingleSourceInference, 0.5, downstreamCount(n.ID)})
			}
		}

		down := downstreamCount(n.ID)
		if n.Confidence < params.LowConfidenceThreshold && down >= params.MinDownstreamSupport {
			severity := (params.LowConfidenceThreshold - n.Confidence) / maxf32(params.LowConfidenceThreshold, 0.01)
			gaps = append(gaps, Gap{n.ID, LowConfidenceFoundation, clampf32(severity), down})
		}

		corrections := supportInCount(n.ID, graph.EdgeSupersedes)
		total := down
		if total > 0 && float32(corrections)/float32(total) >= params.CorrectionRateThreshold {
			gaps = append(gaps, Gap{n.ID, UnstableKnowledge, float32(corrections) / float32(total), down})
		}

		if n.DecayScore < params.StaleDecayThreshold && down >= params.StaleDownstreamMin {
			severity := (params.StaleDecayThreshold - n.DecayScore) / maxf32(params.StaleDecayThreshold, 0.01)
			gaps = append(gaps, Gap{n.ID, StaleEvidence, clampf32(severity), down})
		}
	}

	health := float32(1)
	if total := g.NodeCount(); total > 0 {
		health = 1 - float32(len(gaps))/float32(total)
		health = clampf32(health)
	}

	return &GapReport{Gaps: gaps, HealthScore: health}
}

func maxf32(a, min float32) float32 {
	if a < min {
		return min
	}
	return a
}

func clampf32(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
