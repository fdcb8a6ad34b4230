package query

import (
	"github.com/xeolabs/amemcore/pkg/graph"
	"github.com/xeolabs/amemcore/pkg/pool"
)

// QualityParams sets the thresholds memory quality rolls up against.
type QualityParams struct {
	LowConfidenceThreshold float32
	StaleDecayThreshold    float32
	ExampleLimit           int
}

// QualityReport rolls up graph-wide health counters with example ids per
// category.
type QualityReport struct {
	NodeCount              int
	EdgeCount              int
	LowConfidenceCount     int
	LowConfidenceExamples  []uint64
	StaleCount             int
	StaleExamples          []uint64
	OrphanCount            int
	OrphanExamples         []uint64
	UnsupportedDecisionCount int
	UnsupportedDecisionExamples []uint64
	ContradictionEdgeCount  int
	SupersedesEdgeCount     int
}

// MemoryQuality computes the graph-wide health rollup described for gap
// detection's summary, but as a standalone report.
func (e *Engine) MemoryQuality(g *graph.MemoryGraph, params QualityParams) *QualityReport {
	report := &QualityReport{NodeCount: g.NodeCount(), EdgeCount: g.EdgeCount()}
	limit := params.ExampleLimit
	if limit <= 0 {
		limit = 10
	}

	add := func(examples *[]uint64, id uint64) {
		if len(*examples) < limit {
			*examples = append(*examples, id)
		}
	}

	for _, n := range g.Nodes() {
		if n.Confidence < params.LowConfidenceThreshold {
			report.LowConfidenceCount++
			add(&report.LowConfidenceExamples, n.ID)
		}
		if n.DecayScore < params.StaleDecayThreshold {
			report.StaleCount++
			add(&report.StaleExamples, n.ID)
		}
		if len(g.EdgesFrom(n.ID)) == 0 && len(g.EdgesTo(n.ID)) == 0 {
			report.OrphanCount++
			add(&report.OrphanExamples, n.ID)
		}
		if n.EventType == graph.EventDecision {
			supported := false
			for _, ed := range g.EdgesTo(n.ID) {
				if ed.EdgeType == graph.EdgeSupports || ed.EdgeType == graph.EdgeCausedBy {
					supported = true
					break
				}
			}
			if !supported {
				report.UnsupportedDecisionCount++
				add(&report.UnsupportedDecisionExamples, n.ID)
			}
		}
	}

	for _, ed := range g.Edges() {
		switch ed.EdgeType {
		case graph.EdgeContradicts:
			report.ContradictionEdgeCount++
		case graph.EdgeSupersedes:
			report.SupersedesEdgeCount++
		}
	}

	return report
}

// ToMap renders the report as a JSON-ready map using the pooled map/slice
// helpers shared with the Session Manager's health ledger writer. The
// caller must call pool.PutMap on the result once it has been marshaled.
func (r *QualityReport) ToMap() map[string]interface{} {
	m := pool.GetMap()
	m["node_count"] = r.NodeCount
	m["edge_count"] = r.EdgeCount
	m["low_confidence_count"] = r.LowConfidenceCount
	m["low_confidence_examples"] = uint64sToAny(r.LowConfidenceExamples)
	m["stale_count"] = r.StaleCount
	m["stale_examples"] = uint64sToAny(r.StaleExamples)
	m["orphan_count"] = r.OrphanCount
	m["orphan_examples"] = uint64sToAny(r.OrphanExamples)
	m["unsupported_decision_count"] = r.UnsupportedDecisionCount
	m["unsupported_decision_examples"] = uint64sToAny(r.UnsupportedDecisionExamples)
	m["contradiction_edge_count"] = r.ContradictionEdgeCount
	m["supersedes_edge_count"] = r.SupersedesEdgeCount
	return m
}

func uint64sToAny(ids []uint64) []interface{} {
	s := pool.GetSlice()
	for _, id := range ids {
		s = append(s, id)
	}
	return s
}
