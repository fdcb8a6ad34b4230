package query

import "github.com/xeolabs/amemcore/pkg/graph"

// TimeRangeKind selects how a TimeRange resolves to a node-id set.
type TimeRangeKind int

const (
	TimeWindow TimeRangeKind = iota
	Session
	Sessions
)

// TimeRange names one side of a Temporal comparison.
type TimeRange struct {
	Kind       TimeRangeKind
	Start, End int64
	SessionID  uint32
	SessionIDs []uint32
}

// TemporalParams compares two time ranges (windows or sessions).
type TemporalParams struct {
	RangeA TimeRange
	RangeB TimeRange
}

// TemporalResult reports how the graph changed between RangeA and RangeB.
type TemporalResult struct {
	Added             []uint64
	Corrected         [][2]uint64 // [oldID, newID]
	Unchanged         []uint64
	PotentiallyStale  []uint64
}

// Temporal compares two time ranges: what's new in B, what B corrected from
// A via Supersedes, and what in A is unchanged vs. potentially stale.
func (e *Engine) Temporal(g *graph.MemoryGraph, params TemporalParams) *TemporalResult {
	nodesA := collectRangeNodes(g, params.RangeA)
	nodesB := collectRangeNodes(g, params.RangeB)

	setA := make(map[uint64]bool, len(nodesA))
	for _, id := range nodesA {
		setA[id] = true
	}

	var corrected [][2]uint64
	correctedA := make(map[uint64]bool)
	for _, idB := range nodesB {
		for _, ed := range g.EdgesFrom(idB) {
			if ed.EdgeType == graph.EdgeSupersedes && setA[ed.TargetID] {
				corrected = append(corrected, [2]uint64{ed.TargetID, idB})
				correctedA[ed.TargetID] = true
			}
		}
	}

	var added []uint64
	for _, id := range nodesB {
		if !setA[id] {
			added = append(added, id)
		}
	}

	var unchanged, stale []uint64
	for _, id := range nodesA {
		if correctedA[id] {
			continue
		}
		n, ok := g.GetNode(id)
		if !ok {
			continue
		}
		if n.DecayScore > 0.3 {
			unchanged = append(unchanged, id)
		} else {
			stale = append(stale, id)
		}
	}

	return &TemporalResult{Added: added, Corrected: corrected, Unchanged: unchanged, PotentiallyStale: stale}
}

func collectRangeNodes(g *graph.MemoryGraph, r TimeRange) []uint64 {
	switch r.Kind {
	case TimeWindow:
		return g.NodesByTimeRange(r.Start, r.End)
	case Session:
		return g.NodesBySession(r.SessionID)
	case Sessions:
		seen := make(map[uint64]bool)
		var ids []uint64
		for _, sid := range r.SessionIDs {
			for _, id := range g.NodesBySession(sid) {
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
		return ids
	default:
		return nil
	}
}
