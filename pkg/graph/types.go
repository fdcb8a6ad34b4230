// Package graph implements the in-memory cognitive memory graph: node and edge
// value types, insertion-ordered arenas, and the derived indexes (by-type,
// by-session, by-time, adjacency, BM25 term index) that the write and query
// engines operate on.
package graph

import "time"

// DefaultDimension is the feature-vector width used when a graph is opened
// without an explicit dimension.
const DefaultDimension = 128

// MaxContentSize is the largest content payload (pre-compression) a node may
// carry.
const MaxContentSize = 64 * 1024

// MaxEdgesPerNode bounds the number of outgoing edges a single node may own.
const MaxEdgesPerNode = 4096

// EventType classifies a CognitiveEvent.
type EventType uint8

const (
	EventFact EventType = iota
	EventDecision
	EventInference
	EventCorrection
	EventSkill
	EventEpisode
)

var eventTypeNames = [...]string{"Fact", "Decision", "Inference", "Correction", "Skill", "Episode"}

// String renders the event type name, or "Unknown" for out-of-range values.
func (t EventType) String() string {
	if int(t) < len(eventTypeNames) {
		return eventTypeNames[t]
	}
	return "Unknown"
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return int(t) < len(eventTypeNames)
}

// BaseImportance returns the decay formula's type-dependent weight.
func (t EventType) BaseImportance() float32 {
	switch t {
	case EventFact, EventDecision, EventCorrection:
		return 1.0
	case EventInference, EventSkill:
		return 0.8
	case EventEpisode:
		return 0.6
	default:
		return 0.6
	}
}

// EdgeType classifies an Edge.
type EdgeType uint8

const (
	EdgeCausedBy EdgeType = iota
	EdgeSupports
	EdgeContradicts
	EdgeSupersedes
	EdgeRelatedTo
	EdgePartOf
	EdgeTemporalNext
)

var edgeTypeNames = [...]string{"CausedBy", "Supports", "Contradicts", "Supersedes", "RelatedTo", "PartOf", "TemporalNext"}

// String renders the edge type name, or "Unknown" for out-of-range values.
func (t EdgeType) String() string {
	if int(t) < len(edgeTypeNames) {
		return edgeTypeNames[t]
	}
	return "Unknown"
}

// Valid reports whether t is a known edge type.
func (t EdgeType) Valid() bool {
	return int(t) < len(edgeTypeNames)
}

// EdgeTypeFromName resolves a canonical edge type name back to its value.
func EdgeTypeFromName(name string) (EdgeType, bool) {
	for i, n := range edgeTypeNames {
		if n == name {
			return EdgeType(i), true
		}
	}
	return 0, false
}

// NowMicros returns the current time in microseconds since the Unix epoch,
// the timestamp unit used throughout CognitiveEvent and Edge.
func NowMicros() int64 {
	return time.Now().UnixMicro()
}

// CognitiveEvent is a single memory node.
type CognitiveEvent struct {
	ID           uint64
	EventType    EventType
	CreatedAt    int64 // microseconds since epoch
	LastAccessed int64 // microseconds since epoch
	SessionID    uint32
	Confidence   float32
	AccessCount  uint32
	DecayScore   float32
	Content      string
	FeatureVec   []float32
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamp enforces confidence and decay_score ∈ [0,1] in place.
func (e *CognitiveEvent) Clamp() {
	e.Confidence = clamp01(e.Confidence)
	e.DecayScore = clamp01(e.DecayScore)
}

// Edge is a directed, typed relation between two nodes.
type Edge struct {
	SourceID  uint64
	TargetID  uint64
	EdgeType  EdgeType
	Weight    float32
	CreatedAt int64 // microseconds since epoch
}

// NewEdge builds an edge stamped with the current time, weight clamped to
// [0,1].
func NewEdge(source, target uint64, edgeType EdgeType, weight float32) Edge {
	return Edge{
		SourceID:  source,
		TargetID:  target,
		EdgeType:  edgeType,
		Weight:    clamp01(weight),
		CreatedAt: NowMicros(),
	}
}
