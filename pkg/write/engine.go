// Package write implements the memory formation pipeline: ingest, correction
// (supersedes), session compression into an episode node, and batch decay.
package write

import (
	"math"

	"github.com/xeolabs/amemcore/pkg/graph"
)

// microsPerDay converts the decay formula's day unit to the graph's
// microsecond timestamps.
const microsPerDay = 86_400_000_000.0

// decayLambda is the exponential recency decay rate, per day.
const decayLambda = 0.01

// lowImportanceThreshold marks a node as a low-importance/archival candidate.
const lowImportanceThreshold = 0.1

// Engine orchestrates memory formation against a MemoryGraph.
type Engine struct {
	dimension int
}

// New creates a write engine for graphs of the given feature-vector
// dimension.
func New(dimension int) *Engine {
	return &Engine{dimension: dimension}
}

// IngestResult reports the outcome of Ingest.
type IngestResult struct {
	NewNodeIDs    []uint64
	NewEdgeCount  int
	TouchedNodeIDs []uint64
}

// Ingest adds each event, then each edge, rebuilds adjacency once, and
// touches every existing node that ends up as the target of an edge
// originating from a newly added node.
func (e *Engine) Ingest(g *graph.MemoryGraph, events []graph.CognitiveEvent, edges []graph.Edge) (*IngestResult, error) {
	newIDs := make([]uint64, 0, len(events))
	for _, ev := range events {
		id, err := g.AddNode(ev)
		if err != nil {
			return nil, err
		}
		newIDs = append(newIDs, id)
	}

	newEdgeCount := 0
	for _, ed := range edges {
		if err := g.AddEdge(ed); err != nil {
			return nil, err
		}
		newEdgeCount++
	}
	g.EnsureAdjacency()

	newSet := make(map[uint64]bool, len(newIDs))
	for _, id := range newIDs {
		newSet[id] = true
	}
	touchedSeen := make(map[uint64]bool)
	var touched []uint64
	for _, ed := range g.Edges() {
		if newSet[ed.SourceID] && !newSet[ed.TargetID] && !touchedSeen[ed.TargetID] {
			touchedSeen[ed.TargetID] = true
			touched = append(touched, ed.TargetID)
		}
	}
	for _, id := range touched {
		g.Touch(id)
	}

	return &IngestResult{
		NewNodeIDs:     newIDs,
		NewEdgeCount:   newEdgeCount,
		TouchedNodeIDs: touched,
	}, nil
}

// Correct creates a new Correction node, links it to oldID via Supersedes,
// and zeros the old node's confidence. Fails with KindNotFound if oldID is
// unknown.
func (e *Engine) Correct(g *graph.MemoryGraph, oldID uint64, newContent string, sessionID uint32) (uint64, error) {
	if _, ok := g.GetNode(oldID); !ok {
		return 0, graph.NotFound("node", oldID)
	}

	newID, err := g.AddNode(graph.CognitiveEvent{
		EventType:  graph.EventCorrection,
		SessionID:  sessionID,
		Confidence: 1.0,
		Content:    newContent,
		FeatureVec: make([]float32, e.dimension),
	})
	if err != nil {
		return 0, err
	}

	if err := g.AddEdge(graph.NewEdge(newID, oldID, graph.EdgeSupersedes, 1.0)); err != nil {
		return 0, err
	}
	g.EnsureAdjacency()

	g.MutateNode(oldID, func(ev *graph.CognitiveEvent) { ev.Confidence = 0 })

	return newID, nil
}

// CompressSession creates an Episode node in sessionID and links every node
// currently in that session to it via PartOf.
func (e *Engine) CompressSession(g *graph.MemoryGraph, sessionID uint32, summary string) (uint64, error) {
	members := g.NodesBySession(sessionID)

	episodeID, err := g.AddNode(graph.CognitiveEvent{
		EventType:  graph.EventEpisode,
		SessionID:  sessionID,
		Confidence: 1.0,
		Content:    summary,
		FeatureVec: make([]float32, e.dimension),
	})
	if err != nil {
		return 0, err
	}

	for _, memberID := range members {
		if err := g.AddEdge(graph.NewEdge(memberID, episodeID, graph.EdgePartOf, 1.0)); err != nil {
			return 0, err
		}
	}
	g.EnsureAdjacency()

	return episodeID, nil
}

// Touch increments access_count and sets last_accessed to now for a single
// node.
func (e *Engine) Touch(g *graph.MemoryGraph, nodeID uint64) error {
	if !g.Touch(nodeID) {
		return graph.NotFound("node", nodeID)
	}
	return nil
}

// DecayReport summarizes a RunDecay pass.
type DecayReport struct {
	NodesDecayed        int
	LowImportanceNodeIDs []uint64
}

// CalculateDecay computes the decay score for a single node at currentTime
// (microseconds since epoch):
//
//	decay = base_importance * exp(-lambda * days_since_last_access) * min(1, log2(access_count+1)/10)
//
// clamped to [0,1].
func CalculateDecay(ev graph.CognitiveEvent, currentTime int64) float32 {
	base := ev.EventType.BaseImportance()

	elapsed := currentTime - ev.LastAccessed
	if elapsed < 0 {
		elapsed = 0
	}
	days := float64(elapsed) / microsPerDay
	recency := math.Exp(-decayLambda * days)

	access := math.Min(1.0, math.Log2(float64(ev.AccessCount)+1)/10.0)

	score := float32(base) * float32(recency) * float32(access)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// RunDecay recomputes decay_score for every node at currentTime and reports
// which nodes changed and which fell below lowImportanceThreshold.
func (e *Engine) RunDecay(g *graph.MemoryGraph, currentTime int64) *DecayReport {
	report := &DecayReport{}
	for _, n := range g.Nodes() {
		newScore := CalculateDecay(n, currentTime)
		if diff := newScore - n.DecayScore; diff > 1e-7 || diff < -1e-7 {
			g.MutateNode(n.ID, func(ev *graph.CognitiveEvent) { ev.DecayScore = newScore })
			report.NodesDecayed++
		}
		if newScore < lowImportanceThreshold {
			report.LowImportanceNodeIDs = append(report.LowImportanceNodeIDs, n.ID)
		}
	}
	return report
}
