package query

import (
	"math"
	"sort"
	"strings"

	"github.com/coregx/ahocorasick"
	"github.com/xeolabs/amemcore/pkg/graph"
)

// contradictionCues are the negation/reversal phrases scanned for when no
// cheaper structural signal (a Contradicts edge) is available.
var contradictionCues = []string{
	"no longer", "not ", "never", "instead of", "contrary to", "reversed", "retracted", "false",
}

var contradictionAutomaton *ahocorasick.Automaton

func init() {
	automaton, err := ahocorasick.NewBuilder().
		AddStrings(contradictionCues).
		SetMatchKind(ahocorasick.LeftmostLongest).
		Build()
	if err != nil {
		panic(err)
	}
	contradictionAutomaton = automaton
}

// cueScore returns the number of contradiction-cue matches in text (repeats
// and overlaps each count) divided by the number of cues, capped at 1.
func cueScore(text string) float32 {
	matches := contradictionAutomaton.FindAllOverlapping([]byte(strings.ToLower(text)))
	if len(matches) == 0 {
		return 0
	}
	score := float32(len(matches)) / float32(len(contradictionCues))
	if score > 1 {
		score = 1
	}
	return score
}

// BeliefRevisionParams configures a belief-revision pass against a
// hypothesis. TextWeight and VecWeight are the configurable
// contradiction-strength weights (the source left this heuristic
// unspecified).
type BeliefRevisionParams struct {
	HypothesisText          string
	HypothesisVec           []float32
	TextWeight              float32
	VecWeight               float32
	ContradictionThreshold  float32
	MaxDepth                uint32
	DecayFactor             float32
}

// WeakenedNode is one node whose confidence cascades downward from a
// contradiction.
type WeakenedNode struct {
	NodeID           uint64
	Depth            uint32
	OriginalConfidence float32
	RevisedConfidence  float32
	Invalidated        bool
}

// ContradictedNode is a node scored as contradicting the hypothesis.
type ContradictedNode struct {
	NodeID               uint64
	ContradictionStrength float32
}

// BeliefRevisionResult reports contradicted nodes and their cascaded
// weakenings.
type BeliefRevisionResult struct {
	Contradicted []ContradictedNode
	Weakened     []WeakenedNode
}

// BeliefRevision ranks nodes that contradict the hypothesis (by cue-phrase
// presence and vector dissimilarity), then cascades confidence reduction to
// nodes that Support/are CausedBy from each contradicted node.
func (e *Engine) BeliefRevision(g *graph.MemoryGraph, params BeliefRevisionParams) *BeliefRevisionResult {
	var contradicted []ContradictedNode
	for _, n := range g.Nodes() {
		var textPart, vecPart float32
		if params.HypothesisText != "" {
			textPart = cueScore(n.Content)
		}
		if len(params.HypothesisVec) > 0 && len(n.FeatureVec) > 0 {
			sim := cosineSimilarity(params.HypothesisVec, n.FeatureVec)
			vecPart = 1 - sim
			if vecPart < 0 {
				vecPart = 0
			}
		}
		strength := params.TextWeight*textPart + params.VecWeight*vecPart
		if strength >= params.ContradictionThreshold {
			contradicted = append(contradicted, ContradictedNode{n.ID, strength})
		}
	}
	sort.SliceStable(contradicted, func(i, j int) bool {
		return contradicted[i].ContradictionStrength > contradicted[j].ContradictionStrength
	})

	weakenedSeen := make(map[uint64]bool)
	var weakened []WeakenedNode
	depSet := edgeTypeSet([]graph.EdgeType{graph.EdgeSupports, graph.EdgeCausedBy})

	for _, c := range contradicted {
		visited := map[uint64]bool{c.NodeID: true}
		queue := []queueEntry{{c.NodeID, 0}}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if cur.depth >= params.MaxDepth {
				continue
			}
			for _, ed := range g.EdgesTo(cur.id) {
				if !depSet[ed.EdgeType] || visited[ed.SourceID] {
					continue
				}
				visited[ed.SourceID] = true
				depth := cur.depth + 1
				node, ok := g.GetNode(ed.SourceID)
				if !ok {
					continue
				}
				decayMul := float32(math.Pow(float64(params.DecayFactor), float64(depth)))
				revised := node.Confidence * (1 - c.ContradictionStrength*decayMul)
				if revised < 0 {
					revised = 0
				}
				invalidated := node.EventType == graph.EventDecision && revised < 0.5
				if !weakenedSeen[ed.SourceID] {
					weakenedSeen[ed.SourceID] = true
					weakened = append(weakened, WeakenedNode{
						NodeID: ed.SourceID, Depth: depth,
						OriginalConfidence: node.Confidence, RevisedConfidence: revised,
						Invalidated: invalidated,
					})
				}
				queue = append(queue, queueEntry{ed.SourceID, depth})
			}
		}
	}

	return &BeliefRevisionResult{Contradicted: contradicted, Weakened: weakened}
}
