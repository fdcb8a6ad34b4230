package query

import (
	"sort"

	"github.com/xeolabs/amemcore/pkg/graph"
)

// ConsolidationParams configures a consolidation pass.
type ConsolidationParams struct {
	JaccardThreshold    float32
	PromoteMinAccess    uint32
	PromoteMinConfidence float32
	PruneMaxDecay       float32
	DryRun              bool
}

// ConsolidationActionKind classifies one planned or applied consolidation
// action.
type ConsolidationActionKind int

const (
	ActionDedup ConsolidationActionKind = iota
	ActionLinkContradiction
	ActionPromote
	ActionPrune
)

// ConsolidationAction is one planned or applied mutation.
type ConsolidationAction struct {
	Kind      ConsolidationActionKind
	NodeID    uint64
	SurvivorID uint64 // ActionDedup: the node kept
	OtherID    uint64 // ActionLinkContradiction: the node it contradicts
}

// ConsolidationReport lists every planned or applied action.
type ConsolidationReport struct {
	Actions []ConsolidationAction
	Applied bool
}

// Consolidate plans (and, unless DryRun, applies) deduplication of
// near-identical facts, contradiction linking, inference promotion, and
// orphan pruning. No node is removed from the graph: a deduplicated node has
// its incoming edges moved to the survivor and its confidence set to 0, and
// a pruned node has its confidence and decay score set to 0.
func (e *Engine) Consolidate(g *graph.MemoryGraph, params ConsolidationParams) *ConsolidationReport {
	var actions []ConsolidationAction

	actions = append(actions, planDedup(g, params.JaccardThreshold)...)
	actions = append(actions, planContradictionLinks(g)...)
	actions = append(actions, planPromotions(g, params.PromoteMinAccess, params.PromoteMinConfidence)...)
	actions = append(actions, planPrune(g, params.PruneMaxDecay)...)

	report := &ConsolidationReport{Actions: actions}
	if params.DryRun {
		return report
	}

	applyConsolidation(g, actions)
	report.Applied = true
	return report
}

func planDedup(g *graph.MemoryGraph, threshold float32) []ConsolidationAction {
	facts := g.NodesByType(graph.EventFact)
	tokenSets := make(map[uint64]map[string]bool, len(facts))
	for _, id := range facts {
		n, _ := g.GetNode(id)
		set := make(map[string]bool)
		for _, t := range graph.Tokenize(n.Content) {
			set[t] = true
		}
		tokenSets[id] = set
	}

	seenSurvivor := make(map[uint64]uint64)
	var actions []ConsolidationAction
	for i := 0; i < len(facts); i++ {
		for j := i + 1; j < len(facts); j++ {
			a, b := facts[i], facts[j]
			if _, done := seenSurvivor[b]; done {
				continue
			}
			sim := jaccard(tokenSets[a], tokenSets[b])
			if sim < threshold {
				continue
			}
			na, _ := g.GetNode(a)
			nb, _ := g.GetNode(b)
			survivor, loser := a, b
			if nb.Confidence > na.Confidence {
				survivor, loser = b, a
			}
			seenSurvivor[loser] = survivor
			actions = append(actions, ConsolidationAction{Kind: ActionDedup, NodeID: loser, SurvivorID: survivor})
		}
	}
	return actions
}

func jaccard(a, b map[string]bool) float32 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float32(inter) / float32(union)
}

func planContradictionLinks(g *graph.MemoryGraph) []ConsolidationAction {
	facts := g.NodesByType(graph.EventFact)
	var actions []ConsolidationAction
	existing := make(map[[2]uint64]bool)
	for _, ed := range g.Edges() {
		if ed.EdgeType == graph.EdgeContradicts {
			existing[[2]uint64{ed.SourceID, ed.TargetID}] = true
		}
	}
	for i := 0; i < len(facts); i++ {
		ni, _ := g.GetNode(facts[i])
		if cueScore(ni.Content) == 0 {
			continue
		}
		for j := 0; j < len(facts); j++ {
			if i == j {
				continue
			}
			if existing[[2]uint64{facts[i], facts[j]}] {
				continue
			}
			nj, _ := g.GetNode(facts[j])
			if sharesSubject(ni.Content, nj.Content) {
				actions = append(actions, ConsolidationAction{Kind: ActionLinkContradiction, NodeID: facts[i], OtherID: facts[j]})
			}
		}
	}
	return actions
}

func sharesSubject(a, b string) bool {
	ta := graph.Tokenize(a)
	tb := make(map[string]bool)
	for _, t := range graph.Tokenize(b) {
		tb[t] = true
	}
	for _, t := range ta {
		if tb[t] {
			return true
		}
	}
	return false
}

func planPromotions(g *graph.MemoryGraph, minAccess uint32, minConfidence float32) []ConsolidationAction {
	var actions []ConsolidationAction
	for _, id := range g.NodesByType(graph.EventInference) {
		n, _ := g.GetNode(id)
		if n.AccessCount >= minAccess && n.Confidence >= minConfidence {
			actions = append(actions, ConsolidationAction{Kind: ActionPromote, NodeID: id})
		}
	}
	return actions
}

func planPrune(g *graph.MemoryGraph, maxDecay float32) []ConsolidationAction {
	var actions []ConsolidationAction
	for _, n := range g.Nodes() {
		if len(g.EdgesFrom(n.ID)) == 0 && len(g.EdgesTo(n.ID)) == 0 && n.DecayScore <= maxDecay {
			actions = append(actions, ConsolidationAction{Kind: ActionPrune, NodeID: n.ID})
		}
	}
	return actions
}

func applyConsolidation(g *graph.MemoryGraph, actions []ConsolidationAction) {
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Kind < actions[j].Kind })
	for _, a := range actions {
		switch a.Kind {
		case ActionDedup:
			g.RewireIncoming(a.NodeID, a.SurvivorID)
			g.MutateNode(a.NodeID, func(ev *graph.CognitiveEvent) { ev.Confidence = 0 })
		case ActionLinkContradiction:
			g.AddEdge(graph.NewEdge(a.NodeID, a.OtherID, graph.EdgeContradicts, 0.5))
		case ActionPromote:
			g.MutateNode(a.NodeID, func(ev *graph.CognitiveEvent) { ev.EventType = graph.EventFact })
		case ActionPrune:
			g.MutateNode(a.NodeID, func(ev *graph.CognitiveEvent) { ev.Confidence = 0; ev.DecayScore = 0 })
		}
	}
	g.EnsureAdjacency()
}
