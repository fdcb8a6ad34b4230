package immortal

import (
	"sort"
	"time"

	"github.com/xeolabs/amemcore/pkg/graph"
)

// RetrievalStrategy selects how Retrieve orders candidate blocks before the
// token budget is applied.
type RetrievalStrategy string

const (
	StrategyRecency   RetrievalStrategy = "recency"
	StrategyRelevance RetrievalStrategy = "relevance"
	StrategyCausal    RetrievalStrategy = "causal"
	StrategyBalanced  RetrievalStrategy = "balanced"
)

// RetrieveRequest parameterizes Retrieve. AnchorSequence is only consulted
// for StrategyCausal. MinRelevance filters relevance/balanced results below
// the threshold.
type RetrieveRequest struct {
	Query          string
	TokenBudget    int
	Strategy       RetrievalStrategy
	MinRelevance   float32
	AnchorSequence uint64
}

// RetrieveResult is an ordered slice of blocks that fit within TokenBudget,
// plus bookkeeping about the retrieval itself.
type RetrieveResult struct {
	Blocks      []Block
	TokensUsed  int
	RetrievalMS float64
}

// approxTokens estimates a block's token cost as roughly four bytes per
// token, the common rough-cut heuristic when no tokenizer is wired in.
func approxTokens(text string) int {
	n := (len(text) + 3) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// relevanceScore is the fraction of query tokens present in the block's
// text, in [0, 1].
func relevanceScore(queryTokens []string, b Block) float32 {
	if len(queryTokens) == 0 {
		return 0
	}
	blockTokens := make(map[string]bool)
	for _, t := range graph.Tokenize(b.Text) {
		blockTokens[t] = true
	}
	var hits int
	for _, t := range queryTokens {
		if blockTokens[t] {
			hits++
		}
	}
	return float32(hits) / float32(len(queryTokens))
}

// Retrieve orders every resident block by the requested strategy and
// greedily packs as many as fit in TokenBudget (0 means unlimited).
func (l *Log) Retrieve(req RetrieveRequest) RetrieveResult {
	start := time.Now()

	l.mu.Lock()
	all := append([]Block(nil), l.blocks...)
	l.mu.Unlock()

	var ordered []Block
	switch req.Strategy {
	case StrategyRecency:
		ordered = recencyOrder(all)
	case StrategyRelevance:
		ordered = relevanceOrder(req.Query, all, req.MinRelevance)
	case StrategyCausal:
		ordered = l.causalOrder(req.AnchorSequence, all)
	default:
		ordered = balancedOrder(req.Query, all, req.MinRelevance)
	}

	var out []Block
	tokensUsed := 0
	for _, b := range ordered {
		t := approxTokens(b.Text)
		if req.TokenBudget > 0 && tokensUsed+t > req.TokenBudget {
			continue
		}
		out = append(out, b)
		tokensUsed += t
	}

	return RetrieveResult{
		Blocks:      out,
		TokensUsed:  tokensUsed,
		RetrievalMS: float64(time.Since(start).Microseconds()) / 1000.0,
	}
}

func recencyOrder(all []Block) []Block {
	out := make([]Block, len(all))
	copy(out, all)
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })
	return out
}

func relevanceOrder(query string, all []Block, minRelevance float32) []Block {
	tokens := graph.Tokenize(query)
	type scored struct {
		b     Block
		score float32
	}
	scoredBlocks := make([]scored, 0, len(all))
	for _, b := range all {
		s := relevanceScore(tokens, b)
		if s < minRelevance {
			continue
		}
		scoredBlocks = append(scoredBlocks, scored{b, s})
	}
	sort.SliceStable(scoredBlocks, func(i, j int) bool {
		if scoredBlocks[i].score != scoredBlocks[j].score {
			return scoredBlocks[i].score > scoredBlocks[j].score
		}
		return scoredBlocks[i].b.Sequence > scoredBlocks[j].b.Sequence
	})
	out := make([]Block, len(scoredBlocks))
	for i, s := range scoredBlocks {
		out[i] = s.b
	}
	return out
}

// balancedOrder fuses recency rank and relevance rank with the same
// Reciprocal Rank Fusion used for text/vector fusion elsewhere: score =
// 1/(k+recency_rank) + 1/(k+relevance_rank).
func balancedOrder(query string, all []Block, minRelevance float32) []Block {
	recency := recencyOrder(all)
	recencyRank := make(map[uint64]int, len(recency))
	for i, b := range recency {
		recencyRank[b.Sequence] = i + 1
	}

	tokens := graph.Tokenize(query)
	relevanceRank := make(map[uint64]int, len(all))
	relevant := make(map[uint64]bool, len(all))
	if len(tokens) > 0 {
		ranked := relevanceOrder(query, all, minRelevance)
		for i, b := range ranked {
			relevanceRank[b.Sequence] = i + 1
			relevant[b.Sequence] = true
		}
	}

	type scored struct {
		b     Block
		score float32
	}
	out := make([]scored, 0, len(all))
	for _, b := range all {
		if len(tokens) > 0 && minRelevance > 0 && !relevant[b.Sequence] {
			continue
		}
		var score float32
		if r, ok := recencyRank[b.Sequence]; ok {
			score += 1.0 / float32(rrfK+r)
		}
		if r, ok := relevanceRank[b.Sequence]; ok {
			score += 1.0 / float32(rrfK+r)
		}
		out = append(out, scored{b, score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].b.Sequence > out[j].b.Sequence
	})

	result := make([]Block, len(out))
	for i, s := range out {
		result[i] = s.b
	}
	return result
}

// causalOrder starts at anchor and follows its causal chain forward,
// prepending the anchor block itself.
func (l *Log) causalOrder(anchor uint64, all []Block) []Block {
	out := l.blocksBySequence([]uint64{anchor})
	chain, err := l.index.causalChain(anchor, len(all))
	if err != nil {
		return out
	}
	out = append(out, l.blocksBySequence(chain)...)
	return out
}

// rrfK is the Reciprocal Rank Fusion rank-damping constant, matching
// pkg/query's hybrid fusion so the two subsystems weight ranks the same way.
const rrfK = 60
