package query

import (
	"math"
	"sort"

	"github.com/xeolabs/amemcore/pkg/graph"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// TextSearchParams configures a BM25 keyword search.
type TextSearchParams struct {
	Query      string
	EventTypes []graph.EventType
	SessionIDs []uint32
	MinScore   float32
	MaxResults int
}

// TextSearchHit is one ranked BM25 result.
type TextSearchHit struct {
	NodeID       uint64
	Score        float32
	MatchedTerms []string
}

// TextSearch scores every node whose content shares at least one query term
// with standard BM25 (k1=1.2, b=0.75), using the graph's doc-length index.
func (e *Engine) TextSearch(g *graph.MemoryGraph, params TextSearchParams) []TextSearchHit {
	terms := graph.Tokenize(params.Query)
	if len(terms) == 0 {
		return nil
	}

	typeFilter := edgeTypeSetEvent(params.EventTypes)
	sessionFilter := make(map[uint32]bool, len(params.SessionIDs))
	for _, s := range params.SessionIDs {
		sessionFilter[s] = true
	}

	avgLen := g.AvgDocLength()
	docCount := float64(g.NodeCount())

	scores := make(map[uint64]float32)
	matched := make(map[uint64]map[string]bool)

	dedupedTerms := make([]string, 0, len(terms))
	seenTerm := make(map[string]bool)
	for _, term := range terms {
		if !seenTerm[term] {
			seenTerm[term] = true
			dedupedTerms = append(dedupedTerms, term)
		}
	}

	for _, term := range dedupedTerms {
		postings := g.TermPostings(term)
		if len(postings) == 0 {
			continue
		}
		idf := math.Log(1 + (docCount-float64(len(postings))+0.5)/(float64(len(postings))+0.5))
		if idf < 0 {
			idf = 0
		}
		for _, p := range postings {
			n, ok := g.GetNode(p.NodeID)
			if !ok {
				continue
			}
			if len(typeFilter) > 0 && !typeFilter[n.EventType] {
				continue
			}
			if len(sessionFilter) > 0 && !sessionFilter[n.SessionID] {
				continue
			}
			docLen := float64(g.DocLength(p.NodeID))
			tf := float64(p.TF)
			denom := tf + bm25K1*(1-bm25B+bm25B*docLen/maxf(avgLen, 1))
			score := float32(idf * (tf * (bm25K1 + 1)) / denom)
			scores[p.NodeID] += score
			if matched[p.NodeID] == nil {
				matched[p.NodeID] = make(map[string]bool)
			}
			matched[p.NodeID][term] = true
		}
	}

	hits := make([]TextSearchHit, 0, len(scores))
	for id, score := range scores {
		if score < params.MinScore {
			continue
		}
		terms := make([]string, 0, len(matched[id]))
		for t := range matched[id] {
			terms = append(terms, t)
		}
		sort.Strings(terms)
		hits = append(hits, TextSearchHit{NodeID: id, Score: score, MatchedTerms: terms})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].NodeID < hits[j].NodeID
	})
	if params.MaxResults > 0 && len(hits) > params.MaxResults {
		hits = hits[:params.MaxResults]
	}
	return hits
}

func maxf(a float64, min float64) float64 {
	if a < min {
		return min
	}
	return a
}
