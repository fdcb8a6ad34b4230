package graph

import (
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
)

var enStopwords = stopwords.MustGet("en")

// minTokenLen drops tokens shorter than this many runes.
const minTokenLen = 2

// Tokenize lowercases s, splits on runs of non-alphanumeric characters, drops
// short tokens, and removes English stopwords. Shared by the BM25 term index
// and the query engine's text-search request normalization.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(f)
		if len([]rune(f)) < minTokenLen {
			continue
		}
		if enStopwords.Contains(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Posting is one entry of a term's posting list: a node id and its term
// frequency within that node's content.
type Posting struct {
	NodeID uint64
	TF     int
}


// bm25Index is the term_index + doc_lengths derived index.
type bm25Index struct {
	postings   map[string][]Posting
	docLengths map[uint64]int
	totalLen   int64
	docCount   int
}

func newBM25Index() *bm25Index {
	return &bm25Index{
		postings:   make(map[string][]Posting),
		docLengths: make(map[uint64]int),
	}
}

func (b *bm25Index) indexDoc(id uint64, content string) {
	tokens := Tokenize(content)
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	for term, tf := range counts {
		b.postings[term] = append(b.postings[term], Posting{NodeID: id, TF: tf})
	}
	b.docLengths[id] = len(tokens)
	b.totalLen += int64(len(tokens))
	b.docCount++
}

// reindexDoc removes a document's old postings/length and re-indexes new
// content under the same id. Its only caller is MemoryGraph.ReindexContent.
func (b *bm25Index) reindexDoc(id uint64, content string) {
	if oldLen, ok := b.docLengths[id]; ok {
		b.totalLen -= int64(oldLen)
		b.docCount--
		for term, list := range b.postings {
			filtered := list[:0]
			for _, p := range list {
				if p.NodeID != id {
					filtered = append(filtered, p)
				}
			}
			if len(filtered) == 0 {
				delete(b.postings, term)
			} else {
				b.postings[term] = filtered
			}
		}
	}
	b.indexDoc(id, content)
}

func (b *bm25Index) docLength(id uint64) int { return b.docLengths[id] }

func (b *bm25Index) avgDocLength() float64 {
	if b.docCount == 0 {
		return 0
	}
	return float64(b.totalLen) / float64(b.docCount)
}
