package query

import (
	"strings"

	"github.com/derekparker/trie/v3"
	"github.com/xeolabs/amemcore/pkg/graph"
)

// EntityIndex is a prefix lookup from a node's leading token ("entity name")
// to every node whose content starts with it.
type EntityIndex struct {
	t *trie.Trie
}

// BuildEntityIndex indexes the first token of every node's content.
func BuildEntityIndex(g *graph.MemoryGraph) *EntityIndex {
	t := trie.New()
	for _, n := range g.Nodes() {
		tokens := graph.Tokenize(n.Content)
		if len(tokens) == 0 {
			continue
		}
		key := tokens[0]
		var ids []uint64
		if existing, ok := t.Find(key); ok {
			ids = existing.Meta().([]uint64)
		}
		ids = append(ids, n.ID)
		t.Add(key, ids)
	}
	return &EntityIndex{t: t}
}

// Lookup returns node ids whose leading token exactly matches term
// (lowercased).
func (idx *EntityIndex) Lookup(term string) []uint64 {
	node, ok := idx.t.Find(strings.ToLower(term))
	if !ok {
		return nil
	}
	ids, _ := node.Meta().([]uint64)
	return ids
}

// HasPrefix reports whether any indexed entity starts with prefix.
func (idx *EntityIndex) HasPrefix(prefix string) bool {
	return idx.t.HasKeysWithPrefix(strings.ToLower(prefix))
}
