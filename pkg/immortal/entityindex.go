package immortal

import (
	"strings"
	"sync"

	"github.com/derekparker/trie/v3"
)

// entityIndex is an in-memory prefix/exact lookup from a block's entity (a
// file path or tool name) to every sequence that mentions it. It sits
// alongside the SQLite entity_index: SQLite gives exact-match lookups that
// survive a rebuild from the chain, this trie adds a cheap "does anything
// under this prefix exist" check (e.g. "any block touched /src/") without a
// LIKE scan.
type entityIndex struct {
	mu sync.RWMutex
	t  *trie.Trie
}

func newEntityIndex() *entityIndex {
	return &entityIndex{t: trie.New()}
}

func (idx *entityIndex) add(entity string, sequence uint64) {
	if entity == "" {
		return
	}
	key := strings.ToLower(entity)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	var seqs []uint64
	if node, ok := idx.t.Find(key); ok {
		seqs, _ = node.Meta().([]uint64)
	}
	seqs = append(seqs, sequence)
	idx.t.Add(key, seqs)
}

// lookup returns every sequence recorded under the exact entity name.
func (idx *entityIndex) lookup(entity string) []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	node, ok := idx.t.Find(strings.ToLower(entity))
	if !ok {
		return nil
	}
	seqs, _ := node.Meta().([]uint64)
	return seqs
}

// hasPrefix reports whether any indexed entity starts with prefix.
func (idx *entityIndex) hasPrefix(prefix string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.t.HasKeysWithPrefix(strings.ToLower(prefix))
}
