package immortal

import (
	"github.com/xeolabs/amemcore/pkg/graph"
)

// SearchTemporal returns every block whose timestamp (microseconds since
// epoch) falls within [start, end], oldest first.
func (l *Log) SearchTemporal(start, end int64) ([]Block, error) {
	seqs, err := l.index.searchTemporal(start, end)
	if err != nil {
		return nil, err
	}
	return l.blocksBySequence(seqs), nil
}

// SearchSemantic ranks blocks by shared tokens with query, most matching
// tokens first, capped at limit results.
func (l *Log) SearchSemantic(query string, limit int) ([]Block, error) {
	if limit <= 0 {
		limit = 20
	}
	tokens := graph.Tokenize(query)
	seqs, err := l.index.searchSemantic(tokens, limit)
	if err != nil {
		return nil, err
	}
	return l.blocksBySequence(seqs), nil
}

// SearchEntity returns every block that mentions the given normalized
// identifier (a file path or tool name), in capture order.
func (l *Log) SearchEntity(name string) ([]Block, error) {
	seqs, err := l.index.searchEntity(name)
	if err != nil {
		return nil, err
	}
	return l.blocksBySequence(seqs), nil
}

// HasEntityPrefix reports whether any captured block's entity (file path or
// tool name) starts with prefix, without a full table scan.
func (l *Log) HasEntityPrefix(prefix string) bool {
	return l.entity.hasPrefix(prefix)
}
