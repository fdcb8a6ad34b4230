package immortal

import (
	"database/sql"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/xeolabs/amemcore/pkg/graph"
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS temporal_index (
	sequence  INTEGER PRIMARY KEY,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_temporal_ts ON temporal_index(timestamp);

CREATE TABLE IF NOT EXISTS semantic_index (
	token    TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	PRIMARY KEY (token, sequence)
);
CREATE INDEX IF NOT EXISTS idx_semantic_token ON semantic_index(token);

CREATE TABLE IF NOT EXISTS entity_index (
	entity   TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	PRIMARY KEY (entity, sequence)
);
CREATE INDEX IF NOT EXISTS idx_entity_name ON entity_index(entity);

CREATE TABLE IF NOT EXISTS causal_index (
	from_sequence INTEGER NOT NULL,
	to_sequence   INTEGER NOT NULL,
	PRIMARY KEY (from_sequence, to_sequence)
);
CREATE INDEX IF NOT EXISTS idx_causal_from ON causal_index(from_sequence);
`

// secondaryIndex wraps the embedded SQLite database backing the temporal,
// semantic, entity, and causal lookups. It is separate from the hash-chain
// file: the chain is the source of truth, these are rebuildable derived
// indexes, so a DSN of ":memory:" (rebuild every open by replaying the
// chain) or a sibling file path are both valid.
type secondaryIndex struct {
	db *sql.DB
}

func openSecondaryIndex(dsn string) (*secondaryIndex, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, graph.NewError(graph.KindStorageError, "open index db").WithCause(err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, graph.NewError(graph.KindStorageError, "create index schema").WithCause(err)
	}
	return &secondaryIndex{db: db}, nil
}

func (s *secondaryIndex) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// index records b's derived entries across all four indexes in one
// transaction.
func (s *secondaryIndex) index(b Block, entities []string, causalFrom []uint64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return graph.NewError(graph.KindStorageError, "begin index tx").WithCause(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO temporal_index (sequence, timestamp) VALUES (?, ?)`,
		b.Sequence, b.Timestamp); err != nil {
		return graph.NewError(graph.KindStorageError, "index temporal").WithCause(err)
	}

	for _, tok := range graph.Tokenize(b.Text) {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO semantic_index (token, sequence) VALUES (?, ?)`,
			tok, b.Sequence); err != nil {
			return graph.NewError(graph.KindStorageError, "index semantic").WithCause(err)
		}
	}

	for _, ent := range entities {
		if ent == "" {
			continue
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO entity_index (entity, sequence) VALUES (?, ?)`,
			ent, b.Sequence); err != nil {
			return graph.NewError(graph.KindStorageError, "index entity").WithCause(err)
		}
	}

	for _, from := range causalFrom {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO causal_index (from_sequence, to_sequence) VALUES (?, ?)`,
			from, b.Sequence); err != nil {
			return graph.NewError(graph.KindStorageError, "index causal").WithCause(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return graph.NewError(graph.KindStorageError, "commit index tx").WithCause(err)
	}
	return nil
}

func (s *secondaryIndex) searchTemporal(start, end int64) ([]uint64, error) {
	rows, err := s.db.Query(`SELECT sequence FROM temporal_index WHERE timestamp BETWEEN ? AND ? ORDER BY timestamp`, start, end)
	if err != nil {
		return nil, graph.NewError(graph.KindStorageError, "search temporal").WithCause(err)
	}
	defer rows.Close()
	return scanSequences(rows)
}

func (s *secondaryIndex) searchSemantic(tokens []string, limit int) ([]uint64, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	placeholders := make([]interface{}, len(tokens))
	q := "SELECT sequence, COUNT(*) c FROM semantic_index WHERE token IN ("
	for i, tok := range tokens {
		if i > 0 {
			q += ","
		}
		q += "?"
		placeholders[i] = tok
	}
	q += ") GROUP BY sequence ORDER BY c DESC, sequence DESC LIMIT ?"
	placeholders = append(placeholders, limit)

	rows, err := s.db.Query(q, placeholders...)
	if err != nil {
		return nil, graph.NewError(graph.KindStorageError, "search semantic").WithCause(err)
	}
	defer rows.Close()

	var seqs []uint64
	for rows.Next() {
		var seq uint64
		var count int
		if err := rows.Scan(&seq, &count); err != nil {
			return nil, graph.NewError(graph.KindStorageError, "scan semantic result").WithCause(err)
		}
		seqs = append(seqs, seq)
	}
	return seqs, nil
}

func (s *secondaryIndex) searchEntity(name string) ([]uint64, error) {
	rows, err := s.db.Query(`SELECT sequence FROM entity_index WHERE entity = ? ORDER BY sequence`, name)
	if err != nil {
		return nil, graph.NewError(graph.KindStorageError, "search entity").WithCause(err)
	}
	defer rows.Close()
	return scanSequences(rows)
}

func (s *secondaryIndex) causalChain(from uint64, maxHops int) ([]uint64, error) {
	var chain []uint64
	current := from
	for i := 0; i < maxHops; i++ {
		row := s.db.QueryRow(`SELECT to_sequence FROM causal_index WHERE from_sequence = ? ORDER BY to_sequence DESC LIMIT 1`, current)
		var next uint64
		if err := row.Scan(&next); err != nil {
			break
		}
		chain = append(chain, next)
		current = next
	}
	return chain, nil
}

func scanSequences(rows *sql.Rows) ([]uint64, error) {
	var seqs []uint64
	for rows.Next() {
		var seq uint64
		if err := rows.Scan(&seq); err != nil {
			return nil, graph.NewError(graph.KindStorageError, "scan sequence").WithCause(err)
		}
		seqs = append(seqs, seq)
	}
	return seqs, nil
}
