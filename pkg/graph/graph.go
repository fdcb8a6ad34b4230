package graph

import "sort"

// adjacency holds the outgoing/incoming edge lists for one node.
type adjacency struct {
	outgoing []Edge
	incoming []Edge
}

// timeEntry is one (created_at, id) pair in the by_time index.
type timeEntry struct {
	createdAt int64
	id        uint64
}

// MemoryGraph is the in-memory cognitive memory graph: insertion-ordered node
// and edge arenas plus derived indexes. A MemoryGraph is not internally
// synchronized; callers (the Session Manager) are responsible for the
// single-writer/many-reader discipline.
type MemoryGraph struct {
	Dimension int

	nextID uint64
	nodes  []CognitiveEvent // insertion order
	nodeAt map[uint64]int   // id -> index into nodes
	edges  []Edge           // insertion order

	byType    map[EventType][]uint64
	bySession map[uint32][]uint64
	byTime    []timeEntry

	adj        map[uint64]*adjacency
	adjDirty   bool
	outDegree  map[uint64]int // fast per-source edge count for the 4096 cap

	term *bm25Index
}

// New creates an empty graph with the given feature-vector dimension. A
// dimension of 0 selects DefaultDimension.
func New(dimension int) *MemoryGraph {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &MemoryGraph{
		Dimension: dimension,
		nodeAt:    make(map[uint64]int),
		byType:    make(map[EventType][]uint64),
		bySession: make(map[uint32][]uint64),
		adj:       make(map[uint64]*adjacency),
		outDegree: make(map[uint64]int),
		term:      newBM25Index(),
	}
}

// NextID returns the id that will be assigned to the next inserted node,
// without mutating the graph.
func (g *MemoryGraph) NextID() uint64 { return g.nextID }

// SetNextID raises the next-id counter to id if it is currently lower (it
// never lowers it); used when reloading a graph from a binary file so that
// subsequent inserts never collide with loaded ids.
func (g *MemoryGraph) SetNextID(id uint64) {
	if id > g.nextID {
		g.nextID = id
	}
}

// AddNode assigns the next id, appends event to the arena, and updates the
// by_type / by_session / by_time / doc_lengths / term_index derived indexes.
func (g *MemoryGraph) AddNode(event CognitiveEvent) (uint64, error) {
	if !event.EventType.Valid() {
		return 0, NewError(KindInvalidInput, "unknown event type")
	}
	if len(event.Content) > MaxContentSize {
		return 0, NewError(KindContentTooLarge, "content exceeds max size")
	}
	if len(event.FeatureVec) != 0 && len(event.FeatureVec) != g.Dimension {
		return 0, NewError(KindInvalidInput, "feature vector dimension mismatch")
	}

	event.Clamp()
	id := g.nextID
	g.nextID++
	event.ID = id
	if event.CreatedAt == 0 {
		event.CreatedAt = NowMicros()
	}
	if event.LastAccessed == 0 {
		event.LastAccessed = event.CreatedAt
	}

	idx := len(g.nodes)
	g.nodes = append(g.nodes, event)
	g.nodeAt[id] = idx

	g.byType[event.EventType] = append(g.byType[event.EventType], id)
	g.bySession[event.SessionID] = append(g.bySession[event.SessionID], id)
	g.byTime = append(g.byTime, timeEntry{event.CreatedAt, id})
	sort.SliceStable(g.byTime, func(i, j int) bool {
		if g.byTime[i].createdAt != g.byTime[j].createdAt {
			return g.byTime[i].createdAt < g.byTime[j].createdAt
		}
		return g.byTime[i].id < g.byTime[j].id
	})

	g.term.indexDoc(id, event.Content)

	return id, nil
}

// AddEdge validates endpoints and the per-source limit, rejects duplicates,
// appends to the edge arena, and marks adjacency dirty.
func (g *MemoryGraph) AddEdge(edge Edge) error {
	if !edge.EdgeType.Valid() {
		return NewError(KindInvalidInput, "unknown edge type")
	}
	if edge.SourceID == edge.TargetID {
		return NewError(KindInvalidInput, "edge source equals target")
	}
	if _, ok := g.nodeAt[edge.SourceID]; !ok {
		return NotFound("node", edge.SourceID)
	}
	if _, ok := g.nodeAt[edge.TargetID]; !ok {
		return NotFound("node", edge.TargetID)
	}
	if g.outDegree[edge.SourceID] >= MaxEdgesPerNode {
		return NewError(KindInvalidInput, "max outgoing edges per node exceeded")
	}
	for _, e := range g.edges {
		if e.SourceID == edge.SourceID && e.TargetID == edge.TargetID && e.EdgeType == edge.EdgeType {
			return NewError(KindInvalidInput, "duplicate edge")
		}
	}

	edge.Weight = clamp01(edge.Weight)
	if edge.CreatedAt == 0 {
		edge.CreatedAt = NowMicros()
	}
	g.edges = append(g.edges, edge)
	g.outDegree[edge.SourceID]++
	g.adjDirty = true
	return nil
}

// GetNode returns a copy of the node with the given id.
func (g *MemoryGraph) GetNode(id uint64) (CognitiveEvent, bool) {
	idx, ok := g.nodeAt[id]
	if !ok {
		return CognitiveEvent{}, false
	}
	return g.nodes[idx], true
}

// MutateNode applies fn to the stored node in place.
func (g *MemoryGraph) MutateNode(id uint64, fn func(*CognitiveEvent)) bool {
	idx, ok := g.nodeAt[id]
	if !ok {
		return false
	}
	fn(&g.nodes[idx])
	g.nodes[idx].Clamp()
	return true
}

// Touch increments access_count and sets last_accessed to now.
func (g *MemoryGraph) Touch(id uint64) bool {
	return g.MutateNode(id, func(e *CognitiveEvent) {
		e.AccessCount++
		e.LastAccessed = NowMicros()
	})
}

// EnsureAdjacency rebuilds outgoing/incoming lists from the edge arena. It is
// idempotent and a no-op when not dirty.
func (g *MemoryGraph) EnsureAdjacency() {
	if !g.adjDirty && len(g.adj) > 0 {
		return
	}
	g.adj = make(map[uint64]*adjacency, len(g.nodes))
	for _, e := range g.edges {
		if g.adj[e.SourceID] == nil {
			g.adj[e.SourceID] = &adjacency{}
		}
		if g.adj[e.TargetID] == nil {
			g.adj[e.TargetID] = &adjacency{}
		}
		g.adj[e.SourceID].outgoing = append(g.adj[e.SourceID].outgoing, e)
		g.adj[e.TargetID].incoming = append(g.adj[e.TargetID].incoming, e)
	}
	g.adjDirty = false
}

// EdgesFrom returns the outgoing edges of id in insertion order, rebuilding
// adjacency first if the graph is dirty.
func (g *MemoryGraph) EdgesFrom(id uint64) []Edge {
	g.EnsureAdjacency()
	if a := g.adj[id]; a != nil {
		return a.outgoing
	}
	return nil
}

// EdgesTo returns the incoming edges of id in insertion order.
func (g *MemoryGraph) EdgesTo(id uint64) []Edge {
	g.EnsureAdjacency()
	if a := g.adj[id]; a != nil {
		return a.incoming
	}
	return nil
}

// Nodes returns all nodes in insertion order. The returned slice aliases
// internal storage and must not be mutated.
func (g *MemoryGraph) Nodes() []CognitiveEvent { return g.nodes }

// Edges returns all edges in insertion order.
func (g *MemoryGraph) Edges() []Edge { return g.edges }

// NodeCount returns the number of live nodes.
func (g *MemoryGraph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *MemoryGraph) EdgeCount() int { return len(g.edges) }

// NodesBySession returns node ids for a session in insertion order.
func (g *MemoryGraph) NodesBySession(session uint32) []uint64 {
	return g.bySession[session]
}

// SessionIDs returns every distinct session id with at least one node,
// sorted ascending.
func (g *MemoryGraph) SessionIDs() []uint32 {
	ids := make([]uint32, 0, len(g.bySession))
	for id := range g.bySession {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NodesByType returns node ids of a given event type in insertion order.
func (g *MemoryGraph) NodesByType(t EventType) []uint64 {
	return g.byType[t]
}

// NodesByTimeRange returns node ids with created_at in [from, to], sorted by
// (created_at, id).
func (g *MemoryGraph) NodesByTimeRange(from, to int64) []uint64 {
	var ids []uint64
	lo := sort.Search(len(g.byTime), func(i int) bool { return g.byTime[i].createdAt >= from })
	for i := lo; i < len(g.byTime) && g.byTime[i].createdAt <= to; i++ {
		ids = append(ids, g.byTime[i].id)
	}
	return ids
}

// DocLength returns the BM25 token count for a node.
func (g *MemoryGraph) DocLength(id uint64) int { return g.term.docLength(id) }

// AvgDocLength returns the BM25 corpus average token count.
func (g *MemoryGraph) AvgDocLength() float64 { return g.term.avgDocLength() }

// TermPostings returns the posting list for a token.
func (g *MemoryGraph) TermPostings(term string) []Posting { return g.term.postings[term] }

// ReindexContent re-tokenizes content into the BM25 index under id,
// replacing whatever was indexed for that id. It does not change the node's
// stored content.
func (g *MemoryGraph) ReindexContent(id uint64, content string) {
	g.term.reindexDoc(id, content)
}

// InsertRaw appends a node exactly as given (preserving its id) without
// reassigning it, advancing the next-id counter past it. Used when
// reloading a graph from a binary file, where ids must survive round-trip
// unchanged. Derived indexes are not updated incrementally; call
// RebuildIndexes once after the last InsertRaw/InsertRawEdge.
func (g *MemoryGraph) InsertRaw(event CognitiveEvent) {
	event.Clamp()
	idx := len(g.nodes)
	g.nodes = append(g.nodes, event)
	g.nodeAt[event.ID] = idx
	g.SetNextID(event.ID + 1)
}

// InsertRawEdge appends an edge exactly as given without re-validating
// duplicate/limit rules (the binary file is assumed to already satisfy
// them), but still rejects edges whose endpoints do not exist.
func (g *MemoryGraph) InsertRawEdge(edge Edge) error {
	if _, ok := g.nodeAt[edge.SourceID]; !ok {
		return NotFound("node", edge.SourceID)
	}
	if _, ok := g.nodeAt[edge.TargetID]; !ok {
		return NotFound("node", edge.TargetID)
	}
	edge.Weight = clamp01(edge.Weight)
	g.edges = append(g.edges, edge)
	g.outDegree[edge.SourceID]++
	g.adjDirty = true
	return nil
}

// RewireIncoming redirects every edge targeting oldID to target newID
// instead (dropping it if that would create a duplicate or self-loop), used
// by consolidation when a deduplicated node's incoming edges must follow
// its survivor.
func (g *MemoryGraph) RewireIncoming(oldID, newID uint64) {
	type edgeKey struct {
		source, target uint64
		edgeType       EdgeType
	}
	seen := make(map[edgeKey]bool, len(g.edges))
	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.TargetID == oldID {
			e.TargetID = newID
		}
		if e.SourceID == e.TargetID {
			g.outDegree[e.SourceID]--
			continue
		}
		key := edgeKey{e.SourceID, e.TargetID, e.EdgeType}
		if seen[key] {
			g.outDegree[e.SourceID]--
			continue
		}
		seen[key] = true
		kept = append(kept, e)
	}
	g.edges = kept
	g.adjDirty = true
}

// RebuildIndexes recomputes every derived index from the node/edge arenas.
// Used after loading from a binary file whose indexes section was absent or
// stale.
func (g *MemoryGraph) RebuildIndexes() {
	g.byType = make(map[EventType][]uint64)
	g.bySession = make(map[uint32][]uint64)
	g.byTime = g.byTime[:0]
	g.term = newBM25Index()
	g.outDegree = make(map[uint64]int)

	for _, n := range g.nodes {
		g.byType[n.EventType] = append(g.byType[n.EventType], n.ID)
		g.bySession[n.SessionID] = append(g.bySession[n.SessionID], n.ID)
		g.byTime = append(g.byTime, timeEntry{n.CreatedAt, n.ID})
		g.term.indexDoc(n.ID, n.Content)
	}
	sort.SliceStable(g.byTime, func(i, j int) bool {
		if g.byTime[i].createdAt != g.byTime[j].createdAt {
			return g.byTime[i].createdAt < g.byTime[j].createdAt
		}
		return g.byTime[i].id < g.byTime[j].id
	})
	for _, e := range g.edges {
		g.outDegree[e.SourceID]++
	}
	g.adjDirty = true
	g.EnsureAdjacency()
}
