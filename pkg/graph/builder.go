package graph

// Builder is a fluent helper for constructing small graphs inline, mainly in
// tests. Unlike MemoryGraph.AddNode/AddEdge, it does not validate as it goes;
// call Build to materialize a real MemoryGraph (which does validate).
type Builder struct {
	dimension int
	nodes     []CognitiveEvent
	edges     []Edge
	nextID    uint64
}

// NewBuilder creates a builder with DefaultDimension.
func NewBuilder() *Builder { return NewBuilderWithDimension(DefaultDimension) }

// NewBuilderWithDimension creates a builder with an explicit dimension.
func NewBuilderWithDimension(dim int) *Builder {
	return &Builder{dimension: dim}
}

func (b *Builder) addEvent(t EventType, content string, session uint32, confidence float32) uint64 {
	id := b.nextID
	b.nextID++
	b.nodes = append(b.nodes, CognitiveEvent{
		ID:         id,
		EventType:  t,
		SessionID:  session,
		Confidence: confidence,
		Content:    content,
		FeatureVec: make([]float32, b.dimension),
	})
	return id
}

// AddFact appends a Fact node and returns its id.
func (b *Builder) AddFact(content string, session uint32, confidence float32) uint64 {
	return b.addEvent(EventFact, content, session, confidence)
}

// AddDecision appends a Decision node and returns its id.
func (b *Builder) AddDecision(content string, session uint32, confidence float32) uint64 {
	return b.addEvent(EventDecision, content, session, confidence)
}

// AddInference appends an Inference node and returns its id.
func (b *Builder) AddInference(content string, session uint32, confidence float32) uint64 {
	return b.addEvent(EventInference, content, session, confidence)
}

// AddSkill appends a Skill node and returns its id.
func (b *Builder) AddSkill(content string, session uint32, confidence float32) uint64 {
	return b.addEvent(EventSkill, content, session, confidence)
}

// AddCorrection appends a Correction node, links it to oldID via Supersedes,
// and zeros the old node's confidence.
func (b *Builder) AddCorrection(content string, session uint32, oldID uint64) uint64 {
	id := b.addEvent(EventCorrection, content, session, 1.0)
	b.edges = append(b.edges, Edge{SourceID: id, TargetID: oldID, EdgeType: EdgeSupersedes, Weight: 1.0})
	for i := range b.nodes {
		if b.nodes[i].ID == oldID {
			b.nodes[i].Confidence = 0
		}
	}
	return id
}

// AddEpisode appends an Episode node and links every member via PartOf.
func (b *Builder) AddEpisode(content string, session uint32, memberIDs []uint64) uint64 {
	id := b.addEvent(EventEpisode, content, session, 1.0)
	for _, m := range memberIDs {
		b.edges = append(b.edges, Edge{SourceID: m, TargetID: id, EdgeType: EdgePartOf, Weight: 1.0})
	}
	return id
}

// Link adds an edge between two already-added nodes.
func (b *Builder) Link(source, target uint64, edgeType EdgeType, weight float32) *Builder {
	b.edges = append(b.edges, Edge{SourceID: source, TargetID: target, EdgeType: edgeType, Weight: weight})
	return b
}

// SetFeatureVec overwrites a node's feature vector.
func (b *Builder) SetFeatureVec(id uint64, vec []float32) *Builder {
	for i := range b.nodes {
		if b.nodes[i].ID == id {
			b.nodes[i].FeatureVec = vec
		}
	}
	return b
}

// Build materializes a MemoryGraph by replaying every add through AddNode
// and AddEdge, so the result is fully validated and indexed. Builder ids and
// MemoryGraph ids are both assigned sequentially from zero in insertion
// order, so no remapping is needed.
func (b *Builder) Build() (*MemoryGraph, error) {
	g := New(b.dimension)
	for _, n := range b.nodes {
		n.ID = 0
		if _, err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range b.edges {
		if err := g.AddEdge(e); err != nil {
			return nil, err
		}
	}
	g.EnsureAdjacency()
	return g, nil
}
