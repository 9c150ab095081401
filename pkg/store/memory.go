// Package store provides the pre-materialized graph data the assessment core
// queries. The core itself performs no I/O; stores resolve everything up
// front (memory, postgres snapshot) or through a cache layer (redis).
package store

import (
	"sync"

	"argus/pkg/intel"
)

// MemoryGraph is an in-memory entity/relationship index implementing
// features.GraphQuerier. Build it once per scoring pass from pre-fetched
// data; reads are lock-protected and safe for concurrent scoring.
type MemoryGraph struct {
	mu       sync.RWMutex
	entities map[string]*intel.Entity
	degrees  map[string]int
	edges    map[string]map[string]bool // source -> target set
}

// NewMemoryGraph creates an empty graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		entities: make(map[string]*intel.Entity),
		degrees:  make(map[string]int),
		edges:    make(map[string]map[string]bool),
	}
}

// AddEntity indexes an entity by ID. Later adds with the same ID replace the
// earlier record.
func (g *MemoryGraph) AddEntity(e *intel.Entity) {
	if e == nil || e.ID == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entities[e.ID] = e
}

// AddRelationship indexes an edge and bumps both endpoint degrees.
func (g *MemoryGraph) AddRelationship(r *intel.Relationship) {
	if r == nil || r.SourceID == "" || r.TargetID == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.edges[r.SourceID] == nil {
		g.edges[r.SourceID] = make(map[string]bool)
	}
	if g.edges[r.SourceID][r.TargetID] {
		return // duplicate edge, degrees already counted
	}
	g.edges[r.SourceID][r.TargetID] = true
	g.degrees[r.SourceID]++
	g.degrees[r.TargetID]++
}

// Load bulk-indexes a snapshot.
func (g *MemoryGraph) Load(entities []*intel.Entity, rels []*intel.Relationship) {
	for _, e := range entities {
		g.AddEntity(e)
	}
	for _, r := range rels {
		g.AddRelationship(r)
	}
}

// EntityByID returns the indexed entity, if present.
func (g *MemoryGraph) EntityByID(id string) (*intel.Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entities[id]
	return e, ok
}

// DegreeOf counts inbound plus outbound edges for an entity.
func (g *MemoryGraph) DegreeOf(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.degrees[id]
}

// FindReverse reports whether a target->source edge exists for the pair.
func (g *MemoryGraph) FindReverse(sourceID, targetID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[targetID][sourceID]
}

// Entities returns all indexed entities, in indexing order not guaranteed.
func (g *MemoryGraph) Entities() []*intel.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*intel.Entity, 0, len(g.entities))
	for _, e := range g.entities {
		out = append(out, e)
	}
	return out
}

// Len returns the number of indexed entities.
func (g *MemoryGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entities)
}
