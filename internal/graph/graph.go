// Package graph implements the in-memory knowledge graph: entity storage
// indexed by id, forward and reverse adjacency for O(1)-amortized edge lookup
// in either direction, breadth-first traversal, shortest path, glob queries,
// and JSON snapshot persistence.
package graph

import (
	"sync"
	"time"

	"github.com/jward/arbor/internal/entity"
)

// Direction selects which adjacency direction an operation follows.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// Graph exclusively owns every entity and relationship once added. Callers
// must not mutate values after handing them over; accessors return internal
// pointers that must be treated as read-only.
type Graph struct {
	mu      sync.RWMutex
	nodes   map[string]*entity.CodeEntity
	forward map[string][]*entity.Relationship // source id -> outgoing edges
	reverse map[string][]*entity.Relationship // target key -> incoming edges
	edges   map[string]*entity.Relationship   // triple key -> edge

	createdAt time.Time
	modified  time.Time
}

// New returns an empty graph.
func New() *Graph {
	g := &Graph{createdAt: time.Now()}
	g.reset()
	return g
}

// reset reinitializes all indexes. Callers hold g.mu.
func (g *Graph) reset() {
	g.nodes = make(map[string]*entity.CodeEntity)
	g.forward = make(map[string][]*entity.Relationship)
	g.reverse = make(map[string][]*entity.Relationship)
	g.edges = make(map[string]*entity.Relationship)
	g.modified = time.Now()
}

// Clear removes every node and edge.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
}

// AddNode upserts an entity. When the id already exists the stored entity is
// merged with e; otherwise e is inserted and the node count grows. The graph
// takes ownership of e.
func (g *Graph) AddNode(e *entity.CodeEntity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(e)
}

func (g *Graph) addNodeLocked(e *entity.CodeEntity) {
	if existing, ok := g.nodes[e.ID]; ok {
		existing.Merge(e)
	} else {
		g.nodes[e.ID] = e
	}
	g.modified = time.Now()
}

// GetNode returns the entity with the given id, or nil.
func (g *Graph) GetNode(id string) *entity.CodeEntity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// RemoveNode deletes the node and cascades: every edge touching id is removed
// from both adjacency directions before the node itself goes. Removing an
// unknown id is a no-op.
func (g *Graph) RemoveNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeNodeLocked(id)
}

func (g *Graph) removeNodeLocked(id string) {
	if _, ok := g.nodes[id]; !ok {
		return
	}
	key := entity.EntityKey(id)

	// Outgoing edges: unlink each from its target's reverse slice.
	for _, rel := range g.forward[id] {
		g.reverse[rel.Target.Key()] = removeRel(g.reverse[rel.Target.Key()], rel)
		if len(g.reverse[rel.Target.Key()]) == 0 {
			delete(g.reverse, rel.Target.Key())
		}
		delete(g.edges, rel.TripleKey())
	}
	delete(g.forward, id)

	// Incoming edges: unlink each from its source's forward slice.
	for _, rel := range g.reverse[key] {
		g.forward[rel.SourceID] = removeRel(g.forward[rel.SourceID], rel)
		if len(g.forward[rel.SourceID]) == 0 {
			delete(g.forward, rel.SourceID)
		}
		delete(g.edges, rel.TripleKey())
	}
	delete(g.reverse, key)

	delete(g.nodes, id)
	g.modified = time.Now()
}

// AddEdge inserts a relationship into both adjacency directions. Adding a
// (source, target, type) triple that already exists is a no-op.
func (g *Graph) AddEdge(rel entity.Relationship) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addEdgeLocked(rel)
}

func (g *Graph) addEdgeLocked(rel entity.Relationship) {
	key := rel.TripleKey()
	if _, ok := g.edges[key]; ok {
		return
	}
	stored := &rel
	g.edges[key] = stored
	g.forward[rel.SourceID] = append(g.forward[rel.SourceID], stored)
	g.reverse[rel.Target.Key()] = append(g.reverse[rel.Target.Key()], stored)
	g.modified = time.Now()
}

// RemoveEdge removes exactly the edge matching (source, target, type) from
// both directions. Unknown triples are a no-op.
func (g *Graph) RemoveEdge(sourceID string, target entity.TargetRef, kind entity.RelKind) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := entity.Relationship{SourceID: sourceID, Target: target, Type: kind}.TripleKey()
	rel, ok := g.edges[key]
	if !ok {
		return
	}
	delete(g.edges, key)
	g.forward[sourceID] = removeRel(g.forward[sourceID], rel)
	if len(g.forward[sourceID]) == 0 {
		delete(g.forward, sourceID)
	}
	tk := target.Key()
	g.reverse[tk] = removeRel(g.reverse[tk], rel)
	if len(g.reverse[tk]) == 0 {
		delete(g.reverse, tk)
	}
	g.modified = time.Now()
}

// GetEdges returns the edges touching the entity id in the given direction.
func (g *Graph) GetEdges(id string, dir Direction) []entity.Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []entity.Relationship
	if dir == DirectionOut || dir == DirectionBoth {
		for _, rel := range g.forward[id] {
			out = append(out, *rel)
		}
	}
	if dir == DirectionIn || dir == DirectionBoth {
		for _, rel := range g.reverse[entity.EntityKey(id)] {
			out = append(out, *rel)
		}
	}
	return out
}

// NodeCount returns the number of stored entities.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of distinct (source, target, type) triples.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Nodes returns a snapshot slice of all stored entities.
func (g *Graph) Nodes() []*entity.CodeEntity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*entity.CodeEntity, 0, len(g.nodes))
	for _, e := range g.nodes {
		out = append(out, e)
	}
	return out
}

// NodesByFile returns the ids of all entities extracted from filePath.
func (g *Graph) NodesByFile(filePath string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids []string
	for id, e := range g.nodes {
		if e.FilePath == filePath {
			ids = append(ids, id)
		}
	}
	return ids
}

// RemoveFileEntities removes every node extracted from filePath, cascading
// edges as RemoveNode does. Returns the number of nodes removed.
func (g *Graph) RemoveFileEntities(filePath string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ids []string
	for id, e := range g.nodes {
		if e.FilePath == filePath {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		g.removeNodeLocked(id)
	}
	return len(ids)
}

// ApplyParseResult replaces a file's entities wholesale: every existing node
// for the file is removed, then the result's entities and relationships are
// inserted under a single lock acquisition.
func (g *Graph) ApplyParseResult(res *entity.ParseResult) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var stale []string
	for id, e := range g.nodes {
		if e.FilePath == res.FilePath {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		g.removeNodeLocked(id)
	}
	for i := range res.Entities {
		g.addNodeLocked(res.Entities[i].Clone())
	}
	for _, rel := range res.Relationships {
		g.addEdgeLocked(rel)
	}
}

// removeRel returns rels without the first element equal to target (pointer
// identity).
func removeRel(rels []*entity.Relationship, target *entity.Relationship) []*entity.Relationship {
	for i, r := range rels {
		if r == target {
			return append(rels[:i], rels[i+1:]...)
		}
	}
	return rels
}
