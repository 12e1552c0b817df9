package graph

import (
	"github.com/jward/arbor/internal/entity"
)

// TraverseOptions bounds and filters a breadth-first traversal.
type TraverseOptions struct {
	// MaxDepth is the maximum number of edges to walk from the start node.
	// 0 returns only the start node.
	MaxDepth int
	// RelKinds restricts which relationship kinds are followed. Empty
	// follows all.
	RelKinds []entity.RelKind
	// Kinds restricts which entity kinds appear in the result. The start
	// node is always included. Empty includes all.
	Kinds []entity.Kind
	// Limit caps the number of returned nodes. 0 means no cap.
	Limit int
	// Direction selects forward, reverse, or both adjacency. Defaults to
	// DirectionOut.
	Direction Direction
}

// TraverseNode is a visited entity with its BFS distance from the start.
type TraverseNode struct {
	Entity *entity.CodeEntity
	Depth  int
}

// TraverseResult holds the visited subgraph: filtered nodes, the edges
// connecting them, and the edge-path from the start node to each visited
// node.
type TraverseResult struct {
	Nodes []TraverseNode
	Edges []entity.Relationship
	Paths map[string][]entity.Relationship
	Depth int // deepest level actually reached
}

// Traverse walks the graph breadth-first from startID. Each node is visited
// once; expansion stops beyond MaxDepth and collection stops at Limit. Only
// resolved entity targets are followed. Returns nil when startID is unknown.
func (g *Graph) Traverse(startID string, opts TraverseOptions) *TraverseResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start, ok := g.nodes[startID]
	if !ok {
		return nil
	}
	if opts.Direction == "" {
		opts.Direction = DirectionOut
	}
	relOK := relKindSet(opts.RelKinds)
	kindOK := kindSet(opts.Kinds)

	result := &TraverseResult{
		Nodes: []TraverseNode{{Entity: start, Depth: 0}},
		Edges: []entity.Relationship{},
		Paths: map[string][]entity.Relationship{startID: {}},
	}
	collected := 1

	type bfsEntry struct {
		id    string
		depth int
	}
	visited := map[string]int{startID: 0}
	queue := []bfsEntry{{id: startID, depth: 0}}
	edgeSeen := map[string]bool{}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.depth >= opts.MaxDepth {
			continue
		}
		if opts.Limit > 0 && collected >= opts.Limit {
			break
		}

		for _, step := range g.neighborsLocked(current.id, opts.Direction) {
			if relOK != nil && !relOK[step.rel.Type] {
				continue
			}
			if _, seen := visited[step.id]; seen {
				// Record the connecting edge even when the node was
				// reached earlier on a shorter path.
				if !edgeSeen[step.rel.TripleKey()] {
					edgeSeen[step.rel.TripleKey()] = true
					result.Edges = append(result.Edges, *step.rel)
				}
				continue
			}
			node, ok := g.nodes[step.id]
			if !ok {
				continue
			}

			depth := current.depth + 1
			visited[step.id] = depth
			if depth > result.Depth {
				result.Depth = depth
			}
			path := append(append([]entity.Relationship{}, result.Paths[current.id]...), *step.rel)
			result.Paths[step.id] = path
			if !edgeSeen[step.rel.TripleKey()] {
				edgeSeen[step.rel.TripleKey()] = true
				result.Edges = append(result.Edges, *step.rel)
			}

			if kindOK == nil || kindOK[node.Type] {
				result.Nodes = append(result.Nodes, TraverseNode{Entity: node, Depth: depth})
				collected++
				if opts.Limit > 0 && collected >= opts.Limit {
					return result
				}
			}
			queue = append(queue, bfsEntry{id: step.id, depth: depth})
		}
	}
	return result
}

// FindPath returns the shortest forward edge-path from sourceID to targetID
// by BFS over edge count. Empty when source equals target, either id is
// unknown, or no path exists.
func (g *Graph) FindPath(sourceID, targetID string) []entity.Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if sourceID == targetID {
		return nil
	}
	if _, ok := g.nodes[sourceID]; !ok {
		return nil
	}
	if _, ok := g.nodes[targetID]; !ok {
		return nil
	}

	type parentLink struct {
		prev string
		rel  *entity.Relationship
	}
	parents := map[string]parentLink{sourceID: {}}
	queue := []string{sourceID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, step := range g.neighborsLocked(current, DirectionOut) {
			if _, seen := parents[step.id]; seen {
				continue
			}
			parents[step.id] = parentLink{prev: current, rel: step.rel}
			if step.id == targetID {
				// Walk parent links back to the source.
				var path []entity.Relationship
				for at := targetID; at != sourceID; at = parents[at].prev {
					path = append([]entity.Relationship{*parents[at].rel}, path...)
				}
				return path
			}
			queue = append(queue, step.id)
		}
	}
	return nil
}

// PathLength returns the forward shortest-path edge count between two nodes,
// or -1 when no path exists.
func (g *Graph) PathLength(sourceID, targetID string) int {
	path := g.FindPath(sourceID, targetID)
	if path == nil {
		return -1
	}
	return len(path)
}

// neighborStep pairs a neighbor entity id with the edge that reaches it.
type neighborStep struct {
	id  string
	rel *entity.Relationship
}

// neighborsLocked lists the resolved-entity neighbors of id in the given
// direction. Callers hold g.mu.
func (g *Graph) neighborsLocked(id string, dir Direction) []neighborStep {
	var steps []neighborStep
	if dir == DirectionOut || dir == DirectionBoth {
		for _, rel := range g.forward[id] {
			if rel.Target.Resolved() {
				steps = append(steps, neighborStep{id: rel.Target.ID, rel: rel})
			}
		}
	}
	if dir == DirectionIn || dir == DirectionBoth {
		for _, rel := range g.reverse[entity.EntityKey(id)] {
			steps = append(steps, neighborStep{id: rel.SourceID, rel: rel})
		}
	}
	return steps
}

func relKindSet(kinds []entity.RelKind) map[entity.RelKind]bool {
	if len(kinds) == 0 {
		return nil
	}
	set := make(map[entity.RelKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return set
}

func kindSet(kinds []entity.Kind) map[entity.Kind]bool {
	if len(kinds) == 0 {
		return nil
	}
	set := make(map[entity.Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return set
}
