package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jward/arbor/internal/entity"
)

// SnapshotVersion is the current snapshot schema version.
const SnapshotVersion = "1"

type snapshotMetadata struct {
	CreatedAt      time.Time `json:"createdAt"`
	LastModified   time.Time `json:"lastModified"`
	NodeCount      int       `json:"nodeCount"`
	EdgeCount      int       `json:"edgeCount"`
	WorkspacePaths []string  `json:"workspacePaths"`
}

type snapshotNode struct {
	ID   string            `json:"id"`
	Data entity.CodeEntity `json:"data"`
}

type snapshotEdge struct {
	Source       string              `json:"source"`
	Target       entity.TargetRef    `json:"target"`
	Relationship entity.Relationship `json:"relationship"`
}

type snapshot struct {
	Version  string           `json:"version"`
	Metadata snapshotMetadata `json:"metadata"`
	Nodes    []snapshotNode   `json:"nodes"`
	Edges    []snapshotEdge   `json:"edges"`
}

// Save serializes the graph to path: all nodes plus the de-duplicated edge
// set taken from forward adjacency only. The snapshot is written to a temp
// file and renamed into place so readers never observe a partial write.
func (g *Graph) Save(path string, workspacePaths []string) error {
	g.mu.RLock()
	snap := snapshot{
		Version: SnapshotVersion,
		Metadata: snapshotMetadata{
			CreatedAt:      g.createdAt,
			LastModified:   g.modified,
			NodeCount:      len(g.nodes),
			EdgeCount:      len(g.edges),
			WorkspacePaths: workspacePaths,
		},
	}
	snap.Nodes = make([]snapshotNode, 0, len(g.nodes))
	for id, e := range g.nodes {
		snap.Nodes = append(snap.Nodes, snapshotNode{ID: id, Data: *e})
	}
	snap.Edges = make([]snapshotEdge, 0, len(g.edges))
	for _, rels := range g.forward {
		for _, rel := range rels {
			snap.Edges = append(snap.Edges, snapshotEdge{
				Source:       rel.SourceID,
				Target:       rel.Target,
				Relationship: *rel,
			})
		}
	}
	g.mu.RUnlock()

	// Stable ordering keeps snapshots diffable across runs.
	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].ID < snap.Nodes[j].ID })
	sort.Slice(snap.Edges, func(i, j int) bool {
		return snap.Edges[i].Relationship.TripleKey() < snap.Edges[j].Relationship.TripleKey()
	})

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load replaces the graph's contents with the snapshot at path. A missing
// file clears the graph and is not an error; a corrupt or unreadable file is.
// The replace is all-or-nothing: on any decode failure the previous contents
// are kept.
func (g *Graph) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		g.Clear()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("snapshot version %q not supported", snap.Version)
	}

	// Build fresh indexes before swapping so a half-applied load is
	// impossible.
	staged := New()
	for i := range snap.Nodes {
		n := &snap.Nodes[i]
		if n.Data.ID == "" {
			n.Data.ID = n.ID
		}
		staged.AddNode(n.Data.Clone())
	}
	for _, e := range snap.Edges {
		staged.AddEdge(e.Relationship)
	}

	g.mu.Lock()
	g.nodes = staged.nodes
	g.forward = staged.forward
	g.reverse = staged.reverse
	g.edges = staged.edges
	if !snap.Metadata.CreatedAt.IsZero() {
		g.createdAt = snap.Metadata.CreatedAt
	}
	g.modified = time.Now()
	g.mu.Unlock()
	return nil
}
