package graph

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jward/arbor/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	g := New()
	svc := testEntity("UserService", entity.KindClass, "src/user.ts", 1, 100)
	repo := testEntity("UserRepository", entity.KindClass, "src/repo.ts", 1, 40)
	g.AddNode(svc)
	g.AddNode(repo)
	g.AddEdge(entity.NewRelationship(svc.ID, entity.EntityRef(repo.ID), entity.RelUses))
	g.AddEdge(entity.NewRelationship(svc.ID, entity.ModuleRef("./repo"), entity.RelImports))

	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, g.Save(path, []string{"/workspace"}))

	loaded := New()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, g.NodeCount(), loaded.NodeCount())
	assert.Equal(t, g.EdgeCount(), loaded.EdgeCount())

	got := loaded.GetNode(svc.ID)
	require.NotNil(t, got)
	assert.Equal(t, *svc, *got)

	edges := loaded.GetEdges(svc.ID, DirectionOut)
	assert.Len(t, edges, 2)
}

func TestSave_SnapshotShape(t *testing.T) {
	g := New()
	e := testEntity("main", entity.KindFunction, "main.go", 1, 10)
	g.AddNode(e)
	g.AddEdge(entity.NewRelationship(e.ID, entity.SymbolRef("helper"), entity.RelCalls))

	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, g.Save(path, []string{"/ws"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "1", doc["version"])
	meta, ok := doc["metadata"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, meta["nodeCount"])
	assert.EqualValues(t, 1, meta["edgeCount"])
	assert.Equal(t, []any{"/ws"}, meta["workspacePaths"])
	require.Contains(t, meta, "createdAt")
	require.Contains(t, meta, "lastModified")

	nodes, ok := doc["nodes"].([]any)
	require.True(t, ok)
	require.Len(t, nodes, 1)
	node := nodes[0].(map[string]any)
	assert.Equal(t, e.ID, node["id"])
	require.Contains(t, node, "data")

	edges, ok := doc["edges"].([]any)
	require.True(t, ok)
	require.Len(t, edges, 1)
	edge := edges[0].(map[string]any)
	assert.Equal(t, e.ID, edge["source"])
	require.Contains(t, edge, "target")
	require.Contains(t, edge, "relationship")
}

func TestLoad_MissingFileMeansEmptyGraph(t *testing.T) {
	g := New()
	g.AddNode(testEntity("stale", entity.KindFunction, "f.go", 1, 2))

	err := g.Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, g.NodeCount())
}

func TestLoad_CorruptFileFailsAndKeepsContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	g := New()
	keep := testEntity("keep", entity.KindFunction, "f.go", 1, 2)
	g.AddNode(keep)

	err := g.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode snapshot")
	// The failed load must not clobber the in-memory graph.
	assert.NotNil(t, g.GetNode(keep.ID))
}

func TestLoad_UnsupportedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"99","nodes":[],"edges":[]}`), 0o644))

	err := New().Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestSave_Deterministic(t *testing.T) {
	build := func() *Graph {
		g := New()
		for _, spec := range []struct {
			name  string
			start int
		}{{"beta", 20}, {"alpha", 1}, {"gamma", 40}} {
			g.AddNode(testEntity(spec.name, entity.KindFunction, "f.go", spec.start, spec.start+5))
		}
		return g
	}

	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.json")
	p2 := filepath.Join(dir, "b.json")
	require.NoError(t, build().Save(p1, nil))
	require.NoError(t, build().Save(p2, nil))

	d1, err := os.ReadFile(p1)
	require.NoError(t, err)
	d2, err := os.ReadFile(p2)
	require.NoError(t, err)

	// Timestamps differ; node and edge ordering must not.
	var s1, s2 snapshot
	require.NoError(t, json.Unmarshal(d1, &s1))
	require.NoError(t, json.Unmarshal(d2, &s2))
	assert.Equal(t, s1.Nodes, s2.Nodes)
	assert.Equal(t, s1.Edges, s2.Edges)
}
