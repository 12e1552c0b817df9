package aggregate

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/entity"
	"github.com/jward/arbor/internal/graph"
	"github.com/jward/arbor/internal/history"
)

func addEntity(g *graph.Graph, name string, kind entity.Kind, file string, start, end int) *entity.CodeEntity {
	e := &entity.CodeEntity{
		ID:        entity.MakeID(file, kind, name, start),
		Name:      name,
		Type:      kind,
		FilePath:  file,
		StartLine: start,
		EndLine:   end,
	}
	g.AddNode(e)
	return e
}

// newServiceGraph builds a class containing a method, using a repository
// interface in another file.
func newServiceGraph(t *testing.T) (*graph.Graph, map[string]*entity.CodeEntity) {
	t.Helper()
	g := graph.New()
	ents := map[string]*entity.CodeEntity{}

	svc := addEntity(g, "UserService", entity.KindClass, "src/services/user.ts", 1, 100)
	get := addEntity(g, "getUser", entity.KindMethod, "src/services/user.ts", 10, 20)
	get.ParentID = svc.ID
	repo := addEntity(g, "UserRepository", entity.KindInterface, "src/repositories/user.ts", 3, 30)

	g.AddEdge(entity.NewRelationship(svc.ID, entity.EntityRef(get.ID), entity.RelContains))
	g.AddEdge(entity.NewRelationship(svc.ID, entity.EntityRef(repo.ID), entity.RelUses))

	ents["UserService"] = svc
	ents["getUser"] = get
	ents["UserRepository"] = repo
	return g, ents
}

func groupFor(t *testing.T, c *Context, kind entity.RelKind, dir string) RelatedGroup {
	t.Helper()
	for _, g := range c.RelatedGroups {
		if g.Relationship == kind && g.Direction == dir {
			return g
		}
	}
	t.Fatalf("no %s/%s group among %d groups", kind, dir, len(c.RelatedGroups))
	return RelatedGroup{}
}

func TestContextFor_UsesGroupContainsRepository(t *testing.T) {
	g, ents := newServiceGraph(t)
	a := NewAggregator(g, nil, nil, 0)

	c, err := a.ContextFor(context.Background(), ents["UserService"].ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "UserService", c.Focal.Name)

	uses := groupFor(t, c, entity.RelUses, DirOut)
	require.Len(t, uses.Entities, 1)
	assert.Equal(t, "UserRepository", uses.Entities[0].Name)
	assert.Equal(t, 0.6, uses.Relevance)
}

func TestContextAt_ResolvesInnermostEntity(t *testing.T) {
	g, _ := newServiceGraph(t)
	a := NewAggregator(g, nil, nil, 0)

	// Line 15 sits inside both UserService (1-100) and getUser (10-20);
	// the narrower span wins.
	c, err := a.ContextAt(context.Background(), "src/services/user.ts", 15, 0)
	require.NoError(t, err)
	assert.Equal(t, "getUser", c.Focal.Name)
}

func TestContextAt_NoEntityAtLine(t *testing.T) {
	g, _ := newServiceGraph(t)
	a := NewAggregator(g, nil, nil, 0)

	_, err := a.ContextAt(context.Background(), "src/services/user.ts", 500, 0)
	require.ErrorIs(t, err, ErrNoEntity)
	assert.Contains(t, err.Error(), "no entity contains")
}

func TestContextFor_UnknownEntity(t *testing.T) {
	g, _ := newServiceGraph(t)
	a := NewAggregator(g, nil, nil, 0)

	_, err := a.ContextFor(context.Background(), "missing", 0)
	require.ErrorIs(t, err, ErrNoEntity)
}

func TestRelatedGroups_SortedByRelevanceDescending(t *testing.T) {
	g, ents := newServiceGraph(t)
	a := NewAggregator(g, nil, nil, 0)

	c, err := a.ContextFor(context.Background(), ents["UserService"].ID, 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(c.RelatedGroups), 2)
	for i := 0; i+1 < len(c.RelatedGroups); i++ {
		assert.GreaterOrEqual(t, c.RelatedGroups[i].Relevance, c.RelatedGroups[i+1].Relevance)
	}
	// uses (0.6) outranks contains (0.3).
	assert.Equal(t, entity.RelUses, c.RelatedGroups[0].Relationship)
}

func TestRelatedGroups_IncomingDirection(t *testing.T) {
	g, ents := newServiceGraph(t)
	a := NewAggregator(g, nil, nil, 0)

	c, err := a.ContextFor(context.Background(), ents["getUser"].ID, 0)
	require.NoError(t, err)

	contains := groupFor(t, c, entity.RelContains, DirIn)
	require.Len(t, contains.Entities, 1)
	assert.Equal(t, "UserService", contains.Entities[0].Name)
}

func TestFileSurface_ImportsAndExports(t *testing.T) {
	g, ents := newServiceGraph(t)
	mod := addEntity(g, "user.ts", entity.KindModule, "src/services/user.ts", 1, 100)
	imp := addEntity(g, "UserRepository", entity.KindImport, "src/services/user.ts", 1, 1)
	g.AddEdge(entity.NewRelationship(imp.ID, entity.ModuleRef("../repositories/user"), entity.RelImports))
	g.AddEdge(entity.NewRelationship(mod.ID, entity.EntityRef(ents["UserService"].ID), entity.RelExports))

	a := NewAggregator(g, nil, nil, 0)
	c, err := a.ContextFor(context.Background(), ents["getUser"].ID, 0)
	require.NoError(t, err)

	assert.Contains(t, c.Imports, "../repositories/user")
	assert.Contains(t, c.Exports, "UserService")
}

func TestSimilar_SharedSubwordsAndSubstring(t *testing.T) {
	g, ents := newServiceGraph(t)
	addEntity(g, "getUserByEmail", entity.KindMethod, "src/services/user.ts", 30, 40)
	addEntity(g, "formatDate", entity.KindFunction, "src/utils/date.ts", 1, 5)

	a := NewAggregator(g, nil, nil, 0)
	c, err := a.ContextFor(context.Background(), ents["getUser"].ID, 0)
	require.NoError(t, err)

	require.NotEmpty(t, c.SimilarEntities)
	assert.Equal(t, "getUserByEmail", c.SimilarEntities[0].Entity.Name)
	for _, s := range c.SimilarEntities {
		assert.Equal(t, entity.KindMethod, s.Entity.Type, "similar entities share the focal kind")
		assert.Greater(t, s.Score, 0.0)
		assert.LessOrEqual(t, s.Score, 1.0)
	}
}

func TestSubwords_CaseAndSeparatorBoundaries(t *testing.T) {
	assert.Equal(t,
		map[string]bool{"get": true, "user": true, "by": true, "email": true},
		subwords("getUserByEmail"))
	assert.Equal(t,
		map[string]bool{"get": true, "user": true, "by": true, "email": true},
		subwords("get_user_by_email"))
	assert.Equal(t,
		map[string]bool{"http": true, "server": true},
		subwords("HTTPServer"))
}

func TestDetectPatterns(t *testing.T) {
	g := graph.New()
	a := NewAggregator(g, nil, nil, 0)

	acc := addEntity(g, "getName", entity.KindMethod, "src/user.ts", 1, 3)
	assert.Contains(t, a.detectPatterns(acc), "accessor")

	ctor := addEntity(g, "NewClient", entity.KindFunction, "client.go", 1, 5)
	assert.Contains(t, a.detectPatterns(ctor), "constructor")

	tst := addEntity(g, "checkLogin", entity.KindFunction, "src/login_test.go", 1, 5)
	assert.Contains(t, a.detectPatterns(tst), "test")

	hub := addEntity(g, "core", entity.KindFunction, "src/core.ts", 1, 5)
	for i := 0; i < hubFanIn; i++ {
		caller := addEntity(g, "caller", entity.KindFunction, "src/x.ts", i*10+1, i*10+2)
		g.AddEdge(entity.NewRelationship(caller.ID, entity.EntityRef(hub.ID), entity.RelCalls))
	}
	assert.Contains(t, a.detectPatterns(hub), "hub")

	plain := addEntity(g, "compute", entity.KindFunction, "src/math.ts", 1, 5)
	assert.Empty(t, a.detectPatterns(plain))
}

// bulkyContext builds a context exceeding any small budget, with every
// truncatable section populated past its cap.
func bulkyContext() *Context {
	c := &Context{
		Focal: entity.CodeEntity{ID: "focal", Name: "UserService", Type: entity.KindClass, FilePath: "a.ts", StartLine: 1, EndLine: 100},
	}
	for i := 0; i < 3; i++ {
		g := RelatedGroup{Relationship: entity.RelCalls, Direction: DirOut, Relevance: 0.9 - 0.1*float64(i)}
		for j := 0; j < 5; j++ {
			g.Entities = append(g.Entities, entity.CodeEntity{
				ID: "e", Name: strings.Repeat("entity", 5), FilePath: "some/long/path/file.ts",
			})
		}
		c.RelatedGroups = append(c.RelatedGroups, g)
	}
	for i := 0; i < 6; i++ {
		c.SimilarEntities = append(c.SimilarEntities, SimilarEntity{
			Entity: entity.CodeEntity{ID: "s", Name: "getUserByEmail"}, Score: 0.5,
		})
	}
	for i := 0; i < 5; i++ {
		c.History = append(c.History, history.Commit{
			Hash: "abcdef1234567890", Author: "Alice", Timestamp: time.Now(), Subject: "change something",
		})
	}
	c.Contributors = []history.Contributor{
		{Name: "Alice", Commits: 3}, {Name: "Bob", Commits: 2}, {Name: "Cem", Commits: 1},
	}
	c.Patterns = []string{"accessor", "constructor", "test", "hub"}
	return c
}

func TestTruncate_NoopUnderBudget(t *testing.T) {
	c := bulkyContext()
	TruncateContext(c, 1_000_000)

	assert.False(t, c.WasTruncated)
	assert.Greater(t, c.TokenEstimate, 0)
	assert.Len(t, c.SimilarEntities, 6, "nothing removed under budget")
}

func TestTruncate_StrictOrderAndFloor(t *testing.T) {
	c := bulkyContext()
	TruncateContext(c, 1)

	assert.True(t, c.WasTruncated)
	assert.Empty(t, c.SimilarEntities)
	assert.LessOrEqual(t, len(c.History), 3)
	assert.LessOrEqual(t, len(c.Contributors), 2)
	assert.LessOrEqual(t, len(c.Patterns), 2)
	require.Len(t, c.RelatedGroups, 1, "groups shrink to one, never zero")
	assert.LessOrEqual(t, len(c.RelatedGroups[0].Entities), 3)
	assert.Equal(t, "UserService", c.Focal.Name, "focal entity survives")
}

func TestTruncate_NeverIncreasesEstimate(t *testing.T) {
	c := bulkyContext()
	c.TokenEstimate = EstimateTokens(c)
	before := c.TokenEstimate

	TruncateContext(c, 1)
	assert.Less(t, c.TokenEstimate, before)
}

func TestTruncate_DropsLowestRelevanceGroupFirst(t *testing.T) {
	c := &Context{Focal: entity.CodeEntity{ID: "f", Name: "f"}}
	c.RelatedGroups = []RelatedGroup{
		{Relationship: entity.RelCalls, Direction: DirOut, Relevance: 0.9,
			Entities: []entity.CodeEntity{{ID: "a", Name: "keepMe"}}},
		{Relationship: entity.RelContains, Direction: DirOut, Relevance: 0.3,
			Entities: []entity.CodeEntity{{ID: "b", Name: "dropMe"}}},
	}
	TruncateContext(c, 1)

	require.Len(t, c.RelatedGroups, 1)
	assert.Equal(t, entity.RelCalls, c.RelatedGroups[0].Relationship)
}

func TestRenderOutline_ReflectsSurvivors(t *testing.T) {
	c := bulkyContext()
	TruncateContext(c, 1)

	out := RenderOutline(c)
	assert.Contains(t, out, "UserService")
	assert.Contains(t, out, "(truncated)")
	assert.NotContains(t, out, "getUserByEmail", "dropped similar entities do not render")
}

func TestRenderOutline_FullContext(t *testing.T) {
	g, ents := newServiceGraph(t)
	a := NewAggregator(g, nil, nil, 0)
	c, err := a.ContextFor(context.Background(), ents["UserService"].ID, 0)
	require.NoError(t, err)

	out := RenderOutline(c)
	assert.Contains(t, out, "UserService (class)")
	assert.Contains(t, out, "UserRepository")
	assert.Contains(t, out, "uses")
}

func TestRenderJSON_RoundTrip(t *testing.T) {
	g, ents := newServiceGraph(t)
	a := NewAggregator(g, nil, nil, 0)
	c, err := a.ContextFor(context.Background(), ents["UserService"].ID, 0)
	require.NoError(t, err)

	payload, err := RenderJSON(c)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"focalEntity"`)
	assert.Contains(t, string(payload), `"UserService"`)
}
