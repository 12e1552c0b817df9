// Package aggregate assembles rich context around a focal entity: related
// entities grouped and scored by relationship kind, the file's import and
// export surface, similar entities, git history, and detected idioms. The
// result is bounded by a token budget with a strict truncation order, and
// renders losslessly as JSON or a readable outline.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/jward/arbor/internal/entity"
	"github.com/jward/arbor/internal/graph"
	"github.com/jward/arbor/internal/history"
)

// ErrNoEntity reports that nothing in the graph matches an id or position.
var ErrNoEntity = errors.New("no entity")

// DefaultTokenBudget bounds a context when no budget is given.
const DefaultTokenBudget = 2000

// historyFetch is how many commits to pull before truncation applies.
const historyFetch = 5

// relevance scores a relationship kind for ranking related groups.
var relevance = map[entity.RelKind]float64{
	entity.RelCalls:      0.9,
	entity.RelExtends:    0.85,
	entity.RelImplements: 0.85,
	entity.RelImports:    0.8,
	entity.RelExports:    0.7,
	entity.RelUses:       0.6,
	entity.RelDefines:    0.5,
	entity.RelReturns:    0.4,
	entity.RelParameter:  0.4,
	entity.RelContains:   0.3,
}

// Direction of a related group relative to the focal entity.
const (
	DirOut = "out"
	DirIn  = "in"
)

// RelatedGroup is the set of entities reached over one (relationship,
// direction) pair, scored by the relationship's relevance.
type RelatedGroup struct {
	Relationship entity.RelKind      `json:"relationship"`
	Direction    string              `json:"direction"`
	Relevance    float64             `json:"relevance"`
	Entities     []entity.CodeEntity `json:"entities"`
}

// SimilarEntity is a same-kind entity resembling the focal one by name or
// location.
type SimilarEntity struct {
	Entity entity.CodeEntity `json:"entity"`
	Score  float64           `json:"score"`
}

// Context is the aggregated view around one focal entity. It holds copies;
// mutating it never touches the graph.
type Context struct {
	Focal           entity.CodeEntity     `json:"focalEntity"`
	RelatedGroups   []RelatedGroup        `json:"relatedGroups,omitempty"`
	Imports         []string              `json:"imports,omitempty"`
	Exports         []string              `json:"exports,omitempty"`
	SimilarEntities []SimilarEntity       `json:"similarEntities,omitempty"`
	History         []history.Commit      `json:"history,omitempty"`
	Contributors    []history.Contributor `json:"contributors,omitempty"`
	Patterns        []string              `json:"patterns,omitempty"`
	TokenEstimate   int                   `json:"tokenEstimate"`
	WasTruncated    bool                  `json:"wasTruncated"`
}

// Aggregator builds Contexts from the graph and an optional history
// provider.
type Aggregator struct {
	graph   *graph.Graph
	history history.Provider
	log     *logrus.Entry
	budget  int
}

// NewAggregator returns an aggregator over g. A nil history provider
// degrades history and contributors to empty. budget <= 0 uses
// DefaultTokenBudget.
func NewAggregator(g *graph.Graph, hist history.Provider, logger *logrus.Logger, budget int) *Aggregator {
	if logger == nil {
		logger = logrus.New()
	}
	if hist == nil {
		hist = history.NewNull()
	}
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	return &Aggregator{
		graph:   g,
		history: hist,
		log:     logger.WithField("component", "aggregate"),
		budget:  budget,
	}
}

// ContextFor assembles context around the entity with the given id.
// budget <= 0 uses the aggregator default.
func (a *Aggregator) ContextFor(ctx context.Context, id string, budget int) (*Context, error) {
	focal := a.graph.GetNode(id)
	if focal == nil {
		return nil, fmt.Errorf("%w with id %q", ErrNoEntity, id)
	}
	return a.assemble(ctx, focal, budget), nil
}

// ContextAt resolves the focal entity at a file position and assembles
// context around it.
func (a *Aggregator) ContextAt(ctx context.Context, filePath string, line, budget int) (*Context, error) {
	focal, err := a.Resolve(filePath, line)
	if err != nil {
		return nil, err
	}
	return a.assemble(ctx, focal, budget), nil
}

// Resolve finds the innermost entity containing the line: among entities of
// the file whose span covers it, the one with the smallest range wins, ties
// going to the later start and then the lower id.
func (a *Aggregator) Resolve(filePath string, line int) (*entity.CodeEntity, error) {
	var best *entity.CodeEntity
	for _, id := range a.graph.NodesByFile(filePath) {
		n := a.graph.GetNode(id)
		if n == nil || line < n.StartLine || line > n.EndLine {
			continue
		}
		if best == nil || narrower(n, best) {
			best = n
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w contains %s:%d", ErrNoEntity, filePath, line)
	}
	return best.Clone(), nil
}

func narrower(a, b *entity.CodeEntity) bool {
	ra, rb := a.EndLine-a.StartLine, b.EndLine-b.StartLine
	if ra != rb {
		return ra < rb
	}
	if a.StartLine != b.StartLine {
		return a.StartLine > b.StartLine
	}
	return a.ID < b.ID
}

func (a *Aggregator) assemble(ctx context.Context, focal *entity.CodeEntity, budget int) *Context {
	if budget <= 0 {
		budget = a.budget
	}
	c := &Context{Focal: *focal.Clone()}
	c.RelatedGroups = a.relatedGroups(focal.ID)
	c.Imports, c.Exports = a.fileSurface(focal.FilePath)
	c.SimilarEntities = a.similarTo(focal)
	c.Patterns = a.detectPatterns(focal)

	if commits, err := a.history.FileHistory(ctx, focal.FilePath, historyFetch); err == nil {
		c.History = commits
	} else {
		a.log.WithError(err).WithField("file", focal.FilePath).Debug("history unavailable")
	}
	if people, err := a.history.Contributors(ctx, focal.FilePath); err == nil {
		c.Contributors = people
	}

	TruncateContext(c, budget)
	return c
}

// relatedGroups collects neighbors over both edge directions, grouped by
// (relationship, direction) and sorted by relevance.
func (a *Aggregator) relatedGroups(id string) []RelatedGroup {
	type key struct {
		kind entity.RelKind
		dir  string
	}
	buckets := map[key][]entity.CodeEntity{}

	for _, rel := range a.graph.GetEdges(id, graph.DirectionOut) {
		if !rel.Target.Resolved() {
			continue
		}
		n := a.graph.GetNode(rel.Target.ID)
		if n == nil {
			continue
		}
		k := key{rel.Type, DirOut}
		buckets[k] = append(buckets[k], *n.Clone())
	}
	for _, rel := range a.graph.GetEdges(id, graph.DirectionIn) {
		n := a.graph.GetNode(rel.SourceID)
		if n == nil {
			continue
		}
		k := key{rel.Type, DirIn}
		buckets[k] = append(buckets[k], *n.Clone())
	}

	groups := make([]RelatedGroup, 0, len(buckets))
	for k, ents := range buckets {
		sort.Slice(ents, func(i, j int) bool {
			if ents[i].Name != ents[j].Name {
				return ents[i].Name < ents[j].Name
			}
			return ents[i].ID < ents[j].ID
		})
		groups = append(groups, RelatedGroup{
			Relationship: k.kind,
			Direction:    k.dir,
			Relevance:    relevanceOf(k.kind),
			Entities:     ents,
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Relevance != groups[j].Relevance {
			return groups[i].Relevance > groups[j].Relevance
		}
		if groups[i].Relationship != groups[j].Relationship {
			return groups[i].Relationship < groups[j].Relationship
		}
		return groups[i].Direction < groups[j].Direction
	})
	return groups
}

func relevanceOf(kind entity.RelKind) float64 {
	if r, ok := relevance[kind]; ok {
		return r
	}
	return 0.3
}

// fileSurface derives what the focal entity's file imports and exports:
// import targets from outgoing imports edges, exported entity names from
// incoming exports edges.
func (a *Aggregator) fileSurface(filePath string) (imports, exports []string) {
	seenImp := map[string]bool{}
	seenExp := map[string]bool{}
	for _, id := range a.graph.NodesByFile(filePath) {
		for _, rel := range a.graph.GetEdges(id, graph.DirectionOut) {
			if rel.Type != entity.RelImports {
				continue
			}
			if d := rel.Target.Display(); d != "" && !seenImp[d] {
				seenImp[d] = true
				imports = append(imports, d)
			}
		}
		for _, rel := range a.graph.GetEdges(id, graph.DirectionIn) {
			if rel.Type != entity.RelExports {
				continue
			}
			n := a.graph.GetNode(id)
			if n == nil || seenExp[n.Name] {
				continue
			}
			seenExp[n.Name] = true
			exports = append(exports, n.Name)
		}
	}
	sort.Strings(imports)
	sort.Strings(exports)
	return imports, exports
}
