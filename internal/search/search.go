// Package search ranks indexed entities with a weighted blend of signals:
// text similarity against the query, graph distance from a context entity,
// file recency, reference frequency, and naming-idiom matches. Scoring sees
// every entity; filters narrow the scored set afterwards so an entity's
// score never depends on which filters were active.
package search

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/jward/arbor/internal/entity"
	"github.com/jward/arbor/internal/graph"
	"github.com/jward/arbor/internal/history"
)

// Weights blends the scoring components. Zero-value weights mean "use the
// defaults"; callers wanting a component off set it to a small struct with
// explicit zeros via Options.Weights.
type Weights struct {
	TextSimilarity    float64 `json:"textSimilarity" yaml:"text_similarity"`
	GraphRelationship float64 `json:"graphRelationship" yaml:"graph_relationship"`
	RecencyBoost      float64 `json:"recencyBoost" yaml:"recency_boost"`
	FrequencyBoost    float64 `json:"frequencyBoost" yaml:"frequency_boost"`
	PatternBoost      float64 `json:"patternBoost" yaml:"pattern_boost"`
}

// DefaultWeights returns the standard blend, which sums to 1.
func DefaultWeights() Weights {
	return Weights{
		TextSimilarity:    0.4,
		GraphRelationship: 0.3,
		RecencyBoost:      0.15,
		FrequencyBoost:    0.1,
		PatternBoost:      0.05,
	}
}

// Options controls one search call.
type Options struct {
	// Limit caps the result count. Zero means the default of 20.
	Limit int `json:"limit,omitempty"`
	// MinScore excludes results scoring below it.
	MinScore float64 `json:"minScore,omitempty"`
	// Kinds keeps only entities of the listed kinds.
	Kinds []entity.Kind `json:"entityTypes,omitempty"`
	// Directory keeps only entities whose file path starts with it.
	Directory string `json:"directory,omitempty"`
	// FilePatterns keeps entities whose file path matches any glob.
	FilePatterns []string `json:"filePatterns,omitempty"`
	// ExcludePatterns drops entities whose file path matches any glob.
	ExcludePatterns []string `json:"excludePatterns,omitempty"`
	// ContextEntityID anchors the graph-relationship component.
	ContextEntityID string `json:"contextEntityId,omitempty"`
	// Weights overrides the default blend for this call.
	Weights *Weights `json:"weights,omitempty"`
}

// Components is the per-signal score breakdown of one result.
type Components struct {
	TextSimilarity    float64 `json:"textSimilarity"`
	GraphRelationship float64 `json:"graphRelationship"`
	RecencyBoost      float64 `json:"recencyBoost"`
	FrequencyBoost    float64 `json:"frequencyBoost"`
	PatternBoost      float64 `json:"patternBoost"`
}

// Result is one ranked entity.
type Result struct {
	Entity     entity.CodeEntity `json:"entity"`
	Score      float64           `json:"score"`
	Components Components        `json:"components"`
}

// DefaultTTL is how long identical queries are answered from cache.
const DefaultTTL = 30 * time.Second

const defaultLimit = 20

// graphReachDepth bounds the context-entity BFS; entities further away score
// 0 on the graph component anyway.
const graphReachDepth = 4

// Searcher answers ranked queries over a denormalized copy of the graph.
// Rebuild refreshes the copy; queries between rebuilds see a consistent
// index.
type Searcher struct {
	graph   *graph.Graph
	history history.Provider
	log     *logrus.Entry
	cache   *gocache.Cache

	mu       sync.RWMutex
	entities []entity.CodeEntity
	inDegree map[string]int
	maxIn    int
	recency  map[string]float64
}

// NewSearcher returns a searcher over g. The history provider may be nil;
// recency then scores 0. ttl <= 0 uses DefaultTTL.
func NewSearcher(g *graph.Graph, hist history.Provider, logger *logrus.Logger, ttl time.Duration) *Searcher {
	if logger == nil {
		logger = logrus.New()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if hist == nil {
		hist = history.NewNull()
	}
	return &Searcher{
		graph:    g,
		history:  hist,
		log:      logger.WithField("component", "search"),
		cache:    gocache.New(ttl, 2*ttl),
		inDegree: make(map[string]int),
		recency:  make(map[string]float64),
	}
}

// Rebuild refreshes the denormalized index from the graph and flushes the
// query cache. Call it after every mutation batch.
func (s *Searcher) Rebuild(ctx context.Context) {
	start := time.Now()

	nodes := s.graph.Nodes()
	entities := make([]entity.CodeEntity, 0, len(nodes))
	for _, n := range nodes {
		entities = append(entities, *n.Clone())
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].FilePath != entities[j].FilePath {
			return entities[i].FilePath < entities[j].FilePath
		}
		if entities[i].StartLine != entities[j].StartLine {
			return entities[i].StartLine < entities[j].StartLine
		}
		return entities[i].ID < entities[j].ID
	})

	inDegree := make(map[string]int, len(entities))
	maxIn := 0
	files := make(map[string]bool)
	for i := range entities {
		e := &entities[i]
		n := len(s.graph.GetEdges(e.ID, graph.DirectionIn))
		inDegree[e.ID] = n
		if n > maxIn {
			maxIn = n
		}
		files[e.FilePath] = true
	}

	recency := make(map[string]float64, len(files))
	for path := range files {
		if ctx.Err() != nil {
			break
		}
		recency[path] = s.history.RecencyScore(ctx, path)
	}

	s.mu.Lock()
	s.entities = entities
	s.inDegree = inDegree
	s.maxIn = maxIn
	s.recency = recency
	s.mu.Unlock()

	s.cache.Flush()
	s.log.WithFields(logrus.Fields{
		"entities": len(entities),
		"files":    len(files),
		"took":     time.Since(start).Round(time.Millisecond).String(),
	}).Debug("search index rebuilt")
}

// Search scores every indexed entity against the query, filters, sorts
// descending, and truncates. Identical query+options pairs inside the TTL
// are served from cache.
func (s *Searcher) Search(query string, opts Options) []Result {
	key := cacheKey(query, opts)
	if cached, ok := s.cache.Get(key); ok {
		return append([]Result(nil), cached.([]Result)...)
	}

	weights := DefaultWeights()
	if opts.Weights != nil {
		weights = *opts.Weights
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	terms := queryTerms(query)
	distances := s.contextDistances(opts.ContextEntityID)
	filter := newFilter(opts)

	s.mu.RLock()
	results := make([]Result, 0, len(s.entities))
	for i := range s.entities {
		e := &s.entities[i]
		comp := Components{
			TextSimilarity:    textSimilarity(query, terms, e),
			GraphRelationship: graphProximity(distances, e.ID),
			RecencyBoost:      s.recency[e.FilePath],
			FrequencyBoost:    s.frequencyLocked(e.ID),
			PatternBoost:      patternBoost(terms, e),
		}
		score := weights.TextSimilarity*comp.TextSimilarity +
			weights.GraphRelationship*comp.GraphRelationship +
			weights.RecencyBoost*comp.RecencyBoost +
			weights.FrequencyBoost*comp.FrequencyBoost +
			weights.PatternBoost*comp.PatternBoost
		if score < opts.MinScore || score <= 0 {
			continue
		}
		if !filter.admit(e) {
			continue
		}
		results = append(results, Result{Entity: *e.Clone(), Score: score, Components: comp})
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Entity.Name != results[j].Entity.Name {
			return results[i].Entity.Name < results[j].Entity.Name
		}
		return results[i].Entity.ID < results[j].Entity.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}

	s.cache.Set(key, results, gocache.DefaultExpiration)
	return append([]Result(nil), results...)
}

// contextDistances runs one bounded BFS from the context entity and returns
// hop counts keyed by entity id. Nil when no context entity is set.
func (s *Searcher) contextDistances(contextID string) map[string]int {
	if contextID == "" {
		return nil
	}
	res := s.graph.Traverse(contextID, graph.TraverseOptions{
		MaxDepth:  graphReachDepth,
		Direction: graph.DirectionBoth,
	})
	if res == nil {
		return nil
	}
	dist := make(map[string]int, len(res.Nodes))
	for _, n := range res.Nodes {
		dist[n.Entity.ID] = n.Depth
	}
	return dist
}

func (s *Searcher) frequencyLocked(id string) float64 {
	if s.maxIn == 0 {
		return 0
	}
	return float64(s.inDegree[id]) / float64(s.maxIn)
}

// cacheKey serializes query+options canonically. Struct field order is
// stable under encoding/json, so identical inputs produce identical keys.
func cacheKey(query string, opts Options) string {
	payload, err := json.Marshal(struct {
		Query   string  `json:"q"`
		Options Options `json:"o"`
	}{query, opts})
	if err != nil {
		return query
	}
	return string(payload)
}

// filter implements the post-scoring AND filter chain. Globs are compiled
// once per search, not per entity.
type filter struct {
	kinds   map[entity.Kind]bool
	dir     string
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

func newFilter(opts Options) *filter {
	f := &filter{
		dir:     opts.Directory,
		include: compileGlobs(opts.FilePatterns),
		exclude: compileGlobs(opts.ExcludePatterns),
	}
	if len(opts.Kinds) > 0 {
		f.kinds = make(map[entity.Kind]bool, len(opts.Kinds))
		for _, k := range opts.Kinds {
			f.kinds[k] = true
		}
	}
	return f
}

func (f *filter) admit(e *entity.CodeEntity) bool {
	if f.kinds != nil && !f.kinds[e.Type] {
		return false
	}
	if f.dir != "" && !strings.HasPrefix(e.FilePath, f.dir) {
		return false
	}
	if len(f.include) > 0 && !matchAny(f.include, e.FilePath) {
		return false
	}
	if len(f.exclude) > 0 && matchAny(f.exclude, e.FilePath) {
		return false
	}
	return true
}

// compileGlobs drops patterns that do not compile; a bad exclude should not
// sink the whole search.
func compileGlobs(patterns []string) []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, p := range patterns {
		re, err := graph.CompileGlob(p)
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	return out
}

func matchAny(res []*regexp.Regexp, path string) bool {
	for _, re := range res {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func queryTerms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}
