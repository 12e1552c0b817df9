package arbor

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jward/arbor/internal/aggregate"
	"github.com/jward/arbor/internal/config"
	"github.com/jward/arbor/internal/extract"
	"github.com/jward/arbor/internal/graph"
	"github.com/jward/arbor/internal/history"
	"github.com/jward/arbor/internal/pipeline"
	"github.com/jward/arbor/internal/search"
	"github.com/jward/arbor/internal/watch"
	"github.com/jward/arbor/internal/workspace"
)

// Sentinel errors callers branch on, re-exported from the packages that
// produce them.
var (
	ErrNotInitialized  = pipeline.ErrNotInitialized
	ErrFileTooLarge    = pipeline.ErrFileTooLarge
	ErrUnsupportedFile = pipeline.ErrUnsupportedFile
	ErrClosed          = pipeline.ErrClosed
	ErrEntityNotFound  = aggregate.ErrNoEntity
)

// Engine owns the full indexing stack: the knowledge graph, the extractor
// registry, the incremental update pipeline, the search index, the context
// aggregator, and the workspace registry. Create one with New, initialize it
// over workspace roots, and Close it when done.
type Engine struct {
	cfg        *config.Config
	log        *logrus.Logger
	graph      *graph.Graph
	registry   *extract.Registry
	history    history.Provider
	pipe       *pipeline.Pipeline
	searcher   *search.Searcher
	aggregator *aggregate.Aggregator
	workspaces *workspace.Registry
	snapshot   string

	mu           sync.Mutex
	roots        []string
	watcher      *watch.Watcher
	closed       bool
	snapOverride string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger replaces the engine logger. The default logs at Warn.
func WithLogger(l *logrus.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithConfig replaces the whole configuration, typically one discovered
// from a .arbor.yaml.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		if cfg != nil {
			e.cfg = cfg
		}
	}
}

// WithHistory sets the git history provider feeding recency and contributor
// signals. Without it those signals contribute zero.
func WithHistory(p history.Provider) Option {
	return func(e *Engine) {
		if p != nil {
			e.history = p
		}
	}
}

// WithSnapshotPath sets where the graph snapshot is loaded from and saved
// to, overriding the configured path.
func WithSnapshotPath(path string) Option {
	return func(e *Engine) {
		e.snapOverride = path
	}
}

// New assembles an engine. The zero configuration indexes TypeScript, Go,
// and Python into an in-memory graph with no persistence and no history
// provider.
func New(opts ...Option) *Engine {
	e := &Engine{
		cfg:        config.Default(),
		log:        defaultLogger(),
		graph:      graph.New(),
		registry:   extract.Default(),
		history:    history.NewNull(),
		workspaces: workspace.NewRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}

	pOpts := e.cfg.PipelineOptions()
	if e.snapOverride != "" {
		pOpts.SnapshotPath = e.snapOverride
	}
	e.snapshot = pOpts.SnapshotPath

	e.pipe = pipeline.New(e.graph, e.registry, e.log, pOpts)
	e.searcher = search.NewSearcher(e.graph, e.history, e.log, e.cfg.CacheTTL.Std())
	e.aggregator = aggregate.NewAggregator(e.graph, e.history, e.log, e.cfg.TokenBudget)

	// Keep the search index at most one batch behind the graph.
	e.pipe.OnCommit(func() { e.searcher.Rebuild(context.Background()) })
	return e
}

func defaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

// Initialize loads the snapshot if one is configured and readies the
// pipeline. paths become the workspace roots for IndexWorkspace and Watch.
func (e *Engine) Initialize(ctx context.Context, paths ...string) error {
	e.mu.Lock()
	e.roots = append([]string(nil), paths...)
	e.mu.Unlock()

	if err := e.pipe.Initialize(ctx, paths); err != nil {
		return fmt.Errorf("arbor: initialize: %w", err)
	}
	e.searcher.Rebuild(ctx)
	return nil
}

// IndexWorkspace walks the roots (the Initialize paths when empty) and
// indexes every parsable file in batches.
func (e *Engine) IndexWorkspace(ctx context.Context, roots ...string) error {
	if err := e.pipe.FullIndex(ctx, roots); err != nil {
		return fmt.Errorf("arbor: index: %w", err)
	}
	return nil
}

// HandleChange feeds one file event into the pipeline. Edits debounce,
// saves index immediately, deletes apply synchronously.
func (e *Engine) HandleChange(c Change) error {
	if err := e.pipe.HandleChange(c); err != nil {
		return fmt.Errorf("arbor: %w", err)
	}
	return nil
}

// Watch streams filesystem events under the roots (the Initialize paths
// when empty) into the pipeline until Close.
func (e *Engine) Watch(roots ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("arbor: %w", ErrClosed)
	}
	if e.watcher == nil {
		w, err := watch.New(e.log, func(c pipeline.Change) {
			if err := e.pipe.HandleChange(c); err != nil {
				e.log.WithError(err).WithField("path", c.Path).Debug("change dropped")
			}
		})
		if err != nil {
			return fmt.Errorf("arbor: watch: %w", err)
		}
		e.watcher = w
	}
	if len(roots) == 0 {
		roots = e.roots
	}
	for _, root := range roots {
		if err := e.watcher.Add(root); err != nil {
			return fmt.Errorf("arbor: watch %s: %w", root, err)
		}
	}
	return nil
}

// Search ranks entities against the query. Weights default to the
// configured ones when the options carry none.
func (e *Engine) Search(query string, opts SearchOptions) []SearchResult {
	if opts.Weights == nil {
		w := e.cfg.SearchWeights()
		opts.Weights = &w
	}
	return e.searcher.Search(query, opts)
}

// ContextFor assembles bounded context around the entity with the given id.
func (e *Engine) ContextFor(ctx context.Context, id string) (*Context, error) {
	c, err := e.aggregator.ContextFor(ctx, id, 0)
	if err != nil {
		return nil, fmt.Errorf("arbor: %w", err)
	}
	return c, nil
}

// ContextAt assembles bounded context around the innermost entity covering
// the file position.
func (e *Engine) ContextAt(ctx context.Context, filePath string, line int) (*Context, error) {
	c, err := e.aggregator.ContextAt(ctx, filePath, line, 0)
	if err != nil {
		return nil, fmt.Errorf("arbor: %w", err)
	}
	return c, nil
}

// Entity returns a copy of the entity with the given id.
func (e *Engine) Entity(id string) (*Entity, error) {
	n := e.graph.GetNode(id)
	if n == nil {
		return nil, fmt.Errorf("arbor: %w with id %q", ErrEntityNotFound, id)
	}
	return n.Clone(), nil
}

// FindEntities runs a glob name query with kind, file, and parent filters.
// Results are copies in stable (file, line, name) order.
func (e *Engine) FindEntities(q Query) ([]*Entity, error) {
	matches, err := e.graph.FindEntities(q)
	if err != nil {
		return nil, fmt.Errorf("arbor: query: %w", err)
	}
	out := make([]*Entity, len(matches))
	for i, m := range matches {
		out[i] = m.Clone()
	}
	return out, nil
}

// Traverse walks the graph breadth-first from an entity. Returned entities
// are shared with the graph; treat them as read-only.
func (e *Engine) Traverse(startID string, opts TraverseOptions) *TraverseResult {
	return e.graph.Traverse(startID, opts)
}

// FindPath returns the shortest relationship path between two entities, or
// nil when none exists.
func (e *Engine) FindPath(sourceID, targetID string) []Relationship {
	return e.graph.FindPath(sourceID, targetID)
}

// Graph returns the underlying knowledge graph for direct access. Mutate
// through the pipeline where possible; after direct writes call
// RefreshIndex.
func (e *Engine) Graph() *Graph {
	return e.graph
}

// Workspaces returns the repository registry for direct access.
func (e *Engine) Workspaces() *workspace.Registry {
	return e.workspaces
}

// RefreshIndex rebuilds the search index from the current graph.
func (e *Engine) RefreshIndex(ctx context.Context) {
	e.searcher.Rebuild(ctx)
}

// OnStatus registers an observer pushed a snapshot on every pipeline
// transition.
func (e *Engine) OnStatus(fn func(Status)) {
	e.pipe.Notify(fn)
}

// Status returns the current pipeline snapshot.
func (e *Engine) Status() Status {
	return e.pipe.Status()
}

// Stats summarizes the indexed graph.
type Stats struct {
	Entities      int   `json:"entities"`
	Relationships int   `json:"relationships"`
	IndexedFiles  int   `json:"indexedFiles"`
	Repositories  int   `json:"repositories"`
	State         State `json:"state"`
}

// Stats reports graph and pipeline counters.
func (e *Engine) Stats() Stats {
	st := e.pipe.Status()
	return Stats{
		Entities:      e.graph.NodeCount(),
		Relationships: e.graph.EdgeCount(),
		IndexedFiles:  st.IndexedFiles,
		Repositories:  e.workspaces.Count(),
		State:         st.State,
	}
}

// Save writes the graph snapshot to the configured path.
func (e *Engine) Save() error {
	if e.snapshot == "" {
		return fmt.Errorf("arbor: no snapshot path configured")
	}
	return e.SaveTo(e.snapshot)
}

// SaveTo writes the graph snapshot to path.
func (e *Engine) SaveTo(path string) error {
	e.mu.Lock()
	roots := append([]string(nil), e.roots...)
	e.mu.Unlock()
	if err := e.graph.Save(path, roots); err != nil {
		return fmt.Errorf("arbor: save snapshot: %w", err)
	}
	return nil
}

// Close stops the watcher and the pipeline. With AutoSave configured and a
// snapshot path set, the graph is written out first. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	w := e.watcher
	e.watcher = nil
	e.mu.Unlock()

	var firstErr error
	if w != nil {
		if err := w.Close(); err != nil {
			firstErr = fmt.Errorf("arbor: close watcher: %w", err)
		}
	}
	if e.cfg.AutoSave && e.snapshot != "" && e.initialized() {
		if err := e.Save(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.pipe.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// initialized reports whether the pipeline ever reached a working state.
// Autosave from an uninitialized or failed engine would clobber a good
// snapshot with an empty graph.
func (e *Engine) initialized() bool {
	switch e.pipe.State() {
	case pipeline.StateUninitialized, pipeline.StateInitializing, pipeline.StateError:
		return false
	}
	return true
}
