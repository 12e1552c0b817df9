// Package pipeline keeps the knowledge graph current as files change. Edits
// debounce per file with a shadow buffer of unsaved content, saves and
// deletes dispatch immediately, and queued work coalesces to the latest
// change per file. The queue drains in fixed-size batches: extraction runs
// parallel, graph commits are serial, failures retry per file with
// exponential backoff. Every state transition reaches registered observers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jward/arbor/internal/extract"
	"github.com/jward/arbor/internal/graph"
)

// State of the pipeline lifecycle.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateIndexing      State = "indexing"
	StatePaused        State = "paused"
	StateError         State = "error"
)

// ChangeKind classifies a file event.
type ChangeKind string

const (
	// ChangeModified is an edit, possibly unsaved; it debounces.
	ChangeModified ChangeKind = "changed"
	// ChangeSaved is a write to disk; it dispatches immediately.
	ChangeSaved ChangeKind = "saved"
	// ChangeDeleted removes the file's entities immediately.
	ChangeDeleted ChangeKind = "deleted"
)

// Change is one file event fed to HandleChange. Content may be nil for
// changed/saved events, in which case the file is read from disk at
// dispatch.
type Change struct {
	Path    string
	Content []byte
	Kind    ChangeKind
}

// Status is a snapshot of pipeline progress pushed to observers on every
// transition.
type Status struct {
	State         State     `json:"state"`
	IndexedFiles  int       `json:"indexedFiles"`
	TotalEntities int       `json:"totalEntities"`
	LastUpdate    time.Time `json:"lastUpdate"`
	Err           error     `json:"-"`
	Progress      float64   `json:"progress"`
}

// Sentinel errors callers branch on.
var (
	ErrNotInitialized  = errors.New("pipeline not initialized")
	ErrFileTooLarge    = errors.New("file exceeds size limit")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrClosed          = errors.New("pipeline closed")
)

// Options tunes pipeline behavior. Zero fields take defaults.
type Options struct {
	// MaxFileSize rejects larger files at admission, in bytes.
	MaxFileSize int64
	// DebounceDelay is how long a file must stay quiet before an edit
	// dispatches.
	DebounceDelay time.Duration
	// BatchSize is the number of files processed per drain batch.
	BatchSize int
	// MaxRetries bounds per-file retry attempts.
	MaxRetries int
	// RetryBaseDelay seeds the exponential backoff: base doubles per
	// attempt up to RetryMaxDelay.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// MemoryThreshold pauses a full index when HeapAlloc/HeapSys exceeds
	// it. 0 disables the gate.
	MemoryThreshold float64
	// PauseCooldown is how long a memory pause lasts before resuming.
	PauseCooldown time.Duration
	// ExcludeDirs are directory names never descended during workspace
	// discovery. Empty means the standard dependency and output dirs.
	ExcludeDirs []string
	// SnapshotPath, when set, is loaded during Initialize. A missing file
	// starts empty; a corrupt one fails initialization.
	SnapshotPath string
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		MaxFileSize:     1 << 20,
		DebounceDelay:   500 * time.Millisecond,
		BatchSize:       10,
		MaxRetries:      3,
		RetryBaseDelay:  100 * time.Millisecond,
		RetryMaxDelay:   5 * time.Second,
		MemoryThreshold: 0.85,
		PauseCooldown:   time.Second,
		ExcludeDirs:     defaultExcludeDirs(),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = def.MaxFileSize
	}
	if o.DebounceDelay <= 0 {
		o.DebounceDelay = def.DebounceDelay
	}
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = def.MaxRetries
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = def.RetryBaseDelay
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = def.RetryMaxDelay
	}
	if o.PauseCooldown <= 0 {
		o.PauseCooldown = def.PauseCooldown
	}
	if len(o.ExcludeDirs) == 0 {
		o.ExcludeDirs = def.ExcludeDirs
	}
	return o
}

// Pipeline owns the incremental update loop over one graph.
type Pipeline struct {
	graph    *graph.Graph
	registry *extract.Registry
	log      *logrus.Entry
	opts     Options
	skip     map[string]bool

	mu         sync.Mutex
	state      State
	lastErr    error
	timers     map[string]*time.Timer
	shadow     map[string][]byte
	queue      fileQueue
	retries    map[string]int
	indexed    map[string]bool
	roots      []string
	lastUpdate time.Time
	progress   float64
	draining   bool
	closed     bool
	observers  []func(Status)
	commitFns  []func()
}

// New returns an uninitialized pipeline over g and reg.
func New(g *graph.Graph, reg *extract.Registry, logger *logrus.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = logrus.New()
	}
	opts = opts.withDefaults()
	skip := make(map[string]bool, len(opts.ExcludeDirs))
	for _, d := range opts.ExcludeDirs {
		skip[d] = true
	}
	return &Pipeline{
		graph:    g,
		registry: reg,
		log:      logger.WithField("component", "pipeline"),
		opts:     opts,
		skip:     skip,
		state:    StateUninitialized,
		timers:   map[string]*time.Timer{},
		shadow:   map[string][]byte{},
		queue:    newFileQueue(),
		retries:  map[string]int{},
		indexed:  map[string]bool{},
	}
}

// Notify registers a status observer. Every transition is pushed
// synchronously to each observer in registration order.
func (p *Pipeline) Notify(fn func(Status)) {
	p.mu.Lock()
	p.observers = append(p.observers, fn)
	p.mu.Unlock()
}

// OnCommit registers a hook fired after every committed batch and every
// delete, once the graph mutation is visible. Search index refresh hangs
// off this.
func (p *Pipeline) OnCommit(fn func()) {
	p.mu.Lock()
	p.commitFns = append(p.commitFns, fn)
	p.mu.Unlock()
}

// Initialize loads the snapshot if configured and moves the pipeline to
// ready. paths are remembered as workspace roots for FullIndex.
func (p *Pipeline) Initialize(ctx context.Context, paths []string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.state != StateUninitialized {
		p.mu.Unlock()
		return fmt.Errorf("initialize from state %q", p.state)
	}
	p.roots = append([]string(nil), paths...)
	p.mu.Unlock()

	p.transition(StateInitializing, nil)

	if p.opts.SnapshotPath != "" {
		if err := p.graph.Load(p.opts.SnapshotPath); err != nil {
			p.transition(StateError, err)
			return err
		}
	}

	p.mu.Lock()
	for _, n := range p.graph.Nodes() {
		p.indexed[n.FilePath] = true
	}
	p.mu.Unlock()

	p.transition(StateReady, nil)
	return nil
}

// HandleChange admits one file event. Edits debounce, saves dispatch
// immediately, deletes apply synchronously.
func (p *Pipeline) HandleChange(c Change) error {
	if c.Kind != ChangeDeleted {
		if !p.registry.CanParse(c.Path) {
			return fmt.Errorf("%w: %s", ErrUnsupportedFile, c.Path)
		}
		if err := p.admitSize(c); err != nil {
			return err
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.state == StateUninitialized || p.state == StateInitializing {
		p.mu.Unlock()
		return ErrNotInitialized
	}

	switch c.Kind {
	case ChangeModified:
		if c.Content != nil {
			p.shadow[c.Path] = append([]byte(nil), c.Content...)
		}
		p.restartTimerLocked(c.Path)
		p.mu.Unlock()
		return nil

	case ChangeSaved:
		p.stopTimerLocked(c.Path)
		delete(p.shadow, c.Path)
		p.queue.push(Change{Path: c.Path, Content: c.Content, Kind: ChangeSaved})
		p.mu.Unlock()
		p.kickDrain()
		return nil

	case ChangeDeleted:
		p.stopTimerLocked(c.Path)
		delete(p.shadow, c.Path)
		p.queue.remove(c.Path)
		delete(p.retries, c.Path)
		p.graph.RemoveFileEntities(c.Path)
		delete(p.indexed, c.Path)
		p.lastUpdate = time.Now()
		status := p.statusLocked()
		hooks := append(([]func())(nil), p.commitFns...)
		obs := append(([]func(Status))(nil), p.observers...)
		p.mu.Unlock()
		for _, fn := range hooks {
			fn()
		}
		for _, fn := range obs {
			fn(status)
		}
		return nil

	default:
		p.mu.Unlock()
		return fmt.Errorf("unknown change kind %q", c.Kind)
	}
}

// admitSize rejects oversized input before it enters the queue.
func (p *Pipeline) admitSize(c Change) error {
	if c.Content != nil {
		if int64(len(c.Content)) > p.opts.MaxFileSize {
			return fmt.Errorf("%w: %s (%d bytes)", ErrFileTooLarge, c.Path, len(c.Content))
		}
		return nil
	}
	info, err := os.Stat(c.Path)
	if err == nil && info.Size() > p.opts.MaxFileSize {
		return fmt.Errorf("%w: %s (%d bytes)", ErrFileTooLarge, c.Path, info.Size())
	}
	return nil
}

// restartTimerLocked arms (or re-arms) the debounce timer for path.
func (p *Pipeline) restartTimerLocked(path string) {
	if t := p.timers[path]; t != nil {
		t.Stop()
	}
	p.timers[path] = time.AfterFunc(p.opts.DebounceDelay, func() {
		p.debounceFire(path)
	})
}

func (p *Pipeline) stopTimerLocked(path string) {
	if t := p.timers[path]; t != nil {
		t.Stop()
		delete(p.timers, path)
	}
}

// debounceFire moves a quiet file from the shadow buffer into the queue.
func (p *Pipeline) debounceFire(path string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	delete(p.timers, path)
	content := p.shadow[path]
	delete(p.shadow, path)
	p.queue.push(Change{Path: path, Content: content, Kind: ChangeModified})
	p.mu.Unlock()
	p.kickDrain()
}

// kickDrain starts the drain goroutine unless one is already running.
func (p *Pipeline) kickDrain() {
	p.mu.Lock()
	if p.draining || p.closed || p.queue.len() == 0 {
		p.mu.Unlock()
		return
	}
	p.draining = true
	p.mu.Unlock()
	go p.drainLoop()
}

// drainLoop empties the queue in fixed-size batches, sequential between
// batches. It exits when the queue is empty; the emptiness check and the
// draining reset share one critical section so no push is lost.
func (p *Pipeline) drainLoop() {
	p.enterIndexing()
	for {
		p.mu.Lock()
		if p.closed || p.queue.len() == 0 {
			p.draining = false
			p.mu.Unlock()
			break
		}
		batch := p.queue.pop(p.opts.BatchSize)
		p.mu.Unlock()
		p.processBatch(batch)
	}
	p.leaveIndexing()
}

func (p *Pipeline) enterIndexing() {
	p.mu.Lock()
	if p.state != StateReady {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.transition(StateIndexing, nil)
}

func (p *Pipeline) leaveIndexing() {
	p.mu.Lock()
	if p.state != StateIndexing {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.transition(StateReady, nil)
}

// transition sets the state and pushes a status snapshot to every observer.
func (p *Pipeline) transition(state State, err error) {
	p.mu.Lock()
	p.state = state
	if err != nil {
		p.lastErr = err
	}
	status := p.statusLocked()
	obs := append(([]func(Status))(nil), p.observers...)
	p.mu.Unlock()
	for _, fn := range obs {
		fn(status)
	}
}

func (p *Pipeline) statusLocked() Status {
	return Status{
		State:         p.state,
		IndexedFiles:  len(p.indexed),
		TotalEntities: p.graph.NodeCount(),
		LastUpdate:    p.lastUpdate,
		Err:           p.lastErr,
		Progress:      p.progress,
	}
}

// Status returns the current snapshot.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close stops timers and refuses further work. In-flight batches finish.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for path, t := range p.timers {
		t.Stop()
		delete(p.timers, path)
	}
	p.mu.Unlock()
	return nil
}
