package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// defaultExcludeDirs lists directories never descended during workspace
// walks unless Options.ExcludeDirs overrides them.
func defaultExcludeDirs() []string {
	return []string{"node_modules", "vendor", "dist", "build", "out", "target", "__pycache__"}
}

// FullIndex discovers every parsable file under the roots and indexes them
// in memory-gated batches. Empty roots fall back to the paths given at
// Initialize. Progress moves from 0 to 1 across batches.
func (p *Pipeline) FullIndex(ctx context.Context, roots []string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	switch p.state {
	case StateUninitialized, StateInitializing:
		p.mu.Unlock()
		return ErrNotInitialized
	case StateIndexing, StatePaused:
		p.mu.Unlock()
		return errors.New("index already in progress")
	}
	if len(roots) == 0 {
		roots = append([]string(nil), p.roots...)
	}
	p.state = StateIndexing
	p.progress = 0
	status := p.statusLocked()
	obs := append(([]func(Status))(nil), p.observers...)
	p.mu.Unlock()
	for _, fn := range obs {
		fn(status)
	}

	files := p.discover(ctx, roots)
	total := len(files)
	p.log.WithFields(logrus.Fields{
		"files": total,
		"roots": len(roots),
	}).Info("starting full index")

	for start := 0; start < total; start += p.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			p.transition(StateReady, nil)
			return err
		}
		p.memoryGate(ctx)

		end := start + p.opts.BatchSize
		if end > total {
			end = total
		}
		changes := make([]Change, 0, end-start)
		for _, f := range files[start:end] {
			changes = append(changes, Change{Path: f, Kind: ChangeSaved})
		}
		p.processBatch(changes)

		p.mu.Lock()
		p.progress = float64(end) / float64(total)
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.progress = 1
	p.mu.Unlock()
	p.transition(StateReady, nil)
	return nil
}

// discover lists parsable files under each root, preferring git ls-files
// (tracked plus unignored untracked) and falling back to a directory walk
// that skips hidden and dependency directories.
func (p *Pipeline) discover(ctx context.Context, roots []string) []string {
	seen := map[string]bool{}
	var files []string
	add := func(path string) {
		if seen[path] || !p.registry.CanParse(path) {
			return
		}
		seen[path] = true
		files = append(files, path)
	}

	for _, root := range roots {
		if listed, err := gitFiles(ctx, root); err == nil {
			for _, f := range listed {
				add(f)
			}
			continue
		}
		p.walkRoot(root, add)
	}
	sort.Strings(files)
	return files
}

func gitFiles(ctx context.Context, root string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", root,
		"ls-files", "--cached", "--others", "--exclude-standard")
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		files = append(files, filepath.Join(root, line))
	}
	return files, nil
}

func (p *Pipeline) walkRoot(root string, add func(string)) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || p.skip[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		add(path)
		return nil
	})
}

// memoryGate pauses the index while heap usage sits above the threshold,
// waits out the cooldown, and hints the collector before resuming.
func (p *Pipeline) memoryGate(ctx context.Context) {
	if p.opts.MemoryThreshold <= 0 {
		return
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapSys == 0 {
		return
	}
	ratio := float64(ms.HeapAlloc) / float64(ms.HeapSys)
	if ratio < p.opts.MemoryThreshold {
		return
	}

	p.log.WithField("heapRatio", fmt.Sprintf("%.2f", ratio)).Info("memory pressure, pausing index")
	p.transition(StatePaused, nil)
	select {
	case <-time.After(p.opts.PauseCooldown):
	case <-ctx.Done():
	}
	runtime.GC()
	p.transition(StateIndexing, nil)
}
