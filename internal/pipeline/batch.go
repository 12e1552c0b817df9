package pipeline

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jward/arbor/internal/entity"
)

// task carries one file through the three batch phases.
type task struct {
	change  Change
	data    []byte
	res     *entity.ParseResult
	err     error
	missing bool
}

// processBatch runs one batch through three phases:
//
//	Phase A (serial):   resolve content from the change or disk.
//	Phase B (parallel): extract every readable file, one goroutine each.
//	Phase C (serial):   commit results to the graph, schedule retries.
//
// Afterwards commit hooks fire and observers get a status push. Callers
// check cancellation between batches; a started batch always completes.
func (p *Pipeline) processBatch(changes []Change) {
	batchLog := p.log.WithFields(logrus.Fields{
		"batch": uuid.NewString(),
		"files": len(changes),
	})
	batchLog.Debug("processing batch")

	// ---- Phase A: serial content resolution ----
	tasks := make([]*task, 0, len(changes))
	for _, c := range changes {
		t := &task{change: c, data: c.Content}
		if t.data == nil {
			data, err := os.ReadFile(c.Path)
			switch {
			case errors.Is(err, os.ErrNotExist):
				t.missing = true
			case err != nil:
				t.err = err
			case int64(len(data)) > p.opts.MaxFileSize:
				t.err = fmt.Errorf("%w: %s (%d bytes)", ErrFileTooLarge, c.Path, len(data))
			default:
				t.data = data
			}
		}
		tasks = append(tasks, t)
	}

	// ---- Phase B: parallel extraction ----
	var eg errgroup.Group
	for _, t := range tasks {
		if t.err != nil || t.missing {
			continue
		}
		t := t
		eg.Go(func() error {
			t.res = p.registry.Parse(t.change.Path, t.data)
			return nil
		})
	}
	_ = eg.Wait()

	// ---- Phase C: serial commit ----
	p.mu.Lock()
	for _, t := range tasks {
		path := t.change.Path
		switch {
		case t.missing:
			p.graph.RemoveFileEntities(path)
			delete(p.indexed, path)
			delete(p.retries, path)
		case t.err != nil:
			p.scheduleRetryLocked(path, t.err, batchLog)
		case t.res == nil || !t.res.Success:
			p.scheduleRetryLocked(path, parseFailure(t.res), batchLog)
		default:
			p.graph.RemoveFileEntities(path)
			p.graph.ApplyParseResult(t.res)
			p.indexed[path] = true
			delete(p.retries, path)
		}
	}
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
}

func parseFailure(res *entity.ParseResult) error {
	if res == nil {
		return errors.New("extraction returned no result")
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("extraction failed: %s", res.Errors[0].Error())
	}
	return errors.New("extraction failed")
}

// scheduleRetryLocked re-enqueues a failed file after base × 2^attempt,
// capped at the ceiling, up to MaxRetries. Permanent errors drop
// immediately. Retry state is per file; one file's failures never slow
// another.
func (p *Pipeline) scheduleRetryLocked(path string, cause error, log *logrus.Entry) {
	if errors.Is(cause, ErrFileTooLarge) || errors.Is(cause, ErrUnsupportedFile) {
		delete(p.retries, path)
		log.WithError(cause).WithField("file", path).Warn("dropping file")
		return
	}

	attempt := p.retries[path]
	if attempt >= p.opts.MaxRetries {
		delete(p.retries, path)
		log.WithError(cause).WithFields(logrus.Fields{
			"file":     path,
			"attempts": attempt,
		}).Warn("giving up after retries")
		return
	}
	p.retries[path] = attempt + 1

	delay := p.opts.RetryBaseDelay << uint(attempt)
	if delay > p.opts.RetryMaxDelay {
		delay = p.opts.RetryMaxDelay
	}
	log.WithError(cause).WithFields(logrus.Fields{
		"file":    path,
		"attempt": attempt + 1,
		"delay":   delay.String(),
	}).Debug("scheduling retry")

	time.AfterFunc(delay, func() {
		p.requeue(path)
	})
}

// requeue feeds a retried file back through the queue with disk content.
func (p *Pipeline) requeue(path string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue.push(Change{Path: path, Kind: ChangeModified})
	p.mu.Unlock()
	p.kickDrain()
}
