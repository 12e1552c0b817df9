package pipeline

// fileQueue coalesces pending changes per file: the latest change wins,
// order follows first appearance. Callers hold the pipeline lock.
type fileQueue struct {
	order []string
	items map[string]Change
}

func newFileQueue() fileQueue {
	return fileQueue{items: map[string]Change{}}
}

func (q *fileQueue) push(c Change) {
	if _, ok := q.items[c.Path]; !ok {
		q.order = append(q.order, c.Path)
	}
	q.items[c.Path] = c
}

// pop removes and returns up to n changes in FIFO order.
func (q *fileQueue) pop(n int) []Change {
	if n <= 0 || n > len(q.order) {
		n = len(q.order)
	}
	out := make([]Change, 0, n)
	for _, path := range q.order[:n] {
		out = append(out, q.items[path])
		delete(q.items, path)
	}
	q.order = q.order[n:]
	return out
}

func (q *fileQueue) remove(path string) {
	if _, ok := q.items[path]; !ok {
		return
	}
	delete(q.items, path)
	for i, p := range q.order {
		if p == path {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

func (q *fileQueue) len() int {
	return len(q.order)
}
