// Package queue is the admission queue: a FIFO of job IDs awaiting the
// single worker. It is deliberately decoupled from the job store so a job
// deleted while queued is simply skipped when its turn comes.
package queue

import "sync"

type Queue struct {
	mu  sync.Mutex
	ids []string
}

func New() *Queue {
	return &Queue{}
}

// Enqueue appends a job ID. IDs are never reordered.
func (q *Queue) Enqueue(id string) {
	q.mu.Lock()
	q.ids = append(q.ids, id)
	q.mu.Unlock()
}

// TryDequeue removes and returns the oldest ID for which accept returns
// true. IDs rejected on the way (deleted or no longer queued) are
// discarded, never re-queued. Returns false when nothing survives.
func (q *Queue) TryDequeue(accept func(id string) bool) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.ids) > 0 {
		id := q.ids[0]
		q.ids = q.ids[1:]
		if accept(id) {
			return id, true
		}
	}
	return "", false
}

// Len reports the number of pending IDs, including any stale ones not yet
// skipped.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}
