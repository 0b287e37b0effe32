package queue

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/darasa/core"
)

// MemoryQueue is a process-local FIFO queue. Used by tests and memory-storage dev runs.
type MemoryQueue struct {
	mu       sync.Mutex
	pending  []core.Job
	enqueued []core.Job
	notify   chan struct{}
}

var (
	_ core.JobQueue = (*MemoryQueue)(nil)
	_ Source        = (*MemoryQueue)(nil)
)

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{notify: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, jobs ...core.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	q.mu.Lock()
	q.pending = append(q.pending, jobs...)
	q.enqueued = append(q.enqueued, jobs...)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) pop() (core.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return core.Job{}, false
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	return job, true
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (core.Job, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		if job, ok := q.pop(); ok {
			return job, true, nil
		}
		select {
		case <-q.notify:
		case <-timer.C:
			return core.Job{}, false, nil
		case <-ctx.Done():
			return core.Job{}, false, ctx.Err()
		}
	}
}

// Jobs returns every job enqueued so far, popped or not.
func (q *MemoryQueue) Jobs(kinds ...core.JobKind) []core.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]core.Job, 0, len(q.enqueued))
	for _, job := range q.enqueued {
		if len(kinds) == 0 || hasKind(kinds, job.Kind) {
			out = append(out, job)
		}
	}
	return out
}

// Reset drops every job.
func (q *MemoryQueue) Reset() {
	q.mu.Lock()
	q.pending = nil
	q.enqueued = nil
	q.mu.Unlock()
}

func (q *MemoryQueue) Ping(context.Context) error { return nil }

func hasKind(kinds []core.JobKind, k core.JobKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}
