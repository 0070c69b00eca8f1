// Package eventloop drains the job queues of the runtimes a VM instance
// attaches. Jobs never run implicitly: a host asks for a drain.
package eventloop

import (
	"sync"

	"github.com/cryguy/jsbridge/internal/core"
)

// Hooks lets the owner observe job execution.
type Hooks struct {
	// JobError is called when a job finished with an uncaught exception.
	JobError func(rt core.JSRuntime, err error)
	// AfterJob is called after every executed job, on the draining goroutine.
	// It may panic to abort the drain.
	AfterJob func(rt core.JSRuntime)
}

// JobQueue is the job queue of a VM instance. Each attached runtime keeps its
// own FIFO of pending jobs, shared by all realms on it. A VM instance
// attaches its single runtime, so its jobs run in enqueue order; with several
// runtimes attached a drain runs them round-robin, one job per runtime per
// pass.
type JobQueue struct {
	mu      sync.Mutex
	sources []core.JSRuntime
	hooks   Hooks
	closed  bool
}

// New creates an empty JobQueue.
func New(hooks Hooks) *JobQueue {
	return &JobQueue{hooks: hooks}
}

// Attach adds a runtime whose jobs the queue drains.
func (q *JobQueue) Attach(rt core.JSRuntime) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.sources = append(q.sources, rt)
}

// Detach removes a runtime. Its pending jobs are dropped with it.
func (q *JobQueue) Detach(rt core.JSRuntime) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, s := range q.sources {
		if s == rt {
			q.sources = append(q.sources[:i], q.sources[i+1:]...)
			return
		}
	}
}

// Close detaches every runtime. Later Attach calls are ignored.
func (q *JobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.sources = nil
}

// Len returns the number of attached runtimes.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.sources)
}

func (q *JobQueue) snapshot() []core.JSRuntime {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]core.JSRuntime, len(q.sources))
	copy(out, q.sources)
	return out
}

// HasPending reports whether any attached runtime has a pending job.
func (q *JobQueue) HasPending() bool {
	for _, rt := range q.snapshot() {
		if rt.HasPendingJob() {
			return true
		}
	}
	return false
}

// Drain runs jobs until no attached runtime has one pending, including jobs
// enqueued by the jobs themselves. Returns the number of jobs executed.
// Must be called on the goroutine that owns the runtimes.
func (q *JobQueue) Drain() int {
	count := 0
	for {
		ran := false
		for _, rt := range q.snapshot() {
			if !rt.HasPendingJob() {
				continue
			}
			ok, err := rt.RunPendingJob()
			if !ok {
				continue
			}
			ran = true
			count++
			if err != nil && q.hooks.JobError != nil {
				q.hooks.JobError(rt, err)
			}
			if q.hooks.AfterJob != nil {
				q.hooks.AfterJob(rt)
			}
		}
		if !ran {
			return count
		}
	}
}
