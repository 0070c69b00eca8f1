// Package handle tracks engine-side resources owned by Go proxies and releases
// them once the proxies become unreachable.
//
// A proxy is registered with Track, which attaches a runtime cleanup to it.
// When the collector finds the proxy unreachable the cleanup pushes its id onto
// the table's reclamation queue. Nothing is released from the cleanup
// goroutine itself: Sweep, called on the goroutine that owns the engine, drains
// the queue and releases each resource exactly once.
package handle

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// ID identifies a tracked resource. IDs are never reused within a Table.
type ID uint64

// Resource is an engine-side allocation. Release is called at most once, on
// the sweeping goroutine. A Resource must not reference its proxy, otherwise
// the proxy can never become unreachable.
type Resource interface {
	Release()
}

// Flusher completes releases that were batched by Deferred resources.
type Flusher interface {
	Flush()
}

// Deferred is a Resource whose Release only records the release with its
// owner. The owner is flushed once per sweep after all releases ran.
type Deferred interface {
	Resource
	Owner() Flusher
}

// Stats is a snapshot of table counters.
type Stats struct {
	Tracked  uint64 // resources ever tracked
	Live     int    // resources tracked and not yet released
	Pending  int    // ids queued for the next sweep
	Released uint64 // resources released
	Stale    uint64 // queued ids that were no longer live when swept
}

// Table is a per-engine slot table plus its reclamation queue.
type Table struct {
	nextID atomic.Uint64

	mu       sync.Mutex
	live     map[ID]Resource
	queue    []ID
	released uint64
	stale    uint64

	allocs       atomic.Uint64
	collectEvery atomic.Int64
	forceGC      atomic.Bool
	due          atomic.Bool
}

// NewTable creates an empty table. collectEvery is the number of tracked
// allocations after which a sweep becomes due; 0 disables the cadence.
func NewTable(collectEvery int, forceGC bool) *Table {
	t := &Table{live: make(map[ID]Resource)}
	t.collectEvery.Store(int64(collectEvery))
	t.forceGC.Store(forceGC)
	return t
}

// Track records res as live and arranges for id to be queued once proxy is
// unreachable.
func Track[T any](t *Table, proxy *T, res Resource) ID {
	id := t.add(res)
	runtime.AddCleanup(proxy, t.enqueue, id)
	return id
}

func (t *Table) add(res Resource) ID {
	id := ID(t.nextID.Add(1))
	t.mu.Lock()
	t.live[id] = res
	t.mu.Unlock()

	if every := t.collectEvery.Load(); every > 0 && t.allocs.Add(1)%uint64(every) == 0 {
		t.due.Store(true)
	}
	return id
}

// enqueue runs on the runtime's cleanup goroutine.
func (t *Table) enqueue(id ID) {
	t.mu.Lock()
	t.queue = append(t.queue, id)
	t.mu.Unlock()
}

// Sweep releases every resource whose proxy has been collected and returns
// how many were released. Safe to call redundantly.
func (t *Table) Sweep() int {
	t.due.Store(false)

	t.mu.Lock()
	queued := t.queue
	t.queue = nil
	batch := make([]Resource, 0, len(queued))
	for _, id := range queued {
		res, ok := t.live[id]
		if !ok {
			t.stale++
			continue
		}
		delete(t.live, id)
		batch = append(batch, res)
	}
	t.released += uint64(len(batch))
	t.mu.Unlock()

	var owners []Flusher
	seen := make(map[Flusher]struct{})
	for _, res := range batch {
		res.Release()
		if d, ok := res.(Deferred); ok {
			o := d.Owner()
			if _, dup := seen[o]; !dup {
				seen[o] = struct{}{}
				owners = append(owners, o)
			}
		}
	}
	for _, o := range owners {
		o.Flush()
	}
	return len(batch)
}

// SweepIfDue runs a sweep when the allocation cadence asks for one, forcing a
// collection first when configured. Reports whether a sweep ran.
func (t *Table) SweepIfDue() bool {
	if !t.due.Load() {
		return false
	}
	if t.forceGC.Load() {
		runtime.GC()
	}
	t.Sweep()
	return true
}

// SetCollectEvery changes the sweep cadence. 0 disables it.
func (t *Table) SetCollectEvery(n int) {
	if n < 0 {
		n = 0
	}
	t.collectEvery.Store(int64(n))
	t.allocs.Store(0)
	t.due.Store(false)
}

// SetForceGC toggles the collection pass before cadence sweeps.
func (t *Table) SetForceGC(on bool) {
	t.forceGC.Store(on)
}

// Stats returns a snapshot of the table counters.
func (t *Table) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Tracked:  t.nextID.Load(),
		Live:     len(t.live),
		Pending:  len(t.queue),
		Released: t.released,
		Stale:    t.stale,
	}
}
