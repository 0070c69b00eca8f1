package handle

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

type proxy struct {
	name string
	pad  [4]uint64
}

type countingResource struct {
	mu    *sync.Mutex
	count map[int]int
	key   int
}

func (r countingResource) Release() {
	r.mu.Lock()
	r.count[r.key]++
	r.mu.Unlock()
}

type batchOwner struct{ flushes int }

func (o *batchOwner) Flush() { o.flushes++ }

type deferredResource struct {
	owner    *batchOwner
	released *int
}

func (r deferredResource) Release()       { *r.released++ }
func (r deferredResource) Owner() Flusher { return r.owner }

// waitPending forces collections until at least want ids are queued.
func waitPending(t *testing.T, tbl *Table, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		if tbl.Stats().Pending >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("pending = %d after 5s, want >= %d", tbl.Stats().Pending, want)
}

func trackMany(tbl *Table, n int, mu *sync.Mutex, count map[int]int) {
	for i := 0; i < n; i++ {
		p := &proxy{name: "p"}
		Track(tbl, p, countingResource{mu: mu, count: count, key: i})
	}
}

func TestTable_SweepReleasesOnce(t *testing.T) {
	tbl := NewTable(0, false)
	var mu sync.Mutex
	count := make(map[int]int)

	const n = 10000
	trackMany(tbl, n, &mu, count)
	waitPending(t, tbl, n/2)

	released := tbl.Sweep()
	if released == 0 {
		t.Fatal("expected some resources to be released")
	}

	// A second sweep with nothing new queued must not release anything again.
	waitPending(t, tbl, 0)
	for i := 0; i < 3; i++ {
		runtime.GC()
		time.Sleep(5 * time.Millisecond)
		tbl.Sweep()
	}

	mu.Lock()
	defer mu.Unlock()
	for key, c := range count {
		if c != 1 {
			t.Fatalf("resource %d released %d times", key, c)
		}
	}
	stats := tbl.Stats()
	if stats.Released != uint64(len(count)) {
		t.Errorf("Released = %d, want %d", stats.Released, len(count))
	}
	if stats.Tracked != n {
		t.Errorf("Tracked = %d, want %d", stats.Tracked, n)
	}
}

func TestTable_ReachableProxySurvivesSweep(t *testing.T) {
	tbl := NewTable(0, false)
	var mu sync.Mutex
	count := make(map[int]int)

	keep := &proxy{name: "keep"}
	Track(tbl, keep, countingResource{mu: &mu, count: count, key: -1})
	trackMany(tbl, 100, &mu, count)
	waitPending(t, tbl, 50)
	tbl.Sweep()

	mu.Lock()
	c := count[-1]
	mu.Unlock()
	if c != 0 {
		t.Fatalf("reachable resource released %d times", c)
	}
	runtime.KeepAlive(keep)
}

func TestTable_SweepEmpty(t *testing.T) {
	tbl := NewTable(0, false)
	if n := tbl.Sweep(); n != 0 {
		t.Fatalf("Sweep on empty table = %d, want 0", n)
	}
	if n := tbl.Sweep(); n != 0 {
		t.Fatalf("second Sweep = %d, want 0", n)
	}
}

func TestTable_StaleIDsIgnored(t *testing.T) {
	tbl := NewTable(0, false)
	var mu sync.Mutex
	count := make(map[int]int)

	id := tbl.add(countingResource{mu: &mu, count: count, key: 7})
	tbl.enqueue(id)
	tbl.enqueue(id)
	if n := tbl.Sweep(); n != 1 {
		t.Fatalf("Sweep = %d, want 1", n)
	}
	tbl.enqueue(id)
	if n := tbl.Sweep(); n != 0 {
		t.Fatalf("Sweep of already released id = %d, want 0", n)
	}
	if count[7] != 1 {
		t.Fatalf("released %d times, want 1", count[7])
	}
	if s := tbl.Stats(); s.Stale != 2 {
		t.Errorf("Stale = %d, want 2", s.Stale)
	}
}

func TestTable_ConcurrentEnqueue(t *testing.T) {
	tbl := NewTable(0, false)
	var mu sync.Mutex
	count := make(map[int]int)

	ids := make([]ID, 1000)
	for i := range ids {
		ids[i] = tbl.add(countingResource{mu: &mu, count: count, key: i})
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, id := range ids {
				tbl.enqueue(id)
			}
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		tbl.Sweep()
		select {
		case <-done:
			tbl.Sweep()
			for key, c := range count {
				if c != 1 {
					t.Fatalf("resource %d released %d times", key, c)
				}
			}
			if len(count) != len(ids) {
				t.Fatalf("released %d resources, want %d", len(count), len(ids))
			}
			return
		default:
		}
	}
}

func TestTable_DeferredOwnerFlushedOnce(t *testing.T) {
	tbl := NewTable(0, false)
	owner := &batchOwner{}
	released := 0
	for i := 0; i < 5; i++ {
		tbl.enqueue(tbl.add(deferredResource{owner: owner, released: &released}))
	}
	tbl.Sweep()
	if released != 5 {
		t.Errorf("released = %d, want 5", released)
	}
	if owner.flushes != 1 {
		t.Errorf("flushes = %d, want 1", owner.flushes)
	}
}

func TestTable_Cadence(t *testing.T) {
	tbl := NewTable(3, false)
	var mu sync.Mutex
	count := make(map[int]int)

	tbl.add(countingResource{mu: &mu, count: count, key: 1})
	tbl.add(countingResource{mu: &mu, count: count, key: 2})
	if tbl.SweepIfDue() {
		t.Fatal("sweep ran before cadence was reached")
	}
	tbl.add(countingResource{mu: &mu, count: count, key: 3})
	if !tbl.SweepIfDue() {
		t.Fatal("sweep did not run at cadence")
	}
	if tbl.SweepIfDue() {
		t.Fatal("sweep ran twice for one cadence period")
	}

	tbl.SetCollectEvery(0)
	for i := 0; i < 10; i++ {
		tbl.add(countingResource{mu: &mu, count: count, key: 10 + i})
	}
	if tbl.SweepIfDue() {
		t.Fatal("sweep ran with cadence disabled")
	}
}
