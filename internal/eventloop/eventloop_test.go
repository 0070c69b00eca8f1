package eventloop

import (
	"errors"
	"testing"

	"github.com/cryguy/jsbridge/internal/core"
)

// fakeRuntime records the order jobs ran in. A job may enqueue follow-ups.
type fakeRuntime struct {
	name    string
	jobs    []func() error
	log     *[]string
	removed bool
}

var _ core.JSRuntime = (*fakeRuntime)(nil)

func (f *fakeRuntime) Close()              {}
func (f *fakeRuntime) HasPendingJob() bool { return len(f.jobs) > 0 }

func (f *fakeRuntime) RunPendingJob() (bool, error) {
	if len(f.jobs) == 0 {
		return false, nil
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	return true, job()
}

func (f *fakeRuntime) push(label string) {
	f.jobs = append(f.jobs, func() error {
		*f.log = append(*f.log, label)
		return nil
	})
}

func TestJobQueue_DrainOrder(t *testing.T) {
	var log []string
	a := &fakeRuntime{name: "a", log: &log}
	b := &fakeRuntime{name: "b", log: &log}
	a.push("a1")
	a.push("a2")
	b.push("b1")

	q := New(Hooks{})
	q.Attach(a)
	q.Attach(b)

	if !q.HasPending() {
		t.Fatal("expected pending jobs")
	}
	if n := q.Drain(); n != 3 {
		t.Fatalf("Drain ran %d jobs, want 3", n)
	}
	if q.HasPending() {
		t.Fatal("expected no pending jobs after drain")
	}
	want := []string{"a1", "b1", "a2"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}
}

func TestJobQueue_JobsEnqueuedDuringDrain(t *testing.T) {
	var log []string
	a := &fakeRuntime{name: "a", log: &log}
	a.jobs = append(a.jobs, func() error {
		log = append(log, "first")
		a.push("second")
		return nil
	})

	q := New(Hooks{})
	q.Attach(a)
	if n := q.Drain(); n != 2 {
		t.Fatalf("Drain ran %d jobs, want 2", n)
	}
	if len(log) != 2 || log[1] != "second" {
		t.Fatalf("log = %v", log)
	}
}

func TestJobQueue_ErrorsReportedAndDrainContinues(t *testing.T) {
	var log []string
	a := &fakeRuntime{name: "a", log: &log}
	a.jobs = append(a.jobs, func() error { return errors.New("boom") })
	a.push("after")

	var errs []error
	after := 0
	q := New(Hooks{
		JobError: func(rt core.JSRuntime, err error) { errs = append(errs, err) },
		AfterJob: func(rt core.JSRuntime) { after++ },
	})
	q.Attach(a)
	q.Drain()

	if len(errs) != 1 {
		t.Fatalf("got %d job errors, want 1", len(errs))
	}
	if after != 2 {
		t.Errorf("AfterJob called %d times, want 2", after)
	}
	if len(log) != 1 || log[0] != "after" {
		t.Errorf("log = %v", log)
	}
}

func TestJobQueue_DetachAndClose(t *testing.T) {
	var log []string
	a := &fakeRuntime{name: "a", log: &log}
	b := &fakeRuntime{name: "b", log: &log}
	a.push("a1")
	b.push("b1")

	q := New(Hooks{})
	q.Attach(a)
	q.Attach(b)
	q.Detach(a)
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}
	q.Drain()
	if len(log) != 1 || log[0] != "b1" {
		t.Fatalf("log = %v", log)
	}

	q.Close()
	q.Attach(a)
	if q.Len() != 0 {
		t.Fatalf("Attach after Close should be ignored, Len = %d", q.Len())
	}
	if q.HasPending() {
		t.Fatal("closed queue should report no pending jobs")
	}
}
