package jsbridge

import (
	"errors"
	"testing"
)

// newTestEngine returns a thread engine finalized when the test ends.
func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e := InitializeThread(opts...)
	t.Cleanup(e.FinalizeThread)
	return e
}

// newTestContext returns a context in a fresh VM instance of a fresh engine.
func newTestContext(t *testing.T) *Context {
	t.Helper()
	ctx, err := NewContext(NewVMInstance(newTestEngine(t)))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx
}

// mustEval evaluates a script and fails the test on an exception.
func mustEval(t *testing.T, ctx *Context, src string) *Value {
	t.Helper()
	v, ok := EvaluateString(ctx, src, t.Name())
	if !ok {
		t.Fatalf("evaluating %q: %s", src, exceptionText(ctx))
	}
	return v
}

// exceptionText renders the exception slot for failure messages.
func exceptionText(ctx *Context) string {
	exc, ok := ctx.LastException()
	if !ok {
		return "<no exception>"
	}
	return ctx.describe(exc)
}

// expectPanic runs fn and checks that it panics with an error matching target.
func expectPanic(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		p := recover()
		if p == nil {
			t.Fatalf("expected panic matching %v", target)
		}
		err, ok := p.(error)
		if !ok || !errors.Is(err, target) {
			t.Fatalf("panic = %v, want %v", p, target)
		}
	}()
	fn()
}

func get(t *testing.T, ctx *Context, obj *Value, key string) *Value {
	t.Helper()
	v, ok := obj.Get(ctx, String(key))
	if !ok {
		t.Fatalf("Get(%q): %s", key, exceptionText(ctx))
	}
	return v
}
