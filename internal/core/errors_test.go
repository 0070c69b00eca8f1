package core

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestError_Format(t *testing.T) {
	err := NewError(PhaseValue, KindCrossContext).Op("Get").Detail("object of %s", "ctx-1").Cause(io.EOF).Build()
	got := err.Error()
	for _, part := range []string{"[value]", "cross_context", "in Get", "object of ctx-1", "caused by: EOF"} {
		if !strings.Contains(got, part) {
			t.Errorf("%q missing %q", got, part)
		}
	}
	if !errors.Is(err, io.EOF) {
		t.Error("cause not unwrapped")
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	err := NewError(PhaseLifecycle, KindNotInitialized).Build()
	if !errors.Is(err, ErrNotInitialized) {
		t.Error("kind-only sentinel should match any phase")
	}
	if errors.Is(err, ErrNilArgument) {
		t.Error("different kind matched")
	}
	if errors.Is(err, &Error{Phase: PhaseValue, Kind: KindNotInitialized}) {
		t.Error("different phase matched")
	}
}

func TestPanicHelpers(t *testing.T) {
	cases := []struct {
		fn   func()
		want *Error
	}{
		{func() { NilArgument(PhaseCallback, "Register", "ctx") }, ErrNilArgument},
		{func() { NotInitialized(PhaseLifecycle, "NewContext") }, ErrNotInitialized},
		{func() { InvalidInput(PhaseValue, "BigIntString", "radix %d", 99) }, ErrInvalidInput},
	}
	for _, tc := range cases {
		func() {
			defer func() {
				err, ok := recover().(*Error)
				if !ok || !errors.Is(err, tc.want) {
					t.Errorf("recovered %v, want %v", err, tc.want)
				}
			}()
			tc.fn()
		}()
	}
}

func TestLogBuffer_DropsOldest(t *testing.T) {
	var b LogBuffer
	for i := 0; i < MaxLogEntries+5; i++ {
		b.Add("log", strings.Repeat("x", i%3))
	}
	entries := b.Entries()
	if len(entries) != MaxLogEntries {
		t.Fatalf("len = %d", len(entries))
	}
	b.Reset()
	if len(b.Entries()) != 0 {
		t.Fatal("Reset kept entries")
	}
}
