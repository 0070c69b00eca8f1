package core

import (
	"fmt"
	"strings"
)

// Phase indicates which bridge layer raised the error.
type Phase string

const (
	PhaseLifecycle Phase = "lifecycle" // engine, VM and context management
	PhaseValue     Phase = "value"     // value handles and conversions
	PhaseCallback  Phase = "callback"  // host function registration and dispatch
	PhaseEval      Phase = "eval"      // script evaluation
	PhaseConfig    Phase = "config"    // configuration loading
	PhaseSweep     Phase = "sweep"     // handle reclamation
)

// Kind categorizes the error.
type Kind string

const (
	KindNilPointer     Kind = "nil_pointer"
	KindNotInitialized Kind = "not_initialized"
	KindInvalidInput   Kind = "invalid_input"
	KindCrossContext   Kind = "cross_context"
	KindWrongKind      Kind = "wrong_kind"
	KindEngine         Kind = "engine"
)

// Error is the structured error used for programmer faults and engine failures.
// Programmer faults are raised with panic(*Error) and never stored in a
// context's exception slot.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target has the same kind. A target with an empty phase
// matches any phase, so kind-only sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

// NewError creates a new error builder.
func NewError(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

// Op sets the operation name.
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Cause sets the underlying error.
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *Error {
	e := b.err
	return &e
}

// Sentinels for errors.Is matching on recovered panics.
var (
	ErrNilArgument    = &Error{Kind: KindNilPointer}
	ErrNotInitialized = &Error{Kind: KindNotInitialized}
	ErrCrossContext   = &Error{Kind: KindCrossContext}
	ErrInvalidInput   = &Error{Kind: KindInvalidInput}
	ErrWrongKind      = &Error{Kind: KindWrongKind}
)

// NilArgument panics with a nil_pointer fault for a missing required argument.
func NilArgument(phase Phase, op, arg string) {
	panic(NewError(phase, KindNilPointer).Op(op).Detail("required argument %q is nil", arg).Build())
}

// NotInitialized panics with a not_initialized fault.
func NotInitialized(phase Phase, op string) {
	panic(NewError(phase, KindNotInitialized).Op(op).Detail("no active engine epoch").Build())
}

// InvalidInput panics with an invalid_input fault.
func InvalidInput(phase Phase, op, format string, args ...any) {
	panic(NewError(phase, KindInvalidInput).Op(op).Detail(format, args...).Build())
}
