package jsbridge

import (
	"github.com/cryguy/jsbridge/internal/core"
)

// ErrorKind names a native error constructor.
type ErrorKind string

const (
	ErrorKindError     ErrorKind = "Error"
	ErrorKindType      ErrorKind = "TypeError"
	ErrorKindRange     ErrorKind = "RangeError"
	ErrorKindSyntax    ErrorKind = "SyntaxError"
	ErrorKindReference ErrorKind = "ReferenceError"
	ErrorKindEval      ErrorKind = "EvalError"
	ErrorKindURI       ErrorKind = "URIError"
)

func (k ErrorKind) valid() bool {
	switch k {
	case ErrorKindError, ErrorKindType, ErrorKindRange, ErrorKindSyntax,
		ErrorKindReference, ErrorKindEval, ErrorKindURI:
		return true
	}
	return false
}

// NewObject creates an empty plain object.
func NewObject(ctx *Context) (*Value, bool) {
	return ctx.op("NewObject", "newObject")
}

// NewArray creates an empty array.
func NewArray(ctx *Context) (*Value, bool) {
	return ctx.op("NewArray", "newArray")
}

// NewError creates an error object of the given kind with message.
func NewError(ctx *Context, kind ErrorKind, message string) (*Value, bool) {
	if !kind.valid() {
		core.InvalidInput(core.PhaseValue, "NewError", "unknown error kind %q", string(kind))
	}
	return ctx.op("NewError", "newError", String(string(kind)), String(message))
}

// Get reads v[key]. key may be any value; it is converted with ToPropertyKey.
func (v *Value) Get(ctx *Context, key *Value) (*Value, bool) {
	v.check("Get")
	requireArg("Get", "key", key)
	return ctx.op("Get", "get", v, key)
}

// Set performs v[key] = val and reports the [[Set]] success flag, which is
// false for example on a non-writable property.
func (v *Value) Set(ctx *Context, key, val *Value) (bool, bool) {
	v.check("Set")
	requireArg("Set", "key", key)
	requireArg("Set", "value", val)
	return ctx.boolOp("Set", "set", v, key, val)
}

// DefineDataProperty defines an own data property with the given attributes
// and reports whether the definition was accepted.
func (v *Value) DefineDataProperty(ctx *Context, key, val *Value, writable, enumerable, configurable bool) (bool, bool) {
	v.check("DefineDataProperty")
	requireArg("DefineDataProperty", "key", key)
	requireArg("DefineDataProperty", "value", val)
	return ctx.boolOp("DefineDataProperty", "define", v, key, val,
		Bool(writable), Bool(enumerable), Bool(configurable))
}

// GetOwnProperty reads an own property. Accessors are invoked with v as the
// receiver; a missing property gives undefined.
func (v *Value) GetOwnProperty(ctx *Context, key *Value) (*Value, bool) {
	v.check("GetOwnProperty")
	requireArg("GetOwnProperty", "key", key)
	return ctx.op("GetOwnProperty", "own", v, key)
}

// Has reports key in v, including inherited properties.
func (v *Value) Has(ctx *Context, key *Value) (bool, bool) {
	v.check("Has")
	requireArg("Has", "key", key)
	return ctx.boolOp("Has", "has", v, key)
}

// Delete removes an own property and reports the [[Delete]] success flag.
func (v *Value) Delete(ctx *Context, key *Value) (bool, bool) {
	v.check("Delete")
	requireArg("Delete", "key", key)
	return ctx.boolOp("Delete", "del", v, key)
}

// OwnKeys returns the own property keys in property order: integer keys
// ascending, then strings and then symbols in insertion order.
func (v *Value) OwnKeys(ctx *Context) ([]*Value, bool) {
	v.check("OwnKeys")
	return ctx.opList("OwnKeys", "keys", v)
}

// ArrayLength returns v.length as an integer. It returns 0 and sets the
// exception slot when reading the length throws.
func (v *Value) ArrayLength(ctx *Context) int64 {
	v.check("ArrayLength")
	r, ok := ctx.op("ArrayLength", "len", v)
	if !ok {
		return 0
	}
	n, ok := r.ToInteger(ctx)
	if !ok {
		return 0
	}
	return int64(n)
}

// Call invokes v with receiver as this.
func (v *Value) Call(ctx *Context, receiver *Value, args ...*Value) (*Value, bool) {
	v.check("Call")
	requireArg("Call", "receiver", receiver)
	for _, a := range args {
		requireArg("Call", "arg", a)
	}
	return ctx.op("Call", "call", append([]*Value{v, receiver}, args...)...)
}

// Construct invokes v as a constructor.
func (v *Value) Construct(ctx *Context, args ...*Value) (*Value, bool) {
	v.check("Construct")
	for _, a := range args {
		requireArg("Construct", "arg", a)
	}
	return ctx.op("Construct", "construct", append([]*Value{v}, args...)...)
}

// InstanceOf evaluates v instanceof ctor.
func (v *Value) InstanceOf(ctx *Context, ctor *Value) (bool, bool) {
	v.check("InstanceOf")
	requireArg("InstanceOf", "ctor", ctor)
	return ctx.boolOp("InstanceOf", "instanceOf", v, ctor)
}

// NewPromiseCapability creates a pending promise together with its resolve
// and reject functions.
func NewPromiseCapability(ctx *Context) (promise, resolve, reject *Value, ok bool) {
	vs, ok := ctx.opList("NewPromiseCapability", "capability")
	if !ok || len(vs) != 3 {
		return nil, nil, nil, false
	}
	return vs[0], vs[1], vs[2], true
}

// Then attaches reactions to a promise and returns the derived promise.
// Either reaction may be nil. Reactions run as jobs on the next drain.
func (v *Value) Then(ctx *Context, onFulfilled, onRejected *Value) (*Value, bool) {
	v.check("Then")
	if onFulfilled == nil {
		onFulfilled = Undefined()
	}
	if onRejected == nil {
		onRejected = Undefined()
	}
	return ctx.op("Then", "then", v, onFulfilled, onRejected)
}

func (ctx *Context) boolOp(api, name string, args ...*Value) (bool, bool) {
	r, ok := ctx.op(api, name, args...)
	if !ok {
		return false, false
	}
	return r.kind == KindBoolean && r.b, true
}
