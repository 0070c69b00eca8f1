package jsbridge

import (
	"github.com/cryguy/jsbridge/internal/core"
	"go.uber.org/zap"
)

// Callback is a host function callable from script. receiver is the script
// `this`; args are the call arguments in order. Returning (nil, _) or
// (_, false) gives script undefined.
//
// A panic inside a Callback is not turned into a script exception: script
// unwinds with an Error and the panic is raised again, with the same value,
// from the bridge call that entered the engine. Use Throw to raise a script
// exception instead.
type Callback func(receiver *Value, args []*Value) (*Value, bool)

// Register installs cb as globalThis[namespace][property], creating the
// namespace object when it is missing. The function is constructible, has
// length 1 and is named after property. Register returns false for an empty
// namespace or property, or when script refused the definition.
func Register(ctx *Context, namespace, property string, cb Callback) bool {
	if ctx == nil {
		core.NilArgument(core.PhaseCallback, "Register", "ctx")
	}
	if cb == nil {
		core.NilArgument(core.PhaseCallback, "Register", "callback")
	}
	ctx.checkActive("Register")
	if namespace == "" || property == "" {
		return false
	}

	ns, ok := ctx.op("Register", "namespace", String(namespace))
	if !ok {
		return false
	}
	fn, ok := NewFunction(ctx, property, 1, true, cb)
	if !ok {
		return false
	}
	set, ok := ns.Set(ctx, String(property), fn)
	if !ok || !set {
		return false
	}
	ctx.core.engine.log.Debug("callback registered",
		zap.String("context", ctx.core.id.String()),
		zap.String("namespace", namespace),
		zap.String("property", property))
	return true
}

// NewFunction creates a script function object whose body calls cb. A
// constructible function may be invoked with new; when cb then returns a
// non-object the new object is the result.
//
// cb stays registered while script can reach the function. Once the engine
// has collected it, the registration is dropped by a job on a later drain.
func NewFunction(ctx *Context, name string, length int, constructible bool, cb Callback) (*Value, bool) {
	if ctx == nil {
		core.NilArgument(core.PhaseCallback, "NewFunction", "ctx")
	}
	if cb == nil {
		core.NilArgument(core.PhaseCallback, "NewFunction", "callback")
	}
	ctx.checkActive("NewFunction")
	if length < 0 {
		core.InvalidInput(core.PhaseCallback, "NewFunction", "negative length %d", length)
	}

	ctx.nextFn++
	fid := ctx.nextFn
	fn, ok := ctx.op("NewFunction", "hostFunction",
		Int32(int32(fid)), String(name), Number(float64(length)), Bool(constructible))
	if !ok {
		return nil, false
	}
	ctx.callbacks[fid] = cb
	return fn, true
}

// Throw makes the running callback complete by throwing v into script. The
// callback's own return value is ignored. Throw may only be called from
// inside a Callback of ctx.
func Throw(ctx *Context, v *Value) {
	if ctx == nil {
		core.NilArgument(core.PhaseCallback, "Throw", "ctx")
	}
	requireArg("Throw", "value", v)
	if ctx.callbackDepth == 0 {
		core.InvalidInput(core.PhaseCallback, "Throw", "no callback is running")
	}
	ctx.throwing = v
}
