package jsbridge

import (
	"encoding/json"
	"fmt"
	"runtime"
	"weak"

	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/handle"
	"github.com/cryguy/jsbridge/internal/quickjs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Context is an execution scope with its own global object and a single
// last-exception slot, bound to one VMInstance. Each Context is a realm on
// the QuickJS runtime of its VMInstance.
type Context struct {
	vm     *VMInstance
	core   *contextCore
	global *Value

	exception *Value

	callbacks map[int]Callback
	nextFn    int

	// throwing is the value passed to Throw by the running callback.
	throwing      *Value
	callbackDepth int

	console core.LogBuffer
}

// contextCore is the engine-side state of a Context. The script-side
// trampoline closes over it, so it must not reference the Context; the
// Context is reached through self while it is alive.
type contextCore struct {
	id     uuid.UUID
	engine *Engine
	vm     *vmCore
	realm  *quickjs.Realm
	self   weak.Pointer[Context]
	handle handle.ID

	closed bool
	freed  []uint64
	fault  *hostFault

	// localSyms holds script-created symbols by their id in the realm.
	localSyms map[int64]weak.Pointer[symbolRecord]
	symPrune  int
}

// hostFault is a panic recovered from a host callback, held until control is
// back in Go code outside the engine.
type hostFault struct {
	value any
}

// contextResource closes the QuickJS realm of a Context.
type contextResource struct{ core *contextCore }

func (r contextResource) Release() { r.core.close() }

// NewContext creates a Context with a fresh global object in vm.
func NewContext(vm *VMInstance) (*Context, error) {
	vm.check("NewContext")
	e := vm.engine

	cc := &contextCore{
		id:        uuid.New(),
		engine:    e,
		vm:        vm.core,
		localSyms: make(map[int64]weak.Pointer[symbolRecord]),
	}
	rt, err := vm.core.runtime()
	if err != nil {
		return nil, fmt.Errorf("creating context: %w", err)
	}
	realm, err := rt.NewRealm(cc.hostCall)
	if err != nil {
		return nil, fmt.Errorf("creating context: %w", err)
	}
	cc.realm = realm

	ctx := &Context{
		vm:        vm,
		core:      cc,
		callbacks: make(map[int]Callback),
	}
	cc.self = weak.Make(ctx)
	vm.core.attach(cc)
	cc.handle = handle.Track(e.table, ctx, contextResource{core: cc})

	global, ok := ctx.op("GlobalObject", "global")
	if !ok {
		return nil, fmt.Errorf("creating context: global object unavailable: %s", ctx.describe(ctx.exception))
	}
	ctx.global = global
	ctx.exception = nil

	e.log.Debug("context created",
		zap.String("context", cc.id.String()),
		zap.Uint64("vm", uint64(vm.core.id)))
	return ctx, nil
}

// ID returns the context's unique id, as used in log fields.
func (ctx *Context) ID() string {
	if ctx == nil {
		core.NilArgument(core.PhaseLifecycle, "ID", "ctx")
	}
	return ctx.core.id.String()
}

// VM returns the instance the context belongs to.
func (ctx *Context) VM() *VMInstance {
	if ctx == nil {
		core.NilArgument(core.PhaseLifecycle, "VM", "ctx")
	}
	return ctx.vm
}

// GlobalObject returns the context's global object.
func (ctx *Context) GlobalObject() *Value {
	ctx.checkActive("GlobalObject")
	return ctx.global
}

// LastException returns the value thrown by the most recent failed script
// operation. The slot holds one value and is overwritten by each failure.
func (ctx *Context) LastException() (*Value, bool) {
	ctx.checkActive("LastException")
	return ctx.exception, ctx.exception != nil
}

// ExceptionWasThrown reports whether the exception slot is set.
func (ctx *Context) ExceptionWasThrown() bool {
	ctx.checkActive("ExceptionWasThrown")
	return ctx.exception != nil
}

// ClearException empties the exception slot.
func (ctx *Context) ClearException() {
	ctx.checkActive("ClearException")
	ctx.exception = nil
}

// JSONParse parses str, which must be a string value, with JSON.parse.
func (ctx *Context) JSONParse(str *Value) (*Value, bool) {
	requireArg("JSONParse", "str", str)
	return ctx.op("JSONParse", "jsonParse", str)
}

// JSONStringify serializes v with JSON.stringify. The result is undefined for
// values JSON cannot represent.
func (ctx *Context) JSONStringify(v *Value) (*Value, bool) {
	requireArg("JSONStringify", "value", v)
	return ctx.op("JSONStringify", "jsonStringify", v)
}

func (ctx *Context) checkActive(op string) {
	if ctx == nil {
		core.NilArgument(core.PhaseValue, op, "ctx")
	}
	ctx.core.engine.checkActive(op)
}

func (ctx *Context) setException(v *Value) {
	ctx.exception = v
}

func requireArg(op, name string, v *Value) {
	if v == nil {
		core.NilArgument(core.PhaseValue, op, name)
	}
}

// enter marks the start of a bridge entry. Top-level entries are safe points
// for cadence sweeps.
func (ctx *Context) enter(op string) *contextCore {
	ctx.checkActive(op)
	cc := ctx.core
	cc.engine.safePoint()
	cc.engine.depth++
	return cc
}

// leave ends a bridge entry and re-raises a host fault stashed while the
// engine was running.
func (cc *contextCore) leave() {
	cc.engine.depth--
	cc.raiseFault()
}

func (cc *contextCore) raiseFault() {
	if f := cc.fault; f != nil {
		cc.fault = nil
		panic(f.value)
	}
}

// op runs a named script-side operation and decodes its single result. A
// thrown exception lands in the exception slot.
func (ctx *Context) op(api, name string, args ...*Value) (*Value, bool) {
	cc := ctx.enter(api)
	defer cc.leave()
	out, err := cc.realm.Op(name, cc.encodeAll(api, args...))
	runtime.KeepAlive(args)
	return ctx.result(api, out, err)
}

// opList is op for operations returning several values.
func (ctx *Context) opList(api, name string, args ...*Value) ([]*Value, bool) {
	cc := ctx.enter(api)
	defer cc.leave()
	out, err := cc.realm.OpList(name, cc.encodeAll(api, args...))
	runtime.KeepAlive(args)
	r, ok := ctx.reply(api, out, err)
	if !ok {
		return nil, false
	}
	if !r.OK {
		ctx.thrown(ctx.decodeReply(r))
		return nil, false
	}
	vs := make([]*Value, len(r.VS))
	for i, w := range r.VS {
		vs[i] = cc.decode(ctx, w)
	}
	return vs, true
}

func (ctx *Context) result(api, out string, err error) (*Value, bool) {
	r, ok := ctx.reply(api, out, err)
	if !ok {
		return nil, false
	}
	v := ctx.decodeReply(r)
	if !r.OK {
		ctx.thrown(v)
		return nil, false
	}
	return v, true
}

// thrown records an exception thrown by script. The error a faulted host
// callback raises to unwind script is not recorded: the fault itself is
// re-raised as a panic once control is back in Go.
func (ctx *Context) thrown(v *Value) {
	if ctx.core.fault != nil {
		return
	}
	ctx.setException(v)
}

// reply parses an operation reply. Engine failures that happen outside any
// script frame, such as running out of memory, surface as a string exception.
func (ctx *Context) reply(api, out string, err error) (opReply, bool) {
	var r opReply
	if err == nil {
		err = json.Unmarshal([]byte(out), &r)
	}
	if err != nil {
		ctx.core.engine.log.Error("engine operation failed",
			zap.String("context", ctx.core.id.String()),
			zap.String("op", api),
			zap.Error(err))
		ctx.setException(String(err.Error()))
		return r, false
	}
	return r, true
}

func (ctx *Context) decodeReply(r opReply) *Value {
	if r.V == nil {
		return Undefined()
	}
	return ctx.core.decode(ctx, *r.V)
}

// describe renders v for logs with script string conversion, without
// touching the exception slot.
func (ctx *Context) describe(v *Value) string {
	if v == nil {
		return ""
	}
	switch v.kind {
	case KindUndefined, KindNull, KindBoolean, KindString, KindSymbol:
		return v.String()
	}
	cc := ctx.enter("describe")
	defer cc.leave()
	out, err := cc.realm.Op("toString", cc.encodeAll("describe", v))
	runtime.KeepAlive(v)
	if err != nil {
		return v.String()
	}
	var r opReply
	if json.Unmarshal([]byte(out), &r) != nil || !r.OK || r.V == nil || r.V.S == nil {
		return v.String()
	}
	return *r.V.S
}

// hostCall is the trampoline the script side calls for every host function.
// It runs on the goroutine that is executing script.
func (cc *contextCore) hostCall(fnID int, payload string) (reply string) {
	ctx := cc.self.Value()
	if ctx == nil {
		return thrownReply("context released")
	}
	if fnID < 0 {
		delete(ctx.callbacks, -fnID)
		return "{}"
	}

	defer func() {
		if p := recover(); p != nil {
			if cc.fault == nil {
				cc.fault = &hostFault{value: p}
			}
			cc.engine.log.Error("host callback fault",
				zap.String("context", cc.id.String()),
				zap.Int("function", fnID),
				zap.Any("panic", p))
			reply = `{"fault":true}`
		}
	}()

	cb, ok := ctx.callbacks[fnID]
	if !ok {
		return thrownReply(fmt.Sprintf("unknown host function %d", fnID))
	}
	var in callPayload
	if err := json.Unmarshal([]byte(payload), &in); err != nil {
		panic(core.NewError(core.PhaseCallback, core.KindEngine).Op("hostCall").Cause(err).Build())
	}
	receiver := cc.decode(ctx, in.R)
	args := make([]*Value, len(in.A))
	for i, w := range in.A {
		args[i] = cc.decode(ctx, w)
	}

	res, thrown := ctx.invoke(cb, receiver, args)

	var out callReply
	switch {
	case thrown != nil:
		w := cc.encode("Throw", thrown)
		out = callReply{V: &w, Thrown: true}
	case res != nil:
		w := cc.encode("Callback", res)
		out = callReply{V: &w}
	}
	data, err := json.Marshal(out)
	if err != nil {
		panic(core.NewError(core.PhaseCallback, core.KindEngine).Op("hostCall").Cause(err).Build())
	}
	runtime.KeepAlive(res)
	runtime.KeepAlive(thrown)
	return string(data)
}

// invoke runs cb and returns its result, or the value it asked to throw.
func (ctx *Context) invoke(cb Callback, receiver *Value, args []*Value) (res, thrown *Value) {
	prev := ctx.throwing
	ctx.throwing = nil
	ctx.callbackDepth++
	defer func() {
		ctx.callbackDepth--
		ctx.throwing = prev
	}()

	v, ok := cb(receiver, args)
	if ctx.throwing != nil {
		return nil, ctx.throwing
	}
	if !ok {
		return nil, nil
	}
	return v, nil
}

func thrownReply(msg string) string {
	data, _ := json.Marshal(callReply{V: &wireValue{T: "s", S: &msg}, Thrown: true})
	return string(data)
}

func (cc *contextCore) releaseSlot(slot uint64) {
	if cc.closed {
		return
	}
	cc.freed = append(cc.freed, slot)
}

// Flush frees the slots released during a sweep with one script call.
func (cc *contextCore) Flush() {
	if cc.closed || len(cc.freed) == 0 {
		cc.freed = nil
		return
	}
	ids := cc.freed
	cc.freed = nil
	remaining, err := cc.realm.Free(ids)
	if err != nil {
		cc.engine.log.Warn("freeing slots failed",
			zap.String("context", cc.id.String()),
			zap.Int("slots", len(ids)),
			zap.Error(err))
		return
	}
	cc.engine.log.Debug("slots freed",
		zap.String("context", cc.id.String()),
		zap.Int("freed", len(ids)),
		zap.Int("remaining", remaining))
}

func (cc *contextCore) close() {
	if cc.closed {
		return
	}
	cc.closed = true
	cc.freed = nil
	cc.vm.detach(cc)
	cc.realm.Close()
	cc.engine.log.Debug("context released", zap.String("context", cc.id.String()))
}
