// Package quickjs backs the contexts of a VM instance with one QuickJS
// runtime from modernc.org/quickjs, plus the direct libquickjs calls the Go
// wrapper does not expose (extra contexts, job queue inspection and
// execution).
package quickjs

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/cryguy/jsbridge/internal/core"
	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// Runtime is one QuickJS runtime. Its job queue and memory limit are shared
// by every realm created from it. The wrapper VM it is built on serves as a
// hidden host realm that owns the host-call trampoline and is never handed
// to script.
type Runtime struct {
	vm  *quickjs.VM
	tls *libc.TLS // cached from VM internals for direct C API access
	rt  uintptr   // cached JSRuntime pointer
	ctx uintptr   // host realm JSContext pointer

	realms    map[int]*Realm
	nextRealm int

	// closing is set by Close while realms are still open; the runtime is
	// freed when the last of them closes.
	closing bool
	closed  bool
}

var _ core.JSRuntime = (*Runtime)(nil)

// ErrClosed is returned by operations on a closed runtime or realm.
var ErrClosed = errors.New("quickjs: runtime closed")

// New creates a QuickJS runtime with the given heap limit and registers the
// trampoline realms route host function calls through.
func New(memoryLimitMB int) (*Runtime, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}

	r := &Runtime{vm: vm, realms: make(map[int]*Realm)}
	if err := r.extractVMInternals(); err != nil {
		vm.Close()
		return nil, fmt.Errorf("reaching QuickJS runtime: %w", err)
	}
	if memoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(memoryLimitMB) * 1024 * 1024)
	}
	if err := vm.RegisterFunc(hostCallName, r.dispatch, false); err != nil {
		vm.Close()
		return nil, fmt.Errorf("registering %s: %w", hostCallName, err)
	}
	return r, nil
}

// dispatch routes a trampoline call to the realm that made it.
func (r *Runtime) dispatch(realm, fnID int, payload string) string {
	re, ok := r.realms[realm]
	if !ok {
		return `{"thrown":true,"v":{"t":"s","s":"realm closed"}}`
	}
	return re.hostCall(fnID, payload)
}

// NewRealm creates a realm with its own global object on the runtime and
// installs the bridge in it. hostCall receives the realm's host function
// calls.
func (r *Runtime) NewRealm(hostCall HostCall) (*Realm, error) {
	if r.closed || r.closing {
		return nil, ErrClosed
	}
	if hostCall == nil {
		return nil, fmt.Errorf("nil host call trampoline")
	}
	ctx := lib.XJS_NewContext(r.tls, r.rt)
	if ctx == 0 {
		return nil, fmt.Errorf("creating QuickJS context: out of memory")
	}
	r.nextRealm++
	re := &Realm{rt: r, ctx: ctx, id: r.nextRealm, hostCall: hostCall}
	if err := re.install(); err != nil {
		lib.XJS_FreeContext(r.tls, ctx)
		return nil, fmt.Errorf("bootstrapping realm: %w", err)
	}
	r.realms[re.id] = re
	return re, nil
}

// Realms returns the number of open realms.
func (r *Runtime) Realms() int {
	return len(r.realms)
}

// Close frees the runtime once every realm created from it has closed.
// Further calls are no-ops.
func (r *Runtime) Close() {
	if r.closed || r.closing {
		return
	}
	r.closing = true
	if len(r.realms) == 0 {
		r.free()
	}
}

func (r *Runtime) free() {
	r.closed = true
	r.vm.Close()
}

// Closed reports whether the runtime has been freed.
func (r *Runtime) Closed() bool {
	return r.closed
}

// Realm is a QuickJS context on a shared Runtime: a global object, the slot
// table and the value codec installed by the bootstrap.
type Realm struct {
	rt       *Runtime
	ctx      uintptr
	id       int
	hostCall HostCall
	closed   bool
}

// jsTagException is JS_TAG_EXCEPTION.
const jsTagException = 6

// evalGlobal is JS_EVAL_TYPE_GLOBAL.
const evalGlobal = 0

// Eval evaluates JavaScript and discards the result.
func (re *Realm) Eval(js string) error {
	val, err := re.eval(js, "<bridge>")
	if err != nil {
		return err
	}
	if val.Ftag == jsTagException {
		return re.exception()
	}
	lib.XFreeValue(re.rt.tls, re.ctx, val)
	return nil
}

// EvalString evaluates JavaScript and returns the result converted to a Go
// string.
func (re *Realm) EvalString(js string) (string, error) {
	val, err := re.eval(js, "<bridge>")
	if err != nil {
		return "", err
	}
	if val.Ftag == jsTagException {
		return "", re.exception()
	}
	defer lib.XFreeValue(re.rt.tls, re.ctx, val)
	return re.goString(val), nil
}

// EvalScript runs source with global script semantics under filename and
// returns the operation reply carrying the completion value or the thrown
// exception. Top-level lexical declarations persist across calls.
func (re *Realm) EvalScript(source, filename string) (string, error) {
	val, err := re.eval(source, filename)
	if err != nil {
		return "", err
	}
	settle := "result"
	if val.Ftag == jsTagException {
		settle = "thrown"
		val = lib.XJS_GetException(re.rt.tls, re.ctx)
	}
	defer lib.XFreeValue(re.rt.tls, re.ctx, val)
	return re.callBridge(settle, val)
}

// Close frees the realm. The runtime is freed with its last realm when it
// was closed first.
func (re *Realm) Close() {
	if re.closed {
		return
	}
	re.closed = true
	r := re.rt
	delete(r.realms, re.id)
	lib.XJS_FreeContext(r.tls, re.ctx)
	if r.closing && len(r.realms) == 0 {
		r.free()
	}
}

func (re *Realm) eval(source, filename string) (lib.TJSValue, error) {
	if re.closed || re.rt.closed {
		return lib.TJSValue{}, ErrClosed
	}
	tls := re.rt.tls
	cSrc, err := libc.CString(source)
	if err != nil {
		return lib.TJSValue{}, fmt.Errorf("allocating source: %w", err)
	}
	defer libc.Xfree(tls, cSrc)
	cName, err := libc.CString(filename)
	if err != nil {
		return lib.TJSValue{}, fmt.Errorf("allocating filename: %w", err)
	}
	defer libc.Xfree(tls, cName)
	return lib.XJS_Eval(tls, re.ctx, cSrc, lib.Tsize_t(len(source)), cName, evalGlobal), nil
}

// exception takes the pending exception off the runtime and renders it as
// an error.
func (re *Realm) exception() error {
	exc := lib.XJS_GetException(re.rt.tls, re.ctx)
	defer lib.XFreeValue(re.rt.tls, re.ctx, exc)
	return errors.New(re.goString(exc))
}

// goString converts val with ToString. A conversion that throws yields "".
func (re *Realm) goString(val lib.TJSValue) string {
	tls := re.rt.tls
	plen := tls.Alloc(8)
	defer tls.Free(8)
	p := lib.XJS_ToCStringLen2(tls, re.ctx, plen, val, 0)
	if p == 0 {
		exc := lib.XJS_GetException(tls, re.ctx)
		lib.XFreeValue(tls, re.ctx, exc)
		return ""
	}
	defer lib.XJS_FreeCString(tls, re.ctx, p)
	n := *(*lib.Tsize_t)(unsafe.Pointer(plen))
	return string(libc.GoBytes(p, int(n)))
}

// property reads a named property of obj. The caller frees the result.
func (re *Realm) property(ctx uintptr, obj lib.TJSValue, name string) (lib.TJSValue, error) {
	tls := re.rt.tls
	cName, err := libc.CString(name)
	if err != nil {
		return lib.TJSValue{}, fmt.Errorf("allocating property name: %w", err)
	}
	defer libc.Xfree(tls, cName)
	v := lib.XJS_GetPropertyStr(tls, ctx, obj, cName)
	if v.Ftag == jsTagException {
		return v, re.exception()
	}
	return v, nil
}

// callBridge calls the bridge function name with arg and returns its string
// result. arg is not consumed.
func (re *Realm) callBridge(name string, arg lib.TJSValue) (string, error) {
	tls := re.rt.tls
	global := lib.XJS_GetGlobalObject(tls, re.ctx)
	bridge, err := re.property(re.ctx, global, bridgeGlobal)
	lib.XFreeValue(tls, re.ctx, global)
	if err != nil {
		return "", err
	}
	defer lib.XFreeValue(tls, re.ctx, bridge)
	fn, err := re.property(re.ctx, bridge, name)
	if err != nil {
		return "", err
	}
	defer lib.XFreeValue(tls, re.ctx, fn)

	argv := tls.Alloc(int(unsafe.Sizeof(arg)))
	defer tls.Free(int(unsafe.Sizeof(arg)))
	*(*lib.TJSValue)(unsafe.Pointer(argv)) = arg
	ret := lib.XJS_Call(tls, re.ctx, fn, bridge, 1, argv)
	if ret.Ftag == jsTagException {
		return "", re.exception()
	}
	defer lib.XFreeValue(tls, re.ctx, ret)
	return re.goString(ret), nil
}

// install copies the trampoline from the host realm into the realm's global
// object and runs the bootstrap, which captures and removes it.
func (re *Realm) install() error {
	r := re.rt
	hostGlobal := lib.XJS_GetGlobalObject(r.tls, r.ctx)
	fn, err := re.property(r.ctx, hostGlobal, hostCallName)
	lib.XFreeValue(r.tls, r.ctx, hostGlobal)
	if err != nil {
		return err
	}

	cName, err := libc.CString(hostCallName)
	if err != nil {
		lib.XFreeValue(r.tls, r.ctx, fn)
		return fmt.Errorf("allocating property name: %w", err)
	}
	global := lib.XJS_GetGlobalObject(r.tls, re.ctx)
	// JS_SetPropertyStr consumes fn.
	ret := lib.XJS_SetPropertyStr(r.tls, re.ctx, global, cName, fn)
	lib.XFreeValue(r.tls, re.ctx, global)
	libc.Xfree(r.tls, cName)
	if ret < 0 {
		return re.exception()
	}
	return re.Eval(bootstrapSource(re.id))
}
