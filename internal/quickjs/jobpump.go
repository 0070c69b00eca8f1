package quickjs

import (
	"errors"
	"fmt"
	"reflect"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
)

// The modernc.org/quickjs wrapper never runs JS_ExecutePendingJob, so promise
// reactions would stay queued forever. The runtime reaches the C runtime
// through the unexported VM fields and pumps the queue itself, one job per
// call, leaving the draining policy to internal/eventloop. QuickJS keeps one
// FIFO per runtime, so jobs of every realm run in the order they were queued.

// HasPendingJob reports whether the runtime's job queue is non-empty.
func (r *Runtime) HasPendingJob() bool {
	if r.closed {
		return false
	}
	return truthy(lib.XJS_IsJobPending(r.tls, r.rt))
}

// RunPendingJob executes one queued job. It reports false when the queue
// was empty. A job that raised an exception is reported as an error after
// the exception has been cleared from the runtime.
func (r *Runtime) RunPendingJob() (bool, error) {
	if r.closed {
		return false, nil
	}
	ret := lib.XJS_ExecutePendingJob(r.tls, r.rt, 0)
	if ret == 0 {
		return false, nil
	}
	if ret < 0 {
		exc := lib.XJS_GetException(r.tls, r.ctx)
		lib.XFreeValue(r.tls, r.ctx, exc)
		return true, errors.New("pending job raised an uncaught exception")
	}
	return true, nil
}

// truthy normalises JS_BOOL, whose Go type differs between libquickjs releases.
func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int32:
		return b != 0
	case int:
		return b != 0
	case uint8:
		return b != 0
	default:
		return reflect.ValueOf(v).Convert(reflect.TypeOf(int64(0))).Int() != 0
	}
}

// extractVMInternals uses reflect+unsafe to cache the VM's tls, runtime and
// context pointers. New fails when the layout no longer matches.
//
// VM struct layout (modernc.org/quickjs@v0.17.1):
//
//	type VM struct {
//	    cContext       uintptr
//	    goFuncs       map[string]int32
//	    int32_16      lib.TJSValue
//	    int32_2       lib.TJSValue
//	    runtime       *runtime
//	    ...
//	}
//
//	type runtime struct {
//	    cRuntime uintptr
//	    tls      *libc.TLS
//	}
func (r *Runtime) extractVMInternals() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic extracting VM internals: %v", p)
		}
	}()

	vmVal := reflect.ValueOf(r.vm).Elem()
	vmPtr := uintptr(unsafe.Pointer(r.vm))

	// cContext is the first field of VM (offset 0).
	r.ctx = *(*uintptr)(unsafe.Pointer(vmPtr))
	if r.ctx == 0 {
		return fmt.Errorf("JSContext is nil")
	}

	rtField := vmVal.FieldByName("runtime")
	if !rtField.IsValid() || rtField.IsNil() {
		return fmt.Errorf("quickjs.VM missing 'runtime' field")
	}
	rtPtr := unsafe.Pointer(rtField.Pointer())
	rtVal := reflect.NewAt(rtField.Type().Elem(), rtPtr).Elem()

	cRuntimeField := rtVal.FieldByName("cRuntime")
	if !cRuntimeField.IsValid() {
		return fmt.Errorf("runtime missing 'cRuntime' field")
	}
	r.rt = uintptr(cRuntimeField.Uint())

	tlsField := rtVal.FieldByName("tls")
	if !tlsField.IsValid() || tlsField.IsNil() {
		return fmt.Errorf("runtime missing 'tls' field")
	}
	r.tls = (*libc.TLS)(unsafe.Pointer(tlsField.Pointer()))
	return nil
}
