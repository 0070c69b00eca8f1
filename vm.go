package jsbridge

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/eventloop"
	"github.com/cryguy/jsbridge/internal/handle"
	"github.com/cryguy/jsbridge/internal/quickjs"
	"go.uber.org/zap"
)

// VMInstance is an isolated engine instance: it owns the QuickJS runtime its
// contexts are realms of, with the job queue and heap limit that come with
// it, a symbol registry and a locale/timezone fixed at creation.
type VMInstance struct {
	engine   *Engine
	core     *vmCore
	locale   string
	timezone string
}

// vmCore is the engine-side state of a VMInstance. It must not reference
// the VMInstance or any Context.
type vmCore struct {
	engine *Engine
	id     handle.ID
	jobs   *eventloop.JobQueue
	rt     *quickjs.Runtime // created with the first context

	mu       sync.Mutex
	contexts map[*contextCore]struct{}
	registry map[string]*symbolRecord
	closed   bool
}

// vmResource releases a VMInstance.
type vmResource struct{ core *vmCore }

func (r vmResource) Release() { r.core.close() }

func (vc *vmCore) close() {
	vc.mu.Lock()
	vc.closed = true
	vc.mu.Unlock()
	vc.jobs.Close()
	if vc.rt != nil {
		// Freed once the realms of contexts still awaiting release are gone.
		vc.rt.Close()
	}
	vc.engine.log.Debug("vm released", zap.Uint64("vm", uint64(vc.id)))
}

// runtime returns the instance's QuickJS runtime, creating it on first use.
func (vc *vmCore) runtime() (*quickjs.Runtime, error) {
	if vc.rt != nil {
		return vc.rt, nil
	}
	rt, err := quickjs.New(vc.engine.cfg.MemoryLimitMB)
	if err != nil {
		return nil, err
	}
	vc.rt = rt
	vc.jobs.Attach(rt)
	return rt, nil
}

func (vc *vmCore) attach(cc *contextCore) {
	vc.mu.Lock()
	vc.contexts[cc] = struct{}{}
	vc.mu.Unlock()
}

func (vc *vmCore) detach(cc *contextCore) {
	vc.mu.Lock()
	delete(vc.contexts, cc)
	vc.mu.Unlock()
}

// raiseFault re-raises a host fault stashed by any context of the instance.
func (vc *vmCore) raiseFault() {
	vc.mu.Lock()
	var faulted *contextCore
	for cc := range vc.contexts {
		if cc.fault != nil {
			faulted = cc
			break
		}
	}
	vc.mu.Unlock()
	if faulted != nil {
		faulted.raiseFault()
	}
}

// VMOption configures a VMInstance.
type VMOption func(*VMInstance)

// WithLocale fixes the instance locale.
func WithLocale(locale string) VMOption {
	return func(vm *VMInstance) { vm.locale = locale }
}

// WithTimezone fixes the instance timezone.
func WithTimezone(tz string) VMOption {
	return func(vm *VMInstance) { vm.timezone = tz }
}

// NewVMInstance creates a VM instance with an empty job queue. Locale and
// timezone default to the engine configuration, then to the host environment.
func NewVMInstance(e *Engine, opts ...VMOption) *VMInstance {
	if e == nil {
		core.NilArgument(core.PhaseLifecycle, "NewVMInstance", "engine")
	}
	e.checkActive("NewVMInstance")

	vm := &VMInstance{
		engine:   e,
		locale:   e.cfg.Locale,
		timezone: e.cfg.Timezone,
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.locale == "" {
		vm.locale = hostLocale()
	}
	if vm.timezone == "" {
		vm.timezone = hostTimezone()
	}

	vc := &vmCore{
		engine:   e,
		contexts: make(map[*contextCore]struct{}),
		registry: make(map[string]*symbolRecord),
	}
	vc.jobs = eventloop.New(eventloop.Hooks{
		JobError: func(rt core.JSRuntime, err error) {
			e.log.Warn("pending job failed", zap.Uint64("vm", uint64(vc.id)), zap.Error(err))
		},
		AfterJob: func(rt core.JSRuntime) {
			vc.raiseFault()
		},
	})
	vm.core = vc
	vc.id = handle.Track(e.table, vm, vmResource{core: vc})
	e.log.Debug("vm created", zap.Uint64("vm", uint64(vc.id)),
		zap.String("locale", vm.locale), zap.String("timezone", vm.timezone))
	return vm
}

// Engine returns the engine the instance belongs to.
func (vm *VMInstance) Engine() *Engine { return vm.engine }

// Locale returns the locale fixed at creation.
func (vm *VMInstance) Locale() string { return vm.locale }

// Timezone returns the timezone fixed at creation.
func (vm *VMInstance) Timezone() string { return vm.timezone }

func (vm *VMInstance) check(op string) {
	if vm == nil {
		core.NilArgument(core.PhaseLifecycle, op, "vm")
	}
	vm.engine.checkActive(op)
}

// HasPendingJob reports whether the instance has a queued job.
func (vm *VMInstance) HasPendingJob() bool {
	vm.check("HasPendingJob")
	return vm.core.jobs.HasPending()
}

// DrainPendingJobs runs every queued job to completion in enqueue order,
// whichever context queued it, including jobs queued while draining, and
// returns how many ran. A panic raised by a host
// callback during a job propagates out of this call.
func (vm *VMInstance) DrainPendingJobs() int {
	vm.check("DrainPendingJobs")
	e := vm.engine
	e.safePoint()
	e.depth++
	defer func() { e.depth-- }()
	return vm.core.jobs.Drain()
}

// SymbolFor returns the registry symbol for key. Two lookups with the same
// key yield the same symbol, matching Symbol.for in every context of the
// instance.
func (vm *VMInstance) SymbolFor(key string) *Value {
	vm.check("SymbolFor")
	return &Value{kind: KindSymbol, sym: vm.core.registered(key)}
}

func (vc *vmCore) registered(key string) *symbolRecord {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	rec, ok := vc.registry[key]
	if !ok {
		rec = &symbolRecord{
			id:         nextSymbolID(),
			desc:       key,
			hasDesc:    true,
			key:        key,
			registered: true,
		}
		vc.registry[key] = rec
	}
	return rec
}

// hostLocale derives a BCP 47 tag from the POSIX locale environment.
func hostLocale() string {
	for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := os.Getenv(name)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		if v == "" || v == "C" {
			continue
		}
		return strings.ReplaceAll(v, "_", "-")
	}
	return "en-US"
}

func hostTimezone() string {
	if tz := os.Getenv("TZ"); tz != "" {
		return strings.TrimPrefix(tz, ":")
	}
	if name := time.Local.String(); name != "" && name != "Local" {
		return name
	}
	return "UTC"
}
