package jsbridge

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/handle"
	"github.com/cryguy/jsbridge/internal/lifecycle"
	"go.uber.org/zap"
)

type engineMode int

const (
	modeShared engineMode = iota
	modeThread
)

func (m engineMode) String() string {
	if m == modeThread {
		return "thread"
	}
	return "shared"
}

// Engine is an explicit engine lifecycle. The shared engine is obtained from
// InitializeGlobals and lives while the process-wide epoch is open; a thread
// engine is obtained from InitializeThread and lives until FinalizeThread.
//
// Every handle created under an engine is tracked in the engine's slot table
// and released by Sweep on the goroutine that owns the engine.
type Engine struct {
	mode       engineMode
	generation uint64
	cfg        core.Config
	log        *zap.Logger
	table      *handle.Table
	ended      atomic.Bool

	// depth counts bridge entries in progress on the owning goroutine.
	depth int
}

// Option configures an engine.
type Option func(*Engine)

// WithConfig sets the engine configuration.
func WithConfig(cfg core.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the engine logger. Defaults to the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func newEngine(mode engineMode, generation uint64, opts ...Option) *Engine {
	e := &Engine{
		mode:       mode,
		generation: generation,
		cfg:        core.DefaultConfig(),
		log:        core.Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(zap.String("engine", mode.String()), zap.Uint64("generation", generation))
	e.table = handle.NewTable(e.cfg.CollectEvery, e.cfg.ForceGC)
	return e
}

var (
	globalsMu sync.Mutex
	globals   lifecycle.Epoch
	shared    *Engine

	threadGeneration atomic.Uint64
)

// InitializeGlobals opens (or re-enters) the process-wide epoch and returns
// the shared engine. Options only apply when this call opens the epoch.
func InitializeGlobals(opts ...Option) *Engine {
	globalsMu.Lock()
	defer globalsMu.Unlock()
	if globals.Enter() {
		shared = newEngine(modeShared, globals.Generation(), opts...)
		shared.log.Debug("globals initialized")
	}
	return shared
}

// FinalizeGlobals leaves the process-wide epoch. Calls beyond the matching
// InitializeGlobals calls are no-ops. When the epoch closes the shared
// engine is swept and ended; handles still reachable at that point leak.
func FinalizeGlobals() {
	globalsMu.Lock()
	if !globals.Leave() {
		globalsMu.Unlock()
		return
	}
	e := shared
	shared = nil
	globalsMu.Unlock()

	e.Sweep()
	e.end()
}

// IsInitialized reports whether the process-wide epoch is open.
func IsInitialized() bool {
	return globals.Active()
}

// SharedEngine returns the shared engine while the process-wide epoch is open.
func SharedEngine() (*Engine, bool) {
	globalsMu.Lock()
	defer globalsMu.Unlock()
	return shared, shared != nil
}

// InitializeThread returns an engine independent of the process-wide epoch,
// intended to be owned by a single goroutine until FinalizeThread.
func InitializeThread(opts ...Option) *Engine {
	e := newEngine(modeThread, threadGeneration.Add(1), opts...)
	e.log.Debug("thread engine initialized")
	return e
}

// FinalizeThread sweeps and ends a thread engine. Calling it again is a
// no-op; calling it on the shared engine is a programmer error.
func (e *Engine) FinalizeThread() {
	if e == nil {
		core.NilArgument(core.PhaseLifecycle, "FinalizeThread", "engine")
	}
	if e.mode != modeThread {
		core.InvalidInput(core.PhaseLifecycle, "FinalizeThread", "shared engine is finalized with FinalizeGlobals")
	}
	if e.ended.Load() {
		return
	}
	e.Sweep()
	e.end()
}

func (e *Engine) end() {
	e.ended.Store(true)
	e.log.Debug("engine ended", zap.Int("live", e.table.Stats().Live))
}

// Active reports whether the engine's epoch is still open.
func (e *Engine) Active() bool {
	return e != nil && !e.ended.Load()
}

func (e *Engine) checkActive(op string) {
	if e.ended.Load() {
		core.NotInitialized(core.PhaseLifecycle, op)
	}
}

// Sweep releases the engine resources of every collected handle and returns
// how many were released. It is safe to call at any time, including after
// the engine ended.
func (e *Engine) Sweep() int {
	n := e.table.Sweep()
	if n > 0 {
		e.log.Debug("sweep", zap.Int("released", n))
	}
	return n
}

// GC runs a collection and then a sweep.
func (e *Engine) GC() int {
	runtime.GC()
	return e.Sweep()
}

// SetGCFrequency sets how many tracked allocations pass between automatic
// sweeps. 0 leaves sweeping to explicit Sweep and GC calls.
func (e *Engine) SetGCFrequency(n int) {
	e.table.SetCollectEvery(n)
}

// SetForceGC makes automatic sweeps run a collection first.
func (e *Engine) SetForceGC(on bool) {
	e.table.SetForceGC(on)
}

// Stats returns the engine's handle table counters.
func (e *Engine) Stats() handle.Stats {
	return e.table.Stats()
}

// Config returns the engine configuration.
func (e *Engine) Config() core.Config {
	return e.cfg
}

// Logger returns the engine logger.
func (e *Engine) Logger() *zap.Logger {
	return e.log
}

// safePoint runs a sweep if the allocation cadence asked for one. Nested
// entries, such as calls made from inside a host callback, never sweep.
func (e *Engine) safePoint() {
	if e.depth > 0 {
		return
	}
	if e.table.SweepIfDue() {
		e.log.Debug("cadence sweep", zap.Int("live", e.table.Stats().Live))
	}
}
