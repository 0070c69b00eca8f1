package jsbridge

import (
	"github.com/cryguy/jsbridge/internal/core"
	"go.uber.org/zap"
)

// Evaluate runs source in ctx, as an ES module when isModule is set and as a
// global script otherwise, and returns the completion value. For a module
// the completion value is its namespace object. Top-level declarations of a
// script persist in the context like those of a classic <script>.
//
// A parse error or uncaught exception is stored in the exception slot and
// reported as false. A nil source is an empty script. After a successful
// top-level run the VM instance's pending jobs are drained unless the engine
// configuration disables it. An Evaluate made from inside a host callback or
// a drain never drains; the jobs it queues wait for the outer entry.
func Evaluate(ctx *Context, source *string, name string, isModule bool) (*Value, bool) {
	if ctx == nil {
		core.NilArgument(core.PhaseEval, "Evaluate", "ctx")
	}
	ctx.checkActive("Evaluate")
	if source == nil {
		return Undefined(), true
	}
	if name == "" {
		name = "<eval>"
	}

	code := *source
	if isModule {
		var err error
		code, err = transformModule(code, name)
		if err != nil {
			ctx.core.engine.log.Warn("module parse failed",
				zap.String("context", ctx.core.id.String()),
				zap.String("name", name),
				zap.Error(err))
			if exc, ok := NewError(ctx, ErrorKindSyntax, err.Error()); ok {
				ctx.setException(exc)
			}
			return nil, false
		}
	}

	v, ok := ctx.evalScript(code, name)
	if !ok {
		ctx.core.engine.log.Warn("evaluation failed",
			zap.String("context", ctx.core.id.String()),
			zap.String("name", name),
			zap.String("exception", ctx.describe(ctx.exception)))
		return nil, false
	}
	if e := ctx.core.engine; e.cfg.DrainAfterEval && e.depth == 0 {
		ctx.vm.DrainPendingJobs()
	}
	return v, true
}

// EvaluateString runs a plain script.
func EvaluateString(ctx *Context, source, name string) (*Value, bool) {
	return Evaluate(ctx, &source, name, false)
}

func (ctx *Context) evalScript(code, name string) (*Value, bool) {
	cc := ctx.enter("Evaluate")
	defer cc.leave()
	out, err := cc.realm.EvalScript(code, name)
	return ctx.result("Evaluate", out, err)
}
