package jsbridge

import (
	"strings"

	"github.com/cryguy/jsbridge/internal/core"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogEntry is one captured console call.
type LogEntry = core.LogEntry

var consoleLevels = map[string]zapcore.Level{
	"log":   zapcore.InfoLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
	"debug": zapcore.DebugLevel,
}

// InstallConsole defines console.log, info, warn, error and debug in ctx as
// host functions. Each call is captured in the context's console buffer and
// written to the engine logger. The remaining console helpers (count, assert,
// time, group, table) are layered on top in script.
func InstallConsole(ctx *Context) bool {
	ctx.checkActive("InstallConsole")
	for name, level := range consoleLevels {
		if !Register(ctx, "console", name, consoleFunc(ctx, name, level)) {
			return false
		}
	}
	_, ok := EvaluateString(ctx, consoleExtJS, "<console>")
	return ok
}

func consoleFunc(ctx *Context, name string, level zapcore.Level) Callback {
	return func(_ *Value, args []*Value) (*Value, bool) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = ctx.describe(a)
		}
		msg := strings.Join(parts, " ")
		ctx.console.Add(name, msg)
		if ce := ctx.core.engine.log.Check(level, "console"); ce != nil {
			ce.Write(zap.String("context", ctx.core.id.String()), zap.String("message", msg))
		}
		return nil, false
	}
}

// ConsoleEntries returns the console calls captured in ctx, oldest first.
// The buffer keeps the most recent core.MaxLogEntries entries.
func ConsoleEntries(ctx *Context) []LogEntry {
	ctx.checkActive("ConsoleEntries")
	return ctx.console.Entries()
}

// ResetConsole drops the captured console entries of ctx.
func ResetConsole(ctx *Context) {
	ctx.checkActive("ResetConsole")
	ctx.console.Reset()
}

// consoleExtJS adds the console helpers that need no host support.
const consoleExtJS = `
(function() {
var timers = {};
var counters = {};
var depth = 0;
var base = {log: console.log, info: console.info, warn: console.warn, error: console.error, debug: console.debug};

function indent(fn) {
	return function() {
		if (depth === 0) return fn.apply(console, arguments);
		var args = Array.prototype.slice.call(arguments);
		args.unshift(new Array(depth + 1).join('  ').slice(1));
		return fn.apply(console, args);
	};
}
for (var k in base) console[k] = indent(base[k]);

console.count = function(label) {
	var l = label === undefined ? 'default' : String(label);
	counters[l] = (counters[l] || 0) + 1;
	console.info(l + ': ' + counters[l]);
};
console.countReset = function(label) {
	delete counters[label === undefined ? 'default' : String(label)];
};
console.assert = function(cond) {
	if (cond) return;
	var args = Array.prototype.slice.call(arguments, 1);
	args.unshift('Assertion failed' + (args.length ? ':' : ''));
	console.error.apply(console, args);
};
console.time = function(label) {
	timers[label === undefined ? 'default' : String(label)] = Date.now();
};
console.timeLog = function(label) {
	var l = label === undefined ? 'default' : String(label);
	if (!(l in timers)) { console.warn('Timer "' + l + '" does not exist'); return; }
	var args = Array.prototype.slice.call(arguments, 1);
	args.unshift(l + ': ' + (Date.now() - timers[l]) + 'ms');
	console.log.apply(console, args);
};
console.timeEnd = function(label) {
	var l = label === undefined ? 'default' : String(label);
	console.timeLog(l);
	delete timers[l];
};
console.group = function() {
	if (arguments.length) console.log.apply(console, arguments);
	depth++;
};
console.groupEnd = function() {
	if (depth > 0) depth--;
};
console.table = function(data) {
	console.log(JSON.stringify(data));
};
})();
`
