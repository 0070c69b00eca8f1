package jsbridge

import (
	"encoding/json"
	"math"
	"testing"
)

func TestWire_SpecialNumbers(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), math.Copysign(0, -1), 0, 1.25} {
		w := numberWire(f)
		data, err := json.Marshal(w)
		if err != nil {
			t.Fatalf("marshal %v: %v", f, err)
		}
		var back wireValue
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		got := wireNumber(back)
		switch {
		case math.IsNaN(f):
			if !math.IsNaN(got) {
				t.Errorf("NaN came back as %v", got)
			}
		case got != f || math.Signbit(got) != math.Signbit(f):
			t.Errorf("%v came back as %v (%s)", f, got, data)
		}
	}
}

func TestWire_ValuesThroughScript(t *testing.T) {
	ctx := newTestContext(t)
	identity := mustEval(t, ctx, "(x => x)")
	for _, v := range []*Value{
		Undefined(), Null(), Bool(true), Number(math.Inf(-1)), Number(math.Copysign(0, -1)),
		String(""), String("ünïcode   line"), NewBigInt(-12345678901234),
	} {
		got, ok := identity.Call(ctx, Undefined(), v)
		if !ok {
			t.Fatalf("identity(%v): %s", v, exceptionText(ctx))
		}
		if got.Kind() != v.Kind() {
			t.Fatalf("identity(%v) kind = %s", v, got.Kind())
		}
		if !got.StrictEquals(ctx, v) {
			t.Fatalf("identity(%v) = %v", v, got)
		}
	}
	negZero, _ := identity.Call(ctx, Undefined(), Number(math.Copysign(0, -1)))
	if !math.Signbit(negZero.AsNumber()) {
		t.Fatal("negative zero lost its sign")
	}
	nan, _ := identity.Call(ctx, Undefined(), Number(math.NaN()))
	if !math.IsNaN(nan.AsNumber()) {
		t.Fatal("NaN lost")
	}
}

func TestWire_PollutedObjectPrototype(t *testing.T) {
	ctx := newTestContext(t)
	o := mustEval(t, ctx, "Object.prototype.x = 'NaN'; Object.prototype.k = 'key'; globalThis.o = {}; o")
	if set, ok := o.Set(ctx, String("v"), Number(5)); !ok || !set {
		t.Fatalf("Set: %s", exceptionText(ctx))
	}
	if !mustEval(t, ctx, "o.v === 5").IsTrue() {
		t.Fatal("number read the inherited 'x' marker")
	}
	if v := get(t, ctx, o, "v"); v.AsNumber() != 5 {
		t.Fatalf("o.v = %v", v)
	}
	desc := "local"
	if set, ok := o.Set(ctx, String("s"), NewSymbol(&desc)); !ok || !set {
		t.Fatalf("Set symbol: %s", exceptionText(ctx))
	}
	if !mustEval(t, ctx, "Symbol.keyFor(o.s) === undefined && o.s.description === 'local'").IsTrue() {
		t.Fatal("symbol read the inherited 'k' marker")
	}
}

func TestWire_ReplacedJSONAndMap(t *testing.T) {
	ctx := newTestContext(t)
	mustEval(t, ctx, `
		JSON.stringify = function() { return 'x'; };
		JSON.parse = function() { return {}; };
		Map.prototype.get = function() { return 1; };
		Array.prototype.push = function() { throw new Error('push'); };
	`)
	if v := mustEval(t, ctx, "1 + 1"); v.AsNumber() != 2 {
		t.Fatalf("1 + 1 = %v", v)
	}
	o := mustEval(t, ctx, "({a: 'b'})")
	if v := get(t, ctx, o, "a"); v.AsString() != "b" {
		t.Fatalf("o.a = %v", v)
	}
	if set, ok := o.Set(ctx, String("c"), String("d")); !ok || !set {
		t.Fatalf("Set: %s", exceptionText(ctx))
	}
	if v := get(t, ctx, o, "c"); v.AsString() != "d" {
		t.Fatalf("o.c = %v", v)
	}
	Register(ctx, "host", "echo", func(_ *Value, args []*Value) (*Value, bool) {
		return args[0], true
	})
	if v := mustEval(t, ctx, "host.echo('e')"); v.AsString() != "e" {
		t.Fatalf("echo = %v", v)
	}
	s, ok := ctx.JSONStringify(o)
	if !ok || s.AsString() != `{"a":"b","c":"d"}` {
		t.Fatalf("JSONStringify = %v", s)
	}
}

func TestWire_LoneSurrogateRoundTrip(t *testing.T) {
	ctx := newTestContext(t)
	s := mustEval(t, ctx, `'\ud800x'`)
	if s.AsString() != "\uFFFDx" {
		t.Fatalf("AsString = %q", s.AsString())
	}
	if units := s.AsUTF16(); len(units) != 2 || units[0] != 0xD800 || units[1] != 'x' {
		t.Fatalf("AsUTF16 = %v", units)
	}
	if s.StrictEquals(ctx, String("\uFFFDx")) {
		t.Fatal("lone surrogate equals its replacement")
	}
	same := mustEval(t, ctx, `(s => s === '\ud800x')`)
	r, ok := same.Call(ctx, Undefined(), s)
	if !ok || !r.IsTrue() {
		t.Fatalf("string changed on the way back: %v", r)
	}
	identity := mustEval(t, ctx, "(x => x)")
	back, ok := identity.Call(ctx, Undefined(), s)
	if !ok || !back.StrictEquals(ctx, s) {
		t.Fatalf("identity = %v", back)
	}
}
