package jsbridge

import (
	"math"
	"math/big"
	"testing"
)

func TestValue_Primitives(t *testing.T) {
	if !Undefined().IsUndefined() || !Undefined().IsUndefinedOrNull() {
		t.Error("undefined checks")
	}
	if !Null().IsNull() || !Null().IsUndefinedOrNull() || Null().IsUndefined() {
		t.Error("null checks")
	}
	if !Bool(true).IsTrue() || !Bool(false).IsFalse() || Bool(true).IsFalse() {
		t.Error("boolean checks")
	}
	if !Int32(-7).IsInt32() || Int32(-7).AsInt32() != -7 {
		t.Error("int32 fast path")
	}
	if Number(1.5).IsInt32() || Number(math.Copysign(0, -1)).IsInt32() || Number(1<<40).IsInt32() {
		t.Error("non-int32 numbers reported as int32")
	}
	if Number(4294967297).AsInt32() != 1 {
		t.Errorf("AsInt32 wrap = %d, want 1", Number(4294967297).AsInt32())
	}
	if s := String("héllo"); !s.IsString() || s.AsString() != "héllo" {
		t.Error("string round trip")
	}
	if Number(1).IsObject() || String("x").IsCallable() {
		t.Error("primitive reported as object")
	}
}

func TestValue_WrongKindPanics(t *testing.T) {
	expectPanic(t, ErrWrongKind, func() { String("x").AsNumber() })
	expectPanic(t, ErrWrongKind, func() { Number(1).AsString() })
	expectPanic(t, ErrWrongKind, func() { Undefined().BigIntString(10) })
	expectPanic(t, ErrNilArgument, func() { (*Value)(nil).IsNumber() })
}

func TestBigInt_RadixRoundTrip(t *testing.T) {
	v := NewBigInt(123123)
	if got := v.BigIntString(10); got != "123123" {
		t.Fatalf("radix 10 = %q", got)
	}
	if got := v.BigIntString(3); got != "20020220010" {
		t.Fatalf("radix 3 = %q", got)
	}
	for _, tc := range []struct {
		s     string
		radix int
	}{{"123123", 10}, {"20020220010", 3}} {
		p, ok := BigIntFromString(tc.s, tc.radix)
		if !ok {
			t.Fatalf("parsing %q radix %d failed", tc.s, tc.radix)
		}
		if p.BigIntInt64() != 123123 {
			t.Fatalf("parsing %q radix %d = %d", tc.s, tc.radix, p.BigIntInt64())
		}
	}
}

func TestBigInt_NarrowingWraps(t *testing.T) {
	v, ok := BigIntFromString("92233720368547758070", 10) // MaxInt64 followed by 0
	if !ok {
		t.Fatal("parse failed")
	}
	if got := v.BigIntInt64(); got != -10 {
		t.Fatalf("BigIntInt64 = %d, want -10", got)
	}

	neg := NewBigInt(-1)
	if got := neg.BigIntUint64(); got != math.MaxUint64 {
		t.Fatalf("BigIntUint64(-1) = %d", got)
	}
	if got := neg.BigIntInt64(); got != -1 {
		t.Fatalf("BigIntInt64(-1) = %d", got)
	}

	huge := new(big.Int).Lsh(big.NewInt(1), 64)
	huge.Add(huge, big.NewInt(5))
	if got := NewBigIntFromBig(huge).BigIntInt64(); got != 5 {
		t.Fatalf("2^64+5 narrowed = %d, want 5", got)
	}
}

func TestBigInt_Parse(t *testing.T) {
	if v, ok := BigIntFromString("", 16); !ok || v.BigIntInt64() != 0 {
		t.Fatal("empty string should parse as 0")
	}
	if v, ok := BigIntFromString("-ff", 16); !ok || v.BigIntInt64() != -255 {
		t.Fatal("-ff radix 16")
	}
	if _, ok := BigIntFromString("12z", 10); ok {
		t.Fatal("invalid digits should fail")
	}
	expectPanic(t, ErrInvalidInput, func() { BigIntFromString("1", 37) })
	expectPanic(t, ErrInvalidInput, func() { NewBigInt(1).BigIntString(1) })
	if f := NewBigInt(1 << 53).BigIntFloat64(); f != 1<<53 {
		t.Fatalf("BigIntFloat64 = %v", f)
	}
}

func TestSymbol_Descriptions(t *testing.T) {
	desc := "tag"
	empty := ""
	if got := NewSymbol(nil).SymbolDescriptiveString(); got != "Symbol()" {
		t.Errorf("no description: %q", got)
	}
	if got := NewSymbol(&desc).SymbolDescriptiveString(); got != "Symbol(tag)" {
		t.Errorf("with description: %q", got)
	}
	if _, ok := NewSymbol(nil).SymbolDescription(); ok {
		t.Error("nil description reported present")
	}
	if d, ok := NewSymbol(&empty).SymbolDescription(); !ok || d != "" {
		t.Error("empty description should be present")
	}
}

func TestSymbol_Identity(t *testing.T) {
	ctx := newTestContext(t)
	desc := "same"
	a, b := NewSymbol(&desc), NewSymbol(&desc)
	if a.StrictEquals(ctx, b) {
		t.Fatal("symbols with equal descriptions must differ")
	}
	if !a.StrictEquals(ctx, a) {
		t.Fatal("symbol must equal itself")
	}

	vm := ctx.VM()
	if !vm.SymbolFor("k").StrictEquals(ctx, vm.SymbolFor("k")) {
		t.Fatal("SymbolFor must intern by key")
	}
	if key, ok := vm.SymbolFor("k").SymbolKey(); !ok || key != "k" {
		t.Fatal("registry key lost")
	}

	// Registry symbols are shared with script.
	fromScript := mustEval(t, ctx, "Symbol.for('k')")
	if !fromScript.StrictEquals(ctx, vm.SymbolFor("k")) {
		t.Fatal("Symbol.for and SymbolFor disagree")
	}

	// A host symbol keeps its identity through script and back.
	obj, _ := NewObject(ctx)
	obj.Set(ctx, String("s"), a)
	back := get(t, ctx, obj, "s")
	if !back.StrictEquals(ctx, a) {
		t.Fatal("host symbol identity lost across the boundary")
	}

	// A script symbol keeps its identity when read twice.
	mustEval(t, ctx, "globalThis.sym = Symbol('local')")
	g := ctx.GlobalObject()
	s1, s2 := get(t, ctx, g, "sym"), get(t, ctx, g, "sym")
	if !s1.StrictEquals(ctx, s2) {
		t.Fatal("script symbol identity lost")
	}
	if d, _ := s1.SymbolDescription(); d != "local" {
		t.Fatalf("description = %q", d)
	}
	same, ok := s1.Equals(ctx, s2)
	if !ok || !same {
		t.Fatal("script sees different symbols")
	}
}
