package jsbridge

import (
	"fmt"
	"math"
	"math/big"
	"slices"
	"strconv"
	"unicode/utf16"

	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/handle"
)

// Kind is the type of a script value.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindBoolean
	KindNumber
	KindString
	KindSymbol
	KindBigInt
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSymbol:
		return "symbol"
	case KindBigInt:
		return "bigint"
	case KindObject:
		return "object"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a handle to a script value. Primitives are carried in Go and own
// nothing in the engine. An object Value owns one slot in its context's slot
// table; the slot is released by a sweep after the Value became unreachable.
//
// Values are immutable and may be shared freely on the goroutine that owns
// their engine.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	u16  []uint16 // code units of a string that is not well-formed UTF-16
	big  *big.Int
	sym  *symbolRecord
	obj  *objectRef
}

// objectRef is the tracked proxy of an object slot.
type objectRef struct {
	ctx  *Context
	core *contextCore
	slot uint64
	id   handle.ID

	array       bool
	function    bool
	constructor bool
	promise     bool
	isError     bool
}

// slotResource frees one slot. Releases are batched per context and flushed
// with a single script call at the end of a sweep.
type slotResource struct {
	core *contextCore
	slot uint64
}

func (r slotResource) Release() { r.core.releaseSlot(r.slot) }
func (r slotResource) Owner() handle.Flusher { return r.core }

func (cc *contextCore) track(ctx *Context, w wireValue) *Value {
	ref := &objectRef{
		ctx:         ctx,
		core:        cc,
		slot:        w.ID,
		array:       w.A,
		function:    w.F,
		constructor: w.C,
		promise:     w.P,
		isError:     w.E,
	}
	ref.id = handle.Track(cc.engine.table, ref, slotResource{core: cc, slot: w.ID})
	return &Value{kind: KindObject, obj: ref}
}

var (
	undefinedValue = &Value{kind: KindUndefined}
	nullValue      = &Value{kind: KindNull}
	trueValue      = &Value{kind: KindBoolean, b: true}
	falseValue     = &Value{kind: KindBoolean}
)

// Undefined returns the undefined value.
func Undefined() *Value { return undefinedValue }

// Null returns the null value.
func Null() *Value { return nullValue }

// Bool returns a boolean value.
func Bool(b bool) *Value {
	if b {
		return trueValue
	}
	return falseValue
}

// Int32 returns a number value holding i.
func Int32(i int32) *Value { return &Value{kind: KindNumber, n: float64(i)} }

// Number returns a number value.
func Number(f float64) *Value { return &Value{kind: KindNumber, n: f} }

// String returns a string value.
func String(s string) *Value { return &Value{kind: KindString, s: s} }

// Kind returns the value's type.
func (v *Value) Kind() Kind {
	v.check("Kind")
	return v.kind
}

func (v *Value) check(op string) {
	if v == nil {
		core.NilArgument(core.PhaseValue, op, "value")
	}
}

func (v *Value) want(op string, k Kind) {
	v.check(op)
	if v.kind != k {
		panic(core.NewError(core.PhaseValue, core.KindWrongKind).Op(op).
			Detail("value is %s, not %s", v.kind, k).Build())
	}
}

// IsUndefined reports whether the value is undefined.
func (v *Value) IsUndefined() bool {
	v.check("IsUndefined")
	return v.kind == KindUndefined
}

// IsNull reports whether the value is null.
func (v *Value) IsNull() bool {
	v.check("IsNull")
	return v.kind == KindNull
}

// IsUndefinedOrNull reports whether the value is undefined or null.
func (v *Value) IsUndefinedOrNull() bool {
	v.check("IsUndefinedOrNull")
	return v.kind <= KindNull
}

// IsBoolean reports whether the value is a boolean.
func (v *Value) IsBoolean() bool {
	v.check("IsBoolean")
	return v.kind == KindBoolean
}

// IsTrue reports whether the value is the boolean true. Truthy values of
// other kinds report false; use ToBoolean for those.
func (v *Value) IsTrue() bool {
	v.check("IsTrue")
	return v.kind == KindBoolean && v.b
}

// IsFalse reports whether the value is the boolean false.
func (v *Value) IsFalse() bool {
	v.check("IsFalse")
	return v.kind == KindBoolean && !v.b
}

// IsNumber reports whether the value is a number, NaN included.
func (v *Value) IsNumber() bool {
	v.check("IsNumber")
	return v.kind == KindNumber
}

// IsString reports whether the value is a string.
func (v *Value) IsString() bool {
	v.check("IsString")
	return v.kind == KindString
}

// IsSymbol reports whether the value is a symbol.
func (v *Value) IsSymbol() bool {
	v.check("IsSymbol")
	return v.kind == KindSymbol
}

// IsBigInt reports whether the value is a bigint.
func (v *Value) IsBigInt() bool {
	v.check("IsBigInt")
	return v.kind == KindBigInt
}

// IsObject reports whether the value is an object. Functions are objects.
func (v *Value) IsObject() bool {
	v.check("IsObject")
	return v.kind == KindObject
}

// IsArray reports whether the value is an Array, as Array.isArray decided
// when the value crossed into Go.
func (v *Value) IsArray() bool {
	v.check("IsArray")
	return v.kind == KindObject && v.obj.array
}

// IsCallable reports whether the value is a function.
func (v *Value) IsCallable() bool {
	v.check("IsCallable")
	return v.kind == KindObject && v.obj.function
}

// IsFunction is IsCallable.
func (v *Value) IsFunction() bool { return v.IsCallable() }

// IsConstructor reports whether the value can be invoked with new.
func (v *Value) IsConstructor() bool {
	v.check("IsConstructor")
	return v.kind == KindObject && v.obj.constructor
}

// IsPromise reports whether the value is a Promise of its context.
func (v *Value) IsPromise() bool {
	v.check("IsPromise")
	return v.kind == KindObject && v.obj.promise
}

// IsError reports whether the value is an Error instance of its context.
func (v *Value) IsError() bool {
	v.check("IsError")
	return v.kind == KindObject && v.obj.isError
}

// IsPrimitive reports whether the value is not an object.
func (v *Value) IsPrimitive() bool {
	v.check("IsPrimitive")
	return v.kind != KindObject
}

// IsInt32 reports whether the value is a number exactly representable as an
// int32. Negative zero is not.
func (v *Value) IsInt32() bool {
	v.check("IsInt32")
	if v.kind != KindNumber {
		return false
	}
	return v.n >= math.MinInt32 && v.n <= math.MaxInt32 &&
		v.n == math.Trunc(v.n) && !(v.n == 0 && math.Signbit(v.n))
}

// AsBoolean returns the boolean a Bool value holds.
func (v *Value) AsBoolean() bool {
	v.want("AsBoolean", KindBoolean)
	return v.b
}

// AsNumber returns the float64 a number value holds.
func (v *Value) AsNumber() float64 {
	v.want("AsNumber", KindNumber)
	return v.n
}

// AsInt32 returns the number truncated with ToInt32 semantics.
func (v *Value) AsInt32() int32 {
	v.want("AsInt32", KindNumber)
	return toInt32(v.n)
}

// AsString returns the Go string a string value holds. Script strings are
// UTF-16; unpaired surrogates have no UTF-8 form and come out as U+FFFD.
// AsUTF16 returns the exact code units. Passing the value back to script
// keeps the original string either way.
func (v *Value) AsString() string {
	v.want("AsString", KindString)
	return v.s
}

// AsUTF16 returns the UTF-16 code units of a string value.
func (v *Value) AsUTF16() []uint16 {
	v.want("AsUTF16", KindString)
	if v.u16 != nil {
		return slices.Clone(v.u16)
	}
	return utf16.Encode([]rune(v.s))
}

// AsBigInt returns a copy of the integer a bigint value holds.
func (v *Value) AsBigInt() *big.Int {
	v.want("AsBigInt", KindBigInt)
	return new(big.Int).Set(v.big)
}

// String formats the value for logs. It never calls into the engine; use
// ToString for script semantics.
func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.n)
	case KindString:
		return v.s
	case KindBigInt:
		return v.big.String() + "n"
	case KindSymbol:
		return v.SymbolDescriptiveString()
	}
	switch {
	case v.obj.function:
		return fmt.Sprintf("[function #%d]", v.obj.slot)
	case v.obj.array:
		return fmt.Sprintf("[array #%d]", v.obj.slot)
	}
	return fmt.Sprintf("[object #%d]", v.obj.slot)
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// toInt32 is ECMAScript ToInt32 on a float64.
func toInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(f), 1<<32)
	if m < 0 {
		m += 1 << 32
	}
	return int32(uint32(m))
}
