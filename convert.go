package jsbridge

import (
	"math"
	"slices"
)

// ToString converts v with the ECMAScript ToString operation. Symbols fail
// with a TypeError in the exception slot.
func (v *Value) ToString(ctx *Context) (string, bool) {
	v.check("ToString")
	ctx.checkActive("ToString")
	if v.kind == KindString {
		return v.s, true
	}
	r, ok := ctx.op("ToString", "toString", v)
	if !ok {
		return "", false
	}
	return r.AsString(), true
}

// ToNumber converts v with ToNumber. BigInts and symbols fail.
func (v *Value) ToNumber(ctx *Context) (float64, bool) {
	v.check("ToNumber")
	ctx.checkActive("ToNumber")
	if v.kind == KindNumber {
		return v.n, true
	}
	r, ok := ctx.op("ToNumber", "toNumber", v)
	if !ok {
		return 0, false
	}
	return r.AsNumber(), true
}

// ToBoolean converts v with ToBoolean. It never fails.
func (v *Value) ToBoolean(ctx *Context) (bool, bool) {
	v.check("ToBoolean")
	ctx.checkActive("ToBoolean")
	switch v.kind {
	case KindUndefined, KindNull:
		return false, true
	case KindBoolean:
		return v.b, true
	case KindNumber:
		return v.n != 0 && !math.IsNaN(v.n), true
	case KindString:
		return v.s != "", true
	case KindBigInt:
		return v.big.Sign() != 0, true
	}
	return true, true
}

// ToInteger converts v with ToIntegerOrInfinity: NaN becomes 0 and the
// result is truncated toward zero.
func (v *Value) ToInteger(ctx *Context) (float64, bool) {
	v.check("ToInteger")
	ctx.checkActive("ToInteger")
	if v.kind == KindNumber {
		return integerOrInfinity(v.n), true
	}
	r, ok := ctx.op("ToInteger", "toInteger", v)
	if !ok {
		return 0, false
	}
	return r.AsNumber(), true
}

// ToInt32 converts v with ToInt32.
func (v *Value) ToInt32(ctx *Context) (int32, bool) {
	v.check("ToInt32")
	ctx.checkActive("ToInt32")
	if v.kind == KindNumber {
		return toInt32(v.n), true
	}
	r, ok := ctx.op("ToInt32", "toInt32", v)
	if !ok {
		return 0, false
	}
	return r.AsInt32(), true
}

// ToObject converts v with ToObject. Undefined and null fail with a
// TypeError.
func (v *Value) ToObject(ctx *Context) (*Value, bool) {
	v.check("ToObject")
	ctx.checkActive("ToObject")
	if v.kind == KindObject {
		return v, true
	}
	return ctx.op("ToObject", "toObject", v)
}

// Equals compares with abstract equality (==), which may run user code and
// throw.
func (v *Value) Equals(ctx *Context, other *Value) (bool, bool) {
	v.check("Equals")
	requireArg("Equals", "other", other)
	r, ok := ctx.op("Equals", "eq", v, other)
	if !ok {
		return false, false
	}
	return r.AsBoolean(), true
}

// StrictEquals compares with strict equality (===).
func (v *Value) StrictEquals(ctx *Context, other *Value) bool {
	v.check("StrictEquals")
	requireArg("StrictEquals", "other", other)
	ctx.checkActive("StrictEquals")
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindUndefined, KindNull:
		return true
	case KindBoolean:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		if v.u16 != nil || other.u16 != nil {
			return slices.Equal(v.AsUTF16(), other.AsUTF16())
		}
		return v.s == other.s
	case KindBigInt:
		return v.big.Cmp(other.big) == 0
	case KindSymbol:
		return v.sym == other.sym
	}
	if v.obj == other.obj {
		return true
	}
	r, ok := ctx.op("StrictEquals", "seq", v, other)
	return ok && r.AsBoolean()
}

func integerOrInfinity(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	t := math.Trunc(f)
	if t == 0 {
		return 0
	}
	return t
}
