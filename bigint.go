package jsbridge

import (
	"math/big"

	"github.com/cryguy/jsbridge/internal/core"
)

var mask64 = new(big.Int).SetUint64(^uint64(0))

// NewBigInt returns a bigint value holding i.
func NewBigInt(i int64) *Value {
	return &Value{kind: KindBigInt, big: big.NewInt(i)}
}

// NewBigIntFromBig returns a bigint value holding a copy of i.
func NewBigIntFromBig(i *big.Int) *Value {
	if i == nil {
		core.NilArgument(core.PhaseValue, "NewBigIntFromBig", "i")
	}
	return &Value{kind: KindBigInt, big: new(big.Int).Set(i)}
}

// BigIntFromString parses s in the given radix (2 to 36). An optional sign
// is accepted and an empty string parses as 0. It reports false when s is
// not a valid integer in radix.
func BigIntFromString(s string, radix int) (*Value, bool) {
	checkRadix("BigIntFromString", radix)
	if s == "" {
		return NewBigInt(0), true
	}
	n, ok := new(big.Int).SetString(s, radix)
	if !ok {
		return nil, false
	}
	return &Value{kind: KindBigInt, big: n}, true
}

// BigIntString formats the integer in the given radix (2 to 36), lowercase,
// without prefix.
func (v *Value) BigIntString(radix int) string {
	v.want("BigIntString", KindBigInt)
	checkRadix("BigIntString", radix)
	return v.big.Text(radix)
}

// BigIntInt64 narrows to int64 with two's-complement wrapping.
func (v *Value) BigIntInt64() int64 {
	return int64(v.BigIntUint64())
}

// BigIntUint64 narrows to uint64, keeping the low 64 bits of the
// two's-complement representation.
func (v *Value) BigIntUint64() uint64 {
	v.want("BigIntUint64", KindBigInt)
	return new(big.Int).And(v.big, mask64).Uint64()
}

// BigIntFloat64 returns the nearest float64.
func (v *Value) BigIntFloat64() float64 {
	v.want("BigIntFloat64", KindBigInt)
	f, _ := new(big.Float).SetInt(v.big).Float64()
	return f
}

func checkRadix(op string, radix int) {
	if radix < 2 || radix > 36 {
		core.InvalidInput(core.PhaseValue, op, "radix %d out of range 2..36", radix)
	}
}
