package jsbridge

import (
	"encoding/json"
	"math"
	"math/big"
	"unicode/utf16"

	"github.com/cryguy/jsbridge/internal/core"
)

// wireValue is the JSON descriptor a value crosses the script boundary as.
// Objects travel as slot ids into the context's script-side slot table.
type wireValue struct {
	T  string   `json:"t"`
	B  *bool    `json:"b,omitempty"`
	N  *float64 `json:"n,omitempty"`
	X  string   `json:"x,omitempty"`
	S  *string  `json:"s,omitempty"`
	U  []uint16 `json:"u,omitempty"`
	K  *string  `json:"k,omitempty"`
	I  int64    `json:"i,omitempty"`
	D  *string  `json:"d,omitempty"`
	ID uint64   `json:"id,omitempty"`
	A  bool     `json:"a,omitempty"`
	F  bool     `json:"f,omitempty"`
	C  bool     `json:"c,omitempty"`
	P  bool     `json:"p,omitempty"`
	E  bool     `json:"e,omitempty"`
}

// opReply is what every bridge operation returns.
type opReply struct {
	OK bool        `json:"ok"`
	V  *wireValue  `json:"v,omitempty"`
	VS []wireValue `json:"vs,omitempty"`
}

// callPayload is what the trampoline receives for a host function call.
type callPayload struct {
	R wireValue   `json:"r"`
	A []wireValue `json:"a"`
	N bool        `json:"n"`
}

// callReply is what the trampoline hands back to script.
type callReply struct {
	V      *wireValue `json:"v,omitempty"`
	Thrown bool       `json:"thrown,omitempty"`
	Fault  bool       `json:"fault,omitempty"`
}

func numberWire(f float64) wireValue {
	switch {
	case math.IsNaN(f):
		return wireValue{T: "n", X: "NaN"}
	case math.IsInf(f, 1):
		return wireValue{T: "n", X: "Inf"}
	case math.IsInf(f, -1):
		return wireValue{T: "n", X: "-Inf"}
	case f == 0 && math.Signbit(f):
		return wireValue{T: "n", X: "-0"}
	}
	return wireValue{T: "n", N: &f}
}

func wireNumber(w wireValue) float64 {
	switch w.X {
	case "NaN":
		return math.NaN()
	case "Inf":
		return math.Inf(1)
	case "-Inf":
		return math.Inf(-1)
	case "-0":
		return math.Copysign(0, -1)
	}
	if w.N == nil {
		return 0
	}
	return *w.N
}

// encode turns v into a descriptor for cc. It panics when v holds an object
// of another context.
func (cc *contextCore) encode(op string, v *Value) wireValue {
	switch v.kind {
	case KindUndefined:
		return wireValue{T: "u"}
	case KindNull:
		return wireValue{T: "l"}
	case KindBoolean:
		b := v.b
		return wireValue{T: "b", B: &b}
	case KindNumber:
		return numberWire(v.n)
	case KindString:
		if v.u16 != nil {
			return wireValue{T: "s", U: v.u16}
		}
		s := v.s
		return wireValue{T: "s", S: &s}
	case KindBigInt:
		s := v.big.String()
		return wireValue{T: "g", S: &s}
	case KindSymbol:
		return cc.encodeSymbol(v.sym)
	case KindObject:
		if v.obj.core != cc {
			panic(core.NewError(core.PhaseValue, core.KindCrossContext).Op(op).
				Detail("object belongs to context %s", v.obj.core.id).Build())
		}
		return wireValue{T: "o", ID: v.obj.slot}
	}
	panic(core.NewError(core.PhaseValue, core.KindWrongKind).Op(op).Detail("unknown kind %d", v.kind).Build())
}

func (cc *contextCore) encodeAll(op string, vs ...*Value) json.RawMessage {
	ws := make([]wireValue, len(vs))
	for i, v := range vs {
		ws[i] = cc.encode(op, v)
	}
	data, err := json.Marshal(ws)
	if err != nil {
		panic(core.NewError(core.PhaseValue, core.KindEngine).Op(op).Cause(err).Build())
	}
	return data
}

// decode turns a descriptor produced by cc's script side into a Value. Each
// object descriptor carries a fresh slot and becomes a new tracked handle.
func (cc *contextCore) decode(ctx *Context, w wireValue) *Value {
	switch w.T {
	case "u":
		return Undefined()
	case "l":
		return Null()
	case "b":
		return Bool(w.B != nil && *w.B)
	case "n":
		return Number(wireNumber(w))
	case "s":
		if w.U != nil {
			return &Value{kind: KindString, s: string(utf16.Decode(w.U)), u16: w.U}
		}
		if w.S == nil {
			return String("")
		}
		return String(*w.S)
	case "g":
		n := new(big.Int)
		if w.S != nil {
			n.SetString(*w.S, 10)
		}
		return &Value{kind: KindBigInt, big: n}
	case "y":
		return &Value{kind: KindSymbol, sym: cc.decodeSymbol(w)}
	case "o":
		return cc.track(ctx, w)
	}
	panic(core.NewError(core.PhaseValue, core.KindEngine).Detail("unknown descriptor %q", w.T).Build())
}
