package jsbridge

import (
	"runtime"
	"sync"
	"sync/atomic"
	"weak"
)

// symbolRecord is the Go identity of a symbol. Two symbol Values are the same
// symbol exactly when they share a record.
type symbolRecord struct {
	id      int64 // process-wide, positive
	desc    string
	hasDesc bool

	key        string // registry key when registered
	registered bool

	// origin and localID identify a symbol that was created by script: the
	// context it came from and its negative id in that context's symbol map.
	origin  *contextCore
	localID int64

	exported atomic.Bool // listed in hostSymbols
}

var symbolIDs atomic.Int64

func nextSymbolID() int64 { return symbolIDs.Add(1) }

// NewSymbol creates a unique symbol. A nil desc gives a symbol without a
// description, which is distinct from an empty description.
func NewSymbol(desc *string) *Value {
	rec := &symbolRecord{id: nextSymbolID()}
	if desc != nil {
		rec.desc, rec.hasDesc = *desc, true
	}
	return &Value{kind: KindSymbol, sym: rec}
}

// SymbolDescription returns the description and whether the symbol has one.
func (v *Value) SymbolDescription() (string, bool) {
	v.want("SymbolDescription", KindSymbol)
	return v.sym.desc, v.sym.hasDesc
}

// SymbolDescriptiveString returns "Symbol()" or "Symbol(desc)".
func (v *Value) SymbolDescriptiveString() string {
	v.want("SymbolDescriptiveString", KindSymbol)
	if !v.sym.hasDesc {
		return "Symbol()"
	}
	return "Symbol(" + v.sym.desc + ")"
}

// SymbolKey returns the registry key of a symbol obtained from SymbolFor or
// Symbol.for.
func (v *Value) SymbolKey() (string, bool) {
	v.want("SymbolKey", KindSymbol)
	return v.sym.key, v.sym.registered
}

// hostSymbols maps the ids of symbols handed to script back to their
// records. Entries are weak: script keeps its own symbol per context, so a
// record Go no longer references is recreated under the same id when script
// hands the symbol back. The script-side symbol maps are not pruned and grow
// with the number of distinct symbols a context has seen.
var hostSymbols = struct {
	sync.Mutex
	m map[int64]weak.Pointer[symbolRecord]
}{m: make(map[int64]weak.Pointer[symbolRecord])}

func exportSymbol(rec *symbolRecord) {
	if rec.exported.Swap(true) {
		return
	}
	hostSymbols.Lock()
	hostSymbols.m[rec.id] = weak.Make(rec)
	hostSymbols.Unlock()
	runtime.AddCleanup(rec, dropHostSymbol, rec.id)
}

// importSymbol returns the record for a symbol id script handed back.
func importSymbol(id int64, desc *string) *symbolRecord {
	hostSymbols.Lock()
	defer hostSymbols.Unlock()
	if p, ok := hostSymbols.m[id]; ok {
		if rec := p.Value(); rec != nil {
			return rec
		}
	}
	rec := &symbolRecord{id: id}
	if desc != nil {
		rec.desc, rec.hasDesc = *desc, true
	}
	rec.exported.Store(true)
	hostSymbols.m[id] = weak.Make(rec)
	runtime.AddCleanup(rec, dropHostSymbol, id)
	return rec
}

func dropHostSymbol(id int64) {
	hostSymbols.Lock()
	defer hostSymbols.Unlock()
	if p, ok := hostSymbols.m[id]; ok && p.Value() == nil {
		delete(hostSymbols.m, id)
	}
}

func (cc *contextCore) encodeSymbol(rec *symbolRecord) wireValue {
	if rec.registered {
		k := rec.key
		return wireValue{T: "y", K: &k}
	}
	if rec.origin == cc {
		return wireValue{T: "y", I: rec.localID}
	}
	exportSymbol(rec)
	w := wireValue{T: "y", I: rec.id}
	if rec.hasDesc {
		d := rec.desc
		w.D = &d
	}
	return w
}

func (cc *contextCore) decodeSymbol(w wireValue) *symbolRecord {
	if w.K != nil {
		return cc.vm.registered(*w.K)
	}
	if w.I > 0 {
		return importSymbol(w.I, w.D)
	}
	if p, ok := cc.localSyms[w.I]; ok {
		if rec := p.Value(); rec != nil {
			return rec
		}
	}
	cc.pruneLocalSymbols()
	rec := &symbolRecord{id: nextSymbolID(), origin: cc, localID: w.I}
	if w.D != nil {
		rec.desc, rec.hasDesc = *w.D, true
	}
	cc.localSyms[w.I] = weak.Make(rec)
	return rec
}

// pruneLocalSymbols drops entries whose record was collected once the map
// has doubled since the last pass.
func (cc *contextCore) pruneLocalSymbols() {
	if len(cc.localSyms) < cc.symPrune {
		return
	}
	for id, p := range cc.localSyms {
		if p.Value() == nil {
			delete(cc.localSyms, id)
		}
	}
	cc.symPrune = 2*len(cc.localSyms) + 64
}
