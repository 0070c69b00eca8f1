package quickjs

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// HostCall receives a call of a host function from script. fnID identifies
// the registered function; payload is the JSON encoded receiver, arguments
// and new.target flag. The returned string is the JSON encoded reply.
//
// A negative fnID with an empty payload reports that the script function
// for -fnID was garbage collected; the reply is ignored.
type HostCall func(fnID int, payload string) string

// hostCallName is the global the trampoline is registered under in the host
// realm. Each realm's bootstrap captures its copy and deletes the global.
const hostCallName = "__hostbridge_call"

// bridgeGlobal is the non-enumerable global holding the bridge internals.
const bridgeGlobal = "__hostbridge"

// bootstrapJS installs the slot table, the value codec and the operation
// table. Values cross the boundary as descriptors:
//
//	{t:'u'} undefined        {t:'l'} null
//	{t:'b', b}               {t:'s', s} or {t:'s', u:[code units]}
//	{t:'n', n} or {t:'n', x:'NaN'|'Inf'|'-Inf'|'-0'}
//	{t:'g', s} bigint (decimal)
//	{t:'y', k} registry symbol, {t:'y', i, d?} any other symbol
//	{t:'o', id, a?, f?, c?, p?, e?} object held in slot id
//
// Strings that are not well-formed UTF-16 travel as code units.
// Every operation replies with {ok:true, v} or {ok:false, v:<thrown value>}.
//
// Script can replace globals and prototype members at any time, so the codec
// only uses intrinsics captured here, reads descriptors through own
// properties and builds its JSON replies by hand.
const bootstrapJS = `(function(realm) {
	var g = globalThis;
	var hostCall = g.__hostbridge_call;
	delete g.__hostbridge_call;

	var uncurry = Function.prototype.bind.bind(Function.prototype.call);
	var create = Object.create;
	var freeze = Object.freeze;
	var defineProperty = Object.defineProperty;
	var hasOwn = uncurry(Object.prototype.hasOwnProperty);
	var apply = Reflect.apply;
	var construct = Reflect.construct;
	var rset = Reflect.set;
	var rdefine = Reflect.defineProperty;
	var rdescriptor = Reflect.getOwnPropertyDescriptor;
	var rhas = Reflect.has;
	var rdelete = Reflect.deleteProperty;
	var ownKeys = Reflect.ownKeys;
	var isArray = Array.isArray;
	var stringify = JSON.stringify;
	var parse = JSON.parse;
	var StringCtor = String;
	var ObjectCtor = Object;
	var Sym = Symbol;
	var symbolFor = Symbol.for;
	var keyFor = Symbol.keyFor;
	var symDescription = uncurry(rdescriptor(Symbol.prototype, 'description').get);
	var BigIntCtor = BigInt;
	var bigToString = uncurry(BigInt.prototype.toString);
	var PromiseCtor = Promise;
	var ErrorCtor = Error;
	var TypeErr = TypeError;
	var RefErr = ReferenceError;
	var charCodeAt = uncurry(String.prototype.charCodeAt);
	var fromCharCode = String.fromCharCode;
	var trunc = Math.trunc;
	var isWellFormed = String.prototype.isWellFormed ? uncurry(String.prototype.isWellFormed) : wellFormed;
	var Registry = typeof FinalizationRegistry === 'function' ? FinalizationRegistry : null;
	var register = Registry ? uncurry(Registry.prototype.register) : null;

	var errors = create(null);
	errors.Error = Error;
	errors.TypeError = TypeError;
	errors.RangeError = RangeError;
	errors.ReferenceError = ReferenceError;
	errors.SyntaxError = SyntaxError;
	errors.EvalError = EvalError;
	errors.URIError = URIError;

	var special = create(null);
	special['NaN'] = NaN;
	special['Inf'] = Infinity;
	special['-Inf'] = -Infinity;
	special['-0'] = -0;

	var slots = create(null);
	var live = 0;
	var nextSlot = 0;
	var symByID = create(null);
	var idBySym = create(null);
	var nextLocalSym = 0;

	var released = Registry ? new Registry(function(fid) { hostCall(realm, -fid, ''); }) : null;

	function put(v) {
		nextSlot++;
		slots[nextSlot] = v;
		live++;
		return nextSlot;
	}

	function slot(id) {
		if (!(id in slots)) throw new RefErr('stale handle ' + id);
		return slots[id];
	}

	function list(n) {
		var a = create(null);
		a.length = n;
		return a;
	}

	function rest(args, from) {
		var a = list(args.length > from ? args.length - from : 0);
		for (var i = from; i < args.length; i++) a[i - from] = args[i];
		return a;
	}

	function data(v, w, e, c) {
		var d = create(null);
		d.value = v;
		d.writable = w;
		d.enumerable = e;
		d.configurable = c;
		return d;
	}

	function isCtor(f) {
		try {
			construct(StringCtor, [], f);
			return true;
		} catch (e) {
			return false;
		}
	}

	function is(v, C) {
		try {
			return v instanceof C;
		} catch (e) {
			return false;
		}
	}

	function arrayLike(v) {
		try {
			return isArray(v);
		} catch (e) {
			return false;
		}
	}

	function wellFormed(s) {
		for (var i = 0; i < s.length; i++) {
			var c = charCodeAt(s, i);
			if (c >= 0xDC00 && c <= 0xDFFF) return false;
			if (c >= 0xD800 && c <= 0xDBFF) {
				var n = charCodeAt(s, i + 1);
				if (!(n >= 0xDC00 && n <= 0xDFFF)) return false;
				i++;
			}
		}
		return true;
	}

	function units(s) {
		var u = '';
		for (var i = 0; i < s.length; i++) u += (i ? ',' : '') + charCodeAt(s, i);
		return u;
	}

	function fromUnits(u) {
		var s = '';
		for (var i = 0; i < u.length; i += 4096) {
			var n = u.length - i < 4096 ? u.length - i : 4096;
			var chunk = list(n);
			for (var j = 0; j < n; j++) chunk[j] = u[i + j];
			s += apply(fromCharCode, null, chunk);
		}
		return s;
	}

	function symbol(id, hasDesc, desc) {
		if (id in symByID) return symByID[id];
		if (id < 0) throw new RefErr('unknown symbol ' + id);
		var s = hasDesc ? Sym(desc) : Sym();
		symByID[id] = s;
		idBySym[s] = id;
		return s;
	}

	function outNumber(v) {
		if (v !== v) return '{"t":"n","x":"NaN"}';
		if (v === Infinity) return '{"t":"n","x":"Inf"}';
		if (v === -Infinity) return '{"t":"n","x":"-Inf"}';
		if (v === 0 && 1 / v < 0) return '{"t":"n","x":"-0"}';
		return '{"t":"n","n":' + stringify(v) + '}';
	}

	function outString(v) {
		if (isWellFormed(v)) return '{"t":"s","s":' + stringify(v) + '}';
		return '{"t":"s","u":[' + units(v) + ']}';
	}

	function outSymbol(v) {
		var key = keyFor(v);
		if (key !== undefined) return '{"t":"y","k":' + stringify(key) + '}';
		var id;
		if (v in idBySym) {
			id = idBySym[v];
		} else {
			id = --nextLocalSym;
			idBySym[v] = id;
			symByID[id] = v;
		}
		var d = symDescription(v);
		if (d === undefined) return '{"t":"y","i":' + id + '}';
		return '{"t":"y","i":' + id + ',"d":' + stringify(d) + '}';
	}

	function out(v) {
		switch (typeof v) {
		case 'undefined': return '{"t":"u"}';
		case 'boolean': return v ? '{"t":"b","b":true}' : '{"t":"b","b":false}';
		case 'number': return outNumber(v);
		case 'string': return outString(v);
		case 'bigint': return '{"t":"g","s":"' + bigToString(v) + '"}';
		case 'symbol': return outSymbol(v);
		}
		if (v === null) return '{"t":"l"}';
		var o = '{"t":"o","id":' + put(v);
		if (arrayLike(v)) o += ',"a":true';
		if (typeof v === 'function') {
			o += ',"f":true';
			if (isCtor(v)) o += ',"c":true';
		}
		if (is(v, PromiseCtor)) o += ',"p":true';
		if (is(v, ErrorCtor)) o += ',"e":true';
		return o + '}';
	}

	function into(d) {
		switch (d.t) {
		case 'u': return undefined;
		case 'l': return null;
		case 'b': return d.b;
		case 'n': return hasOwn(d, 'x') ? special[d.x] : d.n;
		case 's': return hasOwn(d, 'u') ? fromUnits(d.u) : d.s;
		case 'g': return BigIntCtor(d.s);
		case 'y': return hasOwn(d, 'k') ? symbolFor(d.k) : symbol(d.i, hasOwn(d, 'd'), d.d);
		case 'o': return slot(d.id);
		}
		throw new TypeErr('bad descriptor ' + d.t);
	}

	function intoList(ds) {
		var a = list(ds.length);
		for (var i = 0; i < ds.length; i++) a[i] = into(ds[i]);
		return a;
	}

	function invoke(fid, self, args, constructing) {
		var payload = '{"r":' + out(self) + ',"a":[';
		for (var i = 0; i < args.length; i++) payload += (i ? ',' : '') + out(args[i]);
		payload += '],"n":' + (constructing ? 'true' : 'false') + '}';
		var r = parse(hostCall(realm, fid, payload));
		if (hasOwn(r, 'fault')) throw new ErrorCtor('host callback fault');
		var v = hasOwn(r, 'v') ? into(r.v) : undefined;
		if (hasOwn(r, 'thrown')) throw v;
		return v;
	}

	function hostFunction(fid, name, length, ctor) {
		var f;
		if (ctor) {
			f = function() {
				return invoke(fid, this, arguments, new.target !== undefined);
			};
		} else {
			f = ({m() {
				return invoke(fid, this, arguments, false);
			}}).m;
		}
		defineProperty(f, 'name', data(name, false, false, true));
		defineProperty(f, 'length', data(length, false, false, true));
		if (released) register(released, f, fid);
		return f;
	}

	var ops = {
		__proto__: null,
		global: function() { return g; },
		get: function(o, k) { return o[k]; },
		set: function(o, k, v) { return rset(o, k, v); },
		define: function(o, k, v, w, e, c) { return rdefine(o, k, data(v, w, e, c)); },
		own: function(o, k) {
			var d = rdescriptor(o, k);
			if (d === undefined) return undefined;
			if (hasOwn(d, 'value')) return d.value;
			return d.get === undefined ? undefined : apply(d.get, o, []);
		},
		has: function(o, k) { return rhas(o, k); },
		del: function(o, k) { return rdelete(o, k); },
		keys: function(o) { return ownKeys(o); },
		len: function(o) { return o.length; },
		call: function(f, r) { return apply(f, r, rest(arguments, 2)); },
		construct: function(f) { return construct(f, rest(arguments, 1)); },
		toString: function(v) { return ` + "`${v}`" + `; },
		toNumber: function(v) { return +v; },
		toBoolean: function(v) { return !!v; },
		toInteger: function(v) {
			var n = +v;
			if (n !== n) return 0;
			n = trunc(n);
			return n === 0 ? 0 : n;
		},
		toInt32: function(v) { return (+v) | 0; },
		toObject: function(v) {
			if (v === undefined || v === null) throw new TypeErr('cannot convert ' + v + ' to object');
			return ObjectCtor(v);
		},
		eq: function(a, b) { return a == b; },
		seq: function(a, b) { return a === b; },
		instanceOf: function(v, c) { return v instanceof c; },
		newObject: function() { return {}; },
		newArray: function() { return []; },
		jsonParse: function(s) { return parse(s); },
		jsonStringify: function(v) { return stringify(v); },
		newError: function(kind, msg) {
			var C = kind in errors ? errors[kind] : g[kind];
			return new C(msg);
		},
		capability: function() {
			var res, rej;
			var p = new PromiseCtor(function(a, b) { res = a; rej = b; });
			return [p, res, rej];
		},
		then: function(p, f, r) { return p.then(f, r); },
		namespace: function(ns) {
			var o = g[ns];
			if (o === undefined || o === null) {
				o = {};
				g[ns] = o;
			}
			return o;
		},
		hostFunction: function(fid, name, length, ctor) { return hostFunction(fid, name, length, ctor); },
		defineGlobal: function(name, v) { return rdefine(g, name, data(v, true, false, true)); }
	};

	function reply(ok, v) {
		return '{"ok":' + (ok ? 'true' : 'false') + ',"v":' + out(v) + '}';
	}

	function op(name, args) {
		var v;
		try {
			v = apply(ops[name], null, intoList(args));
		} catch (e) {
			return reply(false, e);
		}
		return reply(true, v);
	}

	function opList(name, args) {
		var vs = '';
		try {
			var l = apply(ops[name], null, intoList(args));
			for (var j = 0; j < l.length; j++) vs += (j ? ',' : '') + out(l[j]);
		} catch (e) {
			return reply(false, e);
		}
		return '{"ok":true,"vs":[' + vs + ']}';
	}

	function free(ids) {
		for (var i = 0; i < ids.length; i++) {
			if (ids[i] in slots) {
				delete slots[ids[i]];
				live--;
			}
		}
		return live;
	}

	var bridge = create(null);
	bridge.op = op;
	bridge.opList = opList;
	bridge.free = free;
	bridge.result = function(v) { return reply(true, v); };
	bridge.thrown = function(v) { return reply(false, v); };
	defineProperty(g, '__hostbridge', data(freeze(bridge), false, false, false));
})`

// bootstrapSource returns the bootstrap for the realm with the given id.
func bootstrapSource(realm int) string {
	return bootstrapJS + "(" + strconv.Itoa(realm) + ");"
}

// Op runs a named operation with JSON encoded argument descriptors and
// returns the JSON encoded reply.
func (re *Realm) Op(name string, args json.RawMessage) (string, error) {
	return re.EvalString(fmt.Sprintf("%s.op(%q, %s)", bridgeGlobal, name, args))
}

// OpList is Op for operations returning a list of values.
func (re *Realm) OpList(name string, args json.RawMessage) (string, error) {
	return re.EvalString(fmt.Sprintf("%s.opList(%q, %s)", bridgeGlobal, name, args))
}

// Free drops slots from the slot table and returns how many remain.
func (re *Realm) Free(ids []uint64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var b strings.Builder
	b.WriteString(bridgeGlobal)
	b.WriteString(".free([")
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(id, 10))
	}
	b.WriteString("])")
	out, err := re.EvalString(b.String())
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("parsing slot count %q: %w", out, err)
	}
	return n, nil
}
