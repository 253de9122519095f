package eterm

import (
	"bytes"
	"math"
	"math/big"
	"sort"
	"strings"
)

// Kind identifies the variant a Term holds. The numeric order of the
// constants is the term comparison order: kinds compare before values, so
// every int sorts before every float, every atom before every string, and
// so on.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindInt
	KindFloat
	KindBool
	KindAtom
	KindString
	KindBinary
	KindPid
	KindPort
	KindRef
	KindVar
	KindTuple
	KindList
	KindMap
	KindTrace
)

var kindNames = [...]string{
	"undefined", "int", "float", "bool", "atom", "string", "binary",
	"pid", "port", "ref", "var", "tuple", "list", "map", "trace",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Term is an immutable Erlang term. The zero value is the undefined term:
// it sorts before everything, equals only itself and cannot be encoded.
// Composite terms share their backing storage, so copying a Term is O(1);
// the shared storage is never written after construction.
type Term struct {
	kind Kind
	i    int64 // int value; bool as 0/1; var kind constraint
	f    float64
	atom Atom
	str  string // string payload; var name
	bin  []byte
	big  *big.Int // only when the value does not fit in i
	pid  *Pid
	port *Port
	ref  *Ref
	// tuple and trace elements; list elements; map key/value pairs
	// flattened in key order
	items []Term
	tail  *Term // non-nil for improper lists
}

// MapEntry is one key/value pair of a map term.
type MapEntry struct {
	Key Term
	Val Term
}

// Int builds an integer term.
func Int(v int64) Term { return Term{kind: KindInt, i: v} }

// BigInt builds an integer term from an arbitrary-precision value. Values
// that fit in an int64 are normalized to the small representation; the
// input is copied and may be reused by the caller.
func BigInt(v *big.Int) Term {
	if v == nil {
		return Term{kind: KindInt}
	}
	if v.IsInt64() {
		return Int(v.Int64())
	}
	return Term{kind: KindInt, big: new(big.Int).Set(v)}
}

// Float builds a float term.
func Float(v float64) Term { return Term{kind: KindFloat, f: v} }

// Bool builds a boolean term. Booleans are a distinct kind; they encode as
// the atoms true and false and those atoms decode back to booleans.
func Bool(v bool) Term {
	var i int64
	if v {
		i = 1
	}
	return Term{kind: KindBool, i: i}
}

// String builds a string term (the Erlang character-list string form).
func String(s string) Term { return Term{kind: KindString, str: s} }

// Binary builds a binary term. The bytes are copied once; accessors hand
// out the internal copy, which must be treated as read-only.
func Binary(b []byte) Term {
	return Term{kind: KindBinary, bin: append([]byte(nil), b...)}
}

// Tuple builds a tuple term from its elements.
func Tuple(elems ...Term) Term {
	return Term{kind: KindTuple, items: append([]Term(nil), elems...)}
}

// List builds a proper list term from its elements. List() is the empty
// list. Use a ListBuilder for incremental construction or improper tails.
func List(elems ...Term) Term {
	return Term{kind: KindList, items: append([]Term(nil), elems...)}
}

// Map builds a map term. Entries are stored sorted by key; duplicate keys
// collapse with the last value winning.
func Map(entries ...MapEntry) Term {
	es := append([]MapEntry(nil), entries...)
	sort.SliceStable(es, func(i, j int) bool {
		return es[i].Key.Compare(es[j].Key) < 0
	})
	items := make([]Term, 0, 2*len(es))
	for i, e := range es {
		if i+1 < len(es) && es[i+1].Key.Compare(e.Key) == 0 {
			continue
		}
		items = append(items, e.Key, e.Val)
	}
	return Term{kind: KindMap, items: items}
}

// Var builds a match variable. "_" is the wildcard: it matches anything
// and never binds.
func Var(name string) Term { return Term{kind: KindVar, str: name} }

// TypedVar builds a match variable that only matches terms of kind k.
func TypedVar(name string, k Kind) Term {
	return Term{kind: KindVar, str: name, i: int64(k)}
}

// Kind returns the term's variant.
func (t Term) Kind() Kind { return t.kind }

// Defined reports whether the term holds a value.
func (t Term) Defined() bool { return t.kind != KindUndefined }

// Int64 returns the integer value when it fits in an int64.
func (t Term) Int64() (int64, bool) {
	if t.kind != KindInt || t.big != nil {
		return 0, false
	}
	return t.i, true
}

// BigInt returns a copy of the integer value of any magnitude.
func (t Term) BigInt() (*big.Int, bool) {
	if t.kind != KindInt {
		return nil, false
	}
	if t.big != nil {
		return new(big.Int).Set(t.big), true
	}
	return big.NewInt(t.i), true
}

// Float64 returns the float value.
func (t Term) Float64() (float64, bool) {
	if t.kind != KindFloat {
		return 0, false
	}
	return t.f, true
}

// Bool returns the boolean value.
func (t Term) Bool() (bool, bool) {
	if t.kind != KindBool {
		return false, false
	}
	return t.i != 0, true
}

// Atom returns the atom value.
func (t Term) Atom() (Atom, bool) {
	if t.kind != KindAtom {
		return Atom{}, false
	}
	return t.atom, true
}

// Str returns the string payload.
func (t Term) Str() (string, bool) {
	if t.kind != KindString {
		return "", false
	}
	return t.str, true
}

// Bytes returns the binary payload. The slice is shared with the term and
// must not be modified.
func (t Term) Bytes() ([]byte, bool) {
	if t.kind != KindBinary {
		return nil, false
	}
	return t.bin, true
}

// Pid returns the pid value.
func (t Term) Pid() (Pid, bool) {
	if t.kind != KindPid {
		return Pid{}, false
	}
	return *t.pid, true
}

// Port returns the port value.
func (t Term) Port() (Port, bool) {
	if t.kind != KindPort {
		return Port{}, false
	}
	return *t.port, true
}

// Ref returns the reference value.
func (t Term) Ref() (Ref, bool) {
	if t.kind != KindRef {
		return Ref{}, false
	}
	return *t.ref, true
}

// VarName returns the variable's name.
func (t Term) VarName() (string, bool) {
	if t.kind != KindVar {
		return "", false
	}
	return t.str, true
}

// VarConstraint returns the kind a typed variable matches, KindUndefined
// when the variable (or term) is unconstrained.
func (t Term) VarConstraint() Kind {
	if t.kind != KindVar {
		return KindUndefined
	}
	return Kind(t.i)
}

// Elements returns the elements of a tuple, list or trace term. The slice
// is shared with the term and must not be modified.
func (t Term) Elements() ([]Term, bool) {
	switch t.kind {
	case KindTuple, KindList, KindTrace:
		return t.items, true
	default:
		return nil, false
	}
}

// Tail returns the improper tail of a list. ok is false for proper lists
// and non-lists.
func (t Term) Tail() (Term, bool) {
	if t.kind != KindList || t.tail == nil {
		return Term{}, false
	}
	return *t.tail, true
}

// MapLen returns the number of entries in a map term, 0 otherwise.
func (t Term) MapLen() int {
	if t.kind != KindMap {
		return 0
	}
	return len(t.items) / 2
}

// MapGet looks key up in a map term.
func (t Term) MapGet(key Term) (Term, bool) {
	if t.kind != KindMap {
		return Term{}, false
	}
	n := len(t.items) / 2
	i := sort.Search(n, func(i int) bool {
		return t.items[2*i].Compare(key) >= 0
	})
	if i < n && t.items[2*i].Compare(key) == 0 {
		return t.items[2*i+1], true
	}
	return Term{}, false
}

// MapEntries returns the map's entries in key order.
func (t Term) MapEntries() []MapEntry {
	if t.kind != KindMap {
		return nil
	}
	es := make([]MapEntry, 0, len(t.items)/2)
	for i := 0; i+1 < len(t.items); i += 2 {
		es = append(es, MapEntry{Key: t.items[i], Val: t.items[i+1]})
	}
	return es
}

// Equal reports structural equality.
func (t Term) Equal(o Term) bool { return t.Compare(o) == 0 }

// Compare orders terms: kind order first (see Kind), then value order
// within the kind. Tuples compare by arity then elementwise; lists
// elementwise then by length then by tail; maps pairwise in key order.
func (t Term) Compare(o Term) int {
	if t.kind != o.kind {
		return int(t.kind) - int(o.kind)
	}
	switch t.kind {
	case KindUndefined:
		return 0
	case KindInt:
		if t.big == nil && o.big == nil {
			return cmpInt64(t.i, o.i)
		}
		return t.bigValue().Cmp(o.bigValue())
	case KindFloat:
		return cmpFloat(t.f, o.f)
	case KindBool:
		return cmpInt64(t.i, o.i)
	case KindAtom:
		return t.atom.Compare(o.atom)
	case KindString:
		return strings.Compare(t.str, o.str)
	case KindBinary:
		return bytes.Compare(t.bin, o.bin)
	case KindPid:
		return t.pid.Compare(*o.pid)
	case KindPort:
		return t.port.Compare(*o.port)
	case KindRef:
		return t.ref.Compare(*o.ref)
	case KindVar:
		if c := strings.Compare(t.str, o.str); c != 0 {
			return c
		}
		return cmpInt64(t.i, o.i)
	case KindTuple, KindTrace:
		if c := len(t.items) - len(o.items); c != 0 {
			return c
		}
		return cmpElems(t.items, o.items)
	case KindList:
		n := min(len(t.items), len(o.items))
		if c := cmpElems(t.items[:n], o.items[:n]); c != 0 {
			return c
		}
		if c := len(t.items) - len(o.items); c != 0 {
			return c
		}
		return cmpTail(t.tail, o.tail)
	case KindMap:
		n := min(len(t.items), len(o.items))
		if c := cmpElems(t.items[:n], o.items[:n]); c != 0 {
			return c
		}
		return len(t.items) - len(o.items)
	}
	return 0
}

func (t Term) bigValue() *big.Int {
	if t.big != nil {
		return t.big
	}
	return big.NewInt(t.i)
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	}
	// NaNs sort first and equal each other
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	default:
		return 1
	}
}

func cmpElems(a, b []Term) int {
	for i := range a {
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func cmpTail(a, b *Term) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Compare(*b)
	}
}
