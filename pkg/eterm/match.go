package eterm

// WildcardName is the variable name that matches anything and binds
// nothing.
const WildcardName = "_"

// Match tests value against pattern, capturing variables into b. The
// first occurrence of a variable binds it; later occurrences must compare
// equal to the bound value. A typed variable additionally requires the
// value's kind to match. Tuples and lists match elementwise with equal
// arity; a map pattern matches when every one of its entries is present
// in the value (extra entries in the value are fine); map pattern keys
// must be ground terms. Everything else matches by equality.
//
// The walk is a single pass without backtracking: bindings made before a
// later sub-pattern fails remain in b. Callers needing all-or-nothing
// capture should match into a scratch binding and Merge it on success.
func Match(pattern, value Term, b *VarBind) bool {
	if pattern.kind == KindVar {
		return matchVar(pattern, value, b)
	}
	if pattern.kind != value.kind {
		return false
	}
	switch pattern.kind {
	case KindTuple, KindTrace:
		if len(pattern.items) != len(value.items) {
			return false
		}
		return matchElems(pattern.items, value.items, b)
	case KindList:
		if len(pattern.items) != len(value.items) {
			return false
		}
		if !matchElems(pattern.items, value.items, b) {
			return false
		}
		switch {
		case pattern.tail == nil && value.tail == nil:
			return true
		case pattern.tail == nil || value.tail == nil:
			return false
		default:
			return Match(*pattern.tail, *value.tail, b)
		}
	case KindMap:
		for i := 0; i+1 < len(pattern.items); i += 2 {
			got, ok := value.MapGet(pattern.items[i])
			if !ok || !Match(pattern.items[i+1], got, b) {
				return false
			}
		}
		return true
	default:
		return pattern.Equal(value)
	}
}

func matchVar(pattern, value Term, b *VarBind) bool {
	if k := Kind(pattern.i); k != KindUndefined && value.kind != k {
		return false
	}
	name := pattern.str
	if name == WildcardName {
		return true
	}
	if b == nil {
		return true
	}
	if bound, ok := b.Get(name); ok {
		return bound.Equal(value)
	}
	b.Bind(name, value)
	return true
}

func matchElems(pattern, value []Term, b *VarBind) bool {
	for i := range pattern {
		if !Match(pattern[i], value[i], b) {
			return false
		}
	}
	return true
}
