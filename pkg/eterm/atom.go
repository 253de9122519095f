package eterm

import (
	"fmt"
	"strings"
	"sync"
)

const (
	// MaxAtomLen is the longest atom name the wire format can carry.
	MaxAtomLen = 255
	// MaxNodeLen bounds node names used in pids, ports and references.
	MaxNodeLen = 255

	// DefaultAtomTableSize is the capacity used when a table is created
	// with a non-positive size. The reserved empty atom counts against it.
	DefaultAtomTableSize = 1 << 16
)

// Atom is an interned constant string. The zero value is the empty atom,
// which every table maps to index 0. Atoms from the same table with the
// same name are equal under ==; ordering is lexicographic on the name.
type Atom struct {
	idx  uint32
	name string
}

// Index returns the atom's slot in its table. 0 is the empty atom.
func (a Atom) Index() uint32 { return a.idx }

// Name returns the raw atom name without quoting.
func (a Atom) Name() string { return a.name }

// Empty reports whether a is the empty atom.
func (a Atom) Empty() bool { return a.name == "" }

// String renders the atom the way the Erlang shell prints it: bare when
// the name starts with a lowercase letter and contains no spaces, single
// quoted otherwise.
func (a Atom) String() string {
	if needQuote(a.name) {
		return "'" + a.name + "'"
	}
	return a.name
}

func needQuote(s string) bool {
	return len(s) == 0 || s[0] < 'a' || s[0] > 'z' || strings.IndexByte(s, ' ') >= 0
}

// Compare orders atoms by name.
func (a Atom) Compare(b Atom) int { return strings.Compare(a.name, b.name) }

// Term wraps the atom as a term value.
func (a Atom) Term() Term { return Term{kind: KindAtom, atom: a} }

// AtomTable interns atom names into dense indexes. Capacity is fixed at
// construction; entries are never removed. All methods are safe for
// concurrent use, and interning the same name from any number of
// goroutines yields the same index.
type AtomTable struct {
	mu    sync.RWMutex
	byStr map[string]uint32
	names []string
	limit int
}

// NewAtomTable creates a table holding at most capacity atoms, including
// the reserved empty atom at index 0.
func NewAtomTable(capacity int) *AtomTable {
	if capacity <= 0 {
		capacity = DefaultAtomTableSize
	}
	t := &AtomTable{
		byStr: make(map[string]uint32, capacity),
		names: make([]string, 1, capacity),
		limit: capacity,
	}
	t.byStr[""] = 0
	return t
}

// Lookup interns name and returns its atom. Looking up a name already in
// the table returns the identical atom; "" always resolves to index 0
// without consuming capacity. Names are case sensitive.
func (t *AtomTable) Lookup(name string) (Atom, error) {
	if name == "" {
		return Atom{}, nil
	}
	if len(name) > MaxAtomLen {
		return Atom{}, fmt.Errorf("%w: atom of %d bytes exceeds %d", ErrBadArg, len(name), MaxAtomLen)
	}
	t.mu.RLock()
	if idx, ok := t.byStr[name]; ok {
		a := Atom{idx: idx, name: t.names[idx]}
		t.mu.RUnlock()
		return a, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if idx, ok := t.byStr[name]; ok {
		return Atom{idx: idx, name: t.names[idx]}, nil
	}
	if len(t.names) >= t.limit {
		return Atom{}, fmt.Errorf("%w: capacity %d", ErrTableFull, t.limit)
	}
	idx := uint32(len(t.names))
	t.names = append(t.names, name)
	t.byStr[name] = idx
	return Atom{idx: idx, name: name}, nil
}

// MustAtom is Lookup that panics on error, for fixed names in tests and
// wiring code.
func (t *AtomTable) MustAtom(name string) Atom {
	a, err := t.Lookup(name)
	if err != nil {
		panic(err)
	}
	return a
}

// Resolve returns the atom stored at index.
func (t *AtomTable) Resolve(index uint32) (Atom, bool) {
	if index == 0 {
		return Atom{}, true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(index) >= len(t.names) {
		return Atom{}, false
	}
	return Atom{idx: index, name: t.names[index]}, true
}

// Len returns the number of interned atoms, the empty atom included.
func (t *AtomTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names)
}

// Cap returns the fixed capacity.
func (t *AtomTable) Cap() int { return t.limit }

// ValidateNodeName checks a node name for use in pids, ports and
// references: non-empty, at most MaxNodeLen bytes, and with a non-empty
// alive part before the '@'.
func ValidateNodeName(name string) error {
	switch {
	case len(name) == 0:
		return fmt.Errorf("%w: empty node name", ErrBadArg)
	case len(name) > MaxNodeLen:
		return fmt.Errorf("%w: node name of %d bytes exceeds %d", ErrBadArg, len(name), MaxNodeLen)
	case name[0] == '@':
		return fmt.Errorf("%w: node name %q has an empty alive part", ErrBadArg, name)
	}
	return nil
}
