package eterm

import (
	"fmt"
	"strings"
)

// Ref is a node-unique reference of one to three 32-bit words. The zero
// value is the null reference.
type Ref struct {
	node     Atom
	ids      [3]uint32
	n        uint8
	creation uint32
}

// MakeRef builds a reference from 1 to 3 id words. The words are kept
// verbatim; the creation counter is masked to 2 bits.
func MakeRef(node Atom, ids []uint32, creation uint32) (Ref, error) {
	if err := ValidateNodeName(node.Name()); err != nil {
		return Ref{}, err
	}
	if len(ids) == 0 || len(ids) > 3 {
		return Ref{}, fmt.Errorf("%w: reference needs 1..3 ids, got %d", ErrBadArg, len(ids))
	}
	r := Ref{node: node, n: uint8(len(ids)), creation: creation & 0x03}
	copy(r.ids[:], ids)
	return r, nil
}

// Node returns the reference's node name atom.
func (r Ref) Node() Atom { return r.node }

// IDs returns a copy of the reference's id words.
func (r Ref) IDs() []uint32 {
	out := make([]uint32, r.n)
	copy(out, r.ids[:r.n])
	return out
}

// Creation returns the reference's creation counter.
func (r Ref) Creation() uint32 { return r.creation }

// IsZero reports whether r is the null reference. References are
// comparable, so == works between defined references.
func (r Ref) IsZero() bool { return r == Ref{} }

// Compare orders references by node name, id words, then creation.
func (r Ref) Compare(o Ref) int {
	if c := r.node.Compare(o.node); c != 0 {
		return c
	}
	for i := 0; i < 3; i++ {
		if c := cmpUint32(r.ids[i], o.ids[i]); c != 0 {
			return c
		}
	}
	if c := int(r.n) - int(o.n); c != 0 {
		return c
	}
	return cmpUint32(r.creation, o.creation)
}

// Term wraps the reference as a term value.
func (r Ref) Term() Term { return Term{kind: KindRef, ref: &r} }

func (r Ref) String() string {
	var sb strings.Builder
	sb.WriteString("#Ref<")
	sb.WriteString(r.node.String())
	for i := 0; i < int(r.n); i++ {
		fmt.Fprintf(&sb, ".%d", r.ids[i])
	}
	sb.WriteByte('>')
	return sb.String()
}
