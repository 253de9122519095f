package eterm

import "fmt"

// Port identifies an Erlang port. The zero value is the null port.
type Port struct {
	node     Atom
	id       uint32
	creation uint32
}

// MakePort builds a port from its components, masking the id to 28 bits
// and the creation counter to 2 bits.
func MakePort(node Atom, id, creation uint32) (Port, error) {
	if err := ValidateNodeName(node.Name()); err != nil {
		return Port{}, err
	}
	return Port{node: node, id: id & 0x0fffffff, creation: creation & 0x03}, nil
}

// Node returns the port's node name atom.
func (p Port) Node() Atom { return p.node }

// ID returns the port's id component.
func (p Port) ID() uint32 { return p.id }

// Creation returns the port's creation counter.
func (p Port) Creation() uint32 { return p.creation }

// IsZero reports whether p is the null port.
func (p Port) IsZero() bool { return p == Port{} }

// Compare orders ports by node name, id, then creation.
func (p Port) Compare(o Port) int {
	if c := p.node.Compare(o.node); c != 0 {
		return c
	}
	if c := cmpUint32(p.id, o.id); c != 0 {
		return c
	}
	return cmpUint32(p.creation, o.creation)
}

// Term wraps the port as a term value.
func (p Port) Term() Term { return Term{kind: KindPort, port: &p} }

func (p Port) String() string {
	return fmt.Sprintf("#Port<%s.%d>", p.node, p.id)
}
