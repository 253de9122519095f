package eterm

import "fmt"

// Pid identifies a mailbox on a node. The zero value is the null pid.
type Pid struct {
	node     Atom
	id       uint32
	serial   uint32
	creation uint32
}

// MakePid builds a pid from its components. The id is masked to its 28
// significant bits and the creation counter to 2 bits, like the wire
// format; an invalid node name fails with ErrBadArg.
func MakePid(node Atom, id, serial, creation uint32) (Pid, error) {
	if err := ValidateNodeName(node.Name()); err != nil {
		return Pid{}, err
	}
	return Pid{
		node:     node,
		id:       id & 0x0fffffff,
		serial:   serial,
		creation: creation & 0x03,
	}, nil
}

// Node returns the pid's node name atom.
func (p Pid) Node() Atom { return p.node }

// ID returns the pid's id component.
func (p Pid) ID() uint32 { return p.id }

// Serial returns the pid's serial component.
func (p Pid) Serial() uint32 { return p.serial }

// Creation returns the pid's creation counter.
func (p Pid) Creation() uint32 { return p.creation }

// IsZero reports whether p is the null pid. Pids are comparable, so ==
// works between defined pids.
func (p Pid) IsZero() bool { return p == Pid{} }

// Compare orders pids by node name, id, serial, then creation.
func (p Pid) Compare(o Pid) int {
	if c := p.node.Compare(o.node); c != 0 {
		return c
	}
	if c := cmpUint32(p.id, o.id); c != 0 {
		return c
	}
	if c := cmpUint32(p.serial, o.serial); c != 0 {
		return c
	}
	return cmpUint32(p.creation, o.creation)
}

// Term wraps the pid as a term value.
func (p Pid) Term() Term { return Term{kind: KindPid, pid: &p} }

func (p Pid) String() string {
	return fmt.Sprintf("#Pid<%s.%d.%d.%d>", p.node, p.id, p.serial, p.creation)
}

func cmpUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
