package eterm

// ListBuilder constructs a list term incrementally. The list under
// construction is not a Term: it cannot be encoded, matched or rendered
// until Close turns it into one, which makes the "consumed while open"
// failure of the wire format unrepresentable here.
type ListBuilder struct {
	items  []Term
	tail   *Term
	closed bool
	out    Term
}

// NewListBuilder returns an empty open list.
func NewListBuilder() *ListBuilder { return &ListBuilder{} }

// Append adds elements to the open list. It panics after Close.
func (b *ListBuilder) Append(elems ...Term) *ListBuilder {
	if b.closed {
		panic("eterm: append to a closed list")
	}
	b.items = append(b.items, elems...)
	return b
}

// AppendTail sets the improper tail of the list. It panics after Close or
// when a tail is already set.
func (b *ListBuilder) AppendTail(t Term) *ListBuilder {
	if b.closed {
		panic("eterm: append to a closed list")
	}
	if b.tail != nil {
		panic("eterm: list already has a tail")
	}
	b.tail = &t
	return b
}

// Len returns the number of elements appended so far, tail excluded.
func (b *ListBuilder) Len() int { return len(b.items) }

// Closed reports whether Close has been called.
func (b *ListBuilder) Closed() bool { return b.closed }

// Close seals the list and returns it. Calling Close again returns the
// same term.
func (b *ListBuilder) Close() Term {
	if !b.closed {
		b.out = Term{kind: KindList, items: b.items, tail: b.tail}
		b.closed = true
	}
	return b.out
}
