package eterm

// Trace is the sequential trace token carried by the _TT distribution
// messages: {Flags, Label, Serial, From, Prev}.
type Trace struct {
	Flags  int64
	Label  int64
	Serial int64
	From   Pid
	Prev   int64
}

// Term wraps the token as a trace term. Trace terms render, encode and
// match like the underlying 5-tuple but keep their own kind, which sorts
// after every other kind.
func (tr Trace) Term() Term {
	return Term{kind: KindTrace, items: []Term{
		Int(tr.Flags), Int(tr.Label), Int(tr.Serial), tr.From.Term(), Int(tr.Prev),
	}}
}

func (tr Trace) String() string { return tr.Term().String() }

// Trace returns the trace token of a trace term.
func (t Term) Trace() (Trace, bool) {
	if t.kind != KindTrace {
		return Trace{}, false
	}
	return traceFromItems(t.items)
}

// TraceFromTerm converts a trace term, or a plain 5-tuple of the token
// shape, into a Trace. Control messages carry the token as a tuple.
func TraceFromTerm(t Term) (Trace, bool) {
	switch t.kind {
	case KindTrace, KindTuple:
		return traceFromItems(t.items)
	default:
		return Trace{}, false
	}
}

func traceFromItems(items []Term) (Trace, bool) {
	if len(items) != 5 {
		return Trace{}, false
	}
	flags, ok1 := items[0].Int64()
	label, ok2 := items[1].Int64()
	serial, ok3 := items[2].Int64()
	from, ok4 := items[3].Pid()
	prev, ok5 := items[4].Int64()
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return Trace{}, false
	}
	return Trace{Flags: flags, Label: label, Serial: serial, From: from, Prev: prev}, true
}
