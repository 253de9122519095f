package eterm

import (
	"math"
	"strconv"
	"strings"
)

// String renders the term the way the Erlang shell prints it: atoms
// quoted only when needed, printable binaries as <<"...">>, floats always
// with a fractional part, improper lists as [H|T].
func (t Term) String() string {
	var sb strings.Builder
	t.render(&sb)
	return sb.String()
}

func (t Term) render(sb *strings.Builder) {
	switch t.kind {
	case KindUndefined:
		sb.WriteString("#undefined")
	case KindInt:
		if t.big != nil {
			sb.WriteString(t.big.String())
		} else {
			sb.WriteString(strconv.FormatInt(t.i, 10))
		}
	case KindFloat:
		sb.WriteString(formatFloat(t.f))
	case KindBool:
		if t.i != 0 {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case KindAtom:
		sb.WriteString(t.atom.String())
	case KindString:
		sb.WriteByte('"')
		sb.WriteString(t.str)
		sb.WriteByte('"')
	case KindBinary:
		renderBinary(sb, t.bin)
	case KindPid:
		sb.WriteString(t.pid.String())
	case KindPort:
		sb.WriteString(t.port.String())
	case KindRef:
		sb.WriteString(t.ref.String())
	case KindVar:
		sb.WriteString(t.str)
		if k := Kind(t.i); k != KindUndefined {
			sb.WriteString(" :: ")
			sb.WriteString(k.String())
			sb.WriteString("()")
		}
	case KindTuple, KindTrace:
		sb.WriteByte('{')
		renderElems(sb, t.items)
		sb.WriteByte('}')
	case KindList:
		sb.WriteByte('[')
		renderElems(sb, t.items)
		if t.tail != nil {
			sb.WriteByte('|')
			t.tail.render(sb)
		}
		sb.WriteByte(']')
	case KindMap:
		sb.WriteString("#{")
		for i := 0; i+1 < len(t.items); i += 2 {
			if i > 0 {
				sb.WriteByte(',')
			}
			t.items[i].render(sb)
			sb.WriteString(" => ")
			t.items[i+1].render(sb)
		}
		sb.WriteByte('}')
	}
}

func renderElems(sb *strings.Builder, items []Term) {
	for i, e := range items {
		if i > 0 {
			sb.WriteByte(',')
		}
		e.render(sb)
	}
}

func renderBinary(sb *strings.Builder, b []byte) {
	if len(b) > 0 && printable(b) {
		sb.WriteString(`<<"`)
		sb.Write(b)
		sb.WriteString(`">>`)
		return
	}
	sb.WriteString("<<")
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(c)))
	}
	sb.WriteString(">>")
}

func printable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// formatFloat keeps the shortest representation that still reads as a
// float: integral values get a trailing ".0".
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if strings.ContainsAny(s, ".eE") || math.IsNaN(f) || math.IsInf(f, 0) {
		return s
	}
	return s + ".0"
}
