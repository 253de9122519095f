package eterm

import (
	"fmt"
	"math/big"
	"strconv"
)

// Parse reads a term from the Erlang term grammar: atoms (bare or single
// quoted), integers of any size, floats, "strings", <<"binaries">> and
// <<1,2,3>>, [lists] with an optional |Tail, {tuples}, #{key => value}
// maps, and match variables. A variable is a capitalized name or _, with
// an optional kind constraint: "{ok, Count :: int()}". Bare true and
// false read as booleans; quoted 'true' stays an atom.
func Parse(tbl *AtomTable, src string) (Term, error) {
	p := &parser{tbl: tbl, src: src}
	t, err := p.term()
	if err != nil {
		return Term{}, err
	}
	p.ws()
	if p.pos != len(p.src) {
		return Term{}, p.errf("trailing input")
	}
	return t, nil
}

// MustParse is Parse that panics on error, for fixed literals in tests
// and wiring code.
func MustParse(tbl *AtomTable, src string) Term {
	t, err := Parse(tbl, src)
	if err != nil {
		panic(err)
	}
	return t
}

// Apply returns a copy of t with every variable replaced by its binding.
// An unbound variable (the wildcard included) fails with
// ErrUnboundVariable; a binding that violates a variable's kind
// constraint fails with ErrBadArg.
func (t Term) Apply(b *VarBind) (Term, error) {
	switch t.kind {
	case KindVar:
		name := t.str
		bound, ok := b.Get(name)
		if name == WildcardName || !ok {
			return Term{}, fmt.Errorf("%w: %s", ErrUnboundVariable, name)
		}
		if k := Kind(t.i); k != KindUndefined && bound.kind != k {
			return Term{}, fmt.Errorf("%w: variable %s bound to %s, want %s", ErrBadArg, name, bound.kind, k)
		}
		return bound, nil
	case KindTuple, KindList, KindTrace:
		items, err := applyItems(t.items, b)
		if err != nil {
			return Term{}, err
		}
		out := Term{kind: t.kind, items: items}
		if t.tail != nil {
			tail, err := t.tail.Apply(b)
			if err != nil {
				return Term{}, err
			}
			out.tail = &tail
		}
		return out, nil
	case KindMap:
		entries := make([]MapEntry, 0, len(t.items)/2)
		for i := 0; i+1 < len(t.items); i += 2 {
			k, err := t.items[i].Apply(b)
			if err != nil {
				return Term{}, err
			}
			v, err := t.items[i+1].Apply(b)
			if err != nil {
				return Term{}, err
			}
			entries = append(entries, MapEntry{Key: k, Val: v})
		}
		return Map(entries...), nil
	default:
		return t, nil
	}
}

func applyItems(items []Term, b *VarBind) ([]Term, error) {
	out := make([]Term, len(items))
	for i, e := range items {
		ne, err := e.Apply(b)
		if err != nil {
			return nil, err
		}
		out[i] = ne
	}
	return out, nil
}

type parser struct {
	tbl *AtomTable
	src string
	pos int
}

func (p *parser) errf(format string, args ...any) error {
	return &ParseError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) ws() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		return p.errf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) term() (Term, error) {
	p.ws()
	switch c := p.peek(); {
	case c == '{':
		return p.tuple()
	case c == '[':
		return p.list()
	case c == '#':
		return p.mapTerm()
	case c == '<':
		return p.binaryTerm()
	case c == '"':
		return p.stringTerm()
	case c == '\'':
		return p.quotedAtom()
	case c == '_' || (c >= 'A' && c <= 'Z'):
		return p.variable()
	case c >= 'a' && c <= 'z':
		return p.bareAtom()
	case c == '+' || c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	case c == 0:
		return Term{}, p.errf("unexpected end of input")
	default:
		return Term{}, p.errf("unexpected character %q", c)
	}
}

func (p *parser) tuple() (Term, error) {
	p.pos++ // {
	p.ws()
	if p.peek() == '}' {
		p.pos++
		return Tuple(), nil
	}
	var items []Term
	for {
		e, err := p.term()
		if err != nil {
			return Term{}, err
		}
		items = append(items, e)
		p.ws()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return Term{kind: KindTuple, items: items}, nil
		default:
			return Term{}, p.errf("expected ',' or '}'")
		}
	}
}

func (p *parser) list() (Term, error) {
	p.pos++ // [
	p.ws()
	if p.peek() == ']' {
		p.pos++
		return List(), nil
	}
	var items []Term
	for {
		e, err := p.term()
		if err != nil {
			return Term{}, err
		}
		items = append(items, e)
		p.ws()
		switch p.peek() {
		case ',':
			p.pos++
		case '|':
			p.pos++
			tail, err := p.term()
			if err != nil {
				return Term{}, err
			}
			p.ws()
			if err := p.expect(']'); err != nil {
				return Term{}, err
			}
			return Term{kind: KindList, items: items, tail: &tail}, nil
		case ']':
			p.pos++
			return Term{kind: KindList, items: items}, nil
		default:
			return Term{}, p.errf("expected ',', '|' or ']'")
		}
	}
}

func (p *parser) mapTerm() (Term, error) {
	p.pos++ // #
	if err := p.expect('{'); err != nil {
		return Term{}, err
	}
	p.ws()
	if p.peek() == '}' {
		p.pos++
		return Map(), nil
	}
	var entries []MapEntry
	for {
		k, err := p.term()
		if err != nil {
			return Term{}, err
		}
		p.ws()
		if err := p.expect('='); err != nil {
			return Term{}, err
		}
		if err := p.expect('>'); err != nil {
			return Term{}, err
		}
		v, err := p.term()
		if err != nil {
			return Term{}, err
		}
		entries = append(entries, MapEntry{Key: k, Val: v})
		p.ws()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return Map(entries...), nil
		default:
			return Term{}, p.errf("expected ',' or '}'")
		}
	}
}

func (p *parser) binaryTerm() (Term, error) {
	p.pos++ // <
	if err := p.expect('<'); err != nil {
		return Term{}, err
	}
	p.ws()
	if p.peek() == '"' {
		s, err := p.quoted('"')
		if err != nil {
			return Term{}, err
		}
		p.ws()
		if err := p.closeBinary(); err != nil {
			return Term{}, err
		}
		return Binary([]byte(s)), nil
	}
	var bs []byte
	for {
		p.ws()
		if p.peek() == '>' {
			if err := p.closeBinary(); err != nil {
				return Term{}, err
			}
			return Binary(bs), nil
		}
		start := p.pos
		for c := p.peek(); c >= '0' && c <= '9'; c = p.peek() {
			p.pos++
		}
		if start == p.pos {
			return Term{}, p.errf("expected byte value")
		}
		v, err := strconv.Atoi(p.src[start:p.pos])
		if err != nil || v > 255 {
			p.pos = start
			return Term{}, p.errf("byte value out of range")
		}
		bs = append(bs, byte(v))
		p.ws()
		if p.peek() == ',' {
			p.pos++
		}
	}
}

func (p *parser) closeBinary() error {
	if err := p.expect('>'); err != nil {
		return err
	}
	return p.expect('>')
}

func (p *parser) stringTerm() (Term, error) {
	s, err := p.quoted('"')
	if err != nil {
		return Term{}, err
	}
	return String(s), nil
}

func (p *parser) quotedAtom() (Term, error) {
	s, err := p.quoted('\'')
	if err != nil {
		return Term{}, err
	}
	a, err := p.tbl.Lookup(s)
	if err != nil {
		return Term{}, err
	}
	return a.Term(), nil
}

// quoted reads a q-delimited run with \q, \\, \n, \r and \t escapes.
func (p *parser) quoted(q byte) (string, error) {
	p.pos++ // opening quote
	var out []byte
	for {
		if p.pos >= len(p.src) {
			return "", p.errf("unterminated %q", q)
		}
		c := p.src[p.pos]
		p.pos++
		switch c {
		case q:
			return string(out), nil
		case '\\':
			if p.pos >= len(p.src) {
				return "", p.errf("unterminated escape")
			}
			e := p.src[p.pos]
			p.pos++
			switch e {
			case q, '\\':
				out = append(out, e)
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			default:
				p.pos -= 2
				return "", p.errf("bad escape \\%c", e)
			}
		default:
			out = append(out, c)
		}
	}
}

func (p *parser) ident() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
			c >= '0' && c <= '9' || c == '_' || c == '@' {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func (p *parser) bareAtom() (Term, error) {
	name := p.ident()
	switch name {
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	}
	a, err := p.tbl.Lookup(name)
	if err != nil {
		return Term{}, err
	}
	return a.Term(), nil
}

func (p *parser) variable() (Term, error) {
	name := p.ident()
	save := p.pos
	p.ws()
	if p.pos+1 < len(p.src) && p.src[p.pos] == ':' && p.src[p.pos+1] == ':' {
		p.pos += 2
		p.ws()
		kindPos := p.pos
		kname := p.ident()
		k, ok := kindFromName(kname)
		if !ok {
			p.pos = kindPos
			return Term{}, p.errf("unknown kind %q", kname)
		}
		if err := p.expect('('); err != nil {
			return Term{}, err
		}
		if err := p.expect(')'); err != nil {
			return Term{}, err
		}
		return TypedVar(name, k), nil
	}
	p.pos = save
	return Var(name), nil
}

func kindFromName(name string) (Kind, bool) {
	switch name {
	case "int", "integer", "long":
		return KindInt, true
	case "float", "double":
		return KindFloat, true
	case "bool", "boolean":
		return KindBool, true
	case "atom":
		return KindAtom, true
	case "string", "str":
		return KindString, true
	case "binary":
		return KindBinary, true
	case "pid":
		return KindPid, true
	case "port":
		return KindPort, true
	case "ref", "reference":
		return KindRef, true
	case "tuple":
		return KindTuple, true
	case "list":
		return KindList, true
	case "map":
		return KindMap, true
	case "trace":
		return KindTrace, true
	default:
		return KindUndefined, false
	}
}

func (p *parser) number() (Term, error) {
	start := p.pos
	if c := p.peek(); c == '+' || c == '-' {
		p.pos++
	}
	digits := 0
	for c := p.peek(); c >= '0' && c <= '9'; c = p.peek() {
		p.pos++
		digits++
	}
	if digits == 0 {
		p.pos = start
		return Term{}, p.errf("expected number")
	}
	if p.peek() == '.' && p.pos+1 < len(p.src) &&
		p.src[p.pos+1] >= '0' && p.src[p.pos+1] <= '9' {
		p.pos++ // .
		for c := p.peek(); c >= '0' && c <= '9'; c = p.peek() {
			p.pos++
		}
		if c := p.peek(); c == 'e' || c == 'E' {
			p.pos++
			if c := p.peek(); c == '+' || c == '-' {
				p.pos++
			}
			expDigits := 0
			for c := p.peek(); c >= '0' && c <= '9'; c = p.peek() {
				p.pos++
				expDigits++
			}
			if expDigits == 0 {
				return Term{}, p.errf("expected exponent")
			}
		}
		f, err := strconv.ParseFloat(p.src[start:p.pos], 64)
		if err != nil {
			p.pos = start
			return Term{}, p.errf("bad float %q", p.src[start:p.pos])
		}
		return Float(f), nil
	}
	lit := p.src[start:p.pos]
	if v, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return Int(v), nil
	}
	z, ok := new(big.Int).SetString(lit, 10)
	if !ok {
		p.pos = start
		return Term{}, p.errf("bad integer %q", lit)
	}
	return BigInt(z), nil
}
