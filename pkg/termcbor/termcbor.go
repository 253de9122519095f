// Package termcbor bridges eterm values to CBOR for non-Erlang
// consumers like debug tooling or storage sidecars. Every term encodes
// as a self-describing {"k": kind, "v": value} envelope; the encoding
// is canonical, so equal terms produce equal bytes.
package termcbor

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/raskyld/enode/pkg/eterm"
)

// ErrUnsupported marks terms with no CBOR representation: match
// variables and the undefined term, the same set the ETF codec rejects.
var ErrUnsupported = errors.New("termcbor: term kind not representable")

// cborEncMode holds CBOR encoding options with canonical mode for
// deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("termcbor: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type wireTerm struct {
	Kind string          `cbor:"k"`
	Val  cbor.RawMessage `cbor:"v"`
}

type wirePid struct {
	Node     string `cbor:"node"`
	ID       uint32 `cbor:"id"`
	Serial   uint32 `cbor:"serial"`
	Creation uint32 `cbor:"creation"`
}

type wirePort struct {
	Node     string `cbor:"node"`
	ID       uint32 `cbor:"id"`
	Creation uint32 `cbor:"creation"`
}

type wireRef struct {
	Node     string   `cbor:"node"`
	IDs      []uint32 `cbor:"ids"`
	Creation uint32   `cbor:"creation"`
}

type wireList struct {
	Items []wireTerm `cbor:"items"`
	Tail  *wireTerm  `cbor:"tail,omitempty"`
}

type wirePair struct {
	Key wireTerm `cbor:"k"`
	Val wireTerm `cbor:"v"`
}

// Marshal serializes a term to canonical CBOR bytes.
func Marshal(t eterm.Term) ([]byte, error) {
	wt, err := encodeTerm(t)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(wt)
}

// Unmarshal deserializes a term from CBOR bytes, interning atoms and
// node names through tbl.
func Unmarshal(tbl *eterm.AtomTable, data []byte) (eterm.Term, error) {
	if tbl == nil {
		tbl = eterm.NewAtomTable(0)
	}
	var wt wireTerm
	if err := cbor.Unmarshal(data, &wt); err != nil {
		return eterm.Term{}, fmt.Errorf("termcbor: unmarshal envelope: %w", err)
	}
	return decodeTerm(tbl, wt)
}

func encodeTerm(t eterm.Term) (wireTerm, error) {
	var val any
	switch t.Kind() {
	case eterm.KindInt:
		if v, ok := t.Int64(); ok {
			val = v
		} else {
			v, _ := t.BigInt()
			val = v
		}
	case eterm.KindFloat:
		val, _ = t.Float64()
	case eterm.KindBool:
		val, _ = t.Bool()
	case eterm.KindAtom:
		a, _ := t.Atom()
		val = a.Name()
	case eterm.KindString:
		val, _ = t.Str()
	case eterm.KindBinary:
		val, _ = t.Bytes()
	case eterm.KindPid:
		p, _ := t.Pid()
		val = wirePid{
			Node:     p.Node().Name(),
			ID:       p.ID(),
			Serial:   p.Serial(),
			Creation: p.Creation(),
		}
	case eterm.KindPort:
		p, _ := t.Port()
		val = wirePort{Node: p.Node().Name(), ID: p.ID(), Creation: p.Creation()}
	case eterm.KindRef:
		r, _ := t.Ref()
		val = wireRef{Node: r.Node().Name(), IDs: r.IDs(), Creation: r.Creation()}
	case eterm.KindTuple, eterm.KindTrace:
		elems, _ := t.Elements()
		items, err := encodeItems(elems)
		if err != nil {
			return wireTerm{}, err
		}
		val = items
	case eterm.KindList:
		elems, _ := t.Elements()
		items, err := encodeItems(elems)
		if err != nil {
			return wireTerm{}, err
		}
		lst := wireList{Items: items}
		if tail, improper := t.Tail(); improper {
			wt, err := encodeTerm(tail)
			if err != nil {
				return wireTerm{}, err
			}
			lst.Tail = &wt
		}
		val = lst
	case eterm.KindMap:
		entries := t.MapEntries()
		pairs := make([]wirePair, 0, len(entries))
		for _, e := range entries {
			k, err := encodeTerm(e.Key)
			if err != nil {
				return wireTerm{}, err
			}
			v, err := encodeTerm(e.Val)
			if err != nil {
				return wireTerm{}, err
			}
			pairs = append(pairs, wirePair{Key: k, Val: v})
		}
		val = pairs
	default:
		return wireTerm{}, fmt.Errorf("%w: %s", ErrUnsupported, t.Kind())
	}

	raw, err := cborEncMode.Marshal(val)
	if err != nil {
		return wireTerm{}, fmt.Errorf("termcbor: marshal %s: %w", t.Kind(), err)
	}
	return wireTerm{Kind: t.Kind().String(), Val: raw}, nil
}

func encodeItems(elems []eterm.Term) ([]wireTerm, error) {
	items := make([]wireTerm, 0, len(elems))
	for _, e := range elems {
		wt, err := encodeTerm(e)
		if err != nil {
			return nil, err
		}
		items = append(items, wt)
	}
	return items, nil
}

func decodeTerm(tbl *eterm.AtomTable, wt wireTerm) (eterm.Term, error) {
	fail := func(err error) (eterm.Term, error) {
		return eterm.Term{}, fmt.Errorf("termcbor: unmarshal %s: %w", wt.Kind, err)
	}

	switch wt.Kind {
	case "int":
		var v big.Int
		if err := cbor.Unmarshal(wt.Val, &v); err != nil {
			return fail(err)
		}
		return eterm.BigInt(&v), nil
	case "float":
		var v float64
		if err := cbor.Unmarshal(wt.Val, &v); err != nil {
			return fail(err)
		}
		return eterm.Float(v), nil
	case "bool":
		var v bool
		if err := cbor.Unmarshal(wt.Val, &v); err != nil {
			return fail(err)
		}
		return eterm.Bool(v), nil
	case "atom":
		var v string
		if err := cbor.Unmarshal(wt.Val, &v); err != nil {
			return fail(err)
		}
		a, err := tbl.Lookup(v)
		if err != nil {
			return fail(err)
		}
		return a.Term(), nil
	case "string":
		var v string
		if err := cbor.Unmarshal(wt.Val, &v); err != nil {
			return fail(err)
		}
		return eterm.String(v), nil
	case "binary":
		var v []byte
		if err := cbor.Unmarshal(wt.Val, &v); err != nil {
			return fail(err)
		}
		return eterm.Binary(v), nil
	case "pid":
		var v wirePid
		if err := cbor.Unmarshal(wt.Val, &v); err != nil {
			return fail(err)
		}
		node, err := tbl.Lookup(v.Node)
		if err != nil {
			return fail(err)
		}
		pid, err := eterm.MakePid(node, v.ID, v.Serial, v.Creation)
		if err != nil {
			return fail(err)
		}
		return pid.Term(), nil
	case "port":
		var v wirePort
		if err := cbor.Unmarshal(wt.Val, &v); err != nil {
			return fail(err)
		}
		node, err := tbl.Lookup(v.Node)
		if err != nil {
			return fail(err)
		}
		port, err := eterm.MakePort(node, v.ID, v.Creation)
		if err != nil {
			return fail(err)
		}
		return port.Term(), nil
	case "ref":
		var v wireRef
		if err := cbor.Unmarshal(wt.Val, &v); err != nil {
			return fail(err)
		}
		node, err := tbl.Lookup(v.Node)
		if err != nil {
			return fail(err)
		}
		ref, err := eterm.MakeRef(node, v.IDs, v.Creation)
		if err != nil {
			return fail(err)
		}
		return ref.Term(), nil
	case "tuple":
		items, err := decodeItems(tbl, wt)
		if err != nil {
			return eterm.Term{}, err
		}
		return eterm.Tuple(items...), nil
	case "trace":
		items, err := decodeItems(tbl, wt)
		if err != nil {
			return eterm.Term{}, err
		}
		tr, ok := eterm.TraceFromTerm(eterm.Tuple(items...))
		if !ok {
			return fail(errors.New("not a trace 5-tuple"))
		}
		return tr.Term(), nil
	case "list":
		var v wireList
		if err := cbor.Unmarshal(wt.Val, &v); err != nil {
			return fail(err)
		}
		b := eterm.NewListBuilder()
		for _, item := range v.Items {
			elem, err := decodeTerm(tbl, item)
			if err != nil {
				return eterm.Term{}, err
			}
			b.Append(elem)
		}
		if v.Tail != nil {
			tail, err := decodeTerm(tbl, *v.Tail)
			if err != nil {
				return eterm.Term{}, err
			}
			b.AppendTail(tail)
		}
		return b.Close(), nil
	case "map":
		var v []wirePair
		if err := cbor.Unmarshal(wt.Val, &v); err != nil {
			return fail(err)
		}
		entries := make([]eterm.MapEntry, 0, len(v))
		for _, p := range v {
			k, err := decodeTerm(tbl, p.Key)
			if err != nil {
				return eterm.Term{}, err
			}
			val, err := decodeTerm(tbl, p.Val)
			if err != nil {
				return eterm.Term{}, err
			}
			entries = append(entries, eterm.MapEntry{Key: k, Val: val})
		}
		return eterm.Map(entries...), nil
	default:
		return eterm.Term{}, fmt.Errorf("%w: %q", ErrUnsupported, wt.Kind)
	}
}

func decodeItems(tbl *eterm.AtomTable, wt wireTerm) ([]eterm.Term, error) {
	var raw []wireTerm
	if err := cbor.Unmarshal(wt.Val, &raw); err != nil {
		return nil, fmt.Errorf("termcbor: unmarshal %s: %w", wt.Kind, err)
	}
	items := make([]eterm.Term, 0, len(raw))
	for _, r := range raw {
		t, err := decodeTerm(tbl, r)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, nil
}
