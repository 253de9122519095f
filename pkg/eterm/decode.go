package eterm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// Decode reads one term from buf starting at *pos and advances *pos by
// exactly the bytes consumed, so several terms can be decoded back to
// back out of one buffer. On error *pos is left untouched and the
// returned *DecodeError carries the failing offset. Atoms are interned
// through tbl; a full table surfaces as ErrTableFull, not a DecodeError.
func Decode(tbl *AtomTable, buf []byte, pos *int) (Term, error) {
	d := decoder{tbl: tbl, buf: buf, pos: *pos}
	t, err := d.term()
	if err != nil {
		return Term{}, err
	}
	*pos = d.pos
	return t, nil
}

// DecodeVersioned reads one term prefixed with the version byte from the
// start of buf. Trailing bytes are ignored.
func DecodeVersioned(tbl *AtomTable, buf []byte) (Term, error) {
	if len(buf) == 0 {
		return Term{}, &DecodeError{Offset: 0, Err: ErrTruncated}
	}
	if buf[0] != VersionMagic {
		return Term{}, &DecodeError{Offset: 0, Tag: buf[0], Err: fmt.Errorf("bad version byte %d", buf[0])}
	}
	pos := 1
	return Decode(tbl, buf, &pos)
}

type decoder struct {
	tbl *AtomTable
	buf []byte
	pos int
}

func (d *decoder) need(n int, tag byte) error {
	if d.pos+n > len(d.buf) {
		return &DecodeError{Offset: d.pos, Tag: tag, Err: ErrTruncated}
	}
	return nil
}

// guardCount rejects element counts that could not possibly fit in the
// remaining input, so corrupt headers do not turn into huge allocations.
func (d *decoder) guardCount(n uint32, minBytes int, tag byte) (int, error) {
	if int64(n)*int64(minBytes) > int64(len(d.buf)-d.pos) {
		return 0, &DecodeError{Offset: d.pos, Tag: tag, Err: ErrTruncated}
	}
	return int(n), nil
}

func (d *decoder) u8() byte {
	v := d.buf[d.pos]
	d.pos++
	return v
}

func (d *decoder) u16() uint16 {
	v := binary.BigEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v
}

func (d *decoder) u32() uint32 {
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v
}

func (d *decoder) term() (Term, error) {
	if d.pos >= len(d.buf) {
		return Term{}, &DecodeError{Offset: d.pos, Err: ErrTruncated}
	}
	tagPos := d.pos
	tag := d.u8()

	switch tag {
	case tagSmallInt:
		if err := d.need(1, tag); err != nil {
			return Term{}, err
		}
		return Int(int64(d.u8())), nil

	case tagInt:
		if err := d.need(4, tag); err != nil {
			return Term{}, err
		}
		return Int(int64(int32(d.u32()))), nil

	case tagSmallBig, tagLargeBig:
		return d.bignum(tag)

	case tagFloat:
		return d.legacyFloat(tagPos)

	case tagNewFloat:
		if err := d.need(8, tag); err != nil {
			return Term{}, err
		}
		bits := binary.BigEndian.Uint64(d.buf[d.pos:])
		d.pos += 8
		return Float(math.Float64frombits(bits)), nil

	case tagAtom, tagSmallAtom:
		name, err := d.atomName(tag)
		if err != nil {
			return Term{}, err
		}
		switch name {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
		a, err := d.tbl.Lookup(name)
		if err != nil {
			return Term{}, err
		}
		return a.Term(), nil

	case tagPid:
		node, err := d.nodeAtom()
		if err != nil {
			return Term{}, err
		}
		if err := d.need(9, tag); err != nil {
			return Term{}, err
		}
		id, serial, creation := d.u32(), d.u32(), d.u8()
		p, err := MakePid(node, id, serial, uint32(creation))
		if err != nil {
			return Term{}, &DecodeError{Offset: tagPos, Tag: tag, Err: err}
		}
		return p.Term(), nil

	case tagPort:
		node, err := d.nodeAtom()
		if err != nil {
			return Term{}, err
		}
		if err := d.need(5, tag); err != nil {
			return Term{}, err
		}
		id, creation := d.u32(), d.u8()
		p, err := MakePort(node, id, uint32(creation))
		if err != nil {
			return Term{}, &DecodeError{Offset: tagPos, Tag: tag, Err: err}
		}
		return p.Term(), nil

	case tagNewRef:
		if err := d.need(2, tag); err != nil {
			return Term{}, err
		}
		n := int(d.u16())
		if n < 1 || n > 3 {
			return Term{}, &DecodeError{Offset: tagPos, Tag: tag, Err: fmt.Errorf("reference with %d ids", n)}
		}
		node, err := d.nodeAtom()
		if err != nil {
			return Term{}, err
		}
		if err := d.need(1+4*n, tag); err != nil {
			return Term{}, err
		}
		creation := d.u8()
		ids := make([]uint32, n)
		for i := range ids {
			ids[i] = d.u32()
		}
		r, err := MakeRef(node, ids, uint32(creation))
		if err != nil {
			return Term{}, &DecodeError{Offset: tagPos, Tag: tag, Err: err}
		}
		return r.Term(), nil

	case tagOldRef:
		node, err := d.nodeAtom()
		if err != nil {
			return Term{}, err
		}
		if err := d.need(5, tag); err != nil {
			return Term{}, err
		}
		id, creation := d.u32(), d.u8()
		r, err := MakeRef(node, []uint32{id}, uint32(creation))
		if err != nil {
			return Term{}, &DecodeError{Offset: tagPos, Tag: tag, Err: err}
		}
		return r.Term(), nil

	case tagSmallTuple:
		if err := d.need(1, tag); err != nil {
			return Term{}, err
		}
		return d.tupleBody(int(d.u8()))

	case tagLargeTuple:
		if err := d.need(4, tag); err != nil {
			return Term{}, err
		}
		n, err := d.guardCount(d.u32(), 1, tag)
		if err != nil {
			return Term{}, err
		}
		return d.tupleBody(n)

	case tagNil:
		return List(), nil

	case tagString:
		if err := d.need(2, tag); err != nil {
			return Term{}, err
		}
		n := int(d.u16())
		if err := d.need(n, tag); err != nil {
			return Term{}, err
		}
		s := string(d.buf[d.pos : d.pos+n])
		d.pos += n
		return String(s), nil

	case tagList:
		if err := d.need(4, tag); err != nil {
			return Term{}, err
		}
		n, err := d.guardCount(d.u32(), 1, tag)
		if err != nil {
			return Term{}, err
		}
		items := make([]Term, n)
		for i := range items {
			if items[i], err = d.term(); err != nil {
				return Term{}, err
			}
		}
		tail, err := d.term()
		if err != nil {
			return Term{}, err
		}
		out := Term{kind: KindList, items: items}
		if !isEmptyList(tail) {
			out.tail = &tail
		}
		return out, nil

	case tagBinary:
		if err := d.need(4, tag); err != nil {
			return Term{}, err
		}
		n, err := d.guardCount(d.u32(), 1, tag)
		if err != nil {
			return Term{}, err
		}
		b := Binary(d.buf[d.pos : d.pos+n])
		d.pos += n
		return b, nil

	case tagMap:
		if err := d.need(4, tag); err != nil {
			return Term{}, err
		}
		n, err := d.guardCount(d.u32(), 2, tag)
		if err != nil {
			return Term{}, err
		}
		entries := make([]MapEntry, n)
		for i := range entries {
			if entries[i].Key, err = d.term(); err != nil {
				return Term{}, err
			}
			if entries[i].Val, err = d.term(); err != nil {
				return Term{}, err
			}
		}
		return Map(entries...), nil

	default:
		return Term{}, &DecodeError{Offset: tagPos, Tag: tag, Err: fmt.Errorf("unknown tag")}
	}
}

func (d *decoder) tupleBody(n int) (Term, error) {
	items := make([]Term, n)
	var err error
	for i := range items {
		if items[i], err = d.term(); err != nil {
			return Term{}, err
		}
	}
	return Term{kind: KindTuple, items: items}, nil
}

func (d *decoder) atomName(tag byte) (string, error) {
	var n int
	if tag == tagSmallAtom {
		if err := d.need(1, tag); err != nil {
			return "", err
		}
		n = int(d.u8())
	} else {
		if err := d.need(2, tag); err != nil {
			return "", err
		}
		n = int(d.u16())
	}
	if err := d.need(n, tag); err != nil {
		return "", err
	}
	s := string(d.buf[d.pos : d.pos+n])
	d.pos += n
	return s, nil
}

// nodeAtom decodes the node-name atom inside pids, ports and references.
// Unlike top-level atoms it never converts true/false into booleans.
func (d *decoder) nodeAtom() (Atom, error) {
	if d.pos >= len(d.buf) {
		return Atom{}, &DecodeError{Offset: d.pos, Err: ErrTruncated}
	}
	tag := d.buf[d.pos]
	if tag != tagAtom && tag != tagSmallAtom {
		return Atom{}, &DecodeError{Offset: d.pos, Tag: tag, Err: fmt.Errorf("expected node atom")}
	}
	d.pos++
	name, err := d.atomName(tag)
	if err != nil {
		return Atom{}, err
	}
	return d.tbl.Lookup(name)
}

const i64MinMagnitude = uint64(1) << 63

func (d *decoder) bignum(tag byte) (Term, error) {
	var n int
	if tag == tagSmallBig {
		if err := d.need(2, tag); err != nil {
			return Term{}, err
		}
		n = int(d.u8())
	} else {
		if err := d.need(5, tag); err != nil {
			return Term{}, err
		}
		var err error
		if n, err = d.guardCount(d.u32(), 1, tag); err != nil {
			return Term{}, err
		}
	}
	neg := d.u8() != 0
	if err := d.need(n, tag); err != nil {
		return Term{}, err
	}
	digits := d.buf[d.pos : d.pos+n]
	d.pos += n

	// digits are little-endian magnitude
	if n <= 8 {
		var v uint64
		for i := n - 1; i >= 0; i-- {
			v = v<<8 | uint64(digits[i])
		}
		switch {
		case !neg && v <= math.MaxInt64:
			return Int(int64(v)), nil
		case neg && v < i64MinMagnitude:
			return Int(-int64(v)), nil
		case neg && v == i64MinMagnitude:
			return Int(math.MinInt64), nil
		}
	}
	be := make([]byte, n)
	for i := 0; i < n; i++ {
		be[i] = digits[n-1-i]
	}
	z := new(big.Int).SetBytes(be)
	if neg {
		z.Neg(z)
	}
	return BigInt(z), nil
}

// legacyFloat reads the 31-byte ASCII float form still produced by old
// emitters. It is accepted on decode only.
func (d *decoder) legacyFloat(tagPos int) (Term, error) {
	if err := d.need(31, tagFloat); err != nil {
		return Term{}, err
	}
	raw := d.buf[d.pos : d.pos+31]
	d.pos += 31
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return Term{}, &DecodeError{Offset: tagPos, Tag: tagFloat, Err: fmt.Errorf("bad float literal %q", raw)}
	}
	return Float(f), nil
}

func isEmptyList(t Term) bool {
	return t.kind == KindList && len(t.items) == 0 && t.tail == nil
}
