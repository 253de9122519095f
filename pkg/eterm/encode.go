package eterm

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
)

// EncodeSize returns the exact number of bytes Encode produces for t,
// version byte excluded. Undefined and variable terms are not encodable.
func EncodeSize(t Term) (int, error) {
	switch t.kind {
	case KindInt:
		if t.big == nil {
			if t.i >= 0 && t.i <= 255 {
				return 2, nil
			}
			if t.i >= math.MinInt32 && t.i <= math.MaxInt32 {
				return 5, nil
			}
		}
		n := magnitudeLen(t)
		if n <= 255 {
			return 3 + n, nil
		}
		return 6 + n, nil
	case KindFloat:
		return 9, nil
	case KindBool:
		if t.i != 0 {
			return 3 + len("true"), nil
		}
		return 3 + len("false"), nil
	case KindAtom:
		return atomSize(t.atom.Name()), nil
	case KindString:
		if len(t.str) > math.MaxUint16 {
			return 0, fmt.Errorf("%w: string of %d bytes exceeds %d", ErrBadArg, len(t.str), math.MaxUint16)
		}
		return 3 + len(t.str), nil
	case KindBinary:
		return 5 + len(t.bin), nil
	case KindPid:
		return 10 + atomSize(t.pid.node.Name()), nil
	case KindPort:
		return 6 + atomSize(t.port.node.Name()), nil
	case KindRef:
		return 4 + atomSize(t.ref.node.Name()) + 4*int(t.ref.n), nil
	case KindTuple, KindTrace:
		n := 2
		if len(t.items) > 255 {
			n = 5
		}
		return sumSizes(n, t.items)
	case KindList:
		if len(t.items) == 0 && t.tail == nil {
			return 1, nil
		}
		n, err := sumSizes(5, t.items)
		if err != nil {
			return 0, err
		}
		if t.tail == nil {
			return n + 1, nil
		}
		m, err := EncodeSize(*t.tail)
		if err != nil {
			return 0, err
		}
		return n + m, nil
	case KindMap:
		return sumSizes(5, t.items)
	default:
		return 0, fmt.Errorf("%w: %s term is not encodable", ErrBadArg, t.kind)
	}
}

// Encode serializes t to external term format without the version byte.
func Encode(t Term) ([]byte, error) {
	n, err := EncodeSize(t)
	if err != nil {
		return nil, err
	}
	return AppendEncode(make([]byte, 0, n), t)
}

// EncodeVersioned serializes t prefixed with the version byte, ready to
// frame as a self-contained message.
func EncodeVersioned(t Term) ([]byte, error) {
	n, err := EncodeSize(t)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 1, n+1)
	buf[0] = VersionMagic
	return AppendEncode(buf, t)
}

// AppendEncode appends the encoding of t to dst and returns the extended
// slice.
func AppendEncode(dst []byte, t Term) ([]byte, error) {
	var err error
	switch t.kind {
	case KindInt:
		return appendInt(dst, t), nil

	case KindFloat:
		dst = append(dst, tagNewFloat)
		return binary.BigEndian.AppendUint64(dst, math.Float64bits(t.f)), nil

	case KindBool:
		if t.i != 0 {
			return appendAtomBytes(dst, "true"), nil
		}
		return appendAtomBytes(dst, "false"), nil

	case KindAtom:
		return appendAtomBytes(dst, t.atom.Name()), nil

	case KindString:
		if len(t.str) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: string of %d bytes exceeds %d", ErrBadArg, len(t.str), math.MaxUint16)
		}
		dst = append(dst, tagString)
		dst = binary.BigEndian.AppendUint16(dst, uint16(len(t.str)))
		return append(dst, t.str...), nil

	case KindBinary:
		dst = append(dst, tagBinary)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(t.bin)))
		return append(dst, t.bin...), nil

	case KindPid:
		dst = append(dst, tagPid)
		dst = appendAtomBytes(dst, t.pid.node.Name())
		dst = binary.BigEndian.AppendUint32(dst, t.pid.id)
		dst = binary.BigEndian.AppendUint32(dst, t.pid.serial)
		return append(dst, byte(t.pid.creation)), nil

	case KindPort:
		dst = append(dst, tagPort)
		dst = appendAtomBytes(dst, t.port.node.Name())
		dst = binary.BigEndian.AppendUint32(dst, t.port.id)
		return append(dst, byte(t.port.creation)), nil

	case KindRef:
		dst = append(dst, tagNewRef)
		dst = binary.BigEndian.AppendUint16(dst, uint16(t.ref.n))
		dst = appendAtomBytes(dst, t.ref.node.Name())
		dst = append(dst, byte(t.ref.creation))
		for i := 0; i < int(t.ref.n); i++ {
			dst = binary.BigEndian.AppendUint32(dst, t.ref.ids[i])
		}
		return dst, nil

	case KindTuple, KindTrace:
		if len(t.items) <= 255 {
			dst = append(dst, tagSmallTuple, byte(len(t.items)))
		} else {
			dst = append(dst, tagLargeTuple)
			dst = binary.BigEndian.AppendUint32(dst, uint32(len(t.items)))
		}
		for _, e := range t.items {
			if dst, err = AppendEncode(dst, e); err != nil {
				return nil, err
			}
		}
		return dst, nil

	case KindList:
		if len(t.items) == 0 && t.tail == nil {
			return append(dst, tagNil), nil
		}
		dst = append(dst, tagList)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(t.items)))
		for _, e := range t.items {
			if dst, err = AppendEncode(dst, e); err != nil {
				return nil, err
			}
		}
		if t.tail != nil {
			return AppendEncode(dst, *t.tail)
		}
		return append(dst, tagNil), nil

	case KindMap:
		dst = append(dst, tagMap)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(t.items)/2))
		for _, e := range t.items {
			if dst, err = AppendEncode(dst, e); err != nil {
				return nil, err
			}
		}
		return dst, nil

	default:
		return nil, fmt.Errorf("%w: %s term is not encodable", ErrBadArg, t.kind)
	}
}

// appendAtomBytes writes the atom form of name, truncating rather than
// failing when the name exceeds the wire limit.
func appendAtomBytes(dst []byte, name string) []byte {
	if len(name) > MaxAtomLen {
		name = name[:MaxAtomLen]
	}
	dst = append(dst, tagAtom)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(name)))
	return append(dst, name...)
}

func atomSize(name string) int { return 3 + min(len(name), MaxAtomLen) }

func sumSizes(base int, items []Term) (int, error) {
	n := base
	for _, e := range items {
		m, err := EncodeSize(e)
		if err != nil {
			return 0, err
		}
		n += m
	}
	return n, nil
}

func magnitudeLen(t Term) int {
	if t.big != nil {
		return (t.big.BitLen() + 7) / 8
	}
	mag := uint64(t.i)
	if t.i < 0 {
		mag = -mag
	}
	return (bits.Len64(mag) + 7) / 8
}

func appendInt(dst []byte, t Term) []byte {
	if t.big == nil {
		v := t.i
		if v >= 0 && v <= 255 {
			return append(dst, tagSmallInt, byte(v))
		}
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			dst = append(dst, tagInt)
			return binary.BigEndian.AppendUint32(dst, uint32(int32(v)))
		}
		mag := uint64(v)
		neg := v < 0
		if neg {
			mag = -mag
		}
		n := (bits.Len64(mag) + 7) / 8
		dst = append(dst, tagSmallBig, byte(n), signByte(neg))
		for i := 0; i < n; i++ {
			dst = append(dst, byte(mag>>(8*i)))
		}
		return dst
	}

	neg := t.big.Sign() < 0
	be := t.big.Bytes()
	if len(be) <= 255 {
		dst = append(dst, tagSmallBig, byte(len(be)))
	} else {
		dst = append(dst, tagLargeBig)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(be)))
	}
	dst = append(dst, signByte(neg))
	for i := len(be) - 1; i >= 0; i-- {
		dst = append(dst, be[i])
	}
	return dst
}

func signByte(neg bool) byte {
	if neg {
		return 1
	}
	return 0
}
