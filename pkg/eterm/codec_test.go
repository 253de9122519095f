package eterm

import (
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// termCmp lets go-cmp diff terms by their own equality instead of
// reflecting over unexported fields.
var termCmp = cmp.Comparer(func(a, b Term) bool { return a.Equal(b) })

func TestDecode_WireVectors(t *testing.T) {
	tbl := NewAtomTable(0)
	pid := testPid(t, tbl, "abc@fc12", 1, 2, 0)
	port, err := MakePort(tbl.MustAtom("abc@fc12"), 1, 0)
	require.NoError(t, err)
	ref, err := MakeRef(tbl.MustAtom("abc@fc12"), []uint32{5, 6, 7}, 3)
	require.NoError(t, err)

	legacyFloat := append([]byte{99}, "1.00000000000000000000e+00"...)
	legacyFloat = append(legacyFloat, make([]byte, 5)...)

	cases := []struct {
		name string
		buf  []byte
		want Term
	}{
		{"atom", []byte{100, 0, 3, 'a', 'b', 'c'}, tbl.MustAtom("abc").Term()},
		{"small atom", []byte{115, 2, 'o', 'k'}, tbl.MustAtom("ok").Term()},
		{"empty atom", []byte{100, 0, 0}, Atom{}.Term()},
		{"atom true becomes bool", []byte{100, 0, 4, 't', 'r', 'u', 'e'}, Bool(true)},
		{"atom false becomes bool", []byte{115, 5, 'f', 'a', 'l', 's', 'e'}, Bool(false)},
		{"small int", []byte{97, 123}, Int(123)},
		{"int", []byte{98, 7, 91, 205, 21}, Int(123456789)},
		{"negative int", []byte{98, 255, 255, 255, 255}, Int(-1)},
		{"small big", []byte{110, 4, 1, 210, 2, 150, 73}, Int(-1234567890)},
		{"legacy float", legacyFloat, Float(1.0)},
		{"new float", []byte{70, 63, 240, 0, 0, 0, 0, 0, 0}, Float(1.0)},
		{"string", []byte{107, 0, 3, 'a', 'b', 'c'}, String("abc")},
		{"nil", []byte{106}, List()},
		{"list", []byte{108, 0, 0, 0, 2, 97, 1, 97, 2, 106}, List(Int(1), Int(2))},
		{"improper list", []byte{108, 0, 0, 0, 1, 97, 1, 97, 2},
			NewListBuilder().Append(Int(1)).AppendTail(Int(2)).Close()},
		{"tuple", []byte{104, 2, 100, 0, 1, 'a', 97, 1}, Tuple(tbl.MustAtom("a").Term(), Int(1))},
		{"binary", []byte{109, 0, 0, 0, 3, 1, 2, 3}, Binary([]byte{1, 2, 3})},
		{"map", []byte{116, 0, 0, 0, 2, 97, 1, 97, 2, 100, 0, 1, 'a', 97, 3},
			Map(MapEntry{Key: Int(1), Val: Int(2)}, MapEntry{Key: tbl.MustAtom("a").Term(), Val: Int(3)})},
		{"pid", []byte{103, 100, 0, 8, 'a', 'b', 'c', '@', 'f', 'c', '1', '2',
			0, 0, 0, 1, 0, 0, 0, 2, 4}, pid.Term()},
		{"port", []byte{102, 100, 0, 8, 'a', 'b', 'c', '@', 'f', 'c', '1', '2',
			0, 0, 0, 1, 0}, port.Term()},
		{"new ref", []byte{114, 0, 3, 100, 0, 8, 'a', 'b', 'c', '@', 'f', 'c', '1', '2',
			3, 0, 0, 0, 5, 0, 0, 0, 6, 0, 0, 0, 7}, ref.Term()},
		{"old ref", []byte{101, 100, 0, 3, 'a', '@', 'h', 0, 0, 0, 9, 2},
			mustRef(t, tbl, "a@h", []uint32{9}, 2).Term()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pos := 0
			got, err := Decode(tbl, tc.buf, &pos)
			require.NoError(t, err)
			require.Equal(t, len(tc.buf), pos, "the cursor must land on the byte after the term")
			require.Empty(t, cmp.Diff(tc.want, got, termCmp))
		})
	}
}

func mustRef(t *testing.T, tbl *AtomTable, node string, ids []uint32, creation uint32) Ref {
	t.Helper()
	r, err := MakeRef(tbl.MustAtom(node), ids, creation)
	require.NoError(t, err)
	return r
}

func TestDecode_MaskedPidCreation(t *testing.T) {
	tbl := NewAtomTable(0)
	buf := []byte{103, 100, 0, 8, 'a', 'b', 'c', '@', 'f', 'c', '1', '2',
		0, 0, 0, 1, 0, 0, 0, 2, 4}

	pos := 0
	got, err := Decode(tbl, buf, &pos)
	require.NoError(t, err)
	p, ok := got.Pid()
	require.True(t, ok)
	require.Equal(t, uint32(0), p.Creation(), "a wire creation of 4 folds to 0")
	require.Equal(t, "#Pid<abc@fc12.1.2.0>", got.String())
}

func TestEncode_RoundTrip(t *testing.T) {
	tbl := NewAtomTable(0)
	pid := testPid(t, tbl, "abc@fc12", 1, 2, 3)
	port, err := MakePort(tbl.MustAtom("abc@fc12"), 9, 1)
	require.NoError(t, err)
	ref := mustRef(t, tbl, "abc@fc12", []uint32{5, 6, 7}, 3)

	wide := make([]Term, 300)
	for i := range wide {
		wide[i] = Int(int64(i))
	}

	terms := []Term{
		Int(0),
		Int(255),
		Int(256),
		Int(-1),
		Int(math.MaxInt32),
		Int(math.MinInt32),
		Int(math.MaxInt64),
		Int(math.MinInt64),
		BigInt(new(big.Int).Lsh(big.NewInt(1), 80)),
		BigInt(new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 80))),
		Float(3.14),
		Float(-0.5),
		Bool(true),
		Bool(false),
		tbl.MustAtom("hello").Term(),
		Atom{}.Term(),
		String(""),
		String("abc"),
		Binary(nil),
		Binary([]byte{0, 1, 255}),
		pid.Term(),
		port.Term(),
		ref.Term(),
		Tuple(),
		Tuple(Int(1), Tuple(Int(2), List(Int(3)))),
		Tuple(wide...),
		List(),
		List(Int(1), String("two"), Bool(false)),
		NewListBuilder().Append(Int(1), Int(2)).AppendTail(tbl.MustAtom("tail").Term()).Close(),
		Map(),
		Map(
			MapEntry{Key: tbl.MustAtom("k").Term(), Val: Map(MapEntry{Key: Int(1), Val: List(Int(2))})},
			MapEntry{Key: Int(0), Val: Binary([]byte("v"))},
		),
	}

	for _, term := range terms {
		sz, err := EncodeSize(term)
		require.NoError(t, err, "size of %s", term)
		buf, err := Encode(term)
		require.NoError(t, err, "encode of %s", term)
		require.Len(t, buf, sz, "EncodeSize must predict the exact length of %s", term)

		pos := 0
		got, err := Decode(tbl, buf, &pos)
		require.NoError(t, err, "decode of %s", term)
		require.Equal(t, len(buf), pos)
		require.Empty(t, cmp.Diff(term, got, termCmp), "round trip of %s", term)
	}
}

func TestEncode_TraceAsTuple(t *testing.T) {
	tbl := NewAtomTable(0)
	from := testPid(t, tbl, "a@host", 5, 1, 0)
	tr := Trace{Flags: 1, Label: 2, Serial: 3, From: from, Prev: 4}

	traceBytes, err := Encode(tr.Term())
	require.NoError(t, err)
	tupleBytes, err := Encode(Tuple(Int(1), Int(2), Int(3), from.Term(), Int(4)))
	require.NoError(t, err)
	require.Equal(t, tupleBytes, traceBytes, "a trace token is a plain 5-tuple on the wire")

	pos := 0
	got, err := Decode(tbl, traceBytes, &pos)
	require.NoError(t, err)
	require.Equal(t, KindTuple, got.Kind())
	back, ok := TraceFromTerm(got)
	require.True(t, ok)
	require.Equal(t, tr, back)
}

func TestEncode_ExactBytes(t *testing.T) {
	tbl := NewAtomTable(0)

	buf, err := Encode(Int(123456789))
	require.NoError(t, err)
	require.Equal(t, []byte{98, 7, 91, 205, 21}, buf)

	buf, err = Encode(Int(1 << 40))
	require.NoError(t, err)
	require.Equal(t, []byte{110, 6, 0, 0, 0, 0, 0, 0, 1}, buf, "values beyond 32 bits use the small big form")

	buf, err = Encode(Float(1.0))
	require.NoError(t, err)
	require.Equal(t, []byte{70, 63, 240, 0, 0, 0, 0, 0, 0}, buf)

	buf, err = Encode(Bool(true))
	require.NoError(t, err)
	require.Equal(t, []byte{100, 0, 4, 't', 'r', 'u', 'e'}, buf)

	ref := mustRef(t, tbl, "abc@fc12", []uint32{5, 6, 7}, 3)
	buf, err = Encode(ref.Term())
	require.NoError(t, err)
	require.Equal(t, []byte{114, 0, 3, 100, 0, 8, 'a', 'b', 'c', '@', 'f', 'c', '1', '2',
		3, 0, 0, 0, 5, 0, 0, 0, 6, 0, 0, 0, 7}, buf)
}

func TestDecode_Resumable(t *testing.T) {
	tbl := NewAtomTable(0)

	buf, err := Encode(Int(1))
	require.NoError(t, err)
	more, err := AppendEncode(buf, tbl.MustAtom("two").Term())
	require.NoError(t, err)
	more, err = AppendEncode(more, String("three"))
	require.NoError(t, err)

	pos := 0
	first, err := Decode(tbl, more, &pos)
	require.NoError(t, err)
	require.True(t, first.Equal(Int(1)))

	second, err := Decode(tbl, more, &pos)
	require.NoError(t, err)
	require.True(t, second.Equal(tbl.MustAtom("two").Term()))

	third, err := Decode(tbl, more, &pos)
	require.NoError(t, err)
	require.True(t, third.Equal(String("three")))
	require.Equal(t, len(more), pos, "three decodes must consume the whole buffer")
}

func TestDecode_Versioned(t *testing.T) {
	tbl := NewAtomTable(0)

	buf, err := EncodeVersioned(Int(1))
	require.NoError(t, err)
	require.Equal(t, []byte{131, 97, 1}, buf)

	got, err := DecodeVersioned(tbl, buf)
	require.NoError(t, err)
	require.True(t, got.Equal(Int(1)))

	got, err = DecodeVersioned(tbl, append(buf, 0xde, 0xad))
	require.NoError(t, err, "trailing bytes after the term are ignored")
	require.True(t, got.Equal(Int(1)))

	_, err = DecodeVersioned(tbl, []byte{42, 97, 1})
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, byte(42), de.Tag)

	_, err = DecodeVersioned(tbl, nil)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecode_Errors(t *testing.T) {
	tbl := NewAtomTable(0)

	pos := 7
	_, err := Decode(tbl, nil, &pos)
	require.ErrorIs(t, err, ErrTruncated)
	require.Equal(t, 7, pos, "the cursor must not move on error")

	pos = 0
	_, err = Decode(tbl, []byte{100, 0, 5, 'a'}, &pos)
	require.ErrorIs(t, err, ErrTruncated, "atom body shorter than its length header")
	require.Equal(t, 0, pos)

	pos = 0
	_, err = Decode(tbl, []byte{42}, &pos)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, byte(42), de.Tag)

	pos = 0
	_, err = Decode(tbl, []byte{108, 255, 255, 255, 255}, &pos)
	require.ErrorIs(t, err, ErrTruncated, "an absurd element count must fail before allocating")

	pos = 0
	_, err = Decode(tbl, []byte{114, 0, 4, 100, 0, 1, 'n', 0, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4}, &pos)
	require.Error(t, err, "references carry at most three id words")

	pos = 0
	_, err = Decode(tbl, []byte{104, 2, 97, 1}, &pos)
	require.ErrorIs(t, err, ErrTruncated, "tuple missing its second element")
}

func TestDecode_TableFull(t *testing.T) {
	tbl := NewAtomTable(1)

	pos := 0
	_, err := Decode(tbl, []byte{100, 0, 3, 'a', 'b', 'c'}, &pos)
	require.ErrorIs(t, err, ErrTableFull)
	require.Equal(t, 0, pos)

	got, err := Decode(tbl, []byte{100, 0, 4, 't', 'r', 'u', 'e'}, &pos)
	require.NoError(t, err, "booleans never touch the table")
	require.True(t, got.Equal(Bool(true)))
}

func TestEncode_Errors(t *testing.T) {
	_, err := Encode(Term{})
	require.ErrorIs(t, err, ErrBadArg, "the undefined term is not encodable")

	_, err = Encode(Var("A"))
	require.ErrorIs(t, err, ErrBadArg, "variables are match-only")

	long := String(strings.Repeat("s", math.MaxUint16+1))
	_, err = EncodeSize(long)
	require.ErrorIs(t, err, ErrBadArg)
	_, err = Encode(long)
	require.ErrorIs(t, err, ErrBadArg)

	_, err = Encode(Tuple(Int(1), Var("A")))
	require.ErrorIs(t, err, ErrBadArg, "a variable anywhere in the tree poisons the encode")
}

func TestDecode_LegacyFloatCursor(t *testing.T) {
	tbl := NewAtomTable(0)

	buf := append([]byte{99}, "9.00000000000000000000e+01"...)
	buf = append(buf, make([]byte, 5)...)
	require.Len(t, buf, 32)

	pos := 0
	got, err := Decode(tbl, buf, &pos)
	require.NoError(t, err)
	require.Equal(t, 32, pos, "the legacy form is a fixed 31-byte field")
	require.True(t, got.Equal(Float(90.0)))
	require.Equal(t, "90.0", got.String())
}
