package termcbor

import (
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/raskyld/enode/pkg/eterm"
)

var termCmp = cmp.Comparer(func(a, b eterm.Term) bool { return a.Equal(b) })

func TestMarshal_RoundTrip(t *testing.T) {
	tbl := eterm.NewAtomTable(0)
	node := tbl.MustAtom("n@h")
	pid, err := eterm.MakePid(node, 1, 2, 3)
	require.NoError(t, err)
	port, err := eterm.MakePort(node, 4, 1)
	require.NoError(t, err)
	ref, err := eterm.MakeRef(node, []uint32{5, 6, 7}, 2)
	require.NoError(t, err)

	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	trace := eterm.Trace{Flags: 1, Label: 2, Serial: 3, From: pid, Prev: 4}

	cases := []struct {
		name string
		term eterm.Term
	}{
		{"int", eterm.Int(-42)},
		{"bignum", eterm.BigInt(huge)},
		{"float", eterm.Float(3.25)},
		{"bool", eterm.Bool(true)},
		{"atom", tbl.MustAtom("ok").Term()},
		{"string", eterm.String("héllo")},
		{"binary", eterm.Binary([]byte{0, 1, 2, 255})},
		{"pid", pid.Term()},
		{"port", port.Term()},
		{"ref", ref.Term()},
		{"empty tuple", eterm.Tuple()},
		{"tuple", eterm.Tuple(tbl.MustAtom("ok").Term(), eterm.Int(1))},
		{"empty list", eterm.List()},
		{"list", eterm.List(eterm.Int(1), eterm.String("two"), eterm.Float(3))},
		{"improper list", eterm.NewListBuilder().Append(eterm.Int(1)).AppendTail(eterm.Int(2)).Close()},
		{"map", eterm.Map(
			eterm.MapEntry{Key: tbl.MustAtom("a").Term(), Val: eterm.Int(1)},
			eterm.MapEntry{Key: eterm.Int(2), Val: eterm.List(eterm.Bool(false))},
		)},
		{"trace", trace.Term()},
		{"nested", eterm.MustParse(tbl, "{reply, [1, {ok, \"x\"}], #{k => [<<1,2>>]}}")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Marshal(tc.term)
			require.NoError(t, err)

			got, err := Unmarshal(tbl, data)
			require.NoError(t, err)
			require.Empty(t, cmp.Diff(tc.term, got, termCmp))
		})
	}
}

func TestMarshal_Deterministic(t *testing.T) {
	tbl := eterm.NewAtomTable(0)
	term := eterm.MustParse(tbl, "#{zz => 1, a => 2, 7 => [3]}")

	first, err := Marshal(term)
	require.NoError(t, err)
	second, err := Marshal(term)
	require.NoError(t, err)
	require.Equal(t, first, second, "equal terms must produce equal bytes")
}

func TestMarshal_Unsupported(t *testing.T) {
	_, err := Marshal(eterm.Term{})
	require.ErrorIs(t, err, ErrUnsupported, "the undefined term has no wire form")

	_, err = Marshal(eterm.Var("X"))
	require.ErrorIs(t, err, ErrUnsupported, "match variables have no wire form")

	_, err = Marshal(eterm.Tuple(eterm.Int(1), eterm.Var("X")))
	require.ErrorIs(t, err, ErrUnsupported, "nested variables are found too")
}

func TestUnmarshal_Errors(t *testing.T) {
	tbl := eterm.NewAtomTable(0)

	t.Run("garbage input", func(t *testing.T) {
		_, err := Unmarshal(tbl, []byte{0xff, 0x00})
		require.Error(t, err)
	})

	t.Run("unknown kind", func(t *testing.T) {
		data, err := cborEncMode.Marshal(wireTerm{Kind: "blob", Val: []byte{0x01}})
		require.NoError(t, err)
		_, err = Unmarshal(tbl, data)
		require.ErrorIs(t, err, ErrUnsupported)
	})

	t.Run("kind and value disagree", func(t *testing.T) {
		raw, err := cborEncMode.Marshal("not a number")
		require.NoError(t, err)
		data, err := cborEncMode.Marshal(wireTerm{Kind: "float", Val: raw})
		require.NoError(t, err)
		_, err = Unmarshal(tbl, data)
		require.Error(t, err)
	})

	t.Run("nil table gets a private one", func(t *testing.T) {
		data, err := Marshal(tbl.MustAtom("solo").Term())
		require.NoError(t, err)
		got, err := Unmarshal(nil, data)
		require.NoError(t, err)
		a, ok := got.Atom()
		require.True(t, ok)
		require.Equal(t, "solo", a.Name())
	})
}
