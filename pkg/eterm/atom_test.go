package eterm

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAtomTable_Intern(t *testing.T) {
	tbl := NewAtomTable(16)

	a1, err := tbl.Lookup("abc")
	require.NoError(t, err)
	a2, err := tbl.Lookup("abc")
	require.NoError(t, err)

	require.Equal(t, a1, a2, "interning the same name twice must yield the same atom")
	require.Equal(t, "abc", a1.Name())
	require.Equal(t, 2, tbl.Len(), "empty atom plus abc")

	upper, err := tbl.Lookup("Abc")
	require.NoError(t, err)
	require.NotEqual(t, a1.Index(), upper.Index(), "names are case sensitive")
}

func TestAtomTable_EmptyAtom(t *testing.T) {
	tbl := NewAtomTable(2)

	empty, err := tbl.Lookup("")
	require.NoError(t, err)
	require.True(t, empty.Empty())
	require.Equal(t, uint32(0), empty.Index(), "the empty atom is always index 0")
	require.Equal(t, 1, tbl.Len(), "looking up the empty atom consumes no capacity")

	_, err = tbl.Lookup("x")
	require.NoError(t, err, "capacity 2 leaves one free slot besides the empty atom")
}

func TestAtomTable_Capacity(t *testing.T) {
	tbl := NewAtomTable(3)

	a, err := tbl.Lookup("a")
	require.NoError(t, err)
	_, err = tbl.Lookup("b")
	require.NoError(t, err)

	_, err = tbl.Lookup("c")
	require.ErrorIs(t, err, ErrTableFull)

	again, err := tbl.Lookup("a")
	require.NoError(t, err, "existing names still resolve on a full table")
	require.Equal(t, a, again)
	require.Equal(t, 3, tbl.Cap())
}

func TestAtomTable_NameTooLong(t *testing.T) {
	tbl := NewAtomTable(0)

	_, err := tbl.Lookup(strings.Repeat("x", MaxAtomLen))
	require.NoError(t, err)

	_, err = tbl.Lookup(strings.Repeat("x", MaxAtomLen+1))
	require.ErrorIs(t, err, ErrBadArg)
}

func TestAtomTable_Resolve(t *testing.T) {
	tbl := NewAtomTable(0)
	a := tbl.MustAtom("hello")

	got, ok := tbl.Resolve(a.Index())
	require.True(t, ok)
	require.Equal(t, a, got)

	_, ok = tbl.Resolve(4096)
	require.False(t, ok, "unknown index must not resolve")

	empty, ok := tbl.Resolve(0)
	require.True(t, ok)
	require.True(t, empty.Empty())
}

func TestAtomTable_ConcurrentIntern(t *testing.T) {
	tbl := NewAtomTable(0)
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, err := tbl.Lookup(names[i%len(names)])
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, len(names)+1, tbl.Len(), "each name interned exactly once")
	for _, n := range names {
		a1 := tbl.MustAtom(n)
		a2 := tbl.MustAtom(n)
		require.Equal(t, a1.Index(), a2.Index())
	}
}

func TestAtom_Quoting(t *testing.T) {
	tbl := NewAtomTable(0)

	require.Equal(t, "abc", tbl.MustAtom("abc").String())
	require.Equal(t, "abc@fc12", tbl.MustAtom("abc@fc12").String())
	require.Equal(t, "'Abc'", tbl.MustAtom("Abc").String(), "uppercase start needs quotes")
	require.Equal(t, "'hello world'", tbl.MustAtom("hello world").String(), "spaces need quotes")
	require.Equal(t, "'_foo'", tbl.MustAtom("_foo").String())
	require.Equal(t, "''", Atom{}.String())
}

func TestAtom_Compare(t *testing.T) {
	tbl := NewAtomTable(0)

	// Interning order must not leak into the ordering.
	z := tbl.MustAtom("zzz")
	a := tbl.MustAtom("aaa")
	require.Less(t, a.Compare(z), 0)
	require.Greater(t, z.Compare(a), 0)
	require.Equal(t, 0, a.Compare(tbl.MustAtom("aaa")))
}

func TestValidateNodeName(t *testing.T) {
	require.NoError(t, ValidateNodeName("abc@fc12"))
	require.NoError(t, ValidateNodeName("abc"), "a node name without a host part is accepted")
	require.ErrorIs(t, ValidateNodeName(""), ErrBadArg)
	require.ErrorIs(t, ValidateNodeName("@host"), ErrBadArg)
	require.ErrorIs(t, ValidateNodeName(strings.Repeat("n", MaxNodeLen+1)), ErrBadArg)
}
