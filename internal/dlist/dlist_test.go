package dlist_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/wmac/upper-mac/internal/dlist"
)

func TestArenaAllocFreeStale(t *testing.T) {
	a := dlist.NewArena[int](2)
	r1, err := a.Alloc(1)
	require.NoError(t, err)
	r2, err := a.Alloc(2)
	require.NoError(t, err)

	_, err = a.Alloc(3)
	assert.ErrorIs(t, err, dlist.ErrFull)

	require.NoError(t, a.Free(r1))
	assert.False(t, a.Valid(r1), "freed ref must not validate")

	r3, err := a.Alloc(3)
	require.NoError(t, err)
	assert.NotEqual(t, r1, r3, "reused slot must carry a new generation")

	v, ok := a.Get(r2)
	require.True(t, ok)
	assert.Equal(t, 2, *v)
}

func TestListFIFOOrder(t *testing.T) {
	a := dlist.NewArena[string](8)
	l := dlist.NewList(a)

	var refs []dlist.Ref
	for _, s := range []string{"a", "b", "c"} {
		r, err := a.Alloc(s)
		require.NoError(t, err)
		require.NoError(t, l.InsertEnd(r))
		refs = append(refs, r)
	}
	require.Equal(t, 3, l.Len())

	var seen []string
	l.Walk(func(r dlist.Ref) bool {
		v, _ := a.Get(r)
		seen = append(seen, *v)
		return true
	})
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	require.NoError(t, l.Remove(refs[1]))
	seen = nil
	l.Walk(func(r dlist.Ref) bool {
		v, _ := a.Get(r)
		seen = append(seen, *v)
		return true
	})
	assert.Equal(t, []string{"a", "c"}, seen)
	assert.Equal(t, 2, l.Len())
}

func TestListMoveN(t *testing.T) {
	a := dlist.NewArena[int](8)
	src := dlist.NewList(a)
	dst := dlist.NewList(a)

	for i := 0; i < 4; i++ {
		r, err := a.Alloc(i)
		require.NoError(t, err)
		require.NoError(t, src.InsertEnd(r))
	}

	require.NoError(t, src.MoveN(dst, 2))
	assert.Equal(t, 2, src.Len())
	assert.Equal(t, 2, dst.Len())

	var got []int
	dst.Walk(func(r dlist.Ref) bool {
		v, _ := a.Get(r)
		got = append(got, *v)
		return true
	})
	assert.Equal(t, []int{0, 1}, got)
}

func TestInsertAfterBefore(t *testing.T) {
	a := dlist.NewArena[int](8)
	l := dlist.NewList(a)

	r1, _ := a.Alloc(1)
	r3, _ := a.Alloc(3)
	require.NoError(t, l.InsertEnd(r1))
	require.NoError(t, l.InsertEnd(r3))

	r2, _ := a.Alloc(2)
	require.NoError(t, l.InsertAfter(r1, r2))

	var got []int
	l.Walk(func(r dlist.Ref) bool {
		v, _ := a.Get(r)
		got = append(got, *v)
		return true
	})
	assert.Equal(t, []int{1, 2, 3}, got)
}

// A Ref is on exactly one list at a time: moving it between queue and
// free-pool lists never leaves it reachable from both, or from neither.
func TestRapidRefSingleMembership(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 16).Draw(t, "capacity")
		a := dlist.NewArena[int](capacity)
		free := dlist.NewList(a)
		queue := dlist.NewList(a)

		var refs []dlist.Ref
		for i := 0; i < capacity; i++ {
			r, err := a.Alloc(i)
			require.NoError(t, err)
			require.NoError(t, free.InsertEnd(r))
			refs = append(refs, r)
		}

		steps := rapid.IntRange(0, 64).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			idx := rapid.IntRange(0, len(refs)-1).Draw(t, "idx")
			r := refs[idx]
			onFree := memberOf(free, r)
			onQueue := memberOf(queue, r)
			assert.False(t, onFree && onQueue, "ref present on both lists")

			switch {
			case onFree:
				require.NoError(t, free.Remove(r))
				require.NoError(t, queue.InsertEnd(r))
			case onQueue:
				require.NoError(t, queue.Remove(r))
				require.NoError(t, free.InsertEnd(r))
			}
		}

		assert.Equal(t, capacity, free.Len()+queue.Len(), "every ref must be on exactly one list")
	})
}

func memberOf(l *dlist.List[int], target dlist.Ref) bool {
	found := false
	l.Walk(func(r dlist.Ref) bool {
		if r == target {
			found = true
			return false
		}
		return true
	})
	return found
}
