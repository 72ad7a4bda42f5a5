package segvec

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIterators(t *testing.T) {
	t.Run("AllYieldsIndexOrder", func(t *testing.T) {
		v := New[string](WithSegmentCapacity(2))
		defer v.Close()
		v.Append("a", "b", "c", "d", "e")

		var idxs []int
		var vals []string
		for i, val := range v.All() {
			idxs = append(idxs, i)
			vals = append(vals, val)
		}
		assert.Equal(t, []int{0, 1, 2, 3, 4}, idxs)
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, vals)
	})

	t.Run("ValuesMatchesToSlice", func(t *testing.T) {
		v := FromSlice([]int{3, 1, 4, 1, 5, 9, 2, 6}, WithSegmentCapacity(2))
		defer v.Close()

		assert.Equal(t, v.ToSlice(), slices.Collect(v.Values()))
	})

	t.Run("IterationIsRestartable", func(t *testing.T) {
		v := FromSlice([]int{1, 2, 3})
		defer v.Close()

		seq := v.Values()
		first := slices.Collect(seq)
		second := slices.Collect(seq)
		assert.Equal(t, first, second)
	})

	t.Run("EarlyBreak", func(t *testing.T) {
		v := FromSlice([]int{0, 1, 2, 3, 4}, WithSegmentCapacity(2))
		defer v.Close()

		var seen []int
		for i := range v.All() {
			if i == 2 {
				break
			}
			seen = append(seen, i)
		}
		assert.Equal(t, []int{0, 1}, seen)
	})

	t.Run("EmptyVector", func(t *testing.T) {
		v := New[int]()
		defer v.Close()

		for range v.All() {
			t.Fatal("yielded from empty vector")
		}
	})

	t.Run("PushDuringIterationIsSafe", func(t *testing.T) {
		// Appending mid-iteration must not disturb elements already
		// yielded; the new elements may be picked up by the same pass.
		v := FromSlice([]int{0, 1, 2, 3}, WithSegmentCapacity(2))
		defer v.Close()

		var seen []int
		for i, val := range v.All() {
			require.Equal(t, i, val)
			seen = append(seen, val)
			if i == 1 {
				v.Push(4)
				v.Push(5)
			}
			if len(seen) > 10 {
				break
			}
		}
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, seen)
		assert.Equal(t, 6, v.Len())
	})

	t.Run("RefsYieldStableSlots", func(t *testing.T) {
		v := FromSlice([]int{10, 20, 30}, WithSegmentCapacity(2))
		defer v.Close()

		kept := make([]*int, 0, 3)
		for _, r := range v.Refs() {
			kept = append(kept, r)
		}
		require.Len(t, kept, 3)

		// Mutations through kept pointers land in the vector, across a
		// push that grows it.
		v.Push(40)
		*kept[0] = 11

		got, _ := v.Get(0)
		assert.Equal(t, 11, got)
		assert.Equal(t, []int{11, 20, 30, 40}, v.ToSlice())
	})
}

func TestAppendSeqAndCollect(t *testing.T) {
	t.Run("AppendSeq", func(t *testing.T) {
		v := New[int]()
		defer v.Close()

		v.AppendSeq(slices.Values([]int{7, 8, 9}))
		assert.Equal(t, []int{7, 8, 9}, v.ToSlice())
	})

	t.Run("Collect", func(t *testing.T) {
		src := FromSlice([]int{1, 2, 3}, WithSegmentCapacity(2))
		defer src.Close()

		dst := Collect(src.Values(), WithSegmentCapacity(8))
		defer dst.Close()

		assert.Equal(t, src.ToSlice(), dst.ToSlice())
		assert.Equal(t, 8, dst.Cap())
	})
}
