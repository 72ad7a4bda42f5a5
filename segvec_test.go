package segvec

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hupe1980/segvec/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVector(t *testing.T) {
	t.Run("FromSlice", func(t *testing.T) {
		v := FromSlice([]int{0, 1, 2})
		defer v.Close()

		require.Equal(t, 3, v.Len())

		got, ok := v.Get(0)
		require.True(t, ok)
		assert.Equal(t, 0, got)

		got, ok = v.Get(2)
		require.True(t, ok)
		assert.Equal(t, 2, got)
	})

	t.Run("PushReturnsSequentialIndexes", func(t *testing.T) {
		v := New[string]()
		defer v.Close()

		for i := 0; i < 100; i++ {
			before := v.Len()
			idx := v.Push("x")
			assert.Equal(t, before, idx)
			assert.Equal(t, before+1, v.Len())
		}
	})

	t.Run("ThousandSequentialPushes", func(t *testing.T) {
		v := New[int]()
		defer v.Close()

		for i := 0; i < 1000; i++ {
			v.Push(i)
		}

		require.Equal(t, 1000, v.Len())

		got, ok := v.Get(500)
		require.True(t, ok)
		assert.Equal(t, 500, got)

		want := 0
		for i, val := range v.All() {
			require.Equal(t, want, i)
			require.Equal(t, want, val)
			want++
		}
		assert.Equal(t, 1000, want)
	})

	t.Run("AbsenceBoundary", func(t *testing.T) {
		v := FromSlice([]int{10, 20, 30})
		defer v.Close()

		_, ok := v.Get(v.Len())
		assert.False(t, ok)

		_, ok = v.Get(v.Len() + 7)
		assert.False(t, ok)

		_, ok = v.Get(-1)
		assert.False(t, ok)

		got, ok := v.Get(v.Len() - 1)
		require.True(t, ok)
		assert.Equal(t, 30, got)
	})

	t.Run("RefOnEmptyVector", func(t *testing.T) {
		v := New[int]()
		defer v.Close()

		r, ok := v.Ref(0)
		assert.False(t, ok)
		assert.Nil(t, r)
	})

	t.Run("MutateThroughHeldReference", func(t *testing.T) {
		// Push a value derived from a held reference's old value, then
		// mutate through the reference; neither access disturbs the other.
		v := FromSlice([]int{0})
		defer v.Close()

		r, ok := v.Ref(0)
		require.True(t, ok)

		old, ok := v.Get(0)
		require.True(t, ok)
		v.Push(old + 4)

		*r++

		require.Equal(t, 2, v.Len())

		got, ok := v.Get(0)
		require.True(t, ok)
		assert.Equal(t, 1, got)

		got, ok = v.Get(1)
		require.True(t, ok)
		assert.Equal(t, 4, got)
	})

	t.Run("HeldReferencesSurvivePush", func(t *testing.T) {
		v := FromSlice([]int{100, 200})
		defer v.Close()

		r0, ok := v.Ref(0)
		require.True(t, ok)
		r1, ok := v.Ref(1)
		require.True(t, ok)

		v.Push(300)

		assert.Equal(t, 100, *r0)
		assert.Equal(t, 200, *r1)

		*r1 = 222
		got, ok := v.Get(1)
		require.True(t, ok)
		assert.Equal(t, 222, got)
	})

	t.Run("StabilityUnderGrowth", func(t *testing.T) {
		// Collect a pointer to every element as it is pushed, force many
		// segment allocations, then verify each pointer still addresses
		// its element and writes through it are visible.
		const n = 5000
		v := New[int](WithSegmentCapacity(2))
		defer v.Close()

		refs := make([]*int, n)
		for i := 0; i < n; i++ {
			refs[i] = v.PushRef(i)
		}

		require.Greater(t, v.Stats().Segments, 10)

		for i, r := range refs {
			require.Equal(t, i, *r)
		}

		*refs[0] = -1
		*refs[n-1] = -2

		got, _ := v.Get(0)
		assert.Equal(t, -1, got)
		got, _ = v.Get(n - 1)
		assert.Equal(t, -2, got)
	})

	t.Run("NoElementMutationOnGrowth", func(t *testing.T) {
		v := New[int](WithSegmentCapacity(4))
		defer v.Close()

		for i := 0; i < 64; i++ {
			v.Push(i * 11)
			for j := 0; j <= i; j++ {
				got, ok := v.Get(j)
				require.True(t, ok)
				require.Equal(t, j*11, got)
			}
		}
	})

	t.Run("Set", func(t *testing.T) {
		v := FromSlice([]string{"a", "b"})
		defer v.Close()

		require.True(t, v.Set(1, "B"))
		got, _ := v.Get(1)
		assert.Equal(t, "B", got)

		assert.False(t, v.Set(2, "c"))
		assert.False(t, v.Set(-1, "c"))
		assert.Equal(t, 2, v.Len())
	})

	t.Run("ToSliceIsACopy", func(t *testing.T) {
		v := FromSlice([]int{1, 2, 3})
		defer v.Close()

		s := v.ToSlice()
		require.Equal(t, []int{1, 2, 3}, s)

		s[0] = 99
		got, _ := v.Get(0)
		assert.Equal(t, 1, got)
	})

	t.Run("ZeroValueIsUsable", func(t *testing.T) {
		var v Vector[int]

		idx := v.Push(7)
		assert.Equal(t, 0, idx)

		got, ok := v.Get(0)
		require.True(t, ok)
		assert.Equal(t, 7, got)

		require.NoError(t, v.Close())
	})

	t.Run("IsEmpty", func(t *testing.T) {
		v := New[int]()
		defer v.Close()

		assert.True(t, v.IsEmpty())
		v.Push(1)
		assert.False(t, v.IsEmpty())
	})
}

func TestVectorGeometry(t *testing.T) {
	t.Run("SegmentCapacitiesDouble", func(t *testing.T) {
		v := New[int](WithSegmentCapacity(4))
		defer v.Close()

		for i := 0; i < 4; i++ {
			v.Push(i)
		}
		st := v.Stats()
		assert.Equal(t, 1, st.Segments)
		assert.Equal(t, 4, st.Cap)

		v.Push(4)
		st = v.Stats()
		assert.Equal(t, 2, st.Segments)
		assert.Equal(t, 12, st.Cap) // 4 + 8
		assert.Equal(t, 2, st.Grows)

		for i := 5; i < 13; i++ {
			v.Push(i)
		}
		st = v.Stats()
		assert.Equal(t, 3, st.Segments)
		assert.Equal(t, 28, st.Cap) // 4 + 8 + 16
	})

	t.Run("CapacityRoundsUpToPowerOfTwo", func(t *testing.T) {
		v := New[int](WithSegmentCapacity(5))
		defer v.Close()

		v.Push(0)
		assert.Equal(t, 8, v.Cap())
	})

	t.Run("SegmentCountIsLogarithmic", func(t *testing.T) {
		v := New[int](WithSegmentCapacity(16))
		defer v.Close()

		for i := 0; i < 10_000; i++ {
			v.Push(i)
		}
		// 16 + 32 + ... doubles past 10k within 10 segments.
		assert.LessOrEqual(t, v.Stats().Segments, 10)
	})

	t.Run("StatsBytesReserved", func(t *testing.T) {
		v := New[int64](WithSegmentCapacity(8))
		defer v.Close()

		v.Push(1)
		assert.Equal(t, int64(64), v.Stats().BytesReserved)
	})
}

func TestVectorMemoryBudget(t *testing.T) {
	t.Run("TryPushSurfacesDenial", func(t *testing.T) {
		// 8-byte elements, first segment 4 slots = 32 bytes. A 40-byte
		// budget admits the first segment but denies the 64-byte second.
		ctl := resource.NewController(resource.Config{MemoryLimitBytes: 40})
		v := New[int64](WithSegmentCapacity(4), WithResourceController(ctl))
		defer v.Close()

		for i := int64(0); i < 4; i++ {
			_, err := v.TryPush(i)
			require.NoError(t, err)
		}
		assert.Equal(t, int64(32), ctl.MemoryUsage())

		_, err := v.TryPush(4)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMemoryBudget)

		// The failed push left the vector unchanged and readable.
		assert.Equal(t, 4, v.Len())
		got, ok := v.Get(3)
		require.True(t, ok)
		assert.Equal(t, int64(3), got)
	})

	t.Run("PushPanicsOnDenial", func(t *testing.T) {
		ctl := resource.NewController(resource.Config{MemoryLimitBytes: 8})
		v := New[int64](WithSegmentCapacity(4), WithResourceController(ctl))
		defer v.Close()

		require.Panics(t, func() {
			v.Push(1)
		})
		assert.Equal(t, 0, v.Len())
	})

	t.Run("CloseReturnsReservation", func(t *testing.T) {
		ctl := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20})
		v := New[int64](WithSegmentCapacity(4), WithResourceController(ctl))

		for i := int64(0); i < 100; i++ {
			v.Push(i)
		}
		require.Positive(t, ctl.MemoryUsage())

		require.NoError(t, v.Close())
		assert.Equal(t, int64(0), ctl.MemoryUsage())

		// Close is idempotent and nil-safe.
		require.NoError(t, v.Close())
		var nilVec *Vector[int64]
		require.NoError(t, nilVec.Close())
	})

	t.Run("SharedBudgetAcrossVectors", func(t *testing.T) {
		ctl := resource.NewController(resource.Config{MemoryLimitBytes: 96})

		a := New[int64](WithSegmentCapacity(4), WithResourceController(ctl))
		defer a.Close()
		b := New[int64](WithSegmentCapacity(4), WithResourceController(ctl))
		defer b.Close()

		_, err := a.TryPush(1) // 32 bytes
		require.NoError(t, err)
		_, err = b.TryPush(1) // 32 bytes, 64 of 96 reserved
		require.NoError(t, err)

		for i := int64(1); i < 4; i++ {
			_, err = a.TryPush(i)
			require.NoError(t, err)
		}
		_, err = a.TryPush(9) // needs a 64-byte segment
		assert.ErrorIs(t, err, ErrMemoryBudget)

		// Releasing b's reservation unblocks a.
		require.NoError(t, b.Close())
		_, err = a.TryPush(9)
		require.NoError(t, err)
	})
}

func TestVectorCapacityOverflow(t *testing.T) {
	// White box: fake a vector whose next doubling would exceed the
	// addressable total, without allocating anything on the way there.
	v := &Vector[struct{}]{capBits: 30}
	v.segs = make([][]struct{}, 33)
	v.capTotal = math.MaxInt - 100
	v.count = v.capTotal

	_, err := v.TryPush(struct{}{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacityOverflow))
}

func TestVectorAppend(t *testing.T) {
	t.Run("AppendSpansSegments", func(t *testing.T) {
		v := New[int](WithSegmentCapacity(4))
		defer v.Close()

		vals := make([]int, 100)
		for i := range vals {
			vals[i] = i
		}
		v.Append(vals...)

		require.Equal(t, 100, v.Len())
		assert.Equal(t, vals, v.ToSlice())
	})

	t.Run("AppendEmpty", func(t *testing.T) {
		v := New[int]()
		defer v.Close()

		v.Append()
		assert.Equal(t, 0, v.Len())
	})
}

func TestVectorLocate(t *testing.T) {
	// Exhaustively cross-check the closed-form index translation against
	// a walk of the segment layout.
	for _, capacity := range []int{1, 2, 4, 16} {
		v := New[int](WithSegmentCapacity(capacity))

		for i := 0; i < 10_000; i++ {
			v.Push(i)
		}

		i := 0
		for s := 0; s < len(v.segs); s++ {
			for off := 0; off < len(v.segs[s]) && i < v.count; off++ {
				seg, o := v.locate(i)
				require.Equal(t, s, seg, "capacity %d index %d", capacity, i)
				require.Equal(t, off, o, "capacity %d index %d", capacity, i)
				i++
			}
		}
		require.NoError(t, v.Close())
	}
}

func TestMemoryAcquireRespectsContext(t *testing.T) {
	// A full budget makes AcquireMemory wait; the grow path bounds that
	// wait with its own timeout so TryPush returns rather than hanging.
	ctl := resource.NewController(resource.Config{MemoryLimitBytes: 16})
	require.NoError(t, ctl.AcquireMemory(context.Background(), 16))
	defer ctl.ReleaseMemory(16)

	v := New[int64](WithSegmentCapacity(4), WithResourceController(ctl))
	defer v.Close()

	_, err := v.TryPush(1)
	assert.ErrorIs(t, err, ErrMemoryBudget)
}
