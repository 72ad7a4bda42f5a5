package segvec

import "iter"

// All returns an iterator over (index, value) pairs in index order.
//
// Iteration is lazy and restartable: each range statement starts over at
// index 0. The element count is re-checked at every step, so values pushed
// during an iteration may be yielded by it, and values pushed after a step
// never invalidate anything already yielded.
func (v *Vector[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		i := 0
		for s := 0; s < len(v.segs); s++ {
			seg := v.segs[s]
			for off := 0; off < len(seg); off++ {
				if i >= v.count {
					return
				}
				if !yield(i, seg[off]) {
					return
				}
				i++
			}
		}
	}
}

// Values returns an iterator over values in index order. It has the same
// laziness and restart semantics as All.
func (v *Vector[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, value := range v.All() {
			if !yield(value) {
				return
			}
		}
	}
}

// Refs returns an iterator over (index, pointer) pairs in index order. Each
// pointer addresses the element's stable storage slot, so pointers may be
// kept past the loop and stay valid across later pushes, exactly as with
// Ref.
func (v *Vector[T]) Refs() iter.Seq2[int, *T] {
	return func(yield func(int, *T) bool) {
		i := 0
		for s := 0; s < len(v.segs); s++ {
			seg := v.segs[s]
			for off := 0; off < len(seg); off++ {
				if i >= v.count {
					return
				}
				if !yield(i, &seg[off]) {
					return
				}
				i++
			}
		}
	}
}

// AppendSeq appends the values of seq in order. Allocation failure panics,
// as with Push.
func (v *Vector[T]) AppendSeq(seq iter.Seq[T]) {
	for value := range seq {
		v.Push(value)
	}
}

// Collect creates a vector from the values of seq, mirroring
// slices.Collect.
func Collect[T any](seq iter.Seq[T], optFns ...Option) *Vector[T] {
	v := New[T](optFns...)
	v.AppendSeq(seq)
	return v
}
