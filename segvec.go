package segvec

import (
	"context"
	"fmt"
	"math"
	"math/bits"
	"reflect"
	"time"
)

const (
	// DefaultSegmentCapacity is the capacity of the first segment when none
	// is configured. Each subsequent segment doubles the previous capacity.
	DefaultSegmentCapacity = 16

	// MaxSegmentCapacity bounds the configurable first-segment capacity.
	MaxSegmentCapacity = 1 << 30

	// memoryAcquireTimeout bounds how long an append waits on the memory
	// budget before the allocation is considered denied.
	memoryAcquireTimeout = 100 * time.Millisecond
)

// MemoryAcquirer grants or denies memory reservations for new segments.
// *resource.Controller implements it; custom budgets only need these two
// methods.
type MemoryAcquirer interface {
	AcquireMemory(ctx context.Context, bytes int64) error
	ReleaseMemory(bytes int64)
}

// Vector is a growable, append-only container of T with stable element
// addresses.
//
// Elements are stored in segments of doubling capacity. Appending to a full
// vector allocates a fresh segment and appends it to the segment list;
// occupied storage is never moved, resized or freed while the vector is
// alive. The zero value is ready to use with a first-segment capacity of
// one; use New to configure capacity, logging, budgeting and codec.
type Vector[T any] struct {
	segs     [][]T
	count    int
	capTotal int
	capBits  uint
	grows    int
	reserved int64 // bytes acquired from the memory budget
	opts     options
}

// New creates an empty vector.
func New[T any](optFns ...Option) *Vector[T] {
	return newVector[T](applyOptions(optFns))
}

func newVector[T any](o options) *Vector[T] {
	capacity := o.segmentCapacity
	if capacity <= 0 {
		capacity = DefaultSegmentCapacity
	}
	if capacity > MaxSegmentCapacity {
		capacity = MaxSegmentCapacity
	}

	return &Vector[T]{
		// Round up to a power of two so index translation stays closed-form.
		capBits: uint(bits.Len(uint(capacity - 1))),
		opts:    o,
	}
}

// FromSlice creates a vector containing the given values in order, at
// indices 0..len(values)-1. The values are copied; the input slice is not
// retained.
func FromSlice[T any](values []T, optFns ...Option) *Vector[T] {
	v := New[T](optFns...)
	v.Append(values...)
	return v
}

// Push appends value as the new highest-indexed element and returns the
// index it was assigned, which is always the pre-call Len().
//
// If the tail segment has free capacity the value is written into its next
// slot with no allocation. Otherwise a new segment is allocated and appended
// to the segment list; existing segments are never touched, so pointers
// obtained before the push remain valid after it.
//
// Push treats allocation failure (a denied memory budget, or total capacity
// overflowing the platform int) as fatal and panics. Use TryPush where an
// error result is wanted instead.
func (v *Vector[T]) Push(value T) int {
	index, err := v.TryPush(value)
	if err != nil {
		panic(fmt.Errorf("segvec: push: %w", err))
	}
	return index
}

// TryPush appends value and returns its assigned index. It is the
// explicit-failure variant of Push: a denied memory budget surfaces as an
// error wrapping ErrMemoryBudget and capacity exhaustion as
// ErrCapacityOverflow. On failure the vector is unchanged.
func (v *Vector[T]) TryPush(value T) (int, error) {
	if v.count == v.capTotal {
		if err := v.grow(); err != nil {
			return 0, err
		}
	}

	seg, off := v.locate(v.count)
	v.segs[seg][off] = value

	index := v.count
	v.count++
	return index, nil
}

// PushRef appends value and returns a pointer to the stored element. The
// pointer stays valid across any number of later pushes and dies with the
// vector. Allocation failure panics, as with Push.
func (v *Vector[T]) PushRef(value T) *T {
	index := v.Push(value)
	seg, off := v.locate(index)
	return &v.segs[seg][off]
}

// Append appends values in order. It is equivalent to pushing each value
// individually but copies segment-sized runs at a time. Allocation failure
// panics, as with Push.
func (v *Vector[T]) Append(values ...T) {
	if err := v.appendSlice(values); err != nil {
		panic(fmt.Errorf("segvec: append: %w", err))
	}
}

func (v *Vector[T]) appendSlice(values []T) error {
	for len(values) > 0 {
		if v.count == v.capTotal {
			if err := v.grow(); err != nil {
				return err
			}
		}

		seg, off := v.locate(v.count)
		n := copy(v.segs[seg][off:], values)
		v.count += n
		values = values[n:]
	}
	return nil
}

// Get returns the value at index. The second result is false when index is
// out of range; out-of-range access is absence, never a panic.
func (v *Vector[T]) Get(index int) (T, bool) {
	if index < 0 || index >= v.count {
		var zero T
		return zero, false
	}
	seg, off := v.locate(index)
	return v.segs[seg][off], true
}

// Ref returns a pointer to the element at index, or false when index is out
// of range.
//
// The pointer addresses the element's one and only storage slot: it remains
// valid across any number of subsequent pushes, and mutations through it are
// observed by later Get calls. Any number of pointers at distinct indices
// may be held simultaneously while pushing.
func (v *Vector[T]) Ref(index int) (*T, bool) {
	if index < 0 || index >= v.count {
		return nil, false
	}
	seg, off := v.locate(index)
	return &v.segs[seg][off], true
}

// Set overwrites the element at index in place and reports whether the
// index exists. In-place overwrite is the only mutation besides append;
// elements cannot be removed or reordered.
func (v *Vector[T]) Set(index int, value T) bool {
	if index < 0 || index >= v.count {
		return false
	}
	seg, off := v.locate(index)
	v.segs[seg][off] = value
	return true
}

// Len returns the number of elements.
func (v *Vector[T]) Len() int {
	return v.count
}

// IsEmpty reports whether the vector holds no elements.
func (v *Vector[T]) IsEmpty() bool {
	return v.count == 0
}

// Cap returns the total number of reserved element slots across all
// segments. It grows in segment-sized steps and never shrinks while the
// vector is alive.
func (v *Vector[T]) Cap() int {
	return v.capTotal
}

// ToSlice copies all elements into a single contiguous slice in index
// order. The copy is independent of the vector; there is deliberately no
// aliasing view, since a contiguous view over segmented storage cannot
// exist without moving elements.
func (v *Vector[T]) ToSlice() []T {
	out := make([]T, 0, v.count)
	for s := range v.segs {
		occ := v.occupied(s)
		if occ == 0 {
			break
		}
		out = append(out, v.segs[s][:occ]...)
	}
	return out
}

// Stats is a point-in-time summary of a vector's storage.
type Stats struct {
	Len           int   // elements stored
	Cap           int   // reserved element slots
	Segments      int   // live segments
	Grows         int   // segment allocations over the vector's lifetime
	BytesReserved int64 // shallow size of all reserved slots
}

// Stats returns current storage statistics. BytesReserved counts the
// shallow element size only; heap memory referenced by pointers inside
// elements is not included.
func (v *Vector[T]) Stats() Stats {
	return Stats{
		Len:           v.count,
		Cap:           v.capTotal,
		Segments:      len(v.segs),
		Grows:         v.grows,
		BytesReserved: int64(v.capTotal) * int64(reflect.TypeFor[T]().Size()),
	}
}

// grow allocates the next segment. It mutates only the segment list and
// capacity bookkeeping; the contents of existing segments are never read or
// written, which is what keeps outstanding element pointers valid.
func (v *Vector[T]) grow() error {
	next := uint64(v.firstCap()) << uint(len(v.segs))
	if next > uint64(math.MaxInt-v.capTotal) {
		return ErrCapacityOverflow
	}
	newCap := int(next)

	if v.opts.acquirer != nil {
		bytes, err := segmentBytes[T](newCap)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), memoryAcquireTimeout)
		defer cancel()
		if err := v.opts.acquirer.AcquireMemory(ctx, bytes); err != nil {
			return fmt.Errorf("%w: segment %d needs %d bytes: %w", ErrMemoryBudget, len(v.segs), bytes, err)
		}
		v.reserved += bytes
	}

	v.segs = append(v.segs, make([]T, newCap))
	v.capTotal += newCap
	v.grows++

	v.logger().LogGrow(len(v.segs)-1, newCap)
	return nil
}

var noopLogger = NoopLogger()

func (v *Vector[T]) logger() *Logger {
	return v.opts.loggerOrNoop()
}

func (v *Vector[T]) firstCap() int {
	return 1 << v.capBits
}

// locate translates a logical index into its (segment, offset) address.
//
// With first capacity c0 = 2^b and doubling capacities, segment s spans
// logical indices [c0*(2^s - 1), c0*(2^(s+1) - 1)). Biasing the index by c0
// maps that span onto [c0*2^s, c0*2^(s+1)), so the segment number falls out
// of the position of the highest set bit and the offset is the remainder
// below it.
func (v *Vector[T]) locate(index int) (seg, off int) {
	j := uint64(index) + uint64(1)<<v.capBits
	n := uint(bits.Len64(j)) - 1
	return int(n - v.capBits), int(j - uint64(1)<<n)
}

// segmentStart returns the logical index of the first slot of segment s.
func (v *Vector[T]) segmentStart(s int) int {
	return v.firstCap()<<uint(s) - v.firstCap()
}

// occupied returns how many slots of segment s hold elements.
func (v *Vector[T]) occupied(s int) int {
	occ := v.count - v.segmentStart(s)
	if occ < 0 {
		return 0
	}
	if c := len(v.segs[s]); occ > c {
		return c
	}
	return occ
}

func segmentBytes[T any](slots int) (int64, error) {
	size := int64(reflect.TypeFor[T]().Size())
	if size > 0 && int64(slots) > math.MaxInt64/size {
		return 0, ErrCapacityOverflow
	}
	return int64(slots) * size, nil
}
