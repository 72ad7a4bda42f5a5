package segvec

// Close releases the vector's segments and returns any memory-budget
// reservation to the acquirer.
//
// Close is when element pointers die: the contract for Ref/PushRef/Refs
// pointers is the life of the vector, so dereferencing one after Close is a
// caller bug even though Go's collector keeps the memory alive until the
// last pointer drops. A closed vector behaves as empty; pushing to it
// starts a fresh segment list under the same options.
func (v *Vector[T]) Close() error {
	if v == nil {
		return nil
	}

	if v.opts.acquirer != nil && v.reserved > 0 {
		v.opts.acquirer.ReleaseMemory(v.reserved)
	}
	v.reserved = 0
	v.segs = nil
	v.count = 0
	v.capTotal = 0

	return nil
}
