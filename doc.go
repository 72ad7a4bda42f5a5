// Package segvec provides a growable, append-only vector with stable element
// addresses for Go.
//
// A conventional slice reallocates its backing array when it grows past
// capacity, which moves every element and invalidates all outstanding
// pointers. Vector breaks that coupling between growth and invalidation:
//
//   - Elements live in a list of fixed-capacity segments; growth appends a
//     new segment and never moves, resizes or frees an existing one
//   - Pointers from Ref, PushRef and Refs stay valid across any number of
//     later pushes
//   - Segment capacities double, so n elements occupy O(log n) segments and
//     index translation is closed-form O(1) bit arithmetic
//   - Optional memory budgeting via a shared resource.Controller
//   - Checksummed, optionally compressed snapshots with pluggable codecs and
//     storage backends (filesystem, S3, MinIO, in-memory)
//
// # Quick Start
//
// Create a vector, append, and hold a pointer across growth:
//
//	v := segvec.New[int]()
//	defer v.Close()
//
//	r := v.PushRef(1)      // pointer to element 0
//	for i := 2; i <= 1000; i++ {
//	    v.Push(i)          // grows many times; r stays valid
//	}
//	*r += 100              // still addresses element 0
//
// Iterate with the standard iterator adapters:
//
//	for i, val := range v.All() {
//	    fmt.Println(i, val)
//	}
//
// # Concurrency
//
// A Vector is not safe for concurrent use. The aliasing guarantee is
// single-owner: one goroutine may freely interleave pushes with reads and
// writes through previously obtained pointers, but cross-goroutine access
// requires external locking. This is deliberate; the cost of internal
// locking would be paid by every caller, including the overwhelmingly
// common single-owner case.
//
// # Persistence
//
// Snapshots are the only persistence. SaveToWriter/SaveToFile/SaveToStore
// write a self-describing container (codec name, compression, geometry,
// per-section CRC32) that LoadFromReader/LoadFromFile/LoadFromStore restore.
// The in-memory vector holds no hidden persistent state.
package segvec
