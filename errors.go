package segvec

import (
	"errors"
	"fmt"
)

var (
	// ErrMemoryBudget is returned (or carried by a Push panic) when the
	// configured MemoryAcquirer denies the reservation for a new segment.
	ErrMemoryBudget = errors.New("memory budget exceeded")

	// ErrCapacityOverflow is returned when growing would push the total
	// reserved capacity past what the platform int can address.
	ErrCapacityOverflow = errors.New("capacity overflow")
)

// ErrChecksumMismatch indicates that a snapshot section failed CRC
// verification on load.
type ErrChecksumMismatch struct {
	Section  int
	Expected uint32
	Actual   uint32
}

func (e *ErrChecksumMismatch) Error() string {
	return fmt.Sprintf("snapshot section %d checksum mismatch: expected 0x%08x, got 0x%08x", e.Section, e.Expected, e.Actual)
}

// ErrUnsupportedVersion indicates a snapshot written by an incompatible
// format version.
type ErrUnsupportedVersion struct {
	Version uint16
}

func (e *ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("unsupported snapshot format version: %d", e.Version)
}
