// Package codec centralizes element encoding for persisted snapshots.
//
// Segvec intentionally treats codec selection as a breaking-change boundary:
// if you change codecs, persisted bytes created by older codecs may no longer
// decode. Snapshots are self-describing (they store the codec name in their
// header), so files written with any built-in codec can always be reopened.
package codec

import "fmt"

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
//
// This is used for self-describing persistence formats that store the codec
// name in their header.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	case "gob":
		return Gob{}, true
	default:
		return nil, false
	}
}

// MustMarshal is a helper for internal tests/benchmarks.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
