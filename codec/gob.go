package codec

import (
	"bytes"
	"encoding/gob"
)

// Gob is a codec backed by encoding/gob.
//
// Gob is Go-native and handles types JSON cannot (maps with non-string keys,
// for example), at the cost of portability: the bytes are only readable from
// Go. Unexported struct fields are not encoded.
type Gob struct{}

// Marshal encodes the value with gob.
func (Gob) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes the gob data into v.
func (Gob) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// Name returns the unique name of the codec ("gob").
func (Gob) Name() string { return "gob" }
