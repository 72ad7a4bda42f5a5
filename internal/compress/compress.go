// Package compress implements block compression for snapshot sections.
//
// A compressed block is self-framing:
//
//	[UncompressedSize uint32][CompressedSize uint32][Data...]
//
// If CompressedSize == 0, the block is stored uncompressed. Blocks produced
// with TypeNone carry no frame at all; the caller records the type out of
// band and passes it back to Unpack.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used.
type Type uint8

const (
	// TypeNone indicates no compression.
	TypeNone Type = 0
	// TypeLZ4 indicates LZ4 block compression (fast, modest ratio).
	TypeLZ4 Type = 1
	// TypeZstd indicates ZSTD block compression (better ratio, slower).
	TypeZstd Type = 2
)

// Valid reports whether t is a known compression type.
func (t Type) Valid() bool {
	return t <= TypeZstd
}

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeLZ4:
		return "lz4"
	case TypeZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

const blockHeaderSize = 8

// MaxBlockSize bounds the uncompressed size accepted by Unpack. It protects
// against allocating huge buffers from a corrupted or hostile frame header.
const MaxBlockSize = 1 << 30

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// Pack compresses data using the given algorithm and frames it with a block
// header. For TypeNone the input is returned unchanged. If compression does
// not pay off (ratio > 0.9), the block is framed but stored uncompressed.
func Pack(data []byte, t Type) ([]byte, error) {
	if t == TypeNone || len(data) == 0 {
		return data, nil
	}
	if len(data) > MaxBlockSize {
		return nil, fmt.Errorf("compress: block of %d bytes exceeds limit", len(data))
	}

	var compressed []byte
	var err error

	switch t {
	case TypeLZ4:
		compressed, err = packLZ4(data)
	case TypeZstd:
		compressed, err = packZstd(data)
	default:
		return nil, fmt.Errorf("compress: unknown type %d", uint8(t))
	}
	if err != nil {
		return nil, err
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		// Incompressible; store raw behind the frame header.
		result := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(result[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(result[4:], 0)
		copy(result[blockHeaderSize:], data)
		return result, nil
	}

	result := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(result[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(result[4:], uint32(len(compressed)))
	copy(result[blockHeaderSize:], compressed)
	return result, nil
}

func packLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	compressed := make([]byte, bound)

	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // incompressible
	}
	return compressed[:n], nil
}

func packZstd(data []byte) ([]byte, error) {
	enc := getZstdEncoder()
	defer putZstdEncoder(enc)

	return enc.EncodeAll(data, nil), nil
}

// Unpack reverses Pack. The compression type is not auto-detected; the
// caller supplies the type recorded alongside the block.
func Unpack(block []byte, t Type) ([]byte, error) {
	if t == TypeNone || len(block) == 0 {
		return block, nil
	}
	if !t.Valid() {
		return nil, fmt.Errorf("compress: unknown type %d", uint8(t))
	}
	if len(block) < blockHeaderSize {
		return nil, errors.New("compress: block too small for header")
	}

	uncompressedSize := binary.LittleEndian.Uint32(block[0:])
	compressedSize := binary.LittleEndian.Uint32(block[4:])

	if uncompressedSize > MaxBlockSize {
		return nil, fmt.Errorf("compress: header claims %d bytes, exceeds limit", uncompressedSize)
	}

	if compressedSize == 0 {
		if uint64(len(block)) < blockHeaderSize+uint64(uncompressedSize) {
			return nil, errors.New("compress: block data too small")
		}
		return block[blockHeaderSize : blockHeaderSize+uncompressedSize], nil
	}

	if uint64(len(block)) < blockHeaderSize+uint64(compressedSize) {
		return nil, errors.New("compress: compressed block data too small")
	}

	compressedData := block[blockHeaderSize : blockHeaderSize+compressedSize]
	result := make([]byte, uncompressedSize)

	switch t {
	case TypeLZ4:
		n, err := lz4.UncompressBlock(compressedData, result)
		if err != nil {
			return nil, err
		}
		if uint32(n) != uncompressedSize {
			return nil, errors.New("compress: decompressed size mismatch")
		}
		return result, nil

	case TypeZstd:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)

		decoded, err := dec.DecodeAll(compressedData, result[:0])
		if err != nil {
			return nil, err
		}
		if uint32(len(decoded)) != uncompressedSize {
			return nil, errors.New("compress: decompressed size mismatch")
		}
		return decoded, nil

	default:
		return nil, fmt.Errorf("compress: unknown type %d", uint8(t))
	}
}
