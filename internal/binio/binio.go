// Package binio provides small binary-IO helpers for the snapshot container:
// CRC32 checksumming and byte-counting writers.
//
// Uses CRC32 (IEEE polynomial) for:
// - Fast computation (hardware-accelerated on modern CPUs)
// - Good error detection for storage corruption
// - Standard algorithm (well-tested, widely used)
//
// Note: CRC32 is NOT cryptographically secure. Do not use for
// tamper detection - only for detecting accidental corruption.
package binio

import (
	"hash"
	"hash/crc32"
	"io"
)

// CRC32Table is the IEEE polynomial table for checksum computation.
var CRC32Table = crc32.MakeTable(crc32.IEEE)

// Checksum computes the CRC32 checksum of data.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// ChecksumWriter wraps an io.Writer and computes a running CRC32 checksum
// of everything written through it.
type ChecksumWriter struct {
	w    io.Writer
	hash hash.Hash32
}

// NewChecksumWriter creates a new checksumming writer.
func NewChecksumWriter(w io.Writer) *ChecksumWriter {
	return &ChecksumWriter{
		w:    w,
		hash: crc32.New(CRC32Table),
	}
}

// Write implements io.Writer.
func (cw *ChecksumWriter) Write(p []byte) (int, error) {
	// Hash writes never fail.
	_, _ = cw.hash.Write(p)
	return cw.w.Write(p)
}

// Sum returns the current checksum value.
func (cw *ChecksumWriter) Sum() uint32 {
	return cw.hash.Sum32()
}

// CountingWriter wraps an io.Writer and tracks the total number of bytes
// written. It is used to record section offsets while streaming a snapshot.
type CountingWriter struct {
	w io.Writer
	n int64
}

// NewCountingWriter creates a new counting writer.
func NewCountingWriter(w io.Writer) *CountingWriter {
	return &CountingWriter{w: w}
}

// Write implements io.Writer.
func (cw *CountingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// Count returns the total number of bytes written so far.
func (cw *CountingWriter) Count() int64 {
	return cw.n
}
