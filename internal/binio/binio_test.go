package binio

import (
	"bytes"
	"hash/crc32"
	"testing"
)

func TestChecksum(t *testing.T) {
	data := []byte("hello segmented world")
	if got, want := Checksum(data), crc32.ChecksumIEEE(data); got != want {
		t.Fatalf("Checksum = %#x, want %#x", got, want)
	}
}

func TestChecksumWriter(t *testing.T) {
	var buf bytes.Buffer
	cw := NewChecksumWriter(&buf)

	parts := [][]byte{[]byte("abc"), []byte("def"), []byte("ghi")}
	for _, p := range parts {
		n, err := cw.Write(p)
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if n != len(p) {
			t.Fatalf("Write returned %d, want %d", n, len(p))
		}
	}

	if got, want := buf.String(), "abcdefghi"; got != want {
		t.Fatalf("underlying bytes = %q, want %q", got, want)
	}
	if got, want := cw.Sum(), Checksum([]byte("abcdefghi")); got != want {
		t.Fatalf("Sum = %#x, want %#x", got, want)
	}
}

func TestCountingWriter(t *testing.T) {
	var buf bytes.Buffer
	cw := NewCountingWriter(&buf)

	if cw.Count() != 0 {
		t.Fatalf("fresh counting writer reports %d bytes", cw.Count())
	}

	if _, err := cw.Write([]byte("12345")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := cw.Write([]byte("678")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if got := cw.Count(); got != 8 {
		t.Fatalf("Count = %d, want 8", got)
	}
	if buf.Len() != 8 {
		t.Fatalf("underlying buffer holds %d bytes, want 8", buf.Len())
	}
}
