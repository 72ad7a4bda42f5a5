package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction for reading and writing immutable data blobs.
type BlobStore interface {
	// Open opens an existing blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Create creates a blob for streaming writes. The blob becomes
	// visible under name when Close returns without error.
	Create(ctx context.Context, name string) (WritableBlob, error)

	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns all blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	// Size returns the size of the blob in bytes.
	Size() int64

	// ReadRange returns a reader over [off, off+length). Ranges reaching
	// past the end are clamped to the blob size.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)

	// Close releases the handle.
	Close() error
}

// WritableBlob is a streaming write handle. Close publishes the blob.
type WritableBlob interface {
	io.WriteCloser

	// Sync flushes buffered data to the backing store, where that has
	// meaning. Streaming backends may make it a no-op.
	Sync() error
}

// Aborter is an optional interface for WritableBlobs that can discard an
// in-progress write instead of publishing it on Close.
type Aborter interface {
	Abort() error
}

// ReadAll reads the full contents of b.
func ReadAll(ctx context.Context, b Blob) ([]byte, error) {
	if b.Size() == 0 {
		return nil, nil
	}
	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
