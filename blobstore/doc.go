// Package blobstore provides storage abstraction for vector snapshots.
//
// BlobStore is the interface for reading and writing snapshot blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem with atomic publish on Close
//   - MemoryStore: in-memory store for tests
//   - s3.Store: Amazon S3 with range reads and streaming uploads
//   - minio.Store: MinIO and other S3-compatible storage
//
// # Custom Implementations
//
// Implement the BlobStore interface to support custom storage backends:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)            // Open for reading
//	    Create(ctx, name) (WritableBlob, error)  // Create for streaming writes
//	    Put(ctx, name, data) error               // Atomic write
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// For cloud backends, ReadRange should issue ranged reads so partial loads
// avoid fetching the whole blob.
package blobstore
