// Package blobstore provides storage abstraction for index snapshots.
//
// Store is the interface for reading and writing snapshot blobs.
// Implementations must be safe for concurrent use.
//
// Built-in implementations:
//
//   - MemoryStore: in-memory, for tests
//   - LocalStore: local filesystem with mmap reads
//   - CachingStore: local compressed read cache in front of a remote store
//   - s3.Store: Amazon S3 with range reads and managed uploads
//   - minio.Store: MinIO and other S3-compatible storage
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// errors.Is(err, ErrNotFound). The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for storing immutable snapshot blobs.
type Store interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns all blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a snapshot blob.
type Blob interface {
	// ReadAt reads len(p) bytes starting at offset off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// Size returns the size of the blob in bytes.
	Size() int64

	io.Closer
}

// Mappable is an optional interface for Blobs that support memory mapping.
type Mappable interface {
	// Bytes returns the underlying byte slice. The slice is valid until
	// the Blob is closed. This is a zero-copy operation if supported.
	Bytes() ([]byte, error)
}

// ReadAll reads the full content of a blob, using the zero-copy path when
// the blob is Mappable. Mapped bytes are copied so the result outlives the
// blob.
func ReadAll(ctx context.Context, b Blob) ([]byte, error) {
	if m, ok := b.(Mappable); ok {
		mapped, err := m.Bytes()
		if err == nil {
			out := make([]byte, len(mapped))
			copy(out, mapped)
			return out, nil
		}
	}

	out := make([]byte, b.Size())
	if len(out) == 0 {
		return out, nil
	}
	n, err := b.ReadAt(ctx, out, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return out[:n], nil
}
