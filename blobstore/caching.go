package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// CachingStore wraps a remote Store with a local read cache. Snapshot blobs
// are immutable and read whole, so the cache holds complete blobs as
// lz4-compressed files: cheap to decompress on a warm open, and much
// smaller than the raw snapshot on disk.
type CachingStore struct {
	inner    Store
	cacheDir string

	mu sync.Mutex // serializes cache fills per store
}

// NewCachingStore creates a caching wrapper storing compressed copies under
// cacheDir.
func NewCachingStore(inner Store, cacheDir string) (*CachingStore, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, err
	}
	return &CachingStore{inner: inner, cacheDir: cacheDir}, nil
}

// cachePath maps a blob name to its cache file. Names are hashed so remote
// key separators never escape the cache directory.
func (s *CachingStore) cachePath(name string) string {
	sum := sha256.Sum256([]byte(name))
	return filepath.Join(s.cacheDir, hex.EncodeToString(sum[:16])+".lz4")
}

// Open returns the cached blob, filling the cache from the remote store on
// a miss.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	path := s.cachePath(name)

	if data, err := readCompressed(path); err == nil {
		return &memoryBlob{data: data}, nil
	}

	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	data, err := ReadAll(ctx, b)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	err = writeCompressed(path, data)
	s.mu.Unlock()
	if err != nil {
		// A failed cache fill degrades to uncached reads.
		_ = os.Remove(path)
	}

	return &memoryBlob{data: data}, nil
}

// Put writes through to the remote store and invalidates the cached copy.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	_ = os.Remove(s.cachePath(name))
	return s.inner.Put(ctx, name, data)
}

// Delete removes the blob remotely and from the cache.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	_ = os.Remove(s.cachePath(name))
	return s.inner.Delete(ctx, name)
}

// List delegates to the remote store.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func writeCompressed(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	zw := lz4.NewWriter(tmp)
	if _, err := zw.Write(data); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	tmpName = ""
	return nil
}

func readCompressed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, lz4.NewReader(f)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
