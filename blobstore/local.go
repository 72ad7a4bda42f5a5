package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
)

// LocalStore implements BlobStore using the local file system.
//
// Blob names use forward slashes regardless of platform; nested names
// create subdirectories under the root.
type LocalStore struct {
	root string
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Open opens a blob for reading.
func (s *LocalStore) Open(_ context.Context, name string) (Blob, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		// *PathError wraps fs.ErrNotExist, so errors.Is(err, ErrNotFound)
		// already holds for missing files.
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &localBlob{f: f, size: fi.Size()}, nil
}

// Create creates a blob for streaming writes. Data lands in a temp file
// that is renamed over the target on Close, so readers never observe a
// partially written blob.
func (s *LocalStore) Create(_ context.Context, name string) (WritableBlob, error) {
	target := s.path(name)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &localWritableBlob{f: tmp, target: target}, nil
}

// Put writes a blob atomically.
func (s *LocalStore) Put(_ context.Context, name string, data []byte) error {
	target := s.path(name)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return atomic.WriteFile(target, bytes.NewReader(data))
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	err := os.Remove(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// List returns all blob names with the given prefix, sorted.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// A store whose root was never created is simply empty.
			if p == s.root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// localBlob implements Blob for local files.
type localBlob struct {
	f    *os.File
	size int64
}

func (b *localBlob) Size() int64 {
	return b.size
}

func (b *localBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if off >= b.size {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	if end := off + length; end > b.size || end < off {
		length = b.size - off
	}
	return io.NopCloser(io.NewSectionReader(b.f, off, length)), nil
}

func (b *localBlob) Close() error {
	return b.f.Close()
}

// localWritableBlob implements WritableBlob for local files.
type localWritableBlob struct {
	f      *os.File
	target string
}

func (w *localWritableBlob) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w *localWritableBlob) Sync() error {
	return w.f.Sync()
}

// Close flushes the temp file and renames it over the target.
func (w *localWritableBlob) Close() error {
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		_ = os.Remove(w.f.Name())
		return err
	}
	if err := w.f.Close(); err != nil {
		_ = os.Remove(w.f.Name())
		return err
	}
	if err := os.Rename(w.f.Name(), w.target); err != nil {
		_ = os.Remove(w.f.Name())
		return err
	}
	return nil
}

// Abort discards the temp file without publishing it.
func (w *localWritableBlob) Abort() error {
	_ = w.f.Close()
	return os.Remove(w.f.Name())
}
