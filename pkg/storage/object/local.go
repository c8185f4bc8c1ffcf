// Package object provides filesystem and in-memory object stores with the
// same listing and read surface as the S3 client.
package object

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ErrNotExist is returned by Get for unknown keys.
var ErrNotExist = os.ErrNotExist

// LocalStorage serves objects from a directory tree. Keys are slash-separated
// paths relative to the root; absolute keys are used as-is.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a local filesystem storage rooted at root. The root
// is not created: an input store that does not exist simply lists nothing.
func NewLocalStorage(root string) (*LocalStorage, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	return &LocalStorage{root: absRoot}, nil
}

// Get returns a reader for the object and its size.
func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	f, err := os.Open(s.fullPath(key))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat file: %w", err)
	}
	return f, info.Size(), nil
}

// List returns the regular files directly inside the directory named by
// prefix. Subdirectories are not descended into. A missing directory lists
// nothing.
func (s *LocalStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	dir := s.fullPath(prefix)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var results []ObjectInfo
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed between ReadDir and Info
		}
		results = append(results, ObjectInfo{
			Key:          path.Join(strings.TrimSuffix(prefix, "/"), e.Name()),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
	}
	return results, nil
}

func (s *LocalStorage) fullPath(key string) string {
	p := filepath.FromSlash(key)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.root, p)
}

// MemoryStorage implements an in-memory object store for testing.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
	meta    map[string]ObjectInfo
}

// NewMemoryStorage creates a new in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string][]byte),
		meta:    make(map[string]ObjectInfo),
	}
}

// PutAt stores data with an explicit modification time.
func (s *MemoryStorage) PutAt(key string, data []byte, modTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = data
	s.meta[key] = ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		LastModified: modTime,
	}
}

// Get returns a reader for the object.
func (s *MemoryStorage) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, 0, fmt.Errorf("object not found: %s: %w", key, ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// List lists objects whose key starts with prefix, sorted by key.
func (s *MemoryStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []ObjectInfo
	for key, info := range s.meta {
		if strings.HasPrefix(key, prefix) {
			results = append(results, info)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Key < results[j].Key
	})
	return results, nil
}
