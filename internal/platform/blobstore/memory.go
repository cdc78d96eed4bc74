package blobstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data []byte
	meta Object
}

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject), now: time.Now}
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Object, 0, len(s.objects))
	for path, obj := range s.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, obj.meta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, path string) ([]byte, Object, error) {
	path, err := cleanPath(path)
	if err != nil {
		return nil, Object{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if !ok {
		return nil, Object{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return append([]byte(nil), obj.data...), obj.meta, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, path string, data []byte, opts PutOptions) (Object, error) {
	path, err := cleanPath(path)
	if err != nil {
		return Object{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[path]; exists && !opts.AllowOverwrite {
		return Object{}, fmt.Errorf("%w: %s", ErrExists, path)
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	meta := Object{Path: path, Size: int64(len(data)), ContentType: contentType, Updated: s.now().UTC()}
	s.objects[path] = memoryObject{data: append([]byte(nil), data...), meta: meta}
	return meta, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, path string) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[path]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	delete(s.objects, path)
	return nil
}
