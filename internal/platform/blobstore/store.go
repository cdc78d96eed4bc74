// Package blobstore stores content objects by hierarchical path.
package blobstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no object exists at a path.
	ErrNotFound = errors.New("blobstore: object not found")
	// ErrExists is returned when a write that forbids overwrite hits an existing object.
	ErrExists = errors.New("blobstore: object already exists")
	// ErrInvalidPath is returned for empty or absolute paths.
	ErrInvalidPath = errors.New("blobstore: invalid object path")
)

// Object describes a stored object.
type Object struct {
	Path        string
	Size        int64
	ContentType string
	Updated     time.Time
}

// PutOptions controls a write.
type PutOptions struct {
	AllowOverwrite bool
	ContentType    string
	CacheControl   string
}

// Store is a flat key-value blob store. List returns objects in lexicographic
// path order.
type Store interface {
	List(ctx context.Context, prefix string) ([]Object, error)
	Get(ctx context.Context, path string) ([]byte, Object, error)
	Put(ctx context.Context, path string, data []byte, opts PutOptions) (Object, error)
	Delete(ctx context.Context, path string) error
}

func cleanPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" || strings.HasPrefix(path, "/") || strings.Contains(path, "..") {
		return "", ErrInvalidPath
	}
	return path, nil
}
