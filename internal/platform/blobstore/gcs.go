package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const defaultContentType = "text/markdown; charset=utf-8"

// GCSStore keeps objects in one Cloud Storage bucket.
type GCSStore struct {
	client *gcs.Client
	bucket string
}

// NewGCSStore binds a store to bucket.
func NewGCSStore(client *gcs.Client, bucket string) (*GCSStore, error) {
	if client == nil {
		return nil, errors.New("blobstore: storage client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("blobstore: bucket name is required")
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// List implements Store. Cloud Storage already lists in lexicographic order.
func (s *GCSStore) List(ctx context.Context, prefix string) ([]Object, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	var out []Object
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("blobstore: list %q: %w", prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		out = append(out, objectFromAttrs(attrs))
	}
}

// Get implements Store.
func (s *GCSStore) Get(ctx context.Context, path string) ([]byte, Object, error) {
	path, err := cleanPath(path)
	if err != nil {
		return nil, Object{}, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(path).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, Object{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, Object{}, fmt.Errorf("blobstore: open %s: %w", path, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, Object{}, fmt.Errorf("blobstore: read %s: %w", path, err)
	}
	return data, Object{
		Path:        path,
		Size:        reader.Attrs.Size,
		ContentType: reader.Attrs.ContentType,
		Updated:     reader.Attrs.LastModified,
	}, nil
}

// Put implements Store. Without AllowOverwrite the write carries a
// DoesNotExist precondition, so a concurrent writer to the same path fails.
func (s *GCSStore) Put(ctx context.Context, path string, data []byte, opts PutOptions) (Object, error) {
	path, err := cleanPath(path)
	if err != nil {
		return Object{}, err
	}
	obj := s.client.Bucket(s.bucket).Object(path)
	if !opts.AllowOverwrite {
		obj = obj.If(gcs.Conditions{DoesNotExist: true})
	}

	w := obj.NewWriter(ctx)
	w.ContentType = opts.ContentType
	if w.ContentType == "" {
		w.ContentType = defaultContentType
	}
	w.CacheControl = opts.CacheControl
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return Object{}, s.writeError(path, err)
	}
	if err := w.Close(); err != nil {
		return Object{}, s.writeError(path, err)
	}
	return objectFromAttrs(w.Attrs()), nil
}

// Delete implements Store.
func (s *GCSStore) Delete(ctx context.Context, path string) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}
	err = s.client.Bucket(s.bucket).Object(path).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("blobstore: delete %s: %w", path, err)
	}
	return nil
}

func (s *GCSStore) writeError(path string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	return fmt.Errorf("blobstore: write %s: %w", path, err)
}

func objectFromAttrs(attrs *gcs.ObjectAttrs) Object {
	if attrs == nil {
		return Object{}
	}
	return Object{
		Path:        attrs.Name,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Updated:     attrs.Updated,
	}
}
