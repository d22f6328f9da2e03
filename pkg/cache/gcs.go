package cache

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSBackend stores payloads as objects under a bucket prefix.
type GCSBackend struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// GCSOptions configures NewGCSBackend.
type GCSOptions struct {
	Bucket string
	Prefix string
	// CredentialsFile is a service account key. Application default
	// credentials are used when empty.
	CredentialsFile string
}

// NewGCSBackend creates a storage client for the bucket.
func NewGCSBackend(ctx context.Context, opts GCSOptions) (*GCSBackend, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	return &GCSBackend{
		client: client,
		bucket: client.Bucket(opts.Bucket),
		prefix: strings.Trim(opts.Prefix, "/"),
	}, nil
}

// Close releases the client.
func (b *GCSBackend) Close() error { return b.client.Close() }

func (b *GCSBackend) Name() string { return "gcs" }

func (b *GCSBackend) objectName(key string) string {
	if b.prefix == "" {
		return key
	}
	return path.Join(b.prefix, key)
}

// Put streams the payload; the object becomes visible only when the writer
// is closed successfully.
func (b *GCSBackend) Put(ctx context.Context, key string, data []byte) error {
	w := b.bucket.Object(b.objectName(key)).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (b *GCSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.bucket.Object(b.objectName(key)).NewReader(ctx)
	if stderrors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *GCSBackend) Delete(ctx context.Context, key string) error {
	err := b.bucket.Object(b.objectName(key)).Delete(ctx)
	if stderrors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	return err
}

func (b *GCSBackend) List(ctx context.Context) ([]ObjectInfo, error) {
	q := &storage.Query{}
	if b.prefix != "" {
		q.Prefix = b.prefix + "/"
	}
	it := b.bucket.Objects(ctx, q)

	var out []ObjectInfo
	for {
		attrs, err := it.Next()
		if stderrors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ObjectInfo{
			Key:  strings.TrimPrefix(attrs.Name, q.Prefix),
			Size: attrs.Size,
		})
	}
	return out, nil
}
