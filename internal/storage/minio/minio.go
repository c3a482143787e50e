// Package minio provides a storage backend for MinIO and other
// S3-compatible servers using minio-go.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fruitsalade/fruitsalade/organizer/internal/metrics"
	"github.com/fruitsalade/fruitsalade/organizer/internal/storage"
	s3backend "github.com/fruitsalade/fruitsalade/organizer/internal/storage/s3"
)

// Backend implements storage.Backend for one bucket.
type Backend struct {
	api    *minio.Client
	bucket string
}

// New creates a MinIO backend for bucket. Endpoint is host:port without scheme.
func New(cfg s3backend.Config, bucket string) (*Backend, error) {
	endpoint := cfg.Endpoint
	if i := strings.Index(endpoint, "://"); i >= 0 {
		endpoint = endpoint[i+3:]
	}
	if endpoint == "" {
		return nil, fmt.Errorf("minio: endpoint is required")
	}

	api, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Backend{api: api, bucket: bucket}, nil
}

// Opener returns a storage.BucketOpener bound to cfg.
func Opener(cfg s3backend.Config) storage.BucketOpener {
	return func(_ context.Context, bucket string) (storage.Backend, error) {
		return New(cfg, bucket)
	}
}

// Walk lists every object under prefix in key order.
func (b *Backend) Walk(ctx context.Context, prefix string, opts storage.WalkOptions, fn storage.WalkFunc) error {
	start := time.Now()
	listPrefix := s3backend.ListPrefix(prefix)

	// Cancelling stops the listing goroutine when the walk ends early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := func() error {
		for obj := range b.api.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
			Prefix:    listPrefix,
			Recursive: true,
		}) {
			if obj.Err != nil {
				return fmt.Errorf("list %s/%s: %w", b.bucket, listPrefix, obj.Err)
			}
			if strings.HasSuffix(obj.Key, "/") {
				continue
			}
			if !opts.IncludeHidden && s3backend.HiddenKey(listPrefix, obj.Key) {
				continue
			}
			if err := fn(storage.Entry{
				Kind:       storage.EntryFile,
				Key:        obj.Key,
				Name:       path.Base(obj.Key),
				Size:       obj.Size,
				ModifiedAt: obj.LastModified.UTC(),
			}); err != nil {
				return err
			}
		}
		return ctx.Err()
	}()

	if errors.Is(err, storage.ErrStopWalk) {
		err = nil
	}
	metrics.RecordStoreOperation("minio", "list_objects", time.Since(start), err == nil)
	return err
}

// GetObject retrieves an object with range support.
func (b *Backend) GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error) {
	start := time.Now()

	opts := minio.GetObjectOptions{}
	if offset > 0 || length > 0 {
		end := int64(0)
		if length > 0 {
			end = offset + length - 1
		}
		if err := opts.SetRange(offset, end); err != nil {
			return nil, 0, fmt.Errorf("range %s: %w", key, err)
		}
	}

	obj, err := b.api.GetObject(ctx, b.bucket, key, opts)
	if err != nil {
		metrics.RecordStoreOperation("minio", "get_object", time.Since(start), false)
		return nil, 0, fmt.Errorf("get object %s: %w", key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		metrics.RecordStoreOperation("minio", "get_object", time.Since(start), false)
		return nil, 0, fmt.Errorf("stat object %s: %w", key, err)
	}
	metrics.RecordStoreOperation("minio", "get_object", time.Since(start), true)

	// For ranged reads the server reports the partial content length.
	return obj, info.Size, nil
}

// Type returns "minio".
func (b *Backend) Type() string { return "minio" }

// Close is a no-op; minio-go keeps no per-client resources to release.
func (b *Backend) Close() error { return nil }
