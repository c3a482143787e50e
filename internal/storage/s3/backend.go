// Package s3 provides an S3-compatible storage backend using the AWS SDK.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/organizer/internal/logging"
	"github.com/fruitsalade/fruitsalade/organizer/internal/metrics"
	"github.com/fruitsalade/fruitsalade/organizer/internal/storage"
)

// Config holds S3 connection settings shared by every bucket.
type Config struct {
	Endpoint  string `json:"endpoint"` // empty = AWS
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region"`
	UseSSL    bool   `json:"use_ssl"`
}

// S3Backend implements storage.Backend for one bucket.
type S3Backend struct {
	client   *s3.Client
	bucket   string
	pageSize int32
}

// NewBackend creates an S3 backend for bucket.
func NewBackend(ctx context.Context, cfg Config, bucket string) (*S3Backend, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
			o.UsePathStyle = true
		}
	})

	logging.Debug("s3 backend created",
		zap.String("bucket", bucket),
		zap.String("endpoint", cfg.Endpoint))

	return &S3Backend{client: client, bucket: bucket, pageSize: 1000}, nil
}

// Opener returns a storage.BucketOpener bound to cfg.
func Opener(cfg Config) storage.BucketOpener {
	return func(ctx context.Context, bucket string) (storage.Backend, error) {
		return NewBackend(ctx, cfg, bucket)
	}
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// ListPrefix normalizes a scope key into an object listing prefix.
func ListPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// HiddenKey reports whether any segment of key below prefix is dot-prefixed.
func HiddenKey(prefix, key string) bool {
	rel := strings.TrimPrefix(key, prefix)
	for _, seg := range strings.Split(rel, "/") {
		if storage.IsHidden(seg) {
			return true
		}
	}
	return false
}

// Walk lists every object under prefix in key order. Keys ending in "/" are
// folder markers and are skipped.
func (b *S3Backend) Walk(ctx context.Context, prefix string, opts storage.WalkOptions, fn storage.WalkFunc) error {
	start := time.Now()
	listPrefix := ListPrefix(prefix)

	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(listPrefix),
		MaxKeys: aws.Int32(b.pageSize),
	})

	err := func() error {
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return fmt.Errorf("list %s/%s: %w", b.bucket, listPrefix, err)
			}
			for _, obj := range page.Contents {
				key := aws.ToString(obj.Key)
				if key == "" || strings.HasSuffix(key, "/") {
					continue
				}
				if !opts.IncludeHidden && HiddenKey(listPrefix, key) {
					continue
				}
				e := storage.Entry{
					Kind: storage.EntryFile,
					Key:  key,
					Name: path.Base(key),
					Size: aws.ToInt64(obj.Size),
				}
				if obj.LastModified != nil {
					e.ModifiedAt = obj.LastModified.UTC()
				}
				if err := fn(e); err != nil {
					return err
				}
			}
		}
		return nil
	}()

	if errors.Is(err, storage.ErrStopWalk) {
		err = nil
	}
	metrics.RecordStoreOperation("s3", "list_objects", time.Since(start), err == nil)
	return err
}

// GetObject retrieves an object from S3 with range support.
func (b *S3Backend) GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error) {
	start := time.Now()

	input := &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}
	if r := RangeHeader(offset, length); r != "" {
		input.Range = aws.String(r)
	}

	result, err := b.client.GetObject(ctx, input)
	if err != nil {
		metrics.RecordStoreOperation("s3", "get_object", time.Since(start), false)
		return nil, 0, fmt.Errorf("get object %s: %w", key, err)
	}
	metrics.RecordStoreOperation("s3", "get_object", time.Since(start), true)

	return result.Body, aws.ToInt64(result.ContentLength), nil
}

// RangeHeader builds an HTTP Range value, or "" for a whole-object read.
func RangeHeader(offset, length int64) string {
	switch {
	case length > 0:
		return fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	case offset > 0:
		return fmt.Sprintf("bytes=%d-", offset)
	default:
		return ""
	}
}

// Type returns "s3".
func (b *S3Backend) Type() string { return "s3" }

// Close is a no-op; the SDK client holds no closable resources.
func (b *S3Backend) Close() error { return nil }
