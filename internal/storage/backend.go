// Package storage defines the Backend interface for scope discovery and
// content reads, and routes scope URIs to the backend that serves them.
package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"time"
)

var (
	// ErrStopWalk may be returned by a WalkFunc to end a walk early.
	// Walk then returns nil.
	ErrStopWalk = errors.New("stop walk")

	// ErrUnsupportedScope is returned for URIs no backend can serve.
	ErrUnsupportedScope = errors.New("unsupported scope")
)

// EntryKind distinguishes what a walk visited.
type EntryKind int

const (
	EntryFile EntryKind = iota
	EntryDir
	EntryError
)

// Entry is one item visited during a walk. Keys are slash-separated and
// relative to the backend root.
type Entry struct {
	Kind       EntryKind
	Key        string
	Name       string
	Size       int64
	ModifiedAt time.Time
	CreatedAt  *time.Time
	Mode       fs.FileMode // zero for object stores
	Err        error       // set for EntryError
}

// WalkOptions control traversal.
type WalkOptions struct {
	// IncludeHidden visits dot-prefixed files and descends into dot-prefixed
	// directories.
	IncludeHidden bool
}

// WalkFunc is called for each entry in walk order.
type WalkFunc func(Entry) error

// Lister walks every entry under a prefix in a stable, total order: the same
// snapshot always yields the same sequence.
type Lister interface {
	Walk(ctx context.Context, prefix string, opts WalkOptions, fn WalkFunc) error
}

// ObjectReader reads object content with optional range support.
type ObjectReader interface {
	// GetObject retrieves an object by key. If offset=0 and length=0, the
	// entire object is returned. The returned size is the number of bytes
	// the reader will yield.
	GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error)
}

// Backend is the interface for storage backends (local filesystem, S3, MinIO).
type Backend interface {
	Lister
	ObjectReader

	// Type returns the backend type identifier ("local", "s3", "minio").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// IsHidden reports whether a file or directory name is dot-prefixed.
func IsHidden(name string) bool {
	return len(name) > 1 && name[0] == '.' && name != ".."
}
