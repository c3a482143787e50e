package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/organizer/internal/logging"
)

// Scope schemes.
const (
	SchemeFile = "file"
	SchemeS3   = "s3"
)

// LocalOpener creates a filesystem backend rooted at root.
type LocalOpener func(root string) (Backend, error)

// BucketOpener creates an object-store backend for a bucket.
type BucketOpener func(ctx context.Context, bucket string) (Backend, error)

// Drivers are the constructors the router uses to instantiate backends on
// first use. A nil opener disables that scope family.
type Drivers struct {
	Local  LocalOpener
	Bucket BucketOpener
}

// Location is a resolved scope or file key: the backend that serves it and
// the backend-relative key.
type Location struct {
	Backend Backend
	Scheme  string
	Root    string // filesystem root or bucket name
	Key     string // slash-separated, no leading slash
}

// URI returns the external identifier for a backend key under the same
// root, suitable as a file key for later stages.
func (l Location) URI(key string) string {
	if l.Scheme == SchemeS3 {
		return "s3://" + l.Root + "/" + key
	}
	return filepath.Join(l.Root, filepath.FromSlash(key))
}

// Resolver maps a scope or file key to its Location.
type Resolver interface {
	Resolve(ctx context.Context, uri string) (Location, error)
}

// Router resolves scope URIs to backends, caching one backend per
// filesystem root or bucket.
type Router struct {
	mu      sync.RWMutex
	drivers Drivers
	locals  map[string]Backend // volume root -> backend
	buckets map[string]Backend // bucket -> backend
}

// NewRouter creates a Router using the given drivers.
func NewRouter(drivers Drivers) *Router {
	return &Router{
		drivers: drivers,
		locals:  make(map[string]Backend),
		buckets: make(map[string]Backend),
	}
}

// Resolve parses uri and returns the backend serving it. Accepted forms are
// s3://bucket/prefix, file:///abs/path and plain filesystem paths.
func (r *Router) Resolve(ctx context.Context, uri string) (Location, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Location{}, fmt.Errorf("%w: empty scope", ErrUnsupportedScope)
	}

	if strings.Contains(uri, "://") {
		u, err := url.Parse(uri)
		if err != nil {
			return Location{}, fmt.Errorf("%w: %v", ErrUnsupportedScope, err)
		}
		switch u.Scheme {
		case SchemeS3:
			return r.resolveBucket(ctx, u.Host, strings.Trim(path.Clean("/"+u.Path), "/"))
		case SchemeFile:
			return r.resolveLocal(u.Path)
		default:
			return Location{}, fmt.Errorf("%w: scheme %q", ErrUnsupportedScope, u.Scheme)
		}
	}
	return r.resolveLocal(uri)
}

func (r *Router) resolveLocal(p string) (Location, error) {
	if r.drivers.Local == nil {
		return Location{}, fmt.Errorf("%w: local scopes disabled", ErrUnsupportedScope)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return Location{}, fmt.Errorf("resolve %s: %w", p, err)
	}
	root := filepath.VolumeName(abs) + string(filepath.Separator)
	key := filepath.ToSlash(strings.TrimPrefix(abs, root))

	b, err := r.cached(r.locals, root, func() (Backend, error) {
		return r.drivers.Local(root)
	})
	if err != nil {
		return Location{}, err
	}
	return Location{Backend: b, Scheme: SchemeFile, Root: root, Key: key}, nil
}

func (r *Router) resolveBucket(ctx context.Context, bucket, key string) (Location, error) {
	if r.drivers.Bucket == nil {
		return Location{}, fmt.Errorf("%w: object store not configured", ErrUnsupportedScope)
	}
	if bucket == "" {
		return Location{}, fmt.Errorf("%w: missing bucket", ErrUnsupportedScope)
	}
	b, err := r.cached(r.buckets, bucket, func() (Backend, error) {
		return r.drivers.Bucket(ctx, bucket)
	})
	if err != nil {
		return Location{}, err
	}
	return Location{Backend: b, Scheme: SchemeS3, Root: bucket, Key: key}, nil
}

func (r *Router) cached(m map[string]Backend, name string, open func() (Backend, error)) (Backend, error) {
	r.mu.RLock()
	b, ok := m[name]
	r.mu.RUnlock()
	if ok {
		return b, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := m[name]; ok {
		return b, nil
	}
	b, err := open()
	if err != nil {
		return nil, fmt.Errorf("open backend %s: %w", name, err)
	}
	m[name] = b
	logging.Debug("storage backend opened",
		zap.String("root", name),
		zap.String("type", b.Type()))
	return b, nil
}

// Close closes all backend connections.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range []map[string]Backend{r.locals, r.buckets} {
		for name, b := range m {
			if err := b.Close(); err != nil {
				logging.Warn("close storage backend", zap.String("root", name), zap.Error(err))
			}
			delete(m, name)
		}
	}
	return nil
}
