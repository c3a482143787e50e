// Package local provides a local filesystem storage backend.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fruitsalade/fruitsalade/organizer/internal/metrics"
	"github.com/fruitsalade/fruitsalade/organizer/internal/storage"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath string `json:"root_path"`
}

// LocalBackend implements storage.Backend using the local filesystem.
type LocalBackend struct {
	rootPath string
}

// New creates a new local filesystem backend.
func New(cfg Config) (*LocalBackend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	info, err := os.Stat(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	return &LocalBackend{rootPath: cfg.RootPath}, nil
}

// Opener adapts New to storage.LocalOpener.
func Opener(root string) (storage.Backend, error) {
	return New(Config{RootPath: root})
}

func (b *LocalBackend) fullPath(key string) string {
	return filepath.Join(b.rootPath, filepath.FromSlash(key))
}

func (b *LocalBackend) keyFor(full string) string {
	rel, err := filepath.Rel(b.rootPath, full)
	if err != nil {
		return filepath.ToSlash(full)
	}
	return filepath.ToSlash(rel)
}

// Walk visits every entry under prefix in lexical order. Unreadable entries
// are reported as storage.EntryError and skipped.
func (b *LocalBackend) Walk(ctx context.Context, prefix string, opts storage.WalkOptions, fn storage.WalkFunc) error {
	start := time.Now()
	root := b.fullPath(prefix)

	info, err := os.Stat(root)
	if err != nil {
		metrics.RecordStoreOperation("local", "walk", time.Since(start), false)
		return fmt.Errorf("stat scope %s: %w", root, err)
	}
	if !info.IsDir() {
		metrics.RecordStoreOperation("local", "walk", time.Since(start), false)
		return fmt.Errorf("scope %s is not a directory", root)
	}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := b.keyFor(p)

		if walkErr != nil {
			if err := fn(storage.Entry{Kind: storage.EntryError, Key: key, Name: path.Base(key), Err: walkErr}); err != nil {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if p != root && !opts.IncludeHidden && storage.IsHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return fn(storage.Entry{Kind: storage.EntryDir, Key: key, Name: d.Name()})
		}
		if !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return fn(storage.Entry{Kind: storage.EntryError, Key: key, Name: d.Name(), Err: err})
		}
		return fn(storage.Entry{
			Kind:       storage.EntryFile,
			Key:        key,
			Name:       d.Name(),
			Size:       fi.Size(),
			ModifiedAt: fi.ModTime().UTC(),
			CreatedAt:  birthTime(p),
			Mode:       fi.Mode(),
		})
	})

	if errors.Is(err, storage.ErrStopWalk) {
		err = nil
	}
	metrics.RecordStoreOperation("local", "walk", time.Since(start), err == nil)
	return err
}

// GetObject reads a file from the local filesystem with range support.
func (b *LocalBackend) GetObject(_ context.Context, key string, offset, length int64) (io.ReadCloser, int64, error) {
	start := time.Now()
	rc, n, err := b.open(key, offset, length)
	metrics.RecordStoreOperation("local", "get_object", time.Since(start), err == nil)
	return rc, n, err
}

func (b *LocalBackend) open(key string, offset, length int64) (io.ReadCloser, int64, error) {
	full := b.fullPath(key)
	if rel, err := filepath.Rel(b.rootPath, full); err != nil || strings.HasPrefix(rel, "..") {
		return nil, 0, fmt.Errorf("key %s escapes backend root", key)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("open %s: is a directory", key)
	}

	remaining := info.Size() - offset
	if remaining < 0 {
		remaining = 0
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("seek %s: %w", key, err)
		}
	}

	if length > 0 && length < remaining {
		return &limitedReadCloser{
			Reader: io.LimitReader(f, length),
			Closer: f,
		}, length, nil
	}
	return f, remaining, nil
}

// Type returns "local".
func (b *LocalBackend) Type() string { return "local" }

// Close is a no-op for the local backend.
func (b *LocalBackend) Close() error { return nil }

type limitedReadCloser struct {
	io.Reader
	io.Closer
}
