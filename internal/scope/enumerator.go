// Package scope enumerates candidate files under a scope one page at a time.
// Pages are addressed by opaque cursors over a stable walk order, so a
// caller can resume exactly where the previous page ended.
package scope

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/organizer/internal/logging"
	"github.com/fruitsalade/fruitsalade/organizer/internal/metrics"
	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
	"github.com/fruitsalade/fruitsalade/organizer/internal/rules"
	"github.com/fruitsalade/fruitsalade/organizer/internal/storage"
)

// ErrInvalidLimit is returned for a negative page limit.
var ErrInvalidLimit = errors.New("limit must be positive")

// Size buckets for the per-page histogram.
const (
	bucketTiny   = 10 * 1024
	bucketSmall  = 100 * 1024
	bucketMedium = 1024 * 1024
	bucketLarge  = 10 * 1024 * 1024
)

// Options configure an Enumerator.
type Options struct {
	DefaultLimit int // used when a request has limit 0
	MaxLimit     int // larger requests are capped
}

// Enumerator lists files page by page. It holds no per-scope state; the
// cursor carries the resumption point.
type Enumerator struct {
	resolver storage.Resolver
	rules    *rules.Rules
	opts     Options
	now      func() time.Time
}

// New creates an Enumerator.
func New(resolver storage.Resolver, r *rules.Rules, opts Options) *Enumerator {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 1000
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	return &Enumerator{
		resolver: resolver,
		rules:    r,
		opts:     opts,
		now:      time.Now,
	}
}

// NextPage returns the files that follow req.Cursor in walk order. Filters
// apply before pagination, so Limit bounds matching files rather than raw
// entries. Unreadable entries are skipped and counted in ScanStats.
func (e *Enumerator) NextPage(ctx context.Context, req models.ScopeRequest) (*models.Page, error) {
	start := time.Now()
	page, err := e.nextPage(ctx, req)
	if err != nil {
		metrics.RecordStage(metrics.StageEnumerate, "error", time.Since(start))
		logging.WithContext(ctx).Warn("enumeration failed",
			zap.String("scope", req.Scope),
			zap.Error(err))
		return nil, err
	}
	metrics.RecordStage(metrics.StageEnumerate, "ok", time.Since(start))
	metrics.RecordEnumeration(len(page.Files), page.ScanStats.ErrorsEncountered)
	logging.WithContext(ctx).Info("listed files",
		zap.String("scope", req.Scope),
		zap.Int("files", page.TotalFound),
		zap.Bool("has_more", page.HasMore),
		zap.Int("errors", page.ScanStats.ErrorsEncountered))
	return page, nil
}

func (e *Enumerator) nextPage(ctx context.Context, req models.ScopeRequest) (*models.Page, error) {
	limit, err := e.limit(req.Limit)
	if err != nil {
		return nil, err
	}

	loc, err := e.resolver.Resolve(ctx, req.Scope)
	if err != nil {
		return nil, err
	}

	fp := fingerprint(canonical(loc), req.Filters)
	pos, err := decodeCursor(req.Cursor, fp)
	if err != nil {
		return nil, err
	}

	m := newMatcher(req.Filters)
	page := &models.Page{
		Files: []models.FileRecord{},
		ScopeInfo: models.ScopeInfo{
			Scope:            req.Scope,
			ScanTime:         e.now().UTC(),
			FileTypes:        map[string]int{},
			SizeDistribution: map[string]int{},
		},
	}

	matched := 0
	var entries []storage.Entry
	err = loc.Backend.Walk(ctx, loc.Key, storage.WalkOptions{IncludeHidden: req.Filters.IncludeHidden}, func(ent storage.Entry) error {
		switch ent.Kind {
		case storage.EntryDir:
			page.ScanStats.DirectoriesScanned++
			return nil
		case storage.EntryError:
			page.ScanStats.ErrorsEncountered++
			logging.WithContext(ctx).Warn("skipping unreadable entry",
				zap.String("key", ent.Key),
				zap.Error(ent.Err))
			return nil
		}

		page.ScanStats.EntriesScanned++
		if !m.match(ent) {
			page.ScanStats.FilesFiltered++
			return nil
		}
		if matched < pos {
			matched++
			return nil
		}
		if len(entries) == limit {
			page.HasMore = true
			return storage.ErrStopWalk
		}
		entries = append(entries, ent)
		matched++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", req.Scope, err)
	}

	for _, ent := range entries {
		rec := e.record(ctx, loc, ent)
		page.Files = append(page.Files, rec)
		page.TotalSize += rec.Size
		page.ScopeInfo.FileTypes[rec.Extension]++
		page.ScopeInfo.SizeDistribution[sizeBucket(rec.Size)]++
	}
	page.TotalFound = len(page.Files)
	if page.HasMore {
		page.NextCursor = encodeCursor(pos+len(page.Files), fp)
	}
	return page, nil
}

func (e *Enumerator) limit(requested int) (int, error) {
	switch {
	case requested < 0:
		return 0, fmt.Errorf("%w: %d", ErrInvalidLimit, requested)
	case requested == 0:
		return e.opts.DefaultLimit, nil
	case requested > e.opts.MaxLimit:
		return e.opts.MaxLimit, nil
	default:
		return requested, nil
	}
}

func (e *Enumerator) record(ctx context.Context, loc storage.Location, ent storage.Entry) models.FileRecord {
	ext := strings.ToLower(path.Ext(ent.Name))
	rec := models.FileRecord{
		Path:         loc.URI(ent.Key),
		Name:         ent.Name,
		RelativePath: relativeKey(loc.Key, ent.Key),
		Size:         ent.Size,
		ModifiedAt:   ent.ModifiedAt,
		CreatedAt:    ent.CreatedAt,
		Type:         "file",
		Extension:    ext,
		IsSupported:  e.rules.IsSupported(ext),
		MimeType:     e.rules.MimeType(ext),
	}
	if ent.Mode != 0 {
		rec.Permissions = fmt.Sprintf("%03o", ent.Mode.Perm())
	}
	if e.wantsPreview(ext, ent.Size) {
		rec.Preview = e.preview(ctx, loc.Backend, ent.Key)
	}
	return rec
}

func (e *Enumerator) wantsPreview(ext string, size int64) bool {
	sr := e.rules.Scope
	return size > 0 && size < sr.PreviewMaxBytes && rules.HasExt(sr.PreviewExtensions, ext)
}

// preview returns the leading characters of a small text file, or "" when
// the content cannot be read or is not valid UTF-8.
func (e *Enumerator) preview(ctx context.Context, r storage.ObjectReader, key string) string {
	rc, _, err := r.GetObject(ctx, key, 0, e.rules.Scope.PreviewMaxBytes)
	if err != nil {
		logging.WithContext(ctx).Debug("preview unavailable", zap.String("key", key), zap.Error(err))
		return ""
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, e.rules.Scope.PreviewMaxBytes))
	if err != nil || !utf8.Valid(data) {
		return ""
	}
	return truncateRunes(string(data), e.rules.Scope.PreviewChars)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func relativeKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, strings.TrimSuffix(prefix, "/")+"/")
}

func canonical(loc storage.Location) string {
	return loc.Scheme + "://" + loc.Root + "/" + loc.Key
}

func sizeBucket(size int64) string {
	switch {
	case size < bucketTiny:
		return "tiny"
	case size < bucketSmall:
		return "small"
	case size < bucketMedium:
		return "medium"
	case size < bucketLarge:
		return "large"
	default:
		return "huge"
	}
}

// matcher applies the extension and size filters. Hidden entries are
// excluded by the backend walk.
type matcher struct {
	exts    map[string]bool
	minSize *int64
	maxSize *int64
}

func newMatcher(f models.Filters) matcher {
	m := matcher{minSize: f.MinSize, maxSize: f.MaxSize}
	if exts := normalizeExtensions(f.Extensions); len(exts) > 0 {
		m.exts = make(map[string]bool, len(exts))
		for _, ext := range exts {
			m.exts[ext] = true
		}
	}
	return m
}

func (m matcher) match(ent storage.Entry) bool {
	if m.exts != nil && !m.exts[strings.ToLower(path.Ext(ent.Name))] {
		return false
	}
	if m.minSize != nil && ent.Size < *m.minSize {
		return false
	}
	if m.maxSize != nil && ent.Size > *m.maxSize {
		return false
	}
	return true
}
