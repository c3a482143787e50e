package scope

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/organizer/internal/logging"
	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
	"github.com/fruitsalade/fruitsalade/organizer/internal/storage"
)

// AnalyzeScope walks the whole scope with default filters and returns its
// size profile. It counts exactly the files a job over the scope would see.
func (e *Enumerator) AnalyzeScope(ctx context.Context, scope string) (*models.ScopeSummary, error) {
	start := time.Now()
	loc, err := e.resolver.Resolve(ctx, scope)
	if err != nil {
		return nil, err
	}

	s := &models.ScopeSummary{FileTypes: map[string]int{}}
	errs := 0
	err = loc.Backend.Walk(ctx, loc.Key, storage.WalkOptions{}, func(ent storage.Entry) error {
		switch ent.Kind {
		case storage.EntryError:
			errs++
			return nil
		case storage.EntryDir:
			return nil
		}

		s.FileCount++
		s.TotalSize += ent.Size

		ext := strings.ToLower(path.Ext(ent.Name))
		if ext != "" {
			s.FileTypes[strings.TrimPrefix(ext, ".")]++
		}
		if cat, ok := e.rules.CategoryFor(ext, ""); ok {
			switch cat {
			case models.CategoryPhotos, models.CategoryVideos, models.CategoryAudio:
				s.HasMediaFiles = true
			case models.CategoryDocuments, models.CategorySpreadsheets, models.CategoryPresentations:
				s.HasDocuments = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", scope, err)
	}

	if s.FileCount > 0 {
		s.AverageFileSize = float64(s.TotalSize) / float64(s.FileCount)
	}

	logging.WithContext(ctx).Debug("scope analyzed",
		zap.String("scope", scope),
		zap.Int("file_count", s.FileCount),
		zap.Int64("total_size", s.TotalSize),
		zap.Int("errors", errs),
		zap.Duration("duration", time.Since(start)))
	return s, nil
}
