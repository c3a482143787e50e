// Package quota tracks per-user daily job usage for the admission gate.
// Usage resets at midnight UTC.
package quota

import (
	"context"
	"sync"
	"time"

	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
)

const bytesPerGB = 1 << 30

// Recorder accumulates usage after a job completes.
type Recorder interface {
	RecordJob(ctx context.Context, userID string, files int, bytes int64) error
}

// Static reports fixed usage and counts recorded jobs in memory. It backs
// single-process deployments and tests.
type Static struct {
	mu    sync.Mutex
	base  models.Usage
	days  map[string]map[string]*models.Usage // day -> user -> usage
	clock func() time.Time
}

// NewStatic creates a Static tracker that starts every user at base.
func NewStatic(base models.Usage) *Static {
	return &Static{
		base:  base,
		days:  make(map[string]map[string]*models.Usage),
		clock: time.Now,
	}
}

// Usage implements guardrail.UsageTracker.
func (s *Static) Usage(_ context.Context, userID string) (models.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.base
	if rec, ok := s.days[dayKey(s.clock())][userID]; ok {
		u.FilesProcessedToday += rec.FilesProcessedToday
		u.JobsRunToday += rec.JobsRunToday
		u.StorageUsedGB += rec.StorageUsedGB
	}
	return u, nil
}

// RecordJob implements Recorder. Earlier days are dropped.
func (s *Static) RecordJob(_ context.Context, userID string, files int, bytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := dayKey(s.clock())
	users, ok := s.days[day]
	if !ok {
		s.days = map[string]map[string]*models.Usage{day: {}}
		users = s.days[day]
	}
	rec, ok := users[userID]
	if !ok {
		rec = &models.Usage{}
		users[userID] = rec
	}
	rec.FilesProcessedToday += files
	rec.JobsRunToday++
	rec.StorageUsedGB += float64(bytes) / bytesPerGB
	return nil
}

func dayKey(t time.Time) string {
	return t.UTC().Format("20060102")
}
