package quota

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
)

// Schema creates the daily usage table used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS job_usage (
    user_id         TEXT NOT NULL,
    date            DATE NOT NULL,
    files_processed BIGINT NOT NULL DEFAULT 0,
    jobs_run        INTEGER NOT NULL DEFAULT 0,
    bytes_processed BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, date)
);
`

// Store keeps daily usage in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a usage store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the usage table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate job_usage: %w", err)
	}
	return nil
}

// Usage implements guardrail.UsageTracker. A user with no row today has
// zero usage.
func (s *Store) Usage(ctx context.Context, userID string) (models.Usage, error) {
	var files, bytes int64
	var jobs int
	err := s.db.QueryRowContext(ctx,
		`SELECT files_processed, jobs_run, bytes_processed
		 FROM job_usage WHERE user_id = $1 AND date = CURRENT_DATE`,
		userID).Scan(&files, &jobs, &bytes)
	if err == sql.ErrNoRows {
		return models.Usage{}, nil
	}
	if err != nil {
		return models.Usage{}, fmt.Errorf("get usage: %w", err)
	}
	return models.Usage{
		FilesProcessedToday: int(files),
		JobsRunToday:        jobs,
		StorageUsedGB:       float64(bytes) / bytesPerGB,
	}, nil
}

// RecordJob implements Recorder.
func (s *Store) RecordJob(ctx context.Context, userID string, files int, bytes int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_usage (user_id, date, files_processed, jobs_run, bytes_processed)
		 VALUES ($1, CURRENT_DATE, $2, 1, $3)
		 ON CONFLICT (user_id, date) DO UPDATE SET
			files_processed = job_usage.files_processed + EXCLUDED.files_processed,
			jobs_run = job_usage.jobs_run + 1,
			bytes_processed = job_usage.bytes_processed + EXCLUDED.bytes_processed`,
		userID, files, bytes)
	if err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	return nil
}

// CleanupOld removes usage rows older than the given duration.
func (s *Store) CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM job_usage WHERE date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup usage: %w", err)
	}
	return result.RowsAffected()
}
