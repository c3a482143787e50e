// Package pipeline drives an organization job: the admission gate runs once,
// then the scope is paged through and every file is extracted, classified
// and planned by a bounded worker pool. The result is a manifest of
// per-file outcomes; nothing is moved.
package pipeline

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/organizer/internal/logging"
	"github.com/fruitsalade/fruitsalade/organizer/internal/metrics"
	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
	"github.com/fruitsalade/fruitsalade/organizer/internal/quota"
	"github.com/fruitsalade/fruitsalade/organizer/internal/retry"
	"github.com/fruitsalade/fruitsalade/organizer/internal/scope"
	"github.com/fruitsalade/fruitsalade/organizer/internal/storage"
)

// Gate admits or rejects a job.
type Gate interface {
	Evaluate(ctx context.Context, req models.GuardRailRequest) models.Verdict
}

// Pager returns one page of a scope.
type Pager interface {
	NextPage(ctx context.Context, req models.ScopeRequest) (*models.Page, error)
}

// Extractor reads EXIF metadata for a file key.
type Extractor interface {
	Extract(ctx context.Context, fileKey string) models.ExifResult
}

// Classifier categorizes one file.
type Classifier interface {
	Classify(req models.ClassifyRequest) models.Classification
}

// Planner suggests a destination folder.
type Planner interface {
	Plan(req models.PlanRequest) models.PathSuggestion
}

// Job statuses.
const (
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// Per-file outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

// JobRequest describes one organization job.
type JobRequest struct {
	UserID         string                 `json:"user_id"`
	OrgID          string                 `json:"org_id"`
	Scope          string                 `json:"scope"`
	Tier           string                 `json:"tier"`
	Filters        models.Filters         `json:"filters,omitempty"`
	PageLimit      int                    `json:"limit,omitempty"`
	JournalContext *models.JournalContext `json:"journal_context,omitempty"`
}

// Entry is the outcome for one file.
type Entry struct {
	FileKey      string   `json:"file_key"`
	Outcome      string   `json:"outcome"`
	Size         int64    `json:"size"`
	Category     string   `json:"category,omitempty"`
	Subcategory  string   `json:"subcategory,omitempty"`
	Confidence   float64  `json:"confidence"`
	Destination  string   `json:"destination,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	Notes        []string `json:"notes,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Summary counts outcomes across a job.
type Summary struct {
	Files      int   `json:"files"`
	OK         int   `json:"ok"`
	Degraded   int   `json:"degraded"`
	Failed     int   `json:"failed"`
	Pages      int   `json:"pages"`
	TotalBytes int64 `json:"total_bytes"`
}

// Manifest is the job result. Entries are in scope walk order.
type Manifest struct {
	JobID      string         `json:"job_id"`
	UserID     string         `json:"user_id"`
	Scope      string         `json:"scope"`
	Status     string         `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Verdict    models.Verdict `json:"verdict"`
	Summary    Summary        `json:"summary"`
	Entries    []Entry        `json:"entries"`
	Error      string         `json:"error,omitempty"`
}

// Config tunes a Runner.
type Config struct {
	Workers   int
	PageLimit int
	Retry     retry.Config
}

// Runner executes jobs. It is safe for concurrent use; each Run owns its
// own manifest.
type Runner struct {
	gate      Gate
	pager     Pager
	extractor Extractor
	classify  Classifier
	planner   Planner
	usage     quota.Recorder
	cfg       Config
}

// New creates a Runner. usage may be nil.
func New(gate Gate, pager Pager, ex Extractor, cl Classifier, pl Planner, usage quota.Recorder, cfg Config) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Retry.MaxAttempts == 0 && cfg.Retry.InitialWait == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return &Runner{
		gate:      gate,
		pager:     pager,
		extractor: ex,
		classify:  cl,
		planner:   pl,
		usage:     usage,
		cfg:       cfg,
	}
}

// NewJobID returns a time-ordered job identifier.
func NewJobID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Run executes a job. A rejected job returns its manifest with a nil
// error. A page that still fails after retries ends the job with status
// failed; the manifest keeps the entries processed so far.
func (r *Runner) Run(ctx context.Context, req JobRequest) (*Manifest, error) {
	jobID, err := NewJobID()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}
	ctx = logging.WithFields(ctx, zap.String("job_id", jobID))
	log := logging.WithContext(ctx)

	m := &Manifest{
		JobID:     jobID,
		UserID:    req.UserID,
		Scope:     req.Scope,
		StartedAt: time.Now().UTC(),
		Entries:   []Entry{},
	}
	defer func() {
		m.FinishedAt = time.Now().UTC()
		metrics.RecordJob(m.Status)
		log.Info("job finished",
			zap.String("status", m.Status),
			zap.Int("files", m.Summary.Files),
			zap.Int("degraded", m.Summary.Degraded),
			zap.Int("failed", m.Summary.Failed),
			zap.Duration("duration", m.FinishedAt.Sub(m.StartedAt)))
	}()

	m.Verdict = r.gate.Evaluate(ctx, models.GuardRailRequest{
		UserID: req.UserID,
		OrgID:  req.OrgID,
		Scope:  req.Scope,
		Tier:   req.Tier,
	})
	if !m.Verdict.OK {
		m.Status = StatusRejected
		return m, nil
	}

	cursor := ""
	for {
		page, err := r.fetch(ctx, req, cursor)
		if err != nil {
			m.Status = StatusFailed
			if ctx.Err() != nil {
				m.Status = StatusCanceled
			}
			m.Error = err.Error()
			return m, err
		}

		entries := r.processPage(ctx, page.Files, req.JournalContext)
		m.Summary.Pages++
		for _, e := range entries {
			m.add(e)
		}
		log.Info("page processed",
			zap.Int("page", m.Summary.Pages),
			zap.Int("files", len(entries)),
			zap.Bool("has_more", page.HasMore))

		if ctx.Err() != nil {
			m.Status = StatusCanceled
			m.Error = ctx.Err().Error()
			return m, ctx.Err()
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	m.Status = StatusCompleted
	if r.usage != nil {
		if err := r.usage.RecordJob(ctx, req.UserID, m.Summary.Files, m.Summary.TotalBytes); err != nil {
			log.Warn("failed to record usage", zap.Error(err))
		}
	}
	return m, nil
}

func (m *Manifest) add(e Entry) {
	m.Entries = append(m.Entries, e)
	m.Summary.Files++
	m.Summary.TotalBytes += e.Size
	switch e.Outcome {
	case OutcomeOK:
		m.Summary.OK++
	case OutcomeDegraded:
		m.Summary.Degraded++
	default:
		m.Summary.Failed++
	}
}

// fetch requests one page, re-issuing the same cursor on transient errors.
func (r *Runner) fetch(ctx context.Context, req JobRequest, cursor string) (*models.Page, error) {
	sr := models.ScopeRequest{
		Scope:   req.Scope,
		Cursor:  cursor,
		Limit:   req.PageLimit,
		Filters: req.Filters,
	}
	if sr.Limit == 0 {
		sr.Limit = r.cfg.PageLimit
	}
	return retry.Do(ctx, r.cfg.Retry, "next_page", func() (*models.Page, error) {
		page, err := r.pager.NextPage(ctx, sr)
		if err != nil && !permanent(err) && ctx.Err() == nil {
			return nil, retry.Transient(err)
		}
		return page, err
	})
}

// permanent reports errors that a retry with the same request cannot fix.
func permanent(err error) bool {
	return errors.Is(err, scope.ErrInvalidCursor) ||
		errors.Is(err, scope.ErrCursorMismatch) ||
		errors.Is(err, scope.ErrInvalidLimit) ||
		errors.Is(err, storage.ErrUnsupportedScope) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// processPage fans the page out to the worker pool. Entries keep page order.
func (r *Runner) processPage(ctx context.Context, files []models.FileRecord, jc *models.JournalContext) []Entry {
	out := make([]Entry, len(files))
	work := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < min(r.cfg.Workers, len(files)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				out[idx] = r.processFile(ctx, files[idx], jc)
			}
		}()
	}

	for i := range files {
		if ctx.Err() != nil {
			out[i] = Entry{FileKey: files[i].Path, Size: files[i].Size, Outcome: OutcomeFailed, Error: ctx.Err().Error()}
			continue
		}
		work <- i
	}
	close(work)
	wg.Wait()
	return out
}

// processFile runs extract, classify and plan for one file. Stage faults
// come back as degraded results; only a panic escaping a stage fails the
// file.
func (r *Runner) processFile(ctx context.Context, f models.FileRecord, jc *models.JournalContext) (e Entry) {
	e = Entry{FileKey: f.Path, Size: f.Size}
	defer func() {
		if p := recover(); p != nil {
			e.Outcome = OutcomeFailed
			e.Error = fmt.Sprint(p)
			logging.WithContext(ctx).Error("file processing panicked",
				zap.String("file_key", f.Path),
				zap.Any("panic", p))
		}
	}()

	ex := r.extractor.Extract(ctx, f.Path)
	var exif *models.ExifRecord
	if ex.HasData {
		exif = &ex.ExifRecord
	}

	c := r.classify.Classify(models.ClassifyRequest{
		FileKey:     f.Path,
		Metadata:    models.FileMetadata{Size: f.Size, MimeType: f.MimeType},
		TextContent: f.Preview,
		Exif:        exif,
	})
	s := r.planner.Plan(models.PlanRequest{
		Classification: c,
		Exif:           exif,
		JournalContext: jc,
	})

	e.Category = c.PrimaryCategory
	e.Subcategory = c.Subcategory
	e.Confidence = c.Confidence
	e.Destination = s.PrimaryPath
	e.Alternatives = s.Alternatives
	e.Notes = append(append([]string{}, ex.ProcessingNotes...), c.Notes...)

	e.Outcome = OutcomeOK
	for _, msg := range []string{ex.Error, c.Error, s.Error} {
		if msg != "" {
			e.Outcome = OutcomeDegraded
			if e.Error == "" {
				e.Error = msg
			}
		}
	}
	if e.Destination == "" {
		e.Outcome = OutcomeFailed
	}
	return e
}
