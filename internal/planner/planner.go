// Package planner maps a classification to a destination folder path and a
// ranked list of alternatives. Each category has a priority-ordered rule
// chain and the first matching rule wins.
package planner

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fruitsalade/fruitsalade/organizer/internal/logging"
	"github.com/fruitsalade/fruitsalade/organizer/internal/metrics"
	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
	"github.com/fruitsalade/fruitsalade/organizer/internal/rules"
)

// Confidence reported for a rule-derived path.
const planConfidence = 0.8

// Option configures a Planner.
type Option func(*Planner)

// WithClock sets the clock used for current-year fallbacks.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

// Planner suggests destination folders. It is safe for concurrent use.
type Planner struct {
	rules *rules.Rules
	now   func() time.Time
}

// New creates a Planner.
func New(r *rules.Rules, opts ...Option) *Planner {
	p := &Planner{rules: r, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

// signals are the planning inputs shared by the primary path, the
// alternatives and the reasoning.
type signals struct {
	category    string
	subcategory string
	tags        []string
	haystack    string
	captured    *time.Time
	hasGPS      bool
	cameraMake  string
}

func (p *Planner) signals(c models.Classification, x *models.ExifRecord, jc *models.JournalContext) signals {
	s := signals{
		category:    c.PrimaryCategory,
		subcategory: c.Subcategory,
		tags:        c.Tags,
		captured:    x.Captured(),
		hasGPS:      x.HasGPS() || c.Location != nil,
	}
	if s.category == "" {
		s.category = models.CategoryUnknown
	}
	if s.captured == nil {
		s.captured = c.DateTaken.Ptr()
	}
	if x != nil {
		s.cameraMake = x.Camera.Make
	}

	words := append([]string{}, c.Tags...)
	if jc != nil {
		words = append(words, jc.Keywords...)
	}
	s.haystack = strings.ToLower(strings.Join(words, " "))
	return s
}

// Plan returns the primary path, alternatives and reasoning. It never fails:
// an internal fault yields Unsorted/<Category> with an error reasoning line.
func (p *Planner) Plan(req models.PlanRequest) (out models.PathSuggestion) {
	start := time.Now()
	c := req.Classification

	defer func() {
		if r := recover(); r != nil {
			out = p.unsorted(c.PrimaryCategory, fmt.Errorf("%v", r))
			logging.Error("folder planning panicked",
				zap.String("file_key", c.FileKey),
				zap.Any("panic", r))
			metrics.RecordStage(metrics.StagePlan, "error", time.Since(start))
		}
	}()

	s := p.signals(c, req.Exif, req.JournalContext)
	primary := p.primary(s)
	out = models.PathSuggestion{
		PrimaryPath:  primary,
		Alternatives: p.alternatives(s, primary),
		Reasoning:    reasoning(s, primary),
		Confidence:   planConfidence,
	}

	logging.Debug("planned folder",
		zap.String("file_key", c.FileKey),
		zap.String("category", s.category),
		zap.String("path", primary))
	metrics.RecordStage(metrics.StagePlan, "ok", time.Since(start))
	return out
}

// PrimaryPath returns only the primary destination. The classifier uses it
// to fill Classification.SuggestedFolder.
func (p *Planner) PrimaryPath(c models.Classification, x *models.ExifRecord, jc *models.JournalContext) string {
	return p.primary(p.signals(c, x, jc))
}

func (p *Planner) unsorted(category string, err error) models.PathSuggestion {
	if category == "" {
		category = models.CategoryUnknown
	}
	return models.PathSuggestion{
		PrimaryPath:  "Unsorted/" + title(category),
		Alternatives: []string{},
		Reasoning:    []string{"Error in path generation: " + err.Error()},
		Error:        err.Error(),
	}
}

func (p *Planner) primary(s signals) string {
	switch s.category {
	case models.CategoryPhotos:
		return p.photoPath(s)
	case models.CategoryDocuments:
		return p.documentPath(s)
	case models.CategoryVideos:
		return p.videoPath(s)
	case models.CategoryAudio:
		return p.audioPath(s)
	default:
		return genericPath(s)
	}
}

func (p *Planner) photoPath(s signals) string {
	f := p.rules.Folders.Photos
	switch {
	case s.subcategory == "screenshot" || anyTagContains(s.tags, f.ScreenshotMarkers):
		return "Photos/Screenshots"
	case s.subcategory != "" && s.subcategory == f.ProfessionalSubcategory:
		return "Photos/Professional"
	case s.captured != nil:
		return "Photos/" + monthBucket(*s.captured, "/")
	case s.hasGPS:
		return "Photos/Travel"
	case anyTagContains(s.tags, f.PeopleMarkers):
		return "Photos/People"
	}
	for _, ev := range f.Events {
		if strings.Contains(s.haystack, ev) {
			return "Photos/Events/" + title(ev)
		}
	}
	return fmt.Sprintf("Photos/Camera Roll/%d", p.now().Year())
}

func (p *Planner) documentPath(s signals) string {
	f := p.rules.Folders.Documents
	if dest, ok := f.Types[s.subcategory]; ok && s.subcategory != "" {
		return dest
	}
	switch {
	case rules.ContainsAny(s.haystack, f.BusinessKeywords):
		return "Documents/Work"
	case rules.ContainsAny(s.haystack, f.PersonalKeywords):
		return "Documents/Personal"
	}
	return fmt.Sprintf("Documents/%d", p.now().Year())
}

func (p *Planner) videoPath(s signals) string {
	f := p.rules.Folders.Videos
	switch {
	case s.subcategory == "recording" || rules.ContainsAny(s.haystack, f.RecordingMarkers):
		return "Videos/Recordings"
	case rules.ContainsAny(s.haystack, f.PersonalKeywords):
		return "Videos/Personal"
	case rules.ContainsAny(s.haystack, f.WorkKeywords):
		return "Videos/Work"
	case s.captured != nil:
		return fmt.Sprintf("Videos/%d", s.captured.Year())
	}
	return fmt.Sprintf("Videos/%d", p.now().Year())
}

func (p *Planner) audioPath(s signals) string {
	f := p.rules.Folders.Audio
	switch {
	case rules.ContainsAny(s.haystack, f.MusicMarkers):
		return "Music/Library"
	case rules.ContainsAny(s.haystack, f.PodcastMarkers):
		return "Audio/Podcasts"
	case rules.ContainsAny(s.haystack, f.RecordingMarkers):
		return "Audio/Recordings"
	}
	return "Audio/Files"
}

func genericPath(s signals) string {
	base := title(s.category)
	if s.subcategory != "" {
		return base + "/" + segment(s.subcategory)
	}
	for _, t := range s.tags {
		if !isDateTag(t) && t != s.category {
			return base + "/" + segment(t)
		}
	}
	return base
}

// alternatives returns up to MaxAlternatives unique paths other than primary:
// category fixtures, tag buckets, then current year and month buckets.
func (p *Planner) alternatives(s signals, primary string) []string {
	f := p.rules.Folders
	base := title(s.category)
	now := p.now()

	var cand []string
	switch s.category {
	case models.CategoryPhotos:
		cand = append(cand, f.Photos.Alternatives...)
		cand = append(cand, fmt.Sprintf("Photos/%d", now.Year()))
		if mk := strings.ReplaceAll(strings.TrimSpace(s.cameraMake), " ", ""); mk != "" {
			cand = append(cand, "Photos/By Camera/"+strings.ReplaceAll(mk, "/", "-"))
		}
	case models.CategoryDocuments:
		cand = append(cand, f.Documents.Alternatives...)
	}

	n := 0
	for _, t := range s.tags {
		if n == f.MaxTagAlternatives {
			break
		}
		if isDateTag(t) {
			continue
		}
		cand = append(cand, base+"/By Tag/"+segment(t))
		n++
	}

	cand = append(cand,
		fmt.Sprintf("%s/%d", base, now.Year()),
		base+"/"+monthBucket(now, "/"))

	out := make([]string, 0, f.MaxAlternatives)
	seen := map[string]bool{primary: true}
	for _, c := range cand {
		if len(out) == f.MaxAlternatives {
			break
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// reasoning explains which signals are visible in the chosen path.
func reasoning(s signals, path string) []string {
	lower := strings.ToLower(path)
	var out []string

	if strings.Contains(lower, s.category) {
		out = append(out, fmt.Sprintf("File classified as '%s' - using %s folder structure", s.category, s.category))
	}
	if s.subcategory != "" && containsWord(lower, s.subcategory) {
		out = append(out, fmt.Sprintf("Subcategory '%s' suggests specialized organization", s.subcategory))
	}
	if s.captured != nil && hasNumericSegment(path) {
		out = append(out, "Date from metadata used for chronological organization")
	}

	var influenced []string
	for _, t := range s.tags {
		if isDateTag(t) || t == s.category {
			continue
		}
		if strings.Contains(lower, strings.ReplaceAll(t, "_", " ")) {
			influenced = append(influenced, t)
		}
	}
	if len(influenced) > 0 {
		if len(influenced) > 3 {
			influenced = influenced[:3]
		}
		out = append(out, "Content tags influenced folder choice: "+strings.Join(influenced, ", "))
	}

	if s.hasGPS && strings.Contains(lower, "travel") {
		out = append(out, "GPS metadata suggests travel/location-based organization")
	}
	if len(out) == 0 {
		out = append(out, "Standard organization pattern applied based on file type")
	}
	return out
}

func monthBucket(t time.Time, sep string) string {
	return fmt.Sprintf("%d%s%02d-%s", t.Year(), sep, int(t.Month()), t.Month())
}

func isDateTag(t string) bool {
	return strings.HasPrefix(t, "year_") || strings.HasPrefix(t, "month_") || strings.HasPrefix(t, "day_")
}

func anyTagContains(tags, markers []string) bool {
	for _, t := range tags {
		if rules.ContainsAny(t, markers) {
			return true
		}
	}
	return false
}

// containsWord reports whether any underscore-separated word of name occurs
// in s.
func containsWord(s, name string) bool {
	for _, w := range strings.Split(name, "_") {
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func hasNumericSegment(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if seg != "" && strings.Trim(seg, "0123456789") == "" {
			return true
		}
	}
	return false
}

// segment turns a tag or subcategory into a folder name.
func segment(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "/", "-")
	return title(strings.TrimSpace(s))
}

// title upper-cases the first letter of each word. A Caser holds state, so
// one is created per call.
func title(s string) string {
	return cases.Title(language.English).String(s)
}
