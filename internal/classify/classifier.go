// Package classify fuses extension, filename, content, EXIF and size signals
// into a primary category, subcategory, tag set and confidence score.
//
// Scoring is an explicit evidence list: the base category lookup contributes
// 0.7 (or 0.1 when unmatched) and every refinement that fires adds its own
// weight. Confidence is the sum of the weights clamped to [0,1]. Refinements
// run in a fixed order and the last one that fires names the subcategory.
package classify

import (
	"fmt"
	"math"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/organizer/internal/logging"
	"github.com/fruitsalade/fruitsalade/organizer/internal/metrics"
	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
	"github.com/fruitsalade/fruitsalade/organizer/internal/planner"
	"github.com/fruitsalade/fruitsalade/organizer/internal/rules"
)

// Evidence weights.
const (
	WeightCategory  = 0.7
	WeightUnmatched = 0.1
	WeightFilename  = 0.1
	WeightContent   = 0.2
	WeightExif      = 0.1
	WeightSize      = 0.05
)

// Evidence signal names.
const (
	SignalExtension = "extension"
	SignalMime      = "mime"
	SignalUnmatched = "unmatched"
	SignalFilename  = "filename"
	SignalContent   = "content"
	SignalExif      = "exif"
	SignalSize      = "size"
)

// Classifier is stateless apart from its immutable rules and is safe for
// concurrent use.
type Classifier struct {
	rules   *rules.Rules
	planner *planner.Planner
}

// New creates a Classifier. The planner fills SuggestedFolder.
func New(r *rules.Rules, p *planner.Planner) *Classifier {
	return &Classifier{rules: r, planner: p}
}

// Score folds evidence into a confidence in [0,1]. The sum is rounded to
// four decimals so equal inputs always print the same value.
func Score(evidence []models.Evidence) float64 {
	var sum float64
	for _, e := range evidence {
		sum += e.Weight
	}
	sum = math.Max(0, math.Min(1, sum))
	return math.Round(sum*1e4) / 1e4
}

// Classify never fails. A fault inside classification keeps whatever was
// computed so far and records a note.
func (c *Classifier) Classify(req models.ClassifyRequest) (out models.Classification) {
	start := time.Now()
	out = models.Classification{
		FileKey:         req.FileKey,
		PrimaryCategory: models.CategoryUnknown,
		Tags:            []string{},
		Evidence:        []models.Evidence{},
		Notes:           []string{},
	}

	defer func() {
		if r := recover(); r != nil {
			out.Confidence = Score(out.Evidence)
			out.Notes = append(out.Notes, fmt.Sprintf("Classification error: %v", r))
			out.Error = fmt.Sprint(r)
			logging.Error("classification panicked",
				zap.String("file_key", req.FileKey),
				zap.Any("panic", r))
			metrics.RecordStage(metrics.StageClassify, "error", time.Since(start))
		}
	}()

	name := strings.ToLower(path.Base(filepath.ToSlash(req.FileKey)))
	ext := path.Ext(name)
	text := strings.ToLower(req.TextContent)

	c.base(&out, ext, req.Metadata.MimeType)
	c.refine(&out, name, ext, text, req)
	out.Confidence = Score(out.Evidence)

	if ts := req.Exif.Captured(); ts != nil {
		out.DateTaken = models.NewTimestamp(*ts)
	}
	if req.Exif.HasGPS() {
		g := req.Exif.GPS
		out.Location = &models.Location{
			Latitude:  g.Lat,
			Longitude: g.Lng,
			Altitude:  g.Altitude,
			Timestamp: g.Timestamp,
		}
	}

	tags := c.tags(name, text, req.Exif, out.PrimaryCategory)
	if req.TextContent != "" {
		desc, extra := describeContent(req.TextContent)
		out.ContentDescription = desc
		tags = append(tags, extra...)
	}
	out.Tags = dedupe(tags)

	out.SuggestedFolder = c.planner.PrimaryPath(out, req.Exif, nil)

	metrics.RecordStage(metrics.StageClassify, "ok", time.Since(start))
	metrics.RecordClassification(out.PrimaryCategory)
	logging.Debug("classified file",
		zap.String("file_key", req.FileKey),
		zap.String("category", out.PrimaryCategory),
		zap.String("subcategory", out.Subcategory),
		zap.Float64("confidence", out.Confidence))
	return out
}

func (c *Classifier) base(out *models.Classification, ext, mimeType string) {
	if cat, ok := c.rules.CategoryFor(ext, ""); ok {
		out.PrimaryCategory = cat
		out.Evidence = append(out.Evidence, models.Evidence{Signal: SignalExtension, Weight: WeightCategory, Detail: ext})
		return
	}
	if cat, ok := c.rules.CategoryFor("", mimeType); ok {
		out.PrimaryCategory = cat
		out.Evidence = append(out.Evidence, models.Evidence{Signal: SignalMime, Weight: WeightCategory, Detail: mimeType})
		return
	}
	out.Evidence = append(out.Evidence, models.Evidence{Signal: SignalUnmatched, Weight: WeightUnmatched})
}

// refine runs the subcategory refinements in order: filename, content,
// EXIF, size.
func (c *Classifier) refine(out *models.Classification, name, ext, text string, req models.ClassifyRequest) {
	apply := func(signal string, weight float64, sub, note string) {
		out.Subcategory = sub
		out.Evidence = append(out.Evidence, models.Evidence{Signal: signal, Weight: weight, Detail: sub})
		if note != "" {
			out.Notes = append(out.Notes, note+sub)
		}
	}

	if sub := c.byFilename(name); sub != "" {
		apply(SignalFilename, WeightFilename, sub, "Filename suggests: ")
	}
	if utf8.RuneCountInString(text) > c.rules.Content.MinTextLength {
		if sub := c.byContent(text); sub != "" {
			apply(SignalContent, WeightContent, sub, "Content suggests: ")
		}
	}
	if req.Exif != nil && req.Exif.HasData && rules.HasExt(c.rules.ExifHints.Extensions, ext) {
		if sub := c.byExif(req.Exif); sub != "" {
			apply(SignalExif, WeightExif, sub, "EXIF suggests: ")
		}
	}
	if sub := c.bySize(req.Metadata.Size, ext); sub != "" {
		apply(SignalSize, WeightSize, sub, "Size suggests: ")
	}
}

func (c *Classifier) byFilename(name string) string {
	for _, p := range c.rules.FilenamePatterns {
		if p.Match(name) {
			return p.Name
		}
	}
	return ""
}

func (c *Classifier) byContent(text string) string {
	for _, r := range c.rules.Content.Rules {
		if rules.ContainsAny(text, r.Keywords) {
			return r.Name
		}
	}
	return ""
}

func (c *Classifier) byExif(x *models.ExifRecord) string {
	h := c.rules.ExifHints
	mk := strings.ToLower(x.Camera.Make)
	model := strings.ToLower(x.Camera.Model)
	sw := strings.ToLower(x.Camera.Software)

	if rules.ContainsAny(mk, h.ProfessionalMakes) && rules.ContainsAny(model, h.ProfessionalModels) {
		return "professional_photo"
	}
	if rules.ContainsAny(mk, h.MobileMakes) {
		return "mobile_photo"
	}
	if rules.ContainsAny(sw, h.ScreenshotSoftware) {
		return "screenshot"
	}
	return ""
}

func (c *Classifier) bySize(size int64, ext string) string {
	for _, h := range c.rules.SizeHints {
		if h.Match(size, ext) {
			return h.Name
		}
	}
	return ""
}

func (c *Classifier) tags(name, text string, x *models.ExifRecord, category string) []string {
	tr := c.rules.Tags
	tags := []string{category}

	if ts := x.Captured(); ts != nil {
		tags = append(tags,
			fmt.Sprintf("year_%d", ts.Year()),
			"month_"+strings.ToLower(ts.Month().String()),
			"day_"+strings.ToLower(ts.Weekday().String()))
	}
	if x.HasGPS() {
		tags = append(tags, "geotagged")
	}

	if text != "" {
		for _, kw := range tr.BusinessKeywords {
			if strings.Contains(text, kw) {
				tags = append(tags, "business_"+kw)
			}
		}
		for _, kw := range tr.PersonalKeywords {
			if strings.Contains(text, kw) {
				tags = append(tags, "personal_"+kw)
			}
		}
	}

	if tr.HasDate(name) {
		tags = append(tags, "date_formatted")
	}
	for _, m := range tr.FilenameMarkers {
		if strings.Contains(name, m.Contains) {
			tags = append(tags, m.Tag)
		}
	}
	return tags
}

// describeContent summarizes text by word count.
func describeContent(text string) (string, []string) {
	n := len(strings.Fields(text))
	kind := "text"
	switch {
	case n > 1000:
		kind = "long_document"
	case n < 50:
		kind = "short_note"
	}
	return fmt.Sprintf("%s with %d words", kind, n), []string{kind, fmt.Sprintf("words_%d+", n/100*100)}
}

func dedupe(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
