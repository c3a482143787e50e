// Package rules holds the fixed lookup tables that drive classification,
// folder planning, EXIF decoding and admission estimates. Tables are loaded
// once at start and treated as read-only afterwards.
package rules

import (
	_ "embed"
	"fmt"
	"mime"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRules []byte

// maxAlternatives bounds the alternative paths offered per suggestion.
const maxAlternatives = 5

// Category maps extensions and MIME types to a primary category.
type Category struct {
	Name       string   `yaml:"name"`
	Extensions []string `yaml:"extensions"`
	MimeTypes  []string `yaml:"mime_types"`
}

// Pattern is a named filename regex.
type Pattern struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`

	re *regexp.Regexp
}

// Match reports whether s matches the compiled pattern.
func (p Pattern) Match(s string) bool {
	return p.re != nil && p.re.MatchString(s)
}

// KeywordRule fires when any keyword is contained in the haystack.
type KeywordRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// ContentRules are evaluated against extracted text.
type ContentRules struct {
	MinTextLength int           `yaml:"min_text_length"`
	Rules         []KeywordRule `yaml:"rules"`
}

// ExifHints derive a subcategory from camera fields.
type ExifHints struct {
	Extensions         []string `yaml:"extensions"`
	ProfessionalMakes  []string `yaml:"professional_makes"`
	ProfessionalModels []string `yaml:"professional_models"`
	MobileMakes        []string `yaml:"mobile_makes"`
	ScreenshotSoftware []string `yaml:"screenshot_software"`
}

// SizeHint matches files whose size lies in [MinSize, MaxSize].
type SizeHint struct {
	Name       string   `yaml:"name"`
	MinSize    *int64   `yaml:"min_size"`
	MaxSize    *int64   `yaml:"max_size"`
	Extensions []string `yaml:"extensions"`
}

// Match reports whether a file of the given size and extension matches.
func (h SizeHint) Match(size int64, ext string) bool {
	if h.MinSize != nil && size < *h.MinSize {
		return false
	}
	if h.MaxSize != nil && size > *h.MaxSize {
		return false
	}
	return len(h.Extensions) == 0 || contains(h.Extensions, ext)
}

// Marker adds Tag when the file name contains Contains.
type Marker struct {
	Contains string `yaml:"contains"`
	Tag      string `yaml:"tag"`
}

// TagRules drive tag generation.
type TagRules struct {
	BusinessKeywords []string `yaml:"business_keywords"`
	PersonalKeywords []string `yaml:"personal_keywords"`
	DatePattern      string   `yaml:"date_pattern"`
	FilenameMarkers  []Marker `yaml:"filename_markers"`

	dateRe *regexp.Regexp
}

// HasDate reports whether name contains a formatted date.
func (t TagRules) HasDate(name string) bool {
	return t.dateRe != nil && t.dateRe.MatchString(name)
}

type PhotoFolders struct {
	ScreenshotMarkers       []string `yaml:"screenshot_markers"`
	ProfessionalSubcategory string   `yaml:"professional_subcategory"`
	PeopleMarkers           []string `yaml:"people_markers"`
	Events                  []string `yaml:"events"`
	Alternatives            []string `yaml:"alternatives"`
}

type DocumentFolders struct {
	Types            map[string]string `yaml:"types"`
	BusinessKeywords []string          `yaml:"business_keywords"`
	PersonalKeywords []string          `yaml:"personal_keywords"`
	Alternatives     []string          `yaml:"alternatives"`
}

type VideoFolders struct {
	RecordingMarkers []string `yaml:"recording_markers"`
	PersonalKeywords []string `yaml:"personal_keywords"`
	WorkKeywords     []string `yaml:"work_keywords"`
}

type AudioFolders struct {
	MusicMarkers     []string `yaml:"music_markers"`
	PodcastMarkers   []string `yaml:"podcast_markers"`
	RecordingMarkers []string `yaml:"recording_markers"`
}

// FolderRules drive destination planning.
type FolderRules struct {
	Photos             PhotoFolders    `yaml:"photos"`
	Documents          DocumentFolders `yaml:"documents"`
	Videos             VideoFolders    `yaml:"videos"`
	Audio              AudioFolders    `yaml:"audio"`
	MaxAlternatives    int             `yaml:"max_alternatives"`
	MaxTagAlternatives int             `yaml:"max_tag_alternatives"`
}

// ExifCodes decode numeric EXIF fields into labels.
type ExifCodes struct {
	Flash           map[int]string `yaml:"flash"`
	ExposureProgram map[int]string `yaml:"exposure_program"`
	MeteringMode    map[int]string `yaml:"metering_mode"`
	WhiteBalance    map[int]string `yaml:"white_balance"`
}

type ScopeRules struct {
	PreviewExtensions []string          `yaml:"preview_extensions"`
	PreviewMaxBytes   int64             `yaml:"preview_max_bytes"`
	PreviewChars      int               `yaml:"preview_chars"`
	MimeTypes         map[string]string `yaml:"mime_types"`
}

type ExifRules struct {
	SupportedExtensions []string `yaml:"supported_extensions"`
	HeaderExtensions    []string `yaml:"header_extensions"`
	HeaderBytes         int64    `yaml:"header_bytes"`
}

type SizeMultiplier struct {
	AboveBytes float64 `yaml:"above_bytes"`
	Multiplier float64 `yaml:"multiplier"`
}

type GuardRailRules struct {
	CPUWarnPercent        float64          `yaml:"cpu_warn_percent"`
	MinMemoryMB           float64          `yaml:"min_memory_mb"`
	LargeAverageFileBytes float64          `yaml:"large_average_file_bytes"`
	LargeScopeFiles       int              `yaml:"large_scope_files"`
	CommonTypes           []string         `yaml:"common_types"`
	SizeMultipliers       []SizeMultiplier `yaml:"size_multipliers"`
}

// Tier is a service level's limits and per-file estimates.
type Tier struct {
	MaxFilesPerJob int     `yaml:"max_files_per_job"`
	MaxJobsPerDay  int     `yaml:"max_jobs_per_day"`
	MaxStorageGB   float64 `yaml:"max_storage_gb"`
	SecondsPerFile float64 `yaml:"seconds_per_file"`
	CostPerFile    float64 `yaml:"cost_per_file"`
}

// Rules is the full rule set.
type Rules struct {
	Categories       []Category      `yaml:"categories"`
	FilenamePatterns []Pattern       `yaml:"filename_patterns"`
	Content          ContentRules    `yaml:"content"`
	ExifHints        ExifHints       `yaml:"exif_hints"`
	SizeHints        []SizeHint      `yaml:"size_hints"`
	Tags             TagRules        `yaml:"tags"`
	Folders          FolderRules     `yaml:"folders"`
	ExifCodes        ExifCodes       `yaml:"exif_codes"`
	Scope            ScopeRules      `yaml:"scope"`
	Exif             ExifRules       `yaml:"exif"`
	GuardRail        GuardRailRules  `yaml:"guardrail"`
	Tiers            map[string]Tier `yaml:"tiers"`

	byExt  map[string]string
	byMime map[string]string
}

// Default returns the embedded rule set. It panics if the embedded document
// is invalid, which is a build defect.
func Default() *Rules {
	r, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("rules: embedded defaults: %v", err))
	}
	return r
}

// Load reads a rule set from path, or returns the embedded defaults when
// path is empty.
func Load(path string) (*Rules, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML rule document.
func Parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rules) compile() error {
	if len(r.Categories) == 0 {
		return fmt.Errorf("rules: no categories defined")
	}
	r.byExt = make(map[string]string)
	r.byMime = make(map[string]string)
	for _, c := range r.Categories {
		if c.Name == "" {
			return fmt.Errorf("rules: category with empty name")
		}
		for _, ext := range c.Extensions {
			ext = strings.ToLower(ext)
			if _, dup := r.byExt[ext]; !dup {
				r.byExt[ext] = c.Name
			}
		}
		for _, mt := range c.MimeTypes {
			if _, dup := r.byMime[mt]; !dup {
				r.byMime[mt] = c.Name
			}
		}
	}

	for i := range r.FilenamePatterns {
		p := &r.FilenamePatterns[i]
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return fmt.Errorf("rules: filename pattern %q: %w", p.Name, err)
		}
		p.re = re
	}

	if r.Tags.DatePattern != "" {
		re, err := regexp.Compile(r.Tags.DatePattern)
		if err != nil {
			return fmt.Errorf("rules: date pattern: %w", err)
		}
		r.Tags.dateRe = re
	}

	if _, ok := r.Tiers["Standard"]; !ok {
		return fmt.Errorf("rules: tier Standard is required")
	}
	for name, t := range r.Tiers {
		if t.MaxFilesPerJob <= 0 || t.MaxJobsPerDay <= 0 {
			return fmt.Errorf("rules: tier %s: limits must be positive", name)
		}
		if t.SecondsPerFile < 0 || t.CostPerFile < 0 {
			return fmt.Errorf("rules: tier %s: estimates must be non-negative", name)
		}
	}
	if r.Folders.MaxAlternatives <= 0 || r.Folders.MaxAlternatives > maxAlternatives {
		r.Folders.MaxAlternatives = maxAlternatives
	}
	if r.Folders.MaxTagAlternatives < 0 {
		r.Folders.MaxTagAlternatives = 0
	}
	return nil
}

// CategoryFor resolves a primary category from an extension (with leading
// dot) and a MIME type. Extension wins over MIME. ok is false when neither
// matches.
func (r *Rules) CategoryFor(ext, mimeType string) (string, bool) {
	if c, ok := r.byExt[strings.ToLower(ext)]; ok {
		return c, true
	}
	if mimeType != "" {
		if c, ok := r.byMime[mimeType]; ok {
			return c, true
		}
	}
	return "", false
}

// MimeType resolves a MIME type for ext: the rule table first, then the
// platform registry, then application/octet-stream.
func (r *Rules) MimeType(ext string) string {
	ext = strings.ToLower(ext)
	if mt, ok := r.Scope.MimeTypes[ext]; ok {
		return mt
	}
	if ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			if i := strings.IndexByte(mt, ';'); i >= 0 {
				mt = strings.TrimSpace(mt[:i])
			}
			return mt
		}
	}
	return "application/octet-stream"
}

// IsSupported reports whether ext belongs to any category.
func (r *Rules) IsSupported(ext string) bool {
	_, ok := r.byExt[strings.ToLower(ext)]
	return ok
}

// TierFor returns the named tier, falling back to Standard.
func (r *Rules) TierFor(name string) (string, Tier) {
	if t, ok := r.Tiers[name]; ok {
		return name, t
	}
	return "Standard", r.Tiers["Standard"]
}

// SizeMultiplier returns the estimate multiplier for an average file size.
// Thresholds are checked in descending order as listed.
func (r *Rules) SizeMultiplier(avgBytes float64) float64 {
	for _, m := range r.GuardRail.SizeMultipliers {
		if avgBytes > m.AboveBytes {
			return m.Multiplier
		}
	}
	return 1.0
}

// Decode looks up code in table, returning the fallback label when absent.
func Decode(table map[int]string, code int, fallback string) string {
	if v, ok := table[code]; ok {
		return v
	}
	return fmt.Sprintf("%s %d", fallback, code)
}

// ContainsAny reports whether haystack contains any of needles.
func ContainsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// HasExt reports whether ext is in list, case-insensitively.
func HasExt(list []string, ext string) bool {
	return contains(list, strings.ToLower(ext))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
