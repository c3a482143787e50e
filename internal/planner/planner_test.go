package planner

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
	"github.com/fruitsalade/fruitsalade/organizer/internal/rules"
)

var fixedNow = time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)

func newPlanner() *Planner {
	return New(rules.Default(), WithClock(func() time.Time { return fixedNow }))
}

func captured(y int, m time.Month, d int) *models.ExifRecord {
	t := time.Date(y, m, d, 14, 30, 25, 0, time.UTC)
	return &models.ExifRecord{HasData: true, CapturedAt: models.NewTimestamp(t)}
}

func TestPhotoRuleChain(t *testing.T) {
	p := newPlanner()
	gps := &models.ExifRecord{HasData: true, GPS: &models.GPS{Lat: 1, Lng: 2}}

	tests := []struct {
		name string
		c    models.Classification
		x    *models.ExifRecord
		want string
	}{
		{"screenshot subcategory", models.Classification{Subcategory: "screenshot"}, captured(2023, 8, 15), "Photos/Screenshots"},
		{"screenshot tag", models.Classification{Tags: []string{"old_screenshot"}}, nil, "Photos/Screenshots"},
		{"professional", models.Classification{Subcategory: "professional_photo"}, captured(2023, 8, 15), "Photos/Professional"},
		{"dated", models.Classification{Subcategory: "photo"}, captured(2023, 8, 15), "Photos/2023/08-August"},
		{"date beats gps", models.Classification{}, &models.ExifRecord{HasData: true, CapturedAt: captured(2021, 1, 2).CapturedAt, GPS: gps.GPS}, "Photos/2021/01-January"},
		{"gps", models.Classification{}, gps, "Photos/Travel"},
		{"people", models.Classification{Tags: []string{"personal_family"}}, nil, "Photos/People"},
		{"event", models.Classification{Tags: []string{"wedding"}}, nil, "Photos/Events/Wedding"},
		{"fallback", models.Classification{Tags: []string{"photos"}}, nil, "Photos/Camera Roll/2025"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.c.PrimaryCategory = models.CategoryPhotos
			got := p.Plan(models.PlanRequest{Classification: tt.c, Exif: tt.x})
			assert.Equal(t, tt.want, got.PrimaryPath)
			assert.Equal(t, tt.want, p.PrimaryPath(tt.c, tt.x, nil))
		})
	}
}

func TestDateTakenStandsInForExif(t *testing.T) {
	p := newPlanner()
	ts := time.Date(2022, 12, 24, 0, 0, 0, 0, time.UTC)
	c := models.Classification{PrimaryCategory: models.CategoryPhotos, DateTaken: models.NewTimestamp(ts)}
	assert.Equal(t, "Photos/2022/12-December", p.Plan(models.PlanRequest{Classification: c}).PrimaryPath)
}

func TestDocumentRuleChain(t *testing.T) {
	p := newPlanner()
	tests := []struct {
		sub  string
		tags []string
		jc   *models.JournalContext
		want string
	}{
		{"invoice", nil, nil, "Documents/Financial/Invoices"},
		{"contract", nil, nil, "Documents/Legal/Contracts"},
		{"resume", nil, nil, "Documents/Personal/Resume"},
		{"draft", []string{"business_meeting"}, nil, "Documents/Work"},
		{"", []string{"personal_family"}, nil, "Documents/Personal"},
		{"", nil, &models.JournalContext{Keywords: []string{"Home renovation"}}, "Documents/Personal"},
		{"", []string{"documents"}, nil, "Documents/2025"},
	}
	for _, tt := range tests {
		c := models.Classification{PrimaryCategory: models.CategoryDocuments, Subcategory: tt.sub, Tags: tt.tags}
		got := p.Plan(models.PlanRequest{Classification: c, JournalContext: tt.jc})
		assert.Equal(t, tt.want, got.PrimaryPath, "sub=%q tags=%v", tt.sub, tt.tags)
	}
}

func TestVideoAndAudioRuleChains(t *testing.T) {
	p := newPlanner()
	plan := func(cat, sub string, tags []string, x *models.ExifRecord) string {
		c := models.Classification{PrimaryCategory: cat, Subcategory: sub, Tags: tags}
		return p.Plan(models.PlanRequest{Classification: c, Exif: x}).PrimaryPath
	}

	assert.Equal(t, "Videos/Recordings", plan("videos", "recording", nil, nil))
	assert.Equal(t, "Videos/Recordings", plan("videos", "", []string{"screen_recording"}, nil))
	assert.Equal(t, "Videos/Personal", plan("videos", "", []string{"personal_family"}, nil))
	assert.Equal(t, "Videos/Work", plan("videos", "", []string{"presentation"}, nil))
	assert.Equal(t, "Videos/2019", plan("videos", "large_video", []string{"videos"}, captured(2019, 5, 1)))
	assert.Equal(t, "Videos/2025", plan("videos", "", []string{"videos"}, nil))

	assert.Equal(t, "Music/Library", plan("audio", "", []string{"album_track"}, nil))
	assert.Equal(t, "Audio/Podcasts", plan("audio", "", []string{"podcast"}, nil))
	assert.Equal(t, "Audio/Recordings", plan("audio", "", []string{"voice"}, nil))
	assert.Equal(t, "Audio/Files", plan("audio", "", []string{"audio"}, nil))
}

func TestGenericPaths(t *testing.T) {
	p := newPlanner()
	plan := func(cat, sub string, tags []string) string {
		c := models.Classification{PrimaryCategory: cat, Subcategory: sub, Tags: tags}
		return p.Plan(models.PlanRequest{Classification: c}).PrimaryPath
	}

	assert.Equal(t, "Archives/Large Archive", plan("archives", "large_archive", nil))
	assert.Equal(t, "Spreadsheets/Final Version", plan("spreadsheets", "", []string{"final_version", "spreadsheets", "year_2020"}))
	assert.Equal(t, "Presentations", plan("presentations", "", []string{"month_may", "presentations"}))
	assert.Equal(t, "Unknown", plan("", "", nil))
	assert.Equal(t, "Unknown/Download", plan("unknown", "download", nil))
}

func TestAlternatives(t *testing.T) {
	p := newPlanner()
	x := captured(2023, 8, 15)
	x.Camera.Make = "Canon Inc"
	c := models.Classification{
		PrimaryCategory: models.CategoryPhotos,
		Tags:            []string{"day_tuesday", "geotagged", "month_august", "photos", "year_2023"},
	}

	got := p.Plan(models.PlanRequest{Classification: c, Exif: x})
	assert.Equal(t, "Photos/2023/08-August", got.PrimaryPath)
	assert.Equal(t, []string{
		"Photos/All Photos",
		"Photos/Unsorted",
		"Photos/2025",
		"Photos/By Camera/CanonInc",
		"Photos/By Tag/Geotagged",
	}, got.Alternatives)
	assert.Equal(t, 0.8, got.Confidence)
}

func TestAlternativesExcludePrimaryAndAreUnique(t *testing.T) {
	p := newPlanner()
	inputs := []models.Classification{
		{PrimaryCategory: "documents", Tags: []string{"documents"}},
		{PrimaryCategory: "photos", Tags: []string{"photos"}},
		{PrimaryCategory: "videos", Tags: []string{"videos"}},
		{PrimaryCategory: "archives", Tags: []string{"archives"}},
		{PrimaryCategory: "audio"},
		{PrimaryCategory: "unknown", Tags: []string{"a", "b", "c", "d", "e"}},
	}
	for _, c := range inputs {
		got := p.Plan(models.PlanRequest{Classification: c})
		require.NotEmpty(t, got.PrimaryPath)
		assert.NotEqual(t, '/', rune(got.PrimaryPath[0]))
		assert.LessOrEqual(t, len(got.Alternatives), 5)
		assert.NotContains(t, got.Alternatives, got.PrimaryPath, c.PrimaryCategory)

		seen := map[string]bool{}
		for _, a := range got.Alternatives {
			assert.False(t, seen[a], "duplicate %s", a)
			seen[a] = true
		}
	}
}

func TestReasoning(t *testing.T) {
	p := newPlanner()

	got := p.Plan(models.PlanRequest{
		Classification: models.Classification{PrimaryCategory: "photos", Subcategory: "photo"},
		Exif:           captured(2023, 8, 15),
	})
	assert.Equal(t, []string{
		"File classified as 'photos' - using photos folder structure",
		"Subcategory 'photo' suggests specialized organization",
		"Date from metadata used for chronological organization",
	}, got.Reasoning)

	got = p.Plan(models.PlanRequest{
		Classification: models.Classification{PrimaryCategory: "photos"},
		Exif:           &models.ExifRecord{HasData: true, GPS: &models.GPS{}},
	})
	assert.Contains(t, got.Reasoning, "GPS metadata suggests travel/location-based organization")

	got = p.Plan(models.PlanRequest{
		Classification: models.Classification{PrimaryCategory: "spreadsheets", Tags: []string{"final_version"}},
	})
	assert.Contains(t, got.Reasoning, "Content tags influenced folder choice: final_version")

	got = p.Plan(models.PlanRequest{
		Classification: models.Classification{PrimaryCategory: "audio", Tags: []string{"podcast"}},
	})
	assert.Equal(t, []string{
		"File classified as 'audio' - using audio folder structure",
		"Content tags influenced folder choice: podcast",
	}, got.Reasoning)

	got = p.Plan(models.PlanRequest{
		Classification: models.Classification{PrimaryCategory: "audio", Tags: []string{"song"}},
	})
	assert.Equal(t, []string{"Standard organization pattern applied based on file type"}, got.Reasoning)
}

func TestPlanIsIdempotent(t *testing.T) {
	p := newPlanner()
	req := models.PlanRequest{
		Classification: models.Classification{PrimaryCategory: "photos", Tags: []string{"photos", "geotagged"}},
		Exif:           captured(2023, 8, 15),
	}
	a, err := json.Marshal(p.Plan(req))
	require.NoError(t, err)
	b, err := json.Marshal(p.Plan(req))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPlanRecoversToUnsorted(t *testing.T) {
	r := rules.Default()
	r.Folders.Photos.Events = nil
	p := New(r, WithClock(func() time.Time { panic("clock unavailable") }))

	got := p.Plan(models.PlanRequest{Classification: models.Classification{PrimaryCategory: "photos"}})
	assert.Equal(t, "Unsorted/Photos", got.PrimaryPath)
	assert.Empty(t, got.Alternatives)
	require.Len(t, got.Reasoning, 1)
	assert.Equal(t, "Error in path generation: clock unavailable", got.Reasoning[0])
	assert.Equal(t, "clock unavailable", got.Error)
}
