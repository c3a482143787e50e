package classify

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
	"github.com/fruitsalade/fruitsalade/organizer/internal/planner"
	"github.com/fruitsalade/fruitsalade/organizer/internal/rules"
)

var fixedNow = time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)

func newClassifier() *Classifier {
	r := rules.Default()
	return New(r, planner.New(r, planner.WithClock(func() time.Time { return fixedNow })))
}

func signals(c models.Classification) []string {
	out := make([]string, 0, len(c.Evidence))
	for _, e := range c.Evidence {
		out = append(out, e.Signal)
	}
	return out
}

func TestClassifyDatedPhoto(t *testing.T) {
	taken := time.Date(2023, 8, 15, 14, 30, 25, 0, time.UTC)
	got := newClassifier().Classify(models.ClassifyRequest{
		FileKey:  "/data/camera/IMG_20230815.jpg",
		Metadata: models.FileMetadata{Size: 3 << 20, MimeType: "image/jpeg"},
		Exif: &models.ExifRecord{
			HasData:    true,
			CapturedAt: models.NewTimestamp(taken),
			GPS:        &models.GPS{Lat: 37.7749, Lng: -122.4194, LatRef: "N", LngRef: "W"},
		},
	})

	assert.Equal(t, models.CategoryPhotos, got.PrimaryCategory)
	assert.Equal(t, "photo", got.Subcategory)
	assert.Equal(t, "Photos/2023/08-August", got.SuggestedFolder)
	assert.Equal(t, 0.8, got.Confidence)
	assert.Equal(t, []string{SignalExtension, SignalFilename}, signals(got))
	assert.Equal(t, []string{"day_tuesday", "geotagged", "month_august", "photos", "year_2023"}, got.Tags)
	assert.Equal(t, []string{"Filename suggests: photo"}, got.Notes)

	require.NotNil(t, got.DateTaken)
	assert.Equal(t, taken, got.DateTaken.Time)
	require.NotNil(t, got.Location)
	assert.Equal(t, 37.7749, got.Location.Latitude)
	assert.Equal(t, -122.4194, got.Location.Longitude)
}

func TestClassifyInvoice(t *testing.T) {
	got := newClassifier().Classify(models.ClassifyRequest{
		FileKey:     "s3://docs/inbox/invoice_final.pdf",
		Metadata:    models.FileMetadata{Size: 48 * 1024, MimeType: "application/pdf"},
		TextContent: "Amount due: $120.00",
	})

	assert.Equal(t, models.CategoryDocuments, got.PrimaryCategory)
	assert.Equal(t, "invoice", got.Subcategory)
	assert.Equal(t, "Documents/Financial/Invoices", got.SuggestedFolder)
	assert.Contains(t, got.Tags, "final_version")
	assert.Contains(t, got.Tags, "short_note")
	assert.Contains(t, got.Tags, "words_0+")
	assert.Equal(t, "short_note with 3 words", got.ContentDescription)
}

func TestContentRefinementNeedsLongText(t *testing.T) {
	long := "Dear customer, " + strings.Repeat("please find the amount due for this month attached. ", 4)
	require.Greater(t, len(long), 100)

	got := newClassifier().Classify(models.ClassifyRequest{
		FileKey:     "notes.txt",
		Metadata:    models.FileMetadata{Size: 2048},
		TextContent: long,
	})
	assert.Equal(t, "invoice", got.Subcategory)
	assert.Equal(t, []string{SignalExtension, SignalContent}, signals(got))
	assert.Equal(t, 0.9, got.Confidence)
	assert.Contains(t, got.Notes, "Content suggests: invoice")

	short := newClassifier().Classify(models.ClassifyRequest{
		FileKey:     "notes.txt",
		Metadata:    models.FileMetadata{Size: 2048},
		TextContent: "amount due",
	})
	assert.Empty(t, short.Subcategory)
	assert.Equal(t, 0.7, short.Confidence)
}

func TestRefinementsOverwriteSubcategoryAndAccumulate(t *testing.T) {
	got := newClassifier().Classify(models.ClassifyRequest{
		FileKey:  "photo_001.jpg",
		Metadata: models.FileMetadata{Size: 20 * 1024},
		Exif: &models.ExifRecord{
			HasData: true,
			Camera:  models.Camera{Make: "Apple", Model: "iPhone 13 Pro"},
		},
	})
	assert.Equal(t, []string{SignalExtension, SignalFilename, SignalExif, SignalSize}, signals(got))
	assert.Equal(t, "thumbnail", got.Subcategory)
	assert.Equal(t, 0.95, got.Confidence)
	assert.Equal(t, []string{
		"Filename suggests: photo",
		"EXIF suggests: mobile_photo",
		"Size suggests: thumbnail",
	}, got.Notes)
}

func TestExifHints(t *testing.T) {
	c := newClassifier()
	hint := func(ext string, cam models.Camera) string {
		got := c.Classify(models.ClassifyRequest{
			FileKey:  "DSC0001" + ext,
			Metadata: models.FileMetadata{Size: 5 << 20},
			Exif:     &models.ExifRecord{HasData: true, Camera: cam},
		})
		return got.Subcategory
	}

	assert.Equal(t, "professional_photo", hint(".jpg", models.Camera{Make: "Canon", Model: "EOS 5D Mark IV"}))
	assert.Equal(t, "", hint(".jpg", models.Camera{Make: "Canon", Model: "EOS R50"}))
	assert.Equal(t, "mobile_photo", hint(".jpg", models.Camera{Make: "samsung"}))
	assert.Equal(t, "screenshot", hint(".tiff", models.Camera{Software: "Screenshot tool"}))
	assert.Equal(t, "", hint(".png", models.Camera{Make: "Apple"}), "png is not an EXIF hint format")
}

func TestUnknownCategory(t *testing.T) {
	got := newClassifier().Classify(models.ClassifyRequest{
		FileKey:  "mystery.xyz",
		Metadata: models.FileMetadata{Size: 1234},
	})
	assert.Equal(t, models.CategoryUnknown, got.PrimaryCategory)
	assert.LessOrEqual(t, got.Confidence, 0.1)
	assert.Equal(t, "Unknown", got.SuggestedFolder)
	assert.Equal(t, []string{"unknown"}, got.Tags)
}

func TestMimeFallback(t *testing.T) {
	got := newClassifier().Classify(models.ClassifyRequest{
		FileKey:  "export",
		Metadata: models.FileMetadata{Size: 1234, MimeType: "text/csv"},
	})
	assert.Equal(t, models.CategorySpreadsheets, got.PrimaryCategory)
	require.NotEmpty(t, got.Evidence)
	assert.Equal(t, SignalMime, got.Evidence[0].Signal)
}

func TestEmptyFileSizeHint(t *testing.T) {
	got := newClassifier().Classify(models.ClassifyRequest{FileKey: "report_2024-01-31_draft.docx"})
	assert.Equal(t, "empty_file", got.Subcategory)
	assert.Contains(t, got.Tags, "date_formatted")
	assert.Contains(t, got.Tags, "draft")
	assert.Equal(t, "Documents/2025", got.SuggestedFolder)
}

func TestContentTags(t *testing.T) {
	got := newClassifier().Classify(models.ClassifyRequest{
		FileKey:     "plan.md",
		Metadata:    models.FileMetadata{Size: 900},
		TextContent: "Project budget for the family vacation",
	})
	for _, tag := range []string{"business_project", "business_budget", "personal_family", "personal_vacation"} {
		assert.Contains(t, got.Tags, tag)
	}
	assert.Equal(t, "Documents/Work", got.SuggestedFolder)
}

func TestConfidenceMonotoneInSignals(t *testing.T) {
	c := newClassifier()
	exif := &models.ExifRecord{HasData: true, Camera: models.Camera{Make: "Nikon", Model: "Z9 Pro"}}

	steps := []models.ClassifyRequest{
		{FileKey: "a.jpg", Metadata: models.FileMetadata{Size: 5 << 20}},
		{FileKey: "img_1.jpg", Metadata: models.FileMetadata{Size: 5 << 20}},
		{FileKey: "img_1.jpg", Metadata: models.FileMetadata{Size: 5 << 20}, Exif: exif},
		{FileKey: "img_1.jpg", Metadata: models.FileMetadata{Size: 10 << 10}, Exif: exif},
	}
	prev := 0.0
	for _, req := range steps {
		got := c.Classify(req)
		assert.GreaterOrEqual(t, got.Confidence, prev, req.FileKey)
		assert.LessOrEqual(t, got.Confidence, 1.0)
		prev = got.Confidence
	}
}

func TestScoreClamps(t *testing.T) {
	ev := []models.Evidence{
		{Signal: SignalExtension, Weight: WeightCategory},
		{Signal: SignalFilename, Weight: WeightFilename},
		{Signal: SignalContent, Weight: WeightContent},
		{Signal: SignalExif, Weight: WeightExif},
		{Signal: SignalSize, Weight: WeightSize},
	}
	assert.Equal(t, 1.0, Score(ev))
	assert.Equal(t, 0.0, Score([]models.Evidence{{Weight: -0.5}}))
	assert.Equal(t, 0.0, Score(nil))
	assert.Equal(t, 0.8, Score(ev[:2]))
}

func TestClassifyIsIdempotent(t *testing.T) {
	c := newClassifier()
	req := models.ClassifyRequest{
		FileKey:     "Meeting notes 2024-02-01 final.txt",
		Metadata:    models.FileMetadata{Size: 4096},
		TextContent: strings.Repeat("client meeting agenda and project deadline review ", 10),
	}
	a, err := json.Marshal(c.Classify(req))
	require.NoError(t, err)
	b, err := json.Marshal(c.Classify(req))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestClassifyRecoversFromFaults(t *testing.T) {
	c := New(rules.Default(), nil)

	got := c.Classify(models.ClassifyRequest{
		FileKey:  "invoice.pdf",
		Metadata: models.FileMetadata{Size: 100},
	})
	assert.Equal(t, models.CategoryDocuments, got.PrimaryCategory)
	assert.Equal(t, 0.8, got.Confidence)
	assert.NotEmpty(t, got.Error)
	require.NotEmpty(t, got.Notes)
	assert.Contains(t, got.Notes[len(got.Notes)-1], "Classification error:")
}
