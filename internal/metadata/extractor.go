// Package metadata extracts embedded image metadata (capture time, GPS,
// camera settings, dimensions) and normalizes it into models.ExifRecord.
package metadata

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // DecodeConfig fallback for dimensions
	"io"
	"path"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/organizer/internal/logging"
	"github.com/fruitsalade/fruitsalade/organizer/internal/metrics"
	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
	"github.com/fruitsalade/fruitsalade/organizer/internal/rules"
	"github.com/fruitsalade/fruitsalade/organizer/internal/storage"
)

// Processing notes.
const (
	NoteUnsupported = "File type does not support EXIF metadata"
	NoteNoData      = "No EXIF data found in file"
)

// Extractor reads file heads through the storage router and decodes them.
type Extractor struct {
	resolver storage.Resolver
	rules    *rules.Rules
	maxRead  int64
}

// New creates an Extractor. maxRead caps the bytes read from formats that
// do not keep EXIF in a leading header.
func New(resolver storage.Resolver, r *rules.Rules, maxRead int64) *Extractor {
	if maxRead <= 0 {
		maxRead = 64 << 20
	}
	return &Extractor{resolver: resolver, rules: r, maxRead: maxRead}
}

// Extract returns the normalized metadata for fileKey. It never fails:
// unreadable or undecodable files yield has_exif=false and a note.
func (e *Extractor) Extract(ctx context.Context, fileKey string) (res models.ExifResult) {
	start := time.Now()
	outcome := "ok"
	res = models.ExifResult{FileKey: fileKey, ProcessingNotes: []string{}}

	defer func() {
		if r := recover(); r != nil {
			res.ExifRecord = models.ExifRecord{}
			res.ProcessingNotes = append(res.ProcessingNotes, fmt.Sprintf("EXIF extraction error: %v", r))
			res.Error = fmt.Sprint(r)
			outcome = "error"
			logging.WithContext(ctx).Error("exif extraction panicked",
				zap.String("file_key", fileKey),
				zap.Any("panic", r))
		}
		metrics.RecordStage(metrics.StageExtract, outcome, time.Since(start))
	}()

	ext := strings.ToLower(path.Ext(fileKey))
	if !rules.HasExt(e.rules.Exif.SupportedExtensions, ext) {
		res.ProcessingNotes = append(res.ProcessingNotes, NoteUnsupported)
		outcome = "skipped"
		return res
	}

	data, err := e.readHead(ctx, fileKey, ext)
	if err != nil {
		res.ProcessingNotes = append(res.ProcessingNotes, "EXIF extraction error: "+err.Error())
		res.Error = err.Error()
		outcome = "error"
		logging.WithContext(ctx).Error("exif extraction failed",
			zap.String("file_key", fileKey),
			zap.Error(err))
		return res
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if x == nil {
		res.ProcessingNotes = append(res.ProcessingNotes, NoteNoData)
		outcome = "no_data"
		logging.WithContext(ctx).Debug("no exif data",
			zap.String("file_key", fileKey),
			zap.Error(err))
		return res
	}
	if err != nil {
		res.ProcessingNotes = append(res.ProcessingNotes, "EXIF partially decoded: "+err.Error())
	}

	rec, notes := Decode(exifSource{x: x}, e.rules.ExifCodes)
	if rec.Image.Width == nil || rec.Image.Height == nil {
		fillDimensions(&rec.Image, data)
	}
	res.ExifRecord = rec
	res.ProcessingNotes = append(res.ProcessingNotes, notes...)

	logging.WithContext(ctx).Debug("extracted exif",
		zap.String("file_key", fileKey),
		zap.Bool("gps", rec.HasGPS()),
		zap.Bool("datetime", rec.CapturedAt != nil),
		zap.Int("notes", len(res.ProcessingNotes)))
	return res
}

// readHead reads the leading bytes of the file that can hold EXIF.
func (e *Extractor) readHead(ctx context.Context, fileKey, ext string) ([]byte, error) {
	loc, err := e.resolver.Resolve(ctx, fileKey)
	if err != nil {
		return nil, err
	}

	limit := e.maxRead
	if rules.HasExt(e.rules.Exif.HeaderExtensions, ext) && e.rules.Exif.HeaderBytes > 0 && e.rules.Exif.HeaderBytes < limit {
		limit = e.rules.Exif.HeaderBytes
	}

	rc, _, err := loc.Backend.GetObject(ctx, loc.Key, 0, limit)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileKey, err)
	}
	return data, nil
}

// fillDimensions takes width and height from the image header when the
// EXIF block does not carry them.
func fillDimensions(im *models.ImageInfo, data []byte) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return
	}
	w, h := cfg.Width, cfg.Height
	mp := Megapixels(w, h)
	im.Width, im.Height, im.Megapixels = &w, &h, &mp
}
