package metadata

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
	"github.com/fruitsalade/fruitsalade/organizer/internal/rules"
)

// exifTimeLayout is the fixed EXIF timestamp format.
const exifTimeLayout = "2006:01:02 15:04:05"

// Rat is an unsigned or signed EXIF rational.
type Rat struct {
	Num, Den int64
}

// Float returns the rational as a float. ok is false for a zero denominator.
func (r Rat) Float() (float64, bool) {
	if r.Den == 0 {
		return 0, false
	}
	return float64(r.Num) / float64(r.Den), true
}

// TagSource reads raw tag values by EXIF field name. A missing tag or a tag
// of the wrong type reports ok=false.
type TagSource interface {
	String(name exif.FieldName) (string, bool)
	Ints(name exif.FieldName) ([]int, bool)
	Rats(name exif.FieldName) ([]Rat, bool)
}

// Decode normalizes raw tags into the canonical record. Fields that cannot
// be interpreted are dropped and described in the returned notes.
func Decode(src TagSource, codes rules.ExifCodes) (models.ExifRecord, []string) {
	d := decoder{src: src, codes: codes}
	rec := models.ExifRecord{HasData: true, Orientation: 1}

	rec.CapturedAt = d.timestamp(exif.DateTimeOriginal)
	rec.DigitizedAt = d.timestamp(exif.DateTimeDigitized)
	rec.ModifiedAt = d.timestamp(exif.DateTime)
	if rec.CapturedAt == nil {
		if rec.DigitizedAt != nil {
			rec.CapturedAt = rec.DigitizedAt
		} else {
			rec.CapturedAt = rec.ModifiedAt
		}
	}

	rec.GPS = d.gps()
	rec.Camera = d.camera()
	rec.Image = d.image()

	if v, ok := d.firstInt(exif.Orientation); ok {
		if v >= 1 && v <= 8 {
			rec.Orientation = v
		} else {
			d.notef("Ignoring invalid orientation %d", v)
		}
	}
	return rec, d.notes
}

type decoder struct {
	src   TagSource
	codes rules.ExifCodes
	notes []string
}

func (d *decoder) notef(format string, args ...any) {
	d.notes = append(d.notes, fmt.Sprintf(format, args...))
}

func (d *decoder) firstInt(name exif.FieldName) (int, bool) {
	vs, ok := d.src.Ints(name)
	if !ok || len(vs) == 0 {
		return 0, false
	}
	return vs[0], true
}

func (d *decoder) firstFloat(name exif.FieldName) (float64, bool) {
	rs, ok := d.src.Rats(name)
	if !ok || len(rs) == 0 {
		return 0, false
	}
	return rs[0].Float()
}

func (d *decoder) timestamp(name exif.FieldName) *models.Timestamp {
	s, ok := d.src.String(name)
	if !ok {
		return nil
	}
	t, err := time.Parse(exifTimeLayout, strings.TrimSpace(s))
	if err != nil {
		d.notef("Could not parse %s: %q", name, s)
		return nil
	}
	return models.NewTimestamp(t)
}

func (d *decoder) gps() *models.GPS {
	lat, okLat := d.coordinate(exif.GPSLatitude)
	lng, okLng := d.coordinate(exif.GPSLongitude)
	if !okLat || !okLng {
		return nil
	}

	g := &models.GPS{
		LatRef: d.ref(exif.GPSLatitudeRef, "N"),
		LngRef: d.ref(exif.GPSLongitudeRef, "E"),
	}
	g.Lat = SignedDegrees(lat, g.LatRef)
	g.Lng = SignedDegrees(lng, g.LngRef)
	if math.Abs(g.Lat) > 90 || math.Abs(g.Lng) > 180 {
		d.notef("Ignoring out of range GPS position %.6f,%.6f", g.Lat, g.Lng)
		return nil
	}

	if alt, ok := d.firstFloat(exif.GPSAltitude); ok {
		ref, _ := d.firstInt(exif.GPSAltitudeRef)
		if ref != 0 {
			alt = -alt
		}
		g.Altitude = &alt
		g.AltitudeRef = &ref
	}
	g.Timestamp = d.gpsTime()
	return g
}

// coordinate converts a degrees/minutes/seconds triple to a magnitude.
func (d *decoder) coordinate(name exif.FieldName) (float64, bool) {
	rs, ok := d.src.Rats(name)
	if !ok || len(rs) == 0 {
		return 0, false
	}
	var v float64
	for i, div := range []float64{1, 60, 3600} {
		if i >= len(rs) {
			break
		}
		f, ok := rs[i].Float()
		if !ok {
			d.notef("Ignoring %s with zero denominator", name)
			return 0, false
		}
		v += f / div
	}
	return math.Abs(v), true
}

func (d *decoder) ref(name exif.FieldName, fallback string) string {
	s, ok := d.src.String(name)
	s = strings.ToUpper(strings.TrimSpace(s))
	if !ok || s == "" {
		return fallback
	}
	return s[:1]
}

// SignedDegrees applies the hemisphere reference to a coordinate magnitude.
// South and West are negative.
func SignedDegrees(magnitude float64, ref string) float64 {
	switch strings.ToUpper(ref) {
	case "S", "W":
		return -magnitude
	default:
		return magnitude
	}
}

func (d *decoder) gpsTime() *models.Timestamp {
	date, ok := d.src.String(exif.GPSDateStamp)
	if !ok {
		return nil
	}
	hms, ok := d.src.Rats(exif.GPSTimeStamp)
	if !ok || len(hms) < 3 {
		return nil
	}
	day, err := time.Parse("2006:01:02", strings.TrimSpace(date))
	if err != nil {
		d.notef("Could not parse %s: %q", exif.GPSDateStamp, date)
		return nil
	}
	var secs float64
	for i, mul := range []float64{3600, 60, 1} {
		f, ok := hms[i].Float()
		if !ok {
			return nil
		}
		secs += f * mul
	}
	return models.NewTimestamp(day.Add(time.Duration(secs * float64(time.Second))))
}

func (d *decoder) camera() models.Camera {
	var c models.Camera
	c.Make, _ = d.src.String(exif.Make)
	c.Model, _ = d.src.String(exif.Model)
	c.Software, _ = d.src.String(exif.Software)
	c.Make = strings.TrimSpace(c.Make)
	c.Model = strings.TrimSpace(c.Model)
	c.Software = strings.TrimSpace(c.Software)

	if v, ok := d.firstInt(exif.ISOSpeedRatings); ok {
		c.ISO = &v
	}
	if rs, ok := d.src.Rats(exif.ExposureTime); ok && len(rs) > 0 && rs[0].Den != 0 {
		if rs[0].Den == 1 {
			c.ExposureTime = fmt.Sprintf("%ds", rs[0].Num)
		} else {
			c.ExposureTime = fmt.Sprintf("%d/%d", rs[0].Num, rs[0].Den)
		}
	}
	if v, ok := d.firstFloat(exif.FNumber); ok {
		c.Aperture = "f/" + formatNumber(v)
	}
	if v, ok := d.firstFloat(exif.FocalLength); ok {
		c.FocalLength = formatNumber(v) + "mm"
	}
	if v, ok := d.firstInt(exif.FocalLengthIn35mmFilm); ok {
		c.FocalLength35mm = fmt.Sprintf("%dmm", v)
	}

	if v, ok := d.firstInt(exif.Flash); ok {
		c.Flash = rules.Decode(d.codes.Flash, v, "Flash mode")
	}
	if v, ok := d.firstInt(exif.ExposureProgram); ok {
		c.ExposureProgram = rules.Decode(d.codes.ExposureProgram, v, "Program mode")
	}
	if v, ok := d.firstInt(exif.MeteringMode); ok {
		c.MeteringMode = rules.Decode(d.codes.MeteringMode, v, "Metering mode")
	}
	if v, ok := d.firstInt(exif.WhiteBalance); ok {
		if label, known := d.codes.WhiteBalance[v]; known {
			c.WhiteBalance = label
		} else {
			c.WhiteBalance = "Manual"
		}
	}
	return c
}

func (d *decoder) image() models.ImageInfo {
	var im models.ImageInfo

	w, okW := d.firstInt(exif.PixelXDimension)
	if !okW {
		w, okW = d.firstInt(exif.ImageWidth)
	}
	h, okH := d.firstInt(exif.PixelYDimension)
	if !okH {
		h, okH = d.firstInt(exif.ImageLength)
	}
	if okW {
		im.Width = &w
	}
	if okH {
		im.Height = &h
	}
	if okW && okH {
		mp := Megapixels(w, h)
		im.Megapixels = &mp
	}

	if v, ok := d.firstFloat(exif.XResolution); ok {
		im.XResolution = &v
	}
	if v, ok := d.firstFloat(exif.YResolution); ok {
		im.YResolution = &v
	}
	if v, ok := d.firstInt(exif.ResolutionUnit); ok {
		if v == 2 {
			im.ResolutionUnit = "inches"
		} else {
			im.ResolutionUnit = "cm"
		}
	}
	if v, ok := d.firstInt(exif.ColorSpace); ok {
		if v == 1 {
			im.ColorSpace = "sRGB"
		} else {
			im.ColorSpace = "Adobe RGB"
		}
	}
	if v, ok := d.firstInt(exif.BitsPerSample); ok {
		im.BitDepth = &v
	}
	return im
}

// Megapixels returns width*height/1e6 rounded to one decimal.
func Megapixels(width, height int) float64 {
	return math.Round(float64(width)*float64(height)/1e5) / 10
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
