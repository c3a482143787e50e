package metadata

import (
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// exifSource reads tags from a decoded goexif structure.
type exifSource struct {
	x *exif.Exif
}

func (s exifSource) tag(name exif.FieldName, format tiff.Format) (*tiff.Tag, bool) {
	tag, err := s.x.Get(name)
	if err != nil || tag == nil || tag.Format() != format {
		return nil, false
	}
	return tag, true
}

func (s exifSource) String(name exif.FieldName) (string, bool) {
	tag, ok := s.tag(name, tiff.StringVal)
	if !ok {
		return "", false
	}
	v, err := tag.StringVal()
	if err != nil {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (s exifSource) Ints(name exif.FieldName) ([]int, bool) {
	tag, ok := s.tag(name, tiff.IntVal)
	if !ok {
		return nil, false
	}
	out := make([]int, 0, tag.Count)
	for i := 0; i < int(tag.Count); i++ {
		v, err := tag.Int(i)
		if err != nil {
			break
		}
		out = append(out, v)
	}
	return out, len(out) > 0
}

func (s exifSource) Rats(name exif.FieldName) ([]Rat, bool) {
	tag, ok := s.tag(name, tiff.RatVal)
	if !ok {
		return nil, false
	}
	out := make([]Rat, 0, tag.Count)
	for i := 0; i < int(tag.Count); i++ {
		num, den, err := tag.Rat2(i)
		if err != nil {
			break
		}
		out = append(out, Rat{Num: num, Den: den})
	}
	return out, len(out) > 0
}
