package models

import "time"

// GPS holds decimal-degree coordinates. Present only when both latitude
// and longitude were found.
type GPS struct {
	Lat         float64    `json:"lat"`
	Lng         float64    `json:"lng"`
	LatRef      string     `json:"lat_ref"`
	LngRef      string     `json:"lng_ref"`
	Altitude    *float64   `json:"altitude,omitempty"`
	AltitudeRef *int       `json:"altitude_ref,omitempty"`
	Timestamp   *Timestamp `json:"timestamp,omitempty"`
}

// Camera holds capture device and shooting parameters.
type Camera struct {
	Make            string `json:"make,omitempty"`
	Model           string `json:"model,omitempty"`
	Software        string `json:"software,omitempty"`
	ISO             *int   `json:"iso,omitempty"`
	ExposureTime    string `json:"exposure_time,omitempty"`
	Aperture        string `json:"aperture,omitempty"`
	FocalLength     string `json:"focal_length,omitempty"`
	FocalLength35mm string `json:"focal_length_35mm,omitempty"`
	Flash           string `json:"flash,omitempty"`
	ExposureProgram string `json:"exposure_program,omitempty"`
	MeteringMode    string `json:"metering_mode,omitempty"`
	WhiteBalance    string `json:"white_balance,omitempty"`
}

// ImageInfo holds technical image properties.
type ImageInfo struct {
	Width          *int     `json:"width,omitempty"`
	Height         *int     `json:"height,omitempty"`
	Megapixels     *float64 `json:"megapixels,omitempty"`
	XResolution    *float64 `json:"x_resolution,omitempty"`
	YResolution    *float64 `json:"y_resolution,omitempty"`
	ResolutionUnit string   `json:"resolution_unit,omitempty"`
	ColorSpace     string   `json:"color_space,omitempty"`
	BitDepth       *int     `json:"bit_depth,omitempty"`
}

// ExifRecord is the canonical metadata schema. HasData=false implies every
// optional field is absent.
type ExifRecord struct {
	HasData     bool       `json:"has_exif"`
	CapturedAt  *Timestamp `json:"datetime,omitempty"`
	DigitizedAt *Timestamp `json:"datetime_digitized,omitempty"`
	ModifiedAt  *Timestamp `json:"datetime_modified,omitempty"`
	GPS         *GPS       `json:"gps,omitempty"`
	Camera      Camera     `json:"camera"`
	Image       ImageInfo  `json:"image_info"`
	Orientation int        `json:"orientation"`
}

// ExifResult is the extractor response.
type ExifResult struct {
	FileKey string `json:"file_key"`
	ExifRecord
	ProcessingNotes []string `json:"processing_notes"`
	Error           string   `json:"error,omitempty"`
}

// HasGPS reports whether the record carries coordinates.
func (r *ExifRecord) HasGPS() bool {
	return r != nil && r.GPS != nil
}

// Captured returns the capture time, or nil.
func (r *ExifRecord) Captured() *time.Time {
	if r == nil {
		return nil
	}
	return r.CapturedAt.Ptr()
}
