package models

// Primary categories.
const (
	CategoryPhotos        = "photos"
	CategoryDocuments     = "documents"
	CategorySpreadsheets  = "spreadsheets"
	CategoryPresentations = "presentations"
	CategoryVideos        = "videos"
	CategoryAudio         = "audio"
	CategoryArchives      = "archives"
	CategoryUnknown       = "unknown"
)

// FileMetadata is the caller-supplied file description used by the classifier.
type FileMetadata struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
}

// ClassifyRequest is the classifier input.
type ClassifyRequest struct {
	FileKey     string       `json:"file_key"`
	Metadata    FileMetadata `json:"metadata"`
	TextContent string       `json:"text_content,omitempty"`
	Exif        *ExifRecord  `json:"exif_data,omitempty"`
}

// Evidence is one signal that contributed to a classification.
type Evidence struct {
	Signal string  `json:"signal"`
	Weight float64 `json:"weight"`
	Detail string  `json:"detail,omitempty"`
}

// Location is the GPS position attached to a classification.
type Location struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Altitude  *float64   `json:"altitude,omitempty"`
	Timestamp *Timestamp `json:"timestamp,omitempty"`
}

// Classification is the classifier output.
type Classification struct {
	FileKey            string     `json:"file_key"`
	PrimaryCategory    string     `json:"primary_category"`
	Subcategory        string     `json:"subcategory,omitempty"`
	Tags               []string   `json:"tags"`
	Confidence         float64    `json:"confidence"`
	SuggestedFolder    string     `json:"suggested_folder"`
	ContentDescription string     `json:"content_description,omitempty"`
	DateTaken          *Timestamp `json:"date_taken,omitempty"`
	Location           *Location  `json:"location,omitempty"`
	Evidence           []Evidence `json:"evidence"`
	Notes              []string   `json:"processing_notes"`
	Error              string     `json:"error,omitempty"`
}

// JournalContext is optional caller context for folder planning.
type JournalContext struct {
	Keywords []string `json:"keywords,omitempty"`
}

// PlanRequest is the folder planner input.
type PlanRequest struct {
	Classification Classification  `json:"classification"`
	Exif           *ExifRecord     `json:"exif_data,omitempty"`
	JournalContext *JournalContext `json:"journal_context,omitempty"`
}

// PathSuggestion is the folder planner output.
type PathSuggestion struct {
	PrimaryPath  string   `json:"primary_path"`
	Alternatives []string `json:"alternatives"`
	Reasoning    []string `json:"reasoning"`
	Confidence   float64  `json:"confidence"`
	Error        string   `json:"error,omitempty"`
}
