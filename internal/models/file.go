// Package models defines the request and result types shared by the
// organizer pipeline stages. Field names in JSON tags are part of the
// external interface and must not change.
package models

import "time"

// Filters narrows which entries of a scope are returned.
// Zero values mean "no restriction" except IncludeHidden, which defaults to false.
type Filters struct {
	Extensions    []string `json:"extensions,omitempty"`
	MinSize       *int64   `json:"min_size,omitempty"`
	MaxSize       *int64   `json:"max_size,omitempty"`
	IncludeHidden bool     `json:"include_hidden,omitempty"`
}

// ScopeRequest asks the enumerator for one page of a scope.
type ScopeRequest struct {
	Scope   string  `json:"scope"`
	Cursor  string  `json:"cursor,omitempty"`
	Limit   int     `json:"limit,omitempty"`
	Filters Filters `json:"filters,omitempty"`
}

// FileRecord describes one candidate file. Immutable once yielded.
type FileRecord struct {
	Path         string     `json:"path"`
	Name         string     `json:"name"`
	RelativePath string     `json:"relative_path,omitempty"`
	Size         int64      `json:"size"`
	ModifiedAt   time.Time  `json:"modified"`
	CreatedAt    *time.Time `json:"created,omitempty"`
	Type         string     `json:"type"`
	Extension    string     `json:"extension"`
	IsSupported  bool       `json:"is_supported"`
	MimeType     string     `json:"mime_type"`
	Permissions  string     `json:"permissions,omitempty"`
	Preview      string     `json:"preview,omitempty"`
}

// ScanStats counts what the enumerator touched while building a page.
type ScanStats struct {
	DirectoriesScanned int `json:"directories_scanned"`
	EntriesScanned     int `json:"entries_scanned"`
	FilesFiltered      int `json:"files_filtered"`
	ErrorsEncountered  int `json:"errors_encountered"`
}

// ScopeInfo carries per-page aggregates.
type ScopeInfo struct {
	Scope            string         `json:"scope"`
	ScanTime         time.Time      `json:"scan_time"`
	FileTypes        map[string]int `json:"file_types"`
	SizeDistribution map[string]int `json:"size_distribution"`
}

// Page is one enumerator response.
type Page struct {
	Files      []FileRecord `json:"files"`
	TotalFound int          `json:"total_found"`
	TotalSize  int64        `json:"total_size"`
	NextCursor string       `json:"next_cursor,omitempty"`
	HasMore    bool         `json:"has_more"`
	ScanStats  ScanStats    `json:"scan_stats"`
	ScopeInfo  ScopeInfo    `json:"scope_info"`
	Error      string       `json:"error,omitempty"`
}

// ScopeSummary is a whole-scope size analysis used by the admission gate.
type ScopeSummary struct {
	FileCount       int            `json:"file_count"`
	TotalSize       int64          `json:"total_size"`
	FileTypes       map[string]int `json:"file_types"`
	AverageFileSize float64        `json:"average_file_size"`
	HasMediaFiles   bool           `json:"has_media_files"`
	HasDocuments    bool           `json:"has_documents"`
}
