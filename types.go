package main

import (
	"fmt"
	"strings"
)

// SourceType is the closed classification of a URL's content family
type SourceType string

const (
	SourceYouTube   SourceType = "youtube"
	SourceDOI       SourceType = "doi"
	SourcePDF       SourceType = "pdf"
	SourceWikipedia SourceType = "wikipedia"
	SourceWebsite   SourceType = "website"
	SourceError     SourceType = "ERROR"
)

// ParseSourceType maps a tabular source_type cell back to a SourceType
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "youtube":
		return SourceYouTube, nil
	case "doi":
		return SourceDOI, nil
	case "pdf":
		return SourcePDF, nil
	case "wikipedia":
		return SourceWikipedia, nil
	case "website":
		return SourceWebsite, nil
	case "error":
		return SourceError, nil
	}
	return "", fmt.Errorf("unknown source type %q", s)
}

// Placeholder and sentinel values written into records
const (
	notFoundTitle  = "UNKNOWN"
	notFoundAuthor = "UNKNOWN"
	notFoundSource = "SOURCE NOT FOUND"
	notFoundField  = "NOT_FOUND"
	noDate         = "No date"
	unknownValue   = "Unknown"
	errorTitle     = "ERROR"

	failedPDFTitle     = "Failed to parse PDF"
	failedWebsiteTitle = "Failed to parse webpage"
)

// SourceRecord is the normalized bibliographic record produced for one URL.
// When Type is SourceError only OriginalURL and Error are set.
type SourceRecord struct {
	Type        SourceType `json:"source_type"`
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	Date        string     `json:"date"`
	Source      string     `json:"source"`
	OriginalURL string     `json:"original_url"`
	ShortURL    string     `json:"short_url"`
	Error       string     `json:"error,omitempty"`
}

// errorRecord builds the Errored record for a failed URL
func errorRecord(url string, err error) *SourceRecord {
	return &SourceRecord{
		Type:        SourceError,
		OriginalURL: url,
		Error:       err.Error(),
	}
}

// Row projects the record onto the tabular columns. Failed rows carry
// title=ERROR and the failure message in the author column.
func (r *SourceRecord) Row() []string {
	if r.Type == SourceError {
		return []string{string(SourceError), errorTitle, r.Error, "", "", r.OriginalURL, ""}
	}
	return []string{string(r.Type), r.Title, r.Author, r.Date, r.Source, r.OriginalURL, r.ShortURL}
}

// tableHeader lists the tabular output columns in order
var tableHeader = []string{"source_type", "title", "author", "date", "source", "original_url", "short_url"}

// recordFromRow is the inverse of Row
func recordFromRow(row []string) (*SourceRecord, error) {
	if len(row) < len(tableHeader) {
		return nil, fmt.Errorf("row has %d columns, want %d", len(row), len(tableHeader))
	}
	st, err := ParseSourceType(row[0])
	if err != nil {
		return nil, err
	}
	if st == SourceError {
		return &SourceRecord{Type: SourceError, Error: row[2], OriginalURL: row[5]}, nil
	}
	return &SourceRecord{
		Type:        st,
		Title:       row[1],
		Author:      row[2],
		Date:        row[3],
		Source:      row[4],
		OriginalURL: row[5],
		ShortURL:    row[6],
	}, nil
}

// ExtractionResult maps field names to raw strings recovered either from an
// API response or from the structured-extraction step. A field is absent when
// its key is missing, empty, or holds a not-found sentinel; callers resolve
// absence with Or instead of handling errors.
type ExtractionResult map[string]string

// Field returns the value of name and whether it is present
func (r ExtractionResult) Field(name string) (string, bool) {
	v, ok := r[name]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	switch strings.ToUpper(v) {
	case "", notFoundField, "NULL", "NONE", "N/A":
		return "", false
	}
	return v, true
}

// Or returns the value of name, or fallback when the field is absent
func (r ExtractionResult) Or(name, fallback string) string {
	if v, ok := r.Field(name); ok {
		return v
	}
	return fallback
}

// ProcessingState tracks one URL through the pipeline
type ProcessingState string

const (
	StatePending    ProcessingState = "pending"
	StateClassified ProcessingState = "classified"
	StateExtracted  ProcessingState = "extracted"
	StateNormalized ProcessingState = "normalized"
	StateErrored    ProcessingState = "errored"
)

// ProcessingResult tracks the outcome of processing each URL
type ProcessingResult struct {
	URL      string
	State    ProcessingState
	Record   *SourceRecord
	Citation string // rendered and normalized bibliography line, empty for errored rows
	Error    error
}
