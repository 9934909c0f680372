// Package models defines the core document-intelligence data model:
// physical files, documents, templates, extracted fields, citations,
// verifications, and the search-facing projections derived from them.
package models

import "time"

// DocumentStatus is the Document state machine described in the ingestion
// pipeline design. Transitions are enforced by the Store; see
// internal/storage/sqlite.
type DocumentStatus string

const (
	DocumentStatusUploaded          DocumentStatus = "uploaded"
	DocumentStatusAnalyzing         DocumentStatus = "analyzing"
	DocumentStatusTemplateMatched   DocumentStatus = "template_matched"
	DocumentStatusTemplateSuggested DocumentStatus = "template_suggested"
	DocumentStatusTemplateNeeded    DocumentStatus = "template_needed"
	DocumentStatusProcessing        DocumentStatus = "processing"
	DocumentStatusCompleted         DocumentStatus = "completed"
	DocumentStatusError             DocumentStatus = "error"
)

// validTransitions enumerates the allowed Document.Status edges.
var validTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentStatusUploaded:          {DocumentStatusAnalyzing, DocumentStatusError},
	DocumentStatusAnalyzing:         {DocumentStatusTemplateMatched, DocumentStatusTemplateSuggested, DocumentStatusTemplateNeeded, DocumentStatusError},
	DocumentStatusTemplateMatched:   {DocumentStatusProcessing, DocumentStatusError},
	DocumentStatusTemplateSuggested: {DocumentStatusProcessing, DocumentStatusError},
	DocumentStatusTemplateNeeded:    {DocumentStatusProcessing, DocumentStatusError},
	DocumentStatusProcessing:        {DocumentStatusCompleted, DocumentStatusError},
	DocumentStatusCompleted:         {},
	DocumentStatusError:             {DocumentStatusAnalyzing}, // operator-initiated retry
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to DocumentStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// PhysicalFile is the underlying byte content backing one or more Documents.
// Content hash is the deduplication key; lookups always go through it.
type PhysicalFile struct {
	ID          string    `json:"id"`
	ContentHash string    `json:"content_hash"` // sha256 hex
	StoragePath string    `json:"storage_path"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// ParsedResult is the structured payload returned by the Parser client.
type ParsedResult struct {
	Chunks   []ParsedChunk `json:"chunks"`
	FullText string        `json:"full_text"`
}

// ParsedChunk is one page/region of parsed text with its bounding box.
type ParsedChunk struct {
	Page int     `json:"page"`
	BBox *BBox   `json:"bbox,omitempty"`
	Text string  `json:"text"`
}

// BBox is a 4-tuple bounding box in non-negative page coordinates.
// Coordinates above 10,000 or non-positive width/height are invalid and
// must be rejected (replaced with nil) at index time.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the bounding box satisfies the spec's boundary rule.
func (b *BBox) Valid() bool {
	if b == nil {
		return false
	}
	const maxCoord = 10000
	if b.X > maxCoord || b.Y > maxCoord || b.Width > maxCoord || b.Height > maxCoord {
		return false
	}
	return b.Width > 0 && b.Height > 0
}

// Document is one ingestion of a PhysicalFile under a chosen Template.
type Document struct {
	ID               string         `json:"id"`
	Filename         string         `json:"filename"`
	PhysicalFileID   string         `json:"physical_file_id"`
	Status           DocumentStatus `json:"status"`
	TemplateID       *string        `json:"template_id,omitempty"`
	ParseJobID       *string        `json:"parse_job_id,omitempty"`
	CachedParseResult *ParsedResult `json:"cached_parse_result,omitempty"`
	ActualFilePath   string         `json:"actual_file_path"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	ProcessedAt      *time.Time     `json:"processed_at,omitempty"`
}

// ParseJobRef returns the jobid:// source reference for this document's
// cached parse result, per the pipelining invariant in §4.3/§4.7. It
// returns "" when ParseJobID is nil.
func (d *Document) ParseJobRef() string {
	if d.ParseJobID == nil {
		return ""
	}
	return "jobid://" + *d.ParseJobID
}
