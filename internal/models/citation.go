package models

import "time"

// QuerySource identifies the entry point that produced a Citation.
type QuerySource string

const (
	QuerySourceAskAI     QuerySource = "ask_ai"
	QuerySourceMCPSearch QuerySource = "mcp_search"
	QuerySourceMCPRag    QuerySource = "mcp_rag"
)

// Citation is an append-only reference from a generated answer back to the
// ExtractedField it was built from.
type Citation struct {
	ID                 string      `json:"id"`
	FieldID            string      `json:"field_id"`
	DocumentID         string      `json:"document_id"`
	QueryID            string      `json:"query_id"`
	QueryText          string      `json:"query_text"`
	QuerySource        QuerySource `json:"query_source"`
	ConfidenceAtCitation float64   `json:"confidence_at_citation"`
	ContextSnippet     string      `json:"context_snippet"`
	AuditLink          string      `json:"audit_link,omitempty"`
	AuditLinkClicked   bool        `json:"audit_link_clicked"`
	CorrectionMade     bool        `json:"correction_made"`
	CreatedAt          time.Time   `json:"created_at"`
}

// VerificationAction is the reviewer's verdict on an ExtractedField.
type VerificationAction string

const (
	VerificationActionCorrect   VerificationAction = "correct"
	VerificationActionIncorrect VerificationAction = "incorrect"
	VerificationActionNotFound  VerificationAction = "not_found"
)

// Verification is an append-only record of a human review outcome.
type Verification struct {
	ID             string             `json:"id"`
	FieldID        string             `json:"field_id"`
	Action         VerificationAction `json:"action"`
	CorrectedValue *string            `json:"corrected_value,omitempty"`
	Notes          string             `json:"notes,omitempty"`
	ReviewerID     string             `json:"reviewer_id"`
	VerifiedAt     time.Time          `json:"verified_at"`
}

// FieldWithContext bundles an ExtractedField with the Document/Template
// context the AuditQueue UI needs to render one review-queue row.
type FieldWithContext struct {
	Field        ExtractedField `json:"field"`
	DocumentName string         `json:"document_name"`
	TemplateName string         `json:"template_name"`
}
