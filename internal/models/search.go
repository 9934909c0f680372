package models

// SearchDoc is the indexed, denormalized representation of a Document used
// by SearchIndex. Weighted text vector construction happens at index time
// (internal/search), not here; this struct is the input to that process.
type SearchDoc struct {
	DocumentID    string            `json:"document_id"`
	Filename      string            `json:"filename"`
	TemplateID    string            `json:"template_id"`
	TemplateName  string            `json:"template_name"`
	FullText      string            `json:"full_text"`
	FieldValues   map[string]string `json:"field_values"` // field name -> indexable scalar text
	CanonicalText map[string]string `json:"canonical_text"` // canonical name -> resolved value for this doc
	Embedding     []float32         `json:"embedding,omitempty"`
	CreatedAt     int64             `json:"created_at"` // unix seconds, for created_at-desc tie-breaks
}

// WeightBand is one of the three weight bands used to build the weighted
// text vector (§4.2): A (×3 identifiers), B (×2 primary fields), C (×1 body).
type WeightBand int

const (
	WeightBandA WeightBand = iota
	WeightBandB
	WeightBandC
)

// SearchHit is one scored result from SearchIndex.Search.
type SearchHit struct {
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
}

// TemplateMatch is one scored result from FindSimilarTemplates.
type TemplateMatch struct {
	TemplateID string  `json:"template_id"`
	Score      float64 `json:"score"`
}

// SearchDiagnostics records how a Search call was actually executed, for
// QueryService.Ask's plan_diagnostics and test assertions (§8).
type SearchDiagnostics struct {
	FuzzyFallbackUsed bool `json:"fuzzy_fallback_used"`
	SemanticRerankUsed bool `json:"semantic_rerank_used"`
	TotalCandidates   int  `json:"total_candidates"`
}
