package models

import "time"

// Intent is the QueryPlanner's classification of a natural-language query.
type Intent string

const (
	IntentSearch    Intent = "search"
	IntentRetrieve  Intent = "retrieve"
	IntentFilter    Intent = "filter"
	IntentAggregate Intent = "aggregate"
	IntentCompare   Intent = "compare"
)

// FilterOp is a comparison operator extracted from a query's filter clauses.
type FilterOp string

const (
	FilterOpEq  FilterOp = "eq"
	FilterOpGte FilterOp = "gte"
	FilterOpLte FilterOp = "lte"
	FilterOpBetween FilterOp = "between"
)

// Filter is one structured constraint extracted from a query (§4.8 step 2).
// Field may name a canonical field (e.g. "amount") or a concrete template
// field; canonical resolution happens when the plan is executed (§4.2).
type Filter struct {
	Field    string   `json:"field"`
	Op       FilterOp `json:"op"`
	Value    float64  `json:"value,omitempty"`
	ValueTo  float64  `json:"value_to,omitempty"` // for between
	ValueStr string   `json:"value_str,omitempty"`
	IsDate   bool     `json:"is_date"`
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
}

// AggregationType is the aggregation semantics tag a canonical field mapping
// carries (§6 canonical field mapping shape).
type AggregationType string

const (
	AggregationSum          AggregationType = "sum"
	AggregationAvg          AggregationType = "avg"
	AggregationCount        AggregationType = "count"
	AggregationTerms        AggregationType = "terms"
	AggregationDateHistogram AggregationType = "date_histogram"
)

// AggregationSpec describes an aggregate computation requested by a Plan.
type AggregationSpec struct {
	Type        AggregationType `json:"type"`
	Field       string          `json:"field"` // may be "canonical:<name>"
	TimeBuckets []string        `json:"time_buckets,omitempty"`
}

// Plan is the QueryPlanner's output: everything RetrievalEngine needs to
// execute a query (§4.8).
type Plan struct {
	Intent            Intent            `json:"intent"`
	Filters           []Filter          `json:"filters"`
	TextQuery         string            `json:"text_query"`
	Aggregation       *AggregationSpec  `json:"aggregation,omitempty"`
	Sort              string            `json:"sort,omitempty"`
	Confidence        float64           `json:"confidence"`
	UseLLMRefinement  bool              `json:"use_llm_refinement"`
	TemplateID        *string           `json:"template_id,omitempty"`
	FuzzyEligible     bool              `json:"fuzzy_eligible"`
}

// CacheKey returns the (normalized_query, filter_set_hash) cache key
// described in §4.8 step 7.
func (p Plan) CacheKey(normalizedQuery string, filterSetHash string) string {
	return normalizedQuery + "|" + filterSetHash
}

// QueryRequest is QueryService.Ask's input (§6 external interfaces).
type QueryRequest struct {
	Query      string            `json:"query"`
	TemplateID *string           `json:"template_id,omitempty"`
	Filters    map[string]string `json:"filters,omitempty"`
	DeadlineMS int               `json:"deadline_ms"`
	QuerySource QuerySource      `json:"query_source"`
}

// PlanDiagnostics surfaces the plan-path decision in the response.
type PlanDiagnostics struct {
	Intent            Intent `json:"intent"`
	Confidence        float64 `json:"confidence"`
	UsedLLM           bool    `json:"used_llm"`
	FuzzyFallbackUsed bool    `json:"fuzzy_fallback_used"`
	CacheHit          bool    `json:"cache_hit"`
}

// SourceDoc is one ranked result surfaced to the caller in QueryResponse.
type SourceDoc struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
}

// QueryResponse is QueryService.Ask's output.
type QueryResponse struct {
	Answer              string          `json:"answer"`
	Citations           []Citation      `json:"citations"`
	LowConfidenceCount  int             `json:"low_confidence_count"`
	AuditRecommended    bool            `json:"audit_recommended"`
	Sources             []SourceDoc     `json:"sources"`
	PlanDiagnostics     PlanDiagnostics `json:"plan_diagnostics"`
	TimingMS            int64           `json:"timing_ms"`
}

// QueryCacheEntry is the cached unit keyed by Plan.CacheKey (§3).
type QueryCacheEntry struct {
	Plan      Plan          `json:"plan"`
	Response  QueryResponse `json:"response"`
	CreatedAt time.Time     `json:"created_at"`
}
