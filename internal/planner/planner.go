// Package planner implements interfaces.QueryPlanner: turn a natural
// language query into a structured Plan (§4.8). Intent detection follows
// the teacher's ordered-keyword-pattern idiom from
// internal/services/chat/query_classifier.go; filter and canonical-field
// resolution generalize the qualifier-extraction idea in
// internal/services/search/query_parser.go from a flat key:value qualifier
// into typed numeric/date/entity Filters.
package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
)

// Planner implements interfaces.QueryPlanner.
type Planner struct {
	store  interfaces.Store
	llm    interfaces.LLMClient // nil when no LLM refinement path is configured
	config *common.QueryConfig
	logger arbor.ILogger
}

// New constructs a Planner. llm may be nil; Plan then never refines a
// low-confidence heuristic plan and simply returns it as-is.
var _ interfaces.QueryPlanner = (*Planner)(nil)

func New(store interfaces.Store, llm interfaces.LLMClient, config *common.QueryConfig, logger arbor.ILogger) *Planner {
	return &Planner{store: store, llm: llm, config: config, logger: logger}
}

// Plan runs the full heuristic-parse/canonical-resolve/expand/refine
// algorithm described in §4.8.
func (p *Planner) Plan(ctx context.Context, req models.QueryRequest) (models.Plan, error) {
	normalized := normalizeQuery(req.Query)

	intent, ambiguous := detectIntent(normalized)
	filters, remainder := extractFilters(time.Now(), normalized)

	confidence := 1.0
	if ambiguous {
		confidence -= 0.35
	}

	resolved, unresolvedCount, err := p.resolveCanonicalFields(ctx, filters)
	if err != nil {
		return models.Plan{}, fmt.Errorf("failed to resolve canonical fields: %w", err)
	}
	confidence -= 0.1 * float64(unresolvedCount)

	for field, value := range req.Filters {
		resolved = append(resolved, models.Filter{Field: field, Op: models.FilterOpEq, ValueStr: value})
	}

	textQuery := expandQuery(remainder, p.config.MaxExpansions)

	var aggregation *models.AggregationSpec
	if intent == models.IntentAggregate {
		aggregation = buildAggregation(normalized, resolved)
	}

	if confidence < 0 {
		confidence = 0
	}

	plan := models.Plan{
		Intent:        intent,
		Filters:       resolved,
		TextQuery:     textQuery,
		Aggregation:   aggregation,
		Confidence:    confidence,
		TemplateID:    req.TemplateID,
		FuzzyEligible: intent == models.IntentSearch || intent == models.IntentRetrieve,
	}

	if plan.Confidence >= p.config.FastPathThreshold || p.llm == nil {
		return plan, nil
	}

	refined, err := p.refineWithLLM(ctx, req.Query, plan)
	if err != nil {
		p.logger.Warn().Err(err).Str("query", req.Query).Msg("LLM plan refinement failed; falling back to the heuristic plan")
		return plan, nil
	}

	refined.UseLLMRefinement = true
	refined.TemplateID = req.TemplateID
	return refined, nil
}

// normalizeQuery trims and collapses whitespace so downstream pattern
// matching and cache-key generation are stable across equivalent inputs.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(query)), " ")
}

// resolveCanonicalFields maps each filter's Field against the canonical
// registry (DefaultCanonicalNames, stored aliases, and stored mappings),
// per §4.2/§4.8 step 3. A filter whose field resolves to nothing known is
// left as free text and counted against the plan's confidence.
func (p *Planner) resolveCanonicalFields(ctx context.Context, filters []models.Filter) ([]models.Filter, int, error) {
	known := make(map[string]struct{}, len(models.DefaultCanonicalNames))
	for _, name := range models.DefaultCanonicalNames {
		known[name] = struct{}{}
	}

	aliases, err := p.store.GetCanonicalAliases(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load canonical aliases: %w", err)
	}
	aliasToCanonical := make(map[string]string, len(aliases))
	for _, a := range aliases {
		aliasToCanonical[strings.ToLower(a.Alias)] = a.CanonicalName
		known[a.CanonicalName] = struct{}{}
	}

	mappings, err := p.store.GetCanonicalMappings(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load canonical mappings: %w", err)
	}
	for _, m := range mappings {
		known[m.CanonicalName] = struct{}{}
	}

	unresolved := 0
	resolved := make([]models.Filter, len(filters))
	for i, f := range filters {
		resolved[i] = f
		lower := strings.ToLower(f.Field)
		if canonical, ok := aliasToCanonical[lower]; ok {
			resolved[i].Field = canonical
			continue
		}
		if _, ok := known[lower]; ok {
			resolved[i].Field = lower
			continue
		}
		unresolved++
	}
	return resolved, unresolved, nil
}

var aggKeywords = map[string]models.AggregationType{
	"average": models.AggregationAvg,
	"sum":     models.AggregationSum,
	"total":   models.AggregationSum,
}

// buildAggregation derives an AggregationSpec for an IntentAggregate plan:
// "how many"/"count" default to AggregationCount over the matched filter
// field (or amount if none), "average"/"sum"/"total" name the
// arithmetic instead.
func buildAggregation(query string, filters []models.Filter) *models.AggregationSpec {
	aggType := models.AggregationCount
	lower := strings.ToLower(query)
	for keyword, t := range aggKeywords {
		if strings.Contains(lower, keyword) {
			aggType = t
			break
		}
	}

	field := defaultNumericField
	if len(filters) > 0 {
		field = filters[0].Field
	}

	spec := &models.AggregationSpec{Type: aggType, Field: field}
	if strings.Contains(lower, "by month") || strings.Contains(lower, "monthly") {
		spec.Type = models.AggregationDateHistogram
		spec.TimeBuckets = []string{"month"}
	}
	return spec
}

var planSchema = []byte(`{
	"intent": "one of search|retrieve|filter|aggregate|compare",
	"filters": [{"field": "string", "op": "eq|gte|lte|between", "value": "number", "value_to": "number", "value_str": "string", "is_date": "boolean"}],
	"text_query": "string",
	"aggregation": {"type": "sum|avg|count|terms|date_histogram", "field": "string"},
	"sort": "string",
	"confidence": "number between 0 and 1",
	"fuzzy_eligible": "boolean"
}`)

// refineWithLLM asks the LLM to correct a low-confidence heuristic plan,
// giving it the original query and the heuristic's best guess so it can
// adjust rather than start from nothing.
func (p *Planner) refineWithLLM(ctx context.Context, query string, heuristic models.Plan) (models.Plan, error) {
	var prompt strings.Builder
	prompt.WriteString("You are refining a query plan for a document search system.\n\n")
	fmt.Fprintf(&prompt, "User query: %q\n\n", query)
	prompt.WriteString("A heuristic parser produced this initial guess:\n")
	fmt.Fprintf(&prompt, "- intent: %s\n", heuristic.Intent)
	fmt.Fprintf(&prompt, "- text_query: %q\n", heuristic.TextQuery)
	fmt.Fprintf(&prompt, "- filters: %+v\n", heuristic.Filters)
	prompt.WriteString("\nCorrect any misclassified intent or missed filters and return the refined plan.\n")

	var refined models.Plan
	_, err := p.llm.CompleteJSON(ctx, prompt.String(), planSchema, interfaces.CompletionOptions{}, &refined)
	if err != nil {
		return models.Plan{}, fmt.Errorf("LLM plan refinement call failed: %w", err)
	}
	if refined.Confidence <= 0 {
		refined.Confidence = p.config.FastPathThreshold
	}
	if refined.Aggregation == nil {
		refined.Aggregation = heuristic.Aggregation
	}
	return refined, nil
}
