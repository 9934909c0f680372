package retrieval

import (
	"context"
	"fmt"

	"github.com/docuflow/docuflow/internal/models"
)

// fieldContribution is one ExtractedField that fed an aggregationResult,
// carried through so buildFacts can cite it with a [[FIELD:...]] marker.
type fieldContribution struct {
	documentID string
	fieldID    string
	fieldName  string
	value      float64
	bucket     string // non-empty for date_histogram contributions
}

// aggregationResult is the deterministically computed answer to an
// IntentAggregate plan. The LLM is only asked to phrase this, never to do
// the arithmetic itself, so the quoted total always matches the underlying
// ExtractedFields exactly (§8's citation-consistency property).
type aggregationResult struct {
	spec          *models.AggregationSpec
	total         float64
	count         int
	contributions []fieldContribution
	buckets       map[string]float64 // populated for AggregationDateHistogram
}

// computeAggregation resolves spec.Field against each selected document's
// own template, gathers the matching ExtractedField values, and reduces
// them per spec.Type.
func (e *Engine) computeAggregation(ctx context.Context, spec *models.AggregationSpec, selected []*docContext) (*aggregationResult, error) {
	mappings, err := e.store.GetCanonicalMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical mappings: %w", err)
	}

	result := &aggregationResult{spec: spec, buckets: make(map[string]float64)}

	for _, c := range selected {
		templateName := ""
		if c.document.TemplateID != nil {
			tmpl, err := e.store.GetTemplate(ctx, *c.document.TemplateID)
			if err != nil {
				return nil, fmt.Errorf("failed to load template for document %s: %w", c.document.ID, err)
			}
			templateName = tmpl.Name
		}

		concreteName := resolveConcreteFieldName(mappings, spec.Field, templateName)
		field := findFieldByName(c.fields, concreteName)
		if field == nil {
			continue
		}

		n, ok := fieldAsNumber(field)
		if !ok && spec.Type != models.AggregationCount && spec.Type != models.AggregationTerms {
			continue
		}

		contribution := fieldContribution{documentID: c.document.ID, fieldID: field.ID, fieldName: field.FieldName, value: n}

		if spec.Type == models.AggregationDateHistogram {
			bucket := "unknown"
			if t, ok := parseFieldDate(field.Value.AsString()); ok {
				bucket = t.Format("2006-01")
			}
			contribution.bucket = bucket
			result.buckets[bucket] += n
		}

		result.total += n
		result.count++
		result.contributions = append(result.contributions, contribution)
	}

	return result, nil
}
