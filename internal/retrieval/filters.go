package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docuflow/docuflow/internal/models"
)

// isRangeFilter reports whether f is a numeric range or date-window filter
// that SearchIndex.Search left unapplied (it only handles ValueStr-bearing
// keyword filters; see internal/search/query.go's buildSearchQuery).
func isRangeFilter(f models.Filter) bool {
	return f.ValueStr == ""
}

// applyRangeAndDateFilters drops any context whose ExtractedFields don't
// satisfy every numeric/date filter in the plan (§4.9 step 1's "AND of
// Filters"). It resolves canonical field names against the document's own
// template before comparing, so "amount >= 500" matches whichever concrete
// field that document's template maps "amount" to.
func (e *Engine) applyRangeAndDateFilters(ctx context.Context, contexts []*docContext, filters []models.Filter) ([]*docContext, error) {
	var rangeFilters []models.Filter
	for _, f := range filters {
		if isRangeFilter(f) {
			rangeFilters = append(rangeFilters, f)
		}
	}
	if len(rangeFilters) == 0 {
		return contexts, nil
	}

	mappings, err := e.store.GetCanonicalMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical mappings: %w", err)
	}

	kept := make([]*docContext, 0, len(contexts))
	for _, c := range contexts {
		templateName := ""
		if c.document.TemplateID != nil {
			tmpl, err := e.store.GetTemplate(ctx, *c.document.TemplateID)
			if err != nil {
				return nil, fmt.Errorf("failed to load template for document %s: %w", c.document.ID, err)
			}
			templateName = tmpl.Name
		}

		matchesAll := true
		for _, f := range rangeFilters {
			concreteName := resolveConcreteFieldName(mappings, f.Field, templateName)
			field := findFieldByName(c.fields, concreteName)
			if field == nil || !filterMatchesField(f, field) {
				matchesAll = false
				break
			}
		}
		if matchesAll {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

// resolveConcreteFieldName maps a canonical field name onto a document's
// own template-specific field, falling back to the name itself when no
// mapping exists (it may already be a concrete field name).
func resolveConcreteFieldName(mappings []models.CanonicalFieldMapping, field, templateName string) string {
	for _, m := range mappings {
		if m.CanonicalName != field {
			continue
		}
		if concrete, ok := m.FieldMappings[templateName]; ok {
			return concrete
		}
	}
	return field
}

func findFieldByName(fields []models.ExtractedField, name string) *models.ExtractedField {
	for i := range fields {
		if strings.EqualFold(fields[i].FieldName, name) {
			return &fields[i]
		}
	}
	return nil
}

// filterMatchesField evaluates one numeric or date Filter against one
// ExtractedField's value.
func filterMatchesField(f models.Filter, field *models.ExtractedField) bool {
	if f.IsDate {
		t, ok := parseFieldDate(field.Value.AsString())
		if !ok {
			return false
		}
		if f.From != nil && t.Before(*f.From) {
			return false
		}
		if f.To != nil && !t.Before(*f.To) {
			return false
		}
		return true
	}

	n, ok := fieldAsNumber(field)
	if !ok {
		return false
	}
	switch f.Op {
	case models.FilterOpGte:
		return n >= f.Value
	case models.FilterOpLte:
		return n <= f.Value
	case models.FilterOpEq:
		return n == f.Value
	case models.FilterOpBetween:
		return n >= f.Value && n <= f.ValueTo
	default:
		return false
	}
}

func fieldAsNumber(field *models.ExtractedField) (float64, bool) {
	if n, ok := field.Value.AsNumber(); ok {
		return n, true
	}
	clean := strings.TrimPrefix(strings.TrimSpace(field.Value.AsString()), "$")
	clean = strings.ReplaceAll(clean, ",", "")
	n, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

var fieldDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"January 2, 2006",
	"Jan 2, 2006",
	"01/02/2006",
}

func parseFieldDate(s string) (time.Time, bool) {
	for _, layout := range fieldDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
