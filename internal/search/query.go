package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/docuflow/docuflow/internal/models"
)

// Search executes a planned query against search_docs_fts, retrying against
// search_docs_trigram when the keyword pass returns zero hits and the plan
// is fuzzy-eligible (§4.2).
func (idx *Index) Search(ctx context.Context, plan models.Plan, topK int) ([]models.SearchHit, models.SearchDiagnostics, error) {
	var diag models.SearchDiagnostics

	ftsQuery, err := idx.buildSearchQuery(ctx, plan)
	if err != nil {
		return nil, diag, err
	}
	if ftsQuery == "" {
		return nil, diag, nil
	}

	hits, total, err := idx.runFTS(ctx, "search_docs_fts", ftsQuery, plan.TemplateID, topK)
	if err != nil {
		return nil, diag, err
	}
	diag.TotalCandidates = total

	if len(hits) == 0 && plan.FuzzyEligible {
		// Any shared trigram qualifies a document; hits keep bm25 order and
		// no similarity threshold is applied.
		runes := []rune(strings.ToLower(plan.TextQuery))
		grams := make([]string, 0, len(runes))
		for i := 0; i+3 <= len(runes); i++ {
			grams = append(grams, `"`+idx.tok.escapeFTS5(string(runes[i:i+3]))+`"`)
		}
		trigramQuery := strings.Join(grams, " OR ")
		if trigramQuery != "" {
			fuzzyHits, fuzzyTotal, err := idx.runFTS(ctx, "search_docs_trigram", trigramQuery, plan.TemplateID, topK)
			if err != nil {
				return nil, diag, err
			}
			if len(fuzzyHits) > 0 {
				hits = fuzzyHits
				diag.TotalCandidates = fuzzyTotal
				diag.FuzzyFallbackUsed = true
			}
		}
	}

	return hits, diag, nil
}

// buildSearchQuery combines the plan's free-text query with any filters
// that reference a canonical or concrete field with a string value, each
// filter becoming one OR-group from canonicalSearchTerms (§4.2 filter/
// canonical-expansion interaction: a pinned template skips expansion).
func (idx *Index) buildSearchQuery(ctx context.Context, plan models.Plan) (string, error) {
	var clauses []string

	if plan.TextQuery != "" {
		tokens := idx.tok.tokenize(plan.TextQuery)
		if q := idx.tok.buildFTS5Query(tokens); q != "" {
			clauses = append(clauses, q)
		}
	}

	for _, f := range plan.Filters {
		if f.ValueStr == "" {
			continue // numeric/date range filters aren't keyword-matchable; RetrievalEngine resolves these against Store directly
		}

		terms, err := idx.canonicalSearchTerms(ctx, f.Field, f.ValueStr, plan.TemplateID)
		if err != nil {
			return "", err
		}
		if len(terms) == 0 {
			continue
		}
		clauses = append(clauses, "("+strings.Join(terms, " OR ")+")")
	}

	return strings.Join(clauses, " AND "), nil
}

// canonicalSearchTerms returns the quoted FTS5 terms to match for a filter
// field's value: a single term for a concrete field, or one copy of the
// same quoted value per template mapping when Field is a canonical name and
// no template is pinned. The terms carry no field name, so the value matches
// anywhere in a document's weighted text, not only in the mapped fields.
func (idx *Index) canonicalSearchTerms(ctx context.Context, field, valueStr string, pinnedTemplate *string) ([]string, error) {
	quoted := `"` + idx.tok.escapeFTS5(valueStr) + `"`

	if pinnedTemplate != nil {
		return []string{quoted}, nil
	}

	mappings, err := idx.store.GetCanonicalMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical mappings for search expansion: %w", err)
	}
	for _, m := range mappings {
		if m.CanonicalName != field {
			continue
		}
		if len(m.FieldMappings) == 0 {
			return []string{quoted}, nil
		}
		terms := make([]string, 0, len(m.FieldMappings))
		for range m.FieldMappings {
			terms = append(terms, quoted)
		}
		return terms, nil
	}

	return []string{quoted}, nil
}

// runFTS runs a bm25-ranked MATCH query against ftsTable, optionally
// restricted to one template, and normalizes bm25 scores into [0,1] via
// min-max across the returned candidate set (bm25 itself is unbounded and
// more-negative-is-better, so raw values aren't directly usable as scores).
func (idx *Index) runFTS(ctx context.Context, ftsTable, matchQuery string, templateID *string, topK int) ([]models.SearchHit, int, error) {
	query := fmt.Sprintf(`
		SELECT d.document_id, bm25(f) AS rank
		FROM %s f
		JOIN search_docs d ON d.rowid = f.rowid
		WHERE f MATCH ?
	`, ftsTable)
	args := []interface{}{matchQuery}
	if templateID != nil {
		query += " AND d.template_id = ?"
		args = append(args, *templateID)
	}
	query += " ORDER BY rank ASC"

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("fts query against %s failed: %w", ftsTable, err)
	}
	defer rows.Close()

	type candidate struct {
		docID string
		bm25  float64
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.docID, &c.bm25); err != nil {
			return nil, 0, fmt.Errorf("failed to scan fts result: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(candidates) == 0 {
		return nil, 0, nil
	}

	total := len(candidates)
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	min, max := candidates[0].bm25, candidates[0].bm25
	for _, c := range candidates {
		if c.bm25 < min {
			min = c.bm25
		}
		if c.bm25 > max {
			max = c.bm25
		}
	}
	spread := max - min

	hits := make([]models.SearchHit, 0, len(candidates))
	for _, c := range candidates {
		score := 1.0
		if spread != 0 {
			score = (max - c.bm25) / spread
		}
		hits = append(hits, models.SearchHit{DocumentID: c.docID, Score: score})
	}

	return hits, total, nil
}
