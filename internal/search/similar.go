package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/docuflow/docuflow/internal/models"
)

// FindSimilarTemplates runs a MoreLikeThis-style bm25-ranked MATCH query
// against template_signatures_fts: the seed field names and a sample of the
// document's own text are OR-matched against each template's stored field
// names and sample text, then normalized into [0,1] similarity scores.
func (idx *Index) FindSimilarTemplates(ctx context.Context, fieldNames []string, sampleText string, topK int) ([]models.TemplateMatch, error) {
	terms := make([]string, 0, len(fieldNames)+8)
	for _, name := range fieldNames {
		if name == "" {
			continue
		}
		terms = append(terms, `"`+idx.tok.escapeFTS5(name)+`"`)
	}
	for _, tok := range idx.tok.tokenize(sampleText) {
		terms = append(terms, idx.tok.escapeFTS5(tok.Value))
	}
	if len(terms) == 0 {
		return nil, nil
	}
	matchQuery := strings.Join(terms, " OR ")

	rows, err := idx.db.QueryContext(ctx, `
		SELECT t.template_id, bm25(f) AS rank
		FROM template_signatures_fts f
		JOIN template_signatures t ON t.rowid = f.rowid
		WHERE f MATCH ?
		ORDER BY rank ASC
	`, matchQuery)
	if err != nil {
		return nil, fmt.Errorf("template signature search failed: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		templateID string
		bm25       float64
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.templateID, &c.bm25); err != nil {
			return nil, fmt.Errorf("failed to scan template signature result: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

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

	matches := make([]models.TemplateMatch, 0, len(candidates))
	for _, c := range candidates {
		score := 1.0
		if spread != 0 {
			score = (max - c.bm25) / spread
		}
		matches = append(matches, models.TemplateMatch{TemplateID: c.templateID, Score: score})
	}
	return matches, nil
}
