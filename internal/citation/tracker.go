// Package citation implements interfaces.CitationTracker and
// interfaces.AuditQueue (§4.10): resolving [[FIELD:name:document_id]]
// markers in a generated answer back to concrete ExtractedFields, recording
// an append-only provenance trail, and surfacing low-confidence fields for
// human review. Grounded on internal/storage/sqlite's upsert conventions for
// the write side and internal/matcher's never-fail-the-caller posture for
// marker resolution.
package citation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
)

// snippetRadius bounds the context captured around a marker on either side,
// per §4.10's "context snippet" requirement.
const snippetRadius = 100

// markerPattern matches an inline [[FIELD:field_name:document_id]] citation.
var markerPattern = regexp.MustCompile(`\[\[FIELD:([^:\]]+):([^\]]+)\]\]`)

// Tracker implements interfaces.CitationTracker.
type Tracker struct {
	store      interfaces.Store
	validation *common.ValidationConfig
	logger     arbor.ILogger
}

// New constructs a Tracker.
func New(store interfaces.Store, validation *common.ValidationConfig, logger arbor.ILogger) *Tracker {
	return &Tracker{store: store, validation: validation, logger: logger}
}

var _ interfaces.CitationTracker = (*Tracker)(nil)

// ResolveCitations finds every [[FIELD:name:document_id]] marker in answer,
// resolves it against that document's ExtractedFields, and records an
// append-only Citation row per match (§4.10). A marker that can't be
// resolved to a concrete field is skipped and logged rather than failing the
// whole call — the answer has already been returned to the caller by the
// time citations are being recorded, so there is nothing left to roll back.
func (t *Tracker) ResolveCitations(ctx context.Context, answer string, queryID, queryText string, source models.QuerySource) ([]models.Citation, error) {
	matches := markerPattern.FindAllStringSubmatchIndex(answer, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	fieldsByDoc := make(map[string][]models.ExtractedField)
	citations := make([]models.Citation, 0, len(matches))

	for _, m := range matches {
		fieldName := answer[m[2]:m[3]]
		documentID := answer[m[4]:m[5]]

		fields, ok := fieldsByDoc[documentID]
		if !ok {
			var err error
			fields, err = t.store.GetExtractedFields(ctx, documentID)
			if err != nil {
				t.logger.Warn().Err(err).Str("document_id", documentID).Msg("failed to load fields for citation marker; skipping")
				fieldsByDoc[documentID] = nil
				continue
			}
			fieldsByDoc[documentID] = fields
		}

		field := findFieldByName(fields, fieldName)
		if field == nil {
			t.logger.Warn().Str("field_name", fieldName).Str("document_id", documentID).Msg("citation marker did not resolve to a known field; skipping")
			continue
		}

		citation := models.Citation{
			ID:                   common.NewCitationID(),
			FieldID:              field.ID,
			DocumentID:           documentID,
			QueryID:              queryID,
			QueryText:            queryText,
			QuerySource:          source,
			ConfidenceAtCitation: field.Confidence,
			ContextSnippet:       snippet(answer, m[0], m[1]),
			AuditLink:            t.auditLink(field),
		}

		if err := t.store.AppendCitation(ctx, &citation); err != nil {
			return citations, fmt.Errorf("failed to append citation for field %s: %w", field.ID, err)
		}
		if err := t.store.IncrementCitationStats(ctx, field.ID); err != nil {
			t.logger.Warn().Err(err).Str("field_id", field.ID).Msg("failed to increment citation stats")
		}

		citations = append(citations, citation)
	}

	return citations, nil
}

// auditLink attaches a review-queue link when field's confidence falls
// below the configured review threshold and it hasn't already been
// human-verified, per §4.10's "audit-link attachment below review_threshold".
func (t *Tracker) auditLink(field *models.ExtractedField) string {
	if field.Verified {
		return ""
	}
	threshold := 0.75
	if t.validation != nil && t.validation.ReviewThreshold > 0 {
		threshold = t.validation.ReviewThreshold
	}
	if field.Confidence >= threshold {
		return ""
	}
	return fmt.Sprintf("/audit/%s", field.ID)
}

func findFieldByName(fields []models.ExtractedField, name string) *models.ExtractedField {
	for i := range fields {
		if strings.EqualFold(fields[i].FieldName, name) {
			return &fields[i]
		}
	}
	return nil
}

// snippet extracts up to snippetRadius bytes of context on either side of
// the marker at [start:end) in answer, widening outward to the nearest rune
// boundary so it never splits a multi-byte character.
func snippet(answer string, start, end int) string {
	from := start - snippetRadius
	if from < 0 {
		from = 0
	}
	for from > 0 && !utf8.RuneStart(answer[from]) {
		from--
	}

	to := end + snippetRadius
	if to > len(answer) {
		to = len(answer)
	}
	for to < len(answer) && !utf8.RuneStart(answer[to]) {
		to++
	}

	return strings.TrimSpace(answer[from:to])
}
