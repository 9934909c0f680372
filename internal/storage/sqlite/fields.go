package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
)

// encodeFieldValue splits a FieldValue per the §3 storage invariant:
// structured kinds go to field_value_json, scalar/number go to the plain
// field_value column. value_kind always records which branch was taken so
// decodeFieldValue can rebuild the exact FieldValue.
func encodeFieldValue(v models.FieldValue) (valueKind int, scalar sql.NullString, structured sql.NullString, err error) {
	if v.IsStructured() {
		b, mErr := json.Marshal(v)
		if mErr != nil {
			return 0, scalar, structured, fmt.Errorf("failed to marshal structured field value: %w", mErr)
		}
		return int(v.Kind), scalar, sql.NullString{String: string(b), Valid: true}, nil
	}
	return int(v.Kind), sql.NullString{String: v.AsString(), Valid: true}, structured, nil
}

func decodeFieldValue(valueKind int, scalar, structured sql.NullString) models.FieldValue {
	kind := models.FieldValueKind(valueKind)
	if structured.Valid {
		var v models.FieldValue
		if err := json.Unmarshal([]byte(structured.String), &v); err == nil {
			return v
		}
	}
	switch kind {
	case models.FieldValueNumber:
		var n float64
		fmt.Sscanf(scalar.String, "%g", &n)
		return models.NewNumberValue(n)
	default:
		return models.NewScalarValue(scalar.String)
	}
}

const extractedFieldColumns = `id, document_id, field_name, field_type, value_kind, field_value, field_value_json,
	confidence, source_page, source_bbox, validation_status, validation_errors, audit_priority,
	verified, verified_value, verified_at, citation_count, last_cited_at, created_at`

func scanExtractedField(scan func(...interface{}) error) (models.ExtractedField, error) {
	var (
		f                  models.ExtractedField
		valueKind          int
		scalar, structured sql.NullString
		sourcePage         sql.NullInt64
		sourceBBox         sql.NullString
		validationErrors   sql.NullString
		verifiedValue      sql.NullString
		verifiedAt         sql.NullInt64
		lastCitedAt        sql.NullInt64
		createdAtUnix      int64
	)
	err := scan(&f.ID, &f.DocumentID, &f.FieldName, &f.FieldType, &valueKind, &scalar, &structured,
		&f.Confidence, &sourcePage, &sourceBBox, &f.ValidationStatus, &validationErrors, &f.AuditPriority,
		&f.Verified, &verifiedValue, &verifiedAt, &f.CitationCount, &lastCitedAt, &createdAtUnix)
	if err != nil {
		return f, err
	}
	f.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
	f.Value = decodeFieldValue(valueKind, scalar, structured)
	if sourcePage.Valid {
		p := int(sourcePage.Int64)
		f.SourcePage = &p
	}
	if sourceBBox.Valid {
		var bbox models.BBox
		if err := json.Unmarshal([]byte(sourceBBox.String), &bbox); err == nil {
			f.SourceBBox = &bbox
		}
	}
	if validationErrors.Valid && validationErrors.String != "" {
		_ = json.Unmarshal([]byte(validationErrors.String), &f.ValidationErrors)
	}
	if verifiedValue.Valid {
		f.VerifiedValue = &verifiedValue.String
	}
	if verifiedAt.Valid {
		t := time.Unix(verifiedAt.Int64, 0).UTC()
		f.VerifiedAt = &t
	}
	if lastCitedAt.Valid {
		t := time.Unix(lastCitedAt.Int64, 0).UTC()
		f.LastCitedAt = &t
	}
	return f, nil
}

// UpsertExtractedFields replaces the field set for documentID atomically.
// Verification history (verified/verified_value/verified_at) is preserved
// across re-extraction whenever a new field matches an existing field_name.
func (s *Store) UpsertExtractedFields(ctx context.Context, documentID string, fields []models.ExtractedField) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing := map[string]models.ExtractedField{}
	rows, err := tx.QueryContext(ctx, `SELECT `+extractedFieldColumns+` FROM extracted_fields WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to load existing fields: %w", err)
	}
	for rows.Next() {
		f, err := scanExtractedField(rows.Scan)
		if err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan existing field: %w", err)
		}
		existing[f.FieldName] = f
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM extracted_fields WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to clear prior fields: %w", err)
	}

	for i := range fields {
		f := &fields[i]
		if f.ID == "" {
			f.ID = common.NewFieldID()
		}
		if prior, ok := existing[f.FieldName]; ok {
			f.Verified = prior.Verified
			f.VerifiedValue = prior.VerifiedValue
			f.VerifiedAt = prior.VerifiedAt
			f.CitationCount = prior.CitationCount
			f.LastCitedAt = prior.LastCitedAt
			f.CreatedAt = prior.CreatedAt
		} else if f.CreatedAt.IsZero() {
			f.CreatedAt = time.Now()
		}

		valueKind, scalar, structured, err := encodeFieldValue(f.Value)
		if err != nil {
			return err
		}
		var sourceBBox sql.NullString
		if f.SourceBBox != nil {
			b, _ := json.Marshal(f.SourceBBox)
			sourceBBox = sql.NullString{String: string(b), Valid: true}
		}
		validationErrors, _ := json.Marshal(f.ValidationErrors)

		var verifiedAt interface{}
		if f.VerifiedAt != nil {
			verifiedAt = f.VerifiedAt.Unix()
		}
		var lastCitedAt interface{}
		if f.LastCitedAt != nil {
			lastCitedAt = f.LastCitedAt.Unix()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO extracted_fields
				(id, document_id, field_name, field_type, value_kind, field_value, field_value_json,
				 confidence, source_page, source_bbox, validation_status, validation_errors, audit_priority,
				 verified, verified_value, verified_at, citation_count, last_cited_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, documentID, f.FieldName, f.FieldType, valueKind, scalar, structured,
			f.Confidence, f.SourcePage, sourceBBox, f.ValidationStatus, string(validationErrors), f.AuditPriority,
			f.Verified, f.VerifiedValue, verifiedAt, f.CitationCount, lastCitedAt, f.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert field %q: %w", f.FieldName, err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetExtractedFields(ctx context.Context, documentID string) ([]models.ExtractedField, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT `+extractedFieldColumns+` FROM extracted_fields WHERE document_id = ? ORDER BY field_name`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list extracted fields: %w", err)
	}
	defer rows.Close()

	var out []models.ExtractedField
	for rows.Next() {
		f, err := scanExtractedField(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan extracted field: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) GetExtractedField(ctx context.Context, id string) (*models.ExtractedField, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT `+extractedFieldColumns+` FROM extracted_fields WHERE id = ?`, id)
	f, err := scanExtractedField(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("extracted field %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan extracted field: %w", err)
	}
	return &f, nil
}

// AppendVerification records a human review outcome and updates the
// field's verified/verified_value in the same transaction.
func (s *Store) AppendVerification(ctx context.Context, fieldID string, action models.VerificationAction, correctedValue *string, notes, reviewerID string) (*models.ExtractedField, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO verifications (id, field_id, action, corrected_value, notes, reviewer_id, verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		common.NewVerificationID(), fieldID, action, correctedValue, notes, reviewerID, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to insert verification: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE extracted_fields SET verified = 1, verified_value = ?, verified_at = ? WHERE id = ?`,
		correctedValue, now.Unix(), fieldID)
	if err != nil {
		return nil, fmt.Errorf("failed to update field verification state: %w", err)
	}

	row := tx.QueryRowContext(ctx, `SELECT `+extractedFieldColumns+` FROM extracted_fields WHERE id = ?`, fieldID)
	f, err := scanExtractedField(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to reload field after verification: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit verification: %w", err)
	}
	return &f, nil
}

func (s *Store) AppendCitation(ctx context.Context, citation *models.Citation) error {
	if citation.ID == "" {
		citation.ID = common.NewCitationID()
	}
	if citation.CreatedAt.IsZero() {
		citation.CreatedAt = time.Now()
	}
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO citations
			(id, field_id, document_id, query_id, query_text, query_source, confidence_at_citation,
			 context_snippet, audit_link, audit_link_clicked, correction_made, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		citation.ID, citation.FieldID, citation.DocumentID, citation.QueryID, citation.QueryText, citation.QuerySource,
		citation.ConfidenceAtCitation, citation.ContextSnippet, citation.AuditLink, citation.AuditLinkClicked,
		citation.CorrectionMade, citation.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert citation: %w", err)
	}
	return nil
}

func (s *Store) IncrementCitationStats(ctx context.Context, fieldID string) error {
	res, err := s.db.DB().ExecContext(ctx, `
		UPDATE extracted_fields SET citation_count = citation_count + 1, last_cited_at = ? WHERE id = ?`,
		time.Now().Unix(), fieldID)
	if err != nil {
		return fmt.Errorf("failed to increment citation stats: %w", err)
	}
	return mustAffectOne(res, "extracted field", fieldID)
}

// ListAuditQueue returns fields ordered by (priority ASC, confidence ASC,
// created-at DESC), optionally narrowed by filter.
func (s *Store) ListAuditQueue(ctx context.Context, filter interfaces.AuditFilter, page, size int) ([]models.FieldWithContext, int, map[models.AuditPriority]int, error) {
	where := `WHERE ef.verified = 0`
	args := []interface{}{}
	if filter.Priority != nil {
		where += ` AND ef.audit_priority = ?`
		args = append(args, *filter.Priority)
	}
	if filter.DocumentID != nil {
		where += ` AND ef.document_id = ?`
		args = append(args, *filter.DocumentID)
	}
	if filter.TemplateID != nil {
		where += ` AND d.template_id = ?`
		args = append(args, *filter.TemplateID)
	}

	countRow := s.db.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM extracted_fields ef JOIN documents d ON d.id = ef.document_id `+where, args...)
	var total int
	if err := countRow.Scan(&total); err != nil {
		return nil, 0, nil, fmt.Errorf("failed to count audit queue: %w", err)
	}

	counts := map[models.AuditPriority]int{}
	countByPriority, err := s.db.DB().QueryContext(ctx, `
		SELECT ef.audit_priority, COUNT(*) FROM extracted_fields ef JOIN documents d ON d.id = ef.document_id
		`+where+` GROUP BY ef.audit_priority`, args...)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to count audit queue by priority: %w", err)
	}
	for countByPriority.Next() {
		var p models.AuditPriority
		var n int
		if err := countByPriority.Scan(&p, &n); err != nil {
			countByPriority.Close()
			return nil, 0, nil, err
		}
		counts[p] = n
	}
	countByPriority.Close()
	if err := countByPriority.Err(); err != nil {
		return nil, 0, nil, err
	}

	if size <= 0 {
		size = 50
	}
	if page < 0 {
		page = 0
	}
	offset := page * size

	query := `
		SELECT ` + prefixColumns("ef", extractedFieldColumns) + `, d.filename, COALESCE(t.name, '')
		FROM extracted_fields ef
		JOIN documents d ON d.id = ef.document_id
		LEFT JOIN templates t ON t.id = d.template_id
		` + where + `
		ORDER BY ef.audit_priority ASC, ef.confidence ASC, ef.created_at DESC
		LIMIT ? OFFSET ?`
	rows, err := s.db.DB().QueryContext(ctx, query, append(args, size, offset)...)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to list audit queue: %w", err)
	}
	defer rows.Close()

	var out []models.FieldWithContext
	for rows.Next() {
		var (
			documentName string
			templateName string
		)
		f, err := scanExtractedField(func(dest ...interface{}) error {
			return rows.Scan(append(dest, &documentName, &templateName)...)
		})
		if err != nil {
			return nil, 0, nil, fmt.Errorf("failed to scan audit queue row: %w", err)
		}
		out = append(out, models.FieldWithContext{
			Field:        f,
			DocumentName: documentName,
			TemplateName: templateName,
		})
	}
	return out, total, counts, rows.Err()
}

// prefixColumns qualifies every comma-separated column name with alias,
// e.g. ("ef", "id, name") -> "ef.id, ef.name".
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, col := range parts {
		parts[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(parts, ", ")
}
