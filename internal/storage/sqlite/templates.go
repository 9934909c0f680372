package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/models"
)

func (s *Store) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT id, name, kind, signature_version FROM templates WHERE id = ?`, id)
	var tmpl models.Template
	if err := row.Scan(&tmpl.ID, &tmpl.Name, &tmpl.Kind, &tmpl.SignatureVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("template %q not found", id)
		}
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}
	fields, err := s.fieldSpecsForTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	tmpl.Fields = fields
	return &tmpl, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]models.Template, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT id, name, kind, signature_version FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []models.Template
	for rows.Next() {
		var tmpl models.Template
		if err := rows.Scan(&tmpl.ID, &tmpl.Name, &tmpl.Kind, &tmpl.SignatureVersion); err != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}
		fields, err := s.fieldSpecsForTemplate(ctx, tmpl.ID)
		if err != nil {
			return nil, err
		}
		tmpl.Fields = fields
		out = append(out, tmpl)
	}
	return out, rows.Err()
}

func (s *Store) fieldSpecsForTemplate(ctx context.Context, templateID string) ([]models.FieldSpec, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT name, type, required, description, extraction_hints, confidence_threshold
		FROM template_field_specs WHERE template_id = ? ORDER BY position ASC`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list field specs: %w", err)
	}
	defer rows.Close()

	var specs []models.FieldSpec
	for rows.Next() {
		var (
			spec       models.FieldSpec
			hintsJSON  sql.NullString
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&spec.Name, &spec.Type, &spec.Required, &spec.Description, &hintsJSON, &confidence); err != nil {
			return nil, fmt.Errorf("failed to scan field spec row: %w", err)
		}
		if hintsJSON.Valid && hintsJSON.String != "" {
			_ = json.Unmarshal([]byte(hintsJSON.String), &spec.ExtractionHints)
		}
		if confidence.Valid {
			spec.ConfidenceThreshold = &confidence.Float64
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// CreateTemplate inserts a Template and its ordered FieldSpecs in one
// transaction.
func (s *Store) CreateTemplate(ctx context.Context, tmpl *models.Template) error {
	if tmpl.ID == "" {
		tmpl.ID = common.NewTemplateID()
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO templates (id, name, kind, signature_version) VALUES (?, ?, ?, ?)`,
		tmpl.ID, tmpl.Name, tmpl.Kind, tmpl.SignatureVersion)
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}

	for i, spec := range tmpl.Fields {
		hints, err := json.Marshal(spec.ExtractionHints)
		if err != nil {
			return fmt.Errorf("failed to marshal extraction hints: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO template_field_specs
				(id, template_id, position, name, type, required, description, extraction_hints, confidence_threshold)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			common.NewFieldID(), tmpl.ID, i, spec.Name, spec.Type, spec.Required, spec.Description,
			string(hints), spec.ConfidenceThreshold)
		if err != nil {
			return fmt.Errorf("failed to insert field spec %q: %w", spec.Name, err)
		}
	}

	return tx.Commit()
}

// BumpSignatureVersion increments Template.SignatureVersion, returning the
// new value. A Badger signature cache entry recorded under the older
// version reads as a miss afterwards.
func (s *Store) BumpSignatureVersion(ctx context.Context, templateID string) (int, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var version int
	row := tx.QueryRowContext(ctx, `SELECT signature_version FROM templates WHERE id = ?`, templateID)
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("template %q not found", templateID)
		}
		return 0, fmt.Errorf("failed to read signature version: %w", err)
	}
	version++

	if _, err := tx.ExecContext(ctx, `UPDATE templates SET signature_version = ? WHERE id = ?`, version, templateID); err != nil {
		return 0, fmt.Errorf("failed to bump signature version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit signature version bump: %w", err)
	}
	return version, nil
}
