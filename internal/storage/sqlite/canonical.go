package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/docuflow/docuflow/internal/models"
)

func (s *Store) GetCanonicalMappings(ctx context.Context) ([]models.CanonicalFieldMapping, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT canonical_name, field_mappings, aggregation_type FROM canonical_field_mappings ORDER BY canonical_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list canonical mappings: %w", err)
	}
	defer rows.Close()

	var out []models.CanonicalFieldMapping
	for rows.Next() {
		var (
			m             models.CanonicalFieldMapping
			mappingsJSON  string
		)
		if err := rows.Scan(&m.CanonicalName, &mappingsJSON, &m.AggregationType); err != nil {
			return nil, fmt.Errorf("failed to scan canonical mapping: %w", err)
		}
		if err := json.Unmarshal([]byte(mappingsJSON), &m.FieldMappings); err != nil {
			return nil, fmt.Errorf("failed to decode field mappings for %q: %w", m.CanonicalName, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) GetCanonicalAliases(ctx context.Context) ([]models.CanonicalAlias, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT alias, canonical_name FROM canonical_aliases ORDER BY alias`)
	if err != nil {
		return nil, fmt.Errorf("failed to list canonical aliases: %w", err)
	}
	defer rows.Close()

	var out []models.CanonicalAlias
	for rows.Next() {
		var a models.CanonicalAlias
		if err := rows.Scan(&a.Alias, &a.CanonicalName); err != nil {
			return nil, fmt.Errorf("failed to scan canonical alias: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertCanonicalMapping creates or replaces a user-editable canonical
// field mapping (§6). Existing aliases pointing at this canonical_name are
// left untouched.
func (s *Store) UpsertCanonicalMapping(ctx context.Context, mapping models.CanonicalFieldMapping) error {
	payload, err := json.Marshal(mapping.FieldMappings)
	if err != nil {
		return fmt.Errorf("failed to marshal field mappings: %w", err)
	}
	_, err = s.db.DB().ExecContext(ctx, `
		INSERT INTO canonical_field_mappings (canonical_name, field_mappings, aggregation_type)
		VALUES (?, ?, ?)
		ON CONFLICT(canonical_name) DO UPDATE SET field_mappings = excluded.field_mappings, aggregation_type = excluded.aggregation_type`,
		mapping.CanonicalName, string(payload), mapping.AggregationType)
	if err != nil {
		return fmt.Errorf("failed to upsert canonical mapping %q: %w", mapping.CanonicalName, err)
	}
	return nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.DB().QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value, description string) error {
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO settings (key, value, description) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, description = excluded.description`,
		key, value, description)
	if err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}
	return nil
}
