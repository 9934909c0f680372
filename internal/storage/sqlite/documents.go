package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/models"
)

// CreateDocument dedupes on content hash: a PhysicalFile is created once
// per distinct hash, and every upload (even a byte-identical re-upload)
// gets its own Document row pointing at it.
func (s *Store) CreateDocument(ctx context.Context, filename string, contentHash string, bytes []byte, storagePath string) (*models.Document, error) {
	if contentHash == "" {
		sum := sha256.Sum256(bytes)
		contentHash = hex.EncodeToString(sum[:])
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var fileID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM physical_files WHERE content_hash = ?`, contentHash).Scan(&fileID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		fileID = common.NewPhysicalFileID()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO physical_files (id, content_hash, storage_path, size_bytes, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			fileID, contentHash, storagePath, len(bytes), time.Now().Unix())
		if err != nil {
			return nil, fmt.Errorf("failed to insert physical file: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to look up physical file by hash: %w", err)
	}

	doc := &models.Document{
		ID:             common.NewDocumentID(),
		Filename:       filename,
		PhysicalFileID: fileID,
		Status:         models.DocumentStatusUploaded,
		ActualFilePath: storagePath,
		CreatedAt:      time.Now(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, filename, physical_file_id, status, actual_file_path, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, '', ?)`,
		doc.ID, doc.Filename, doc.PhysicalFileID, doc.Status, doc.ActualFilePath, doc.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit document creation: %w", err)
	}
	return doc, nil
}

const documentColumns = `id, filename, physical_file_id, status, template_id, parse_job_id,
	cached_parse_result, actual_file_path, error_message, created_at, processed_at`

func scanDocument(row *sql.Row) (*models.Document, error) {
	var (
		doc            models.Document
		templateID     sql.NullString
		parseJobID     sql.NullString
		cachedParse    sql.NullString
		createdAtUnix  int64
		processedAtUni sql.NullInt64
	)
	err := row.Scan(&doc.ID, &doc.Filename, &doc.PhysicalFileID, &doc.Status, &templateID, &parseJobID,
		&cachedParse, &doc.ActualFilePath, &doc.ErrorMessage, &createdAtUnix, &processedAtUni)
	if err != nil {
		return nil, err
	}
	if templateID.Valid {
		doc.TemplateID = &templateID.String
	}
	if parseJobID.Valid {
		doc.ParseJobID = &parseJobID.String
	}
	if cachedParse.Valid {
		var parsed models.ParsedResult
		if err := json.Unmarshal([]byte(cachedParse.String), &parsed); err == nil {
			doc.CachedParseResult = &parsed
		}
	}
	doc.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
	if processedAtUni.Valid {
		t := time.Unix(processedAtUni.Int64, 0).UTC()
		doc.ProcessedAt = &t
	}
	return &doc, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	return doc, nil
}

// UpdateDocumentStatus enforces models.CanTransition before writing. A
// zero-length target status that is not currently reachable is rejected
// rather than silently ignored.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, errMsg string) error {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if !models.CanTransition(doc.Status, status) {
		return fmt.Errorf("illegal document status transition %q -> %q for document %q", doc.Status, status, id)
	}

	var processedAt interface{}
	if status == models.DocumentStatusCompleted || status == models.DocumentStatusError {
		processedAt = time.Now().Unix()
	}

	_, err = s.db.DB().ExecContext(ctx, `
		UPDATE documents SET status = ?, error_message = ?, processed_at = COALESCE(?, processed_at) WHERE id = ?`,
		status, errMsg, processedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return nil
}

func (s *Store) SetDocumentTemplate(ctx context.Context, id string, templateID string) error {
	res, err := s.db.DB().ExecContext(ctx, `UPDATE documents SET template_id = ? WHERE id = ?`, templateID, id)
	if err != nil {
		return fmt.Errorf("failed to set document template: %w", err)
	}
	return mustAffectOne(res, "document", id)
}

// CacheParseResult writes the parse-job-id and cached parse result
// atomically, so a later ExtractStructured call can reuse the jobid://
// reference instead of re-uploading document bytes.
func (s *Store) CacheParseResult(ctx context.Context, id string, parseJobID string, result *models.ParsedResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal parsed result: %w", err)
	}
	res, err := s.db.DB().ExecContext(ctx, `
		UPDATE documents SET parse_job_id = ?, cached_parse_result = ? WHERE id = ?`,
		parseJobID, string(payload), id)
	if err != nil {
		return fmt.Errorf("failed to cache parse result: %w", err)
	}
	return mustAffectOne(res, "document", id)
}

func mustAffectOne(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %q not found", entity, id)
	}
	return nil
}
