// Package search implements interfaces.SearchIndex over the search_docs /
// search_docs_fts / search_docs_trigram / template_signatures tables
// (internal/storage/sqlite/schema.go), grounded on the teacher's
// internal/services/search package: fts5_search_service.go supplies the
// FTS5 usage convention (a content table plus an external-content virtual
// table kept live by triggers), and query_parser.go supplies the
// tokenize-then-build-FTS5-query idiom adapted in tokenizer.go. SQLite has
// no native per-column term weighting usable against a single text column,
// so the weighted text vector (A x3 / B x2 / C x1) is built by literal
// repetition of each band's text before indexing, biasing FTS5's bm25 term
// frequency the way a column-weighted bm25() call would if the schema
// carried one indexed column per band.
package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
)

// Index implements interfaces.SearchIndex and interfaces.TemplateIndexer.
type Index struct {
	db     *sql.DB
	store  interfaces.Store
	config *common.SearchIndexConfig
	logger arbor.ILogger
	tok    *queryTokenizer
}

// New constructs an Index. store is used only for canonical field
// expansion in Search; it is never written through.
var (
	_ interfaces.SearchIndex     = (*Index)(nil)
	_ interfaces.TemplateIndexer = (*Index)(nil)
)

func New(db *sql.DB, store interfaces.Store, config *common.SearchIndexConfig, logger arbor.ILogger) *Index {
	return &Index{
		db:     db,
		store:  store,
		config: config,
		logger: logger,
		tok:    newQueryTokenizer(),
	}
}

type fieldsPayload struct {
	FieldValues   map[string]string `json:"field_values"`
	CanonicalText map[string]string `json:"canonical_text"`
}

// IndexDocument is an idempotent upsert into search_docs; the schema's
// AFTER INSERT/UPDATE triggers keep search_docs_fts and
// search_docs_trigram's backing content in sync automatically.
func (idx *Index) IndexDocument(ctx context.Context, doc models.SearchDoc) error {
	weightedText, err := idx.buildWeightedText(doc)
	if err != nil {
		return err
	}

	payload := fieldsPayload{FieldValues: doc.FieldValues, CanonicalText: doc.CanonicalText}
	fieldsJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal search doc fields: %w", err)
	}

	var embeddingJSON sql.NullString
	if len(doc.Embedding) > 0 {
		raw, err := json.Marshal(doc.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal search doc embedding: %w", err)
		}
		embeddingJSON = sql.NullString{String: string(raw), Valid: true}
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin index transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO search_docs (document_id, template_id, weighted_text, fields_json, embedding_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			template_id = excluded.template_id,
			weighted_text = excluded.weighted_text,
			fields_json = excluded.fields_json,
			embedding_json = excluded.embedding_json
	`, doc.DocumentID, doc.TemplateID, weightedText, string(fieldsJSON), embeddingJSON)
	if err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.DocumentID, err)
	}

	// search_docs_trigram is a standalone FTS5 table (no content= backing,
	// so no trigger mirrors it automatically); keep it in sync explicitly,
	// pinned to search_docs' own rowid so re-indexing the same document
	// overwrites rather than duplicates its trigram entry.
	var rowID int64
	if err := tx.QueryRowContext(ctx, `SELECT rowid FROM search_docs WHERE document_id = ?`, doc.DocumentID).Scan(&rowID); err != nil {
		return fmt.Errorf("failed to read search_docs rowid for %s: %w", doc.DocumentID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM search_docs_trigram WHERE rowid = ?`, rowID); err != nil {
		return fmt.Errorf("failed to clear stale trigram entry for %s: %w", doc.DocumentID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO search_docs_trigram (rowid, document_id, weighted_text) VALUES (?, ?, ?)
	`, rowID, doc.DocumentID, weightedText); err != nil {
		return fmt.Errorf("failed to index trigram entry for %s: %w", doc.DocumentID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index write for %s: %w", doc.DocumentID, err)
	}
	return nil
}

// GetEmbeddings loads the stored embedding vectors for a set of document
// ids, for RetrievalEngine's semantic rerank pass (§4.9 step 4). Documents
// indexed before an Embedder was configured, or whose embedding call was
// skipped as malformed (§4.3), simply have no entry in the returned map.
func (idx *Index) GetEmbeddings(ctx context.Context, documentIDs []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(documentIDs))
	if len(documentIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(documentIDs))
	args := make([]interface{}, len(documentIDs))
	for i, id := range documentIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT document_id, embedding_json FROM search_docs WHERE document_id IN (%s) AND embedding_json IS NOT NULL`, strings.Join(placeholders, ","))
	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var documentID, raw string
		if err := rows.Scan(&documentID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan embedding row: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding for %s: %w", documentID, err)
		}
		out[documentID] = vec
	}
	return out, rows.Err()
}

// IndexTemplateSignature writes/overwrites a template fingerprint.
func (idx *Index) IndexTemplateSignature(ctx context.Context, sig models.SignatureDoc) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO template_signatures (template_id, field_names_text, sample_text, version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(template_id) DO UPDATE SET
			field_names_text = excluded.field_names_text,
			sample_text = excluded.sample_text,
			version = excluded.version
	`, sig.TemplateID, strings.Join(sig.FieldNames, " "), sig.SampleText, sig.Version)
	if err != nil {
		return fmt.Errorf("failed to index template signature %s: %w", sig.TemplateID, err)
	}
	return nil
}

// buildWeightedText renders a SearchDoc's three weight bands (filename +
// template name at weight A, declared field values at weight B, full text
// at weight C) into one keyword-indexable blob, truncating any individual
// field value at KeywordMaxLen. A document whose dynamic field count
// exceeds MaxDynamicFields is rejected outright (common.ErrIndexCapExceeded)
// rather than silently truncated.
func (idx *Index) buildWeightedText(doc models.SearchDoc) (string, error) {
	bandA := strings.Join([]string{doc.Filename, doc.TemplateName}, " ")

	keys := make([]string, 0, len(doc.FieldValues))
	for k := range doc.FieldValues {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if idx.config.MaxDynamicFields > 0 && len(keys) > idx.config.MaxDynamicFields {
		return "", fmt.Errorf("%w: document %s has %d dynamic fields, cap is %d",
			common.ErrIndexCapExceeded, doc.DocumentID, len(keys), idx.config.MaxDynamicFields)
	}

	bandBValues := make([]string, 0, len(keys))
	for _, k := range keys {
		v := doc.FieldValues[k]
		if idx.config.KeywordMaxLen > 0 && len(v) > idx.config.KeywordMaxLen {
			v = v[:idx.config.KeywordMaxLen]
		}
		bandBValues = append(bandBValues, v)
	}
	bandB := strings.Join(bandBValues, " ")

	var sb strings.Builder
	repeatJoined(&sb, bandA, idx.config.WeightA)
	repeatJoined(&sb, bandB, idx.config.WeightB)
	repeatJoined(&sb, doc.FullText, idx.config.WeightC)

	return strings.TrimSpace(sb.String()), nil
}

func repeatJoined(sb *strings.Builder, text string, weight int) {
	if text == "" || weight <= 0 {
		return
	}
	for i := 0; i < weight; i++ {
		sb.WriteString(text)
		sb.WriteString(" ")
	}
}
