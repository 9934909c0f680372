package sqlite

import "fmt"

// schemaSQL is the full DDL for the Store's persisted-state layout: the
// eleven relations named in the data model, plus the FTS5 indexes backing
// SearchIndex's keyword/fuzzy/MoreLikeThis operations.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS physical_files (
	id TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL UNIQUE,
	storage_path TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	physical_file_id TEXT NOT NULL REFERENCES physical_files(id),
	status TEXT NOT NULL,
	template_id TEXT,
	parse_job_id TEXT,
	cached_parse_result TEXT,
	actual_file_path TEXT NOT NULL,
	error_message TEXT DEFAULT '',
	created_at INTEGER NOT NULL,
	processed_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_documents_physical_file ON documents(physical_file_id);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_documents_template ON documents(template_id);

CREATE TABLE IF NOT EXISTS templates (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	signature_version INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS template_field_specs (
	id TEXT PRIMARY KEY,
	template_id TEXT NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	required INTEGER NOT NULL DEFAULT 0,
	description TEXT DEFAULT '',
	extraction_hints TEXT,
	confidence_threshold REAL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_field_specs_template_name ON template_field_specs(template_id, name);
CREATE INDEX IF NOT EXISTS idx_field_specs_position ON template_field_specs(template_id, position);

CREATE TABLE IF NOT EXISTS extracted_fields (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	field_name TEXT NOT NULL,
	field_type TEXT NOT NULL,
	value_kind INTEGER NOT NULL,
	field_value TEXT,
	field_value_json TEXT,
	confidence REAL NOT NULL,
	source_page INTEGER,
	source_bbox TEXT,
	validation_status TEXT NOT NULL,
	validation_errors TEXT,
	audit_priority INTEGER NOT NULL,
	verified INTEGER NOT NULL DEFAULT 0,
	verified_value TEXT,
	verified_at INTEGER,
	citation_count INTEGER NOT NULL DEFAULT 0,
	last_cited_at INTEGER,
	created_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_extracted_fields_doc_name ON extracted_fields(document_id, field_name);
CREATE INDEX IF NOT EXISTS idx_extracted_fields_audit ON extracted_fields(audit_priority ASC, confidence ASC, created_at DESC);

CREATE TABLE IF NOT EXISTS verifications (
	id TEXT PRIMARY KEY,
	field_id TEXT NOT NULL REFERENCES extracted_fields(id) ON DELETE CASCADE,
	action TEXT NOT NULL,
	corrected_value TEXT,
	notes TEXT DEFAULT '',
	reviewer_id TEXT NOT NULL,
	verified_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verifications_field ON verifications(field_id, verified_at DESC);

CREATE TABLE IF NOT EXISTS citations (
	id TEXT PRIMARY KEY,
	field_id TEXT NOT NULL REFERENCES extracted_fields(id) ON DELETE CASCADE,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	query_id TEXT NOT NULL,
	query_text TEXT NOT NULL,
	query_source TEXT NOT NULL,
	confidence_at_citation REAL NOT NULL,
	context_snippet TEXT DEFAULT '',
	audit_link TEXT DEFAULT '',
	audit_link_clicked INTEGER NOT NULL DEFAULT 0,
	correction_made INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_citations_field ON citations(field_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_citations_document ON citations(document_id);

CREATE TABLE IF NOT EXISTS canonical_field_mappings (
	canonical_name TEXT PRIMARY KEY,
	field_mappings TEXT NOT NULL,
	aggregation_type TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS canonical_aliases (
	alias TEXT PRIMARY KEY,
	canonical_name TEXT NOT NULL REFERENCES canonical_field_mappings(canonical_name) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS query_cache (
	cache_key TEXT PRIMARY KEY,
	plan_json TEXT NOT NULL,
	response_json TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_cache_expiry ON query_cache(expires_at);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	description TEXT DEFAULT ''
);

-- search_docs holds the weighted text vector SearchIndex.IndexDocument
-- recomputes on every write; the FTS5 table below indexes it for keyword
-- and BM25-ranked search.
CREATE TABLE IF NOT EXISTS search_docs (
	document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
	template_id TEXT,
	weighted_text TEXT NOT NULL,
	fields_json TEXT NOT NULL,
	embedding_json TEXT
);

CREATE VIRTUAL TABLE IF NOT EXISTS search_docs_fts USING fts5(
	document_id UNINDEXED,
	weighted_text,
	content='search_docs',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS search_docs_ai AFTER INSERT ON search_docs BEGIN
	INSERT INTO search_docs_fts(rowid, document_id, weighted_text)
	VALUES (new.rowid, new.document_id, new.weighted_text);
END;

CREATE TRIGGER IF NOT EXISTS search_docs_au AFTER UPDATE ON search_docs BEGIN
	UPDATE search_docs_fts SET weighted_text = new.weighted_text WHERE rowid = new.rowid;
END;

CREATE TRIGGER IF NOT EXISTS search_docs_ad AFTER DELETE ON search_docs BEGIN
	DELETE FROM search_docs_fts WHERE rowid = old.rowid;
END;

-- Trigram index over the same weighted text, used only for the fuzzy
-- fallback when an exact/prefix FTS5 query returns nothing.
CREATE VIRTUAL TABLE IF NOT EXISTS search_docs_trigram USING fts5(
	document_id UNINDEXED,
	weighted_text,
	tokenize='trigram'
);

-- template_signatures backs FindSimilarTemplates (MoreLikeThis over field
-- names and a sample-chunk text blob).
CREATE TABLE IF NOT EXISTS template_signatures (
	template_id TEXT PRIMARY KEY REFERENCES templates(id) ON DELETE CASCADE,
	field_names_text TEXT NOT NULL,
	sample_text TEXT NOT NULL,
	version INTEGER NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS template_signatures_fts USING fts5(
	template_id UNINDEXED,
	field_names_text,
	sample_text,
	content='template_signatures',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS template_signatures_ai AFTER INSERT ON template_signatures BEGIN
	INSERT INTO template_signatures_fts(rowid, template_id, field_names_text, sample_text)
	VALUES (new.rowid, new.template_id, new.field_names_text, new.sample_text);
END;

CREATE TRIGGER IF NOT EXISTS template_signatures_au AFTER UPDATE ON template_signatures BEGIN
	UPDATE template_signatures_fts
	SET field_names_text = new.field_names_text, sample_text = new.sample_text
	WHERE rowid = new.rowid;
END;

CREATE TRIGGER IF NOT EXISTS template_signatures_ad AFTER DELETE ON template_signatures BEGIN
	DELETE FROM template_signatures_fts WHERE rowid = old.rowid;
END;
`

// InitSchema creates every table, index, and trigger if not already present.
func (s *SQLiteDB) InitSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.logger.Info().Msg("database schema initialized")
	return nil
}
