package cache

import (
	"github.com/timshannon/badgerhold/v4"
)

// signatureRecord is one template's cached signature (field-name set,
// embedding of the field names) at a given SignatureVersion.
// matcher.ReindexSignatures recomputes the embedding on the serve cron
// whenever the template's SignatureVersion is newer than the cached one;
// losing this cache costs a recompute, never a correctness problem.
type signatureRecord struct {
	TemplateID string `badgerhold:"key"`
	Version    int    `badgerhold:"index"`
	FieldNames []string
	Embedding  []float32
}

// SignatureCache holds each template's signature embedding so that
// matcher.ReindexSignatures skips the embedder for templates that haven't
// changed. Matcher.Match does not read it.
type SignatureCache struct {
	db *DB
}

func NewSignatureCache(db *DB) *SignatureCache {
	return &SignatureCache{db: db}
}

// Get returns the cached embedding for templateID if it matches version
// exactly; a stale version is treated as a miss so the caller recomputes.
func (c *SignatureCache) Get(templateID string, version int) ([]float32, []string, bool) {
	var rec signatureRecord
	if err := c.db.Store().Get(templateID, &rec); err != nil || rec.Version != version {
		return nil, nil, false
	}
	return rec.Embedding, rec.FieldNames, true
}

func (c *SignatureCache) Put(templateID string, version int, fieldNames []string, embedding []float32) error {
	return c.db.Store().Upsert(templateID, &signatureRecord{
		TemplateID: templateID,
		Version:    version,
		FieldNames: fieldNames,
		Embedding:  embedding,
	})
}

func (c *SignatureCache) Invalidate(templateID string) error {
	err := c.db.Store().Delete(templateID, &signatureRecord{})
	if err == badgerhold.ErrNotFound {
		return nil
	}
	return err
}
