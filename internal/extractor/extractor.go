// Package extractor implements interfaces.Extractor: given a Document
// already pinned to a Template, pull structured field values out of its
// cached parse job, validate them, assign audit priority, and persist the
// result (§4.6). The two-write ordering — Store first, SearchIndex
// second, with a non-fatal log-and-continue on the second failing —
// follows the teacher's internal/services/crawler/document_persister.go
// persist-then-publish idiom. The one exception is a document rejected by
// the search index's dynamic field cap (common.ErrIndexCapExceeded): that
// is a property of the document itself, not a degraded-search-visibility
// situation, so Extract fails the document rather than logging and
// continuing.
package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
)

// Extractor implements interfaces.Extractor.
type Extractor struct {
	parser    interfaces.ParserClient
	validator interfaces.Validator
	store     interfaces.Store
	index     interfaces.SearchIndex
	embedder  interfaces.EmbedderClient // nil when Embedder.Enabled is false
	vconfig   *common.ValidationConfig
	logger    arbor.ILogger
}

// New constructs an Extractor. embedder may be nil; Extract then skips the
// semantic-embedding step of the SearchDoc it builds.
var _ interfaces.Extractor = (*Extractor)(nil)

func New(parser interfaces.ParserClient, validator interfaces.Validator, store interfaces.Store, index interfaces.SearchIndex, embedder interfaces.EmbedderClient, vconfig *common.ValidationConfig, logger arbor.ILogger) *Extractor {
	return &Extractor{parser: parser, validator: validator, store: store, index: index, embedder: embedder, vconfig: vconfig, logger: logger}
}

// Extract runs Parser.ExtractStructured over doc's cached parse job,
// validates the result against tmpl, assigns audit priority, persists the
// fields, and indexes the document. The ParseJobRef reuse (never
// re-uploading bytes for an already-parsed document) is the pipelining
// invariant in §4.3/§4.7.
func (e *Extractor) Extract(ctx context.Context, doc *models.Document, tmpl *models.Template) ([]models.ExtractedField, error) {
	sourceRef := doc.ParseJobRef()
	if sourceRef == "" {
		return nil, fmt.Errorf("%w: document %s has no cached parse job", common.ErrPipelineFatal, doc.ID)
	}

	raw, err := e.parser.ExtractStructured(ctx, sourceRef, tmpl.Fields)
	if err != nil {
		return nil, fmt.Errorf("structured extraction failed for document %s: %w", doc.ID, err)
	}

	sanitized := make(map[string]interfaces.ExtractedValue, len(raw))
	for name, ev := range raw {
		if ev.BBox != nil && !ev.BBox.Valid() {
			ev.BBox = nil
		}
		sanitized[name] = ev
	}

	validations, err := e.validator.Validate(ctx, tmpl, sanitized)
	if err != nil {
		return nil, fmt.Errorf("validation failed for document %s: %w", doc.ID, err)
	}

	fields := make([]models.ExtractedField, 0, len(tmpl.Fields))
	for _, spec := range tmpl.Fields {
		ev := sanitized[spec.Name]
		fv := validations[spec.Name]

		status := toValidationStatus(fv.Status)
		fields = append(fields, models.ExtractedField{
			ID:               common.NewFieldID(),
			DocumentID:       doc.ID,
			FieldName:        spec.Name,
			FieldType:        spec.Type,
			Value:            ev.Value,
			Confidence:       ev.Confidence,
			SourcePage:       ev.Page,
			SourceBBox:       ev.BBox,
			ValidationStatus: status,
			ValidationErrors: fv.Errors,
			AuditPriority:    models.ComputePriority(ev.Confidence, status, e.vconfig.ReviewThreshold, e.vconfig.HighConfidence),
		})
	}

	if err := e.store.UpsertExtractedFields(ctx, doc.ID, fields); err != nil {
		return nil, fmt.Errorf("failed to persist extracted fields for document %s: %w", doc.ID, err)
	}

	if err := e.indexDocument(ctx, doc, tmpl, fields); err != nil {
		if common.IsIndexCapExceeded(err) {
			return nil, fmt.Errorf("document %s rejected by search index: %w", doc.ID, err)
		}
		e.logger.Warn().
			Err(err).
			Str("document_id", doc.ID).
			Msg("failed to index document after extraction; fields are persisted, search visibility degraded")
	}

	return fields, nil
}

func toValidationStatus(outcome interfaces.ValidationOutcome) models.ValidationStatus {
	switch outcome {
	case interfaces.ValidationOutcomeValid:
		return models.ValidationStatusValid
	case interfaces.ValidationOutcomeWarning:
		return models.ValidationStatusWarning
	case interfaces.ValidationOutcomeError:
		return models.ValidationStatusError
	default:
		return models.ValidationStatusUnchecked
	}
}

// indexDocument builds the denormalized SearchDoc from the just-persisted
// fields and writes it through SearchIndex. Embedding is best-effort: a
// permanent Embedder failure (common.ErrMalformedExternal) is logged and
// the document is still indexed without a vector, per §4.3's embedder
// contract ("skip semantic index, log, continue").
func (e *Extractor) indexDocument(ctx context.Context, doc *models.Document, tmpl *models.Template, fields []models.ExtractedField) error {
	fieldValues := make(map[string]string, len(fields))
	var body strings.Builder
	for _, f := range fields {
		text := f.Value.AsString()
		if text == "" {
			continue
		}
		fieldValues[f.FieldName] = text
		body.WriteString(text)
		body.WriteString("\n")
	}

	canonical, err := e.canonicalText(ctx, tmpl, fields)
	if err != nil {
		return err
	}

	searchDoc := models.SearchDoc{
		DocumentID:    doc.ID,
		Filename:      doc.Filename,
		TemplateID:    tmpl.ID,
		TemplateName:  tmpl.Name,
		FullText:      body.String(),
		FieldValues:   fieldValues,
		CanonicalText: canonical,
	}

	if e.embedder != nil && body.Len() > 0 {
		vec, err := e.embedder.Embed(ctx, searchDoc.FullText)
		if err != nil && !common.IsMalformed(err) {
			return fmt.Errorf("embedding failed for document %s: %w", doc.ID, err)
		}
		if err == nil {
			searchDoc.Embedding = vec
		} else {
			e.logger.Warn().Err(err).Str("document_id", doc.ID).Msg("embedder rejected document text; indexing without a vector")
		}
	}

	return e.index.IndexDocument(ctx, searchDoc)
}

// canonicalText resolves this document's fields into the
// CanonicalFieldMapping registry, keyed by canonical name, so canonical
// query expansion (§4.8/§4.9) can find this document under e.g. "amount"
// regardless of the template's own field name for it.
func (e *Extractor) canonicalText(ctx context.Context, tmpl *models.Template, fields []models.ExtractedField) (map[string]string, error) {
	mappings, err := e.store.GetCanonicalMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical mappings: %w", err)
	}

	byName := make(map[string]models.ExtractedField, len(fields))
	for _, f := range fields {
		byName[strings.ToLower(f.FieldName)] = f
	}

	out := make(map[string]string)
	for _, mapping := range mappings {
		var fieldName string
		for templateName, fn := range mapping.FieldMappings {
			if strings.EqualFold(templateName, tmpl.Name) {
				fieldName = fn
				break
			}
		}
		if fieldName == "" {
			continue
		}
		f, ok := byName[strings.ToLower(fieldName)]
		if !ok {
			continue
		}
		text := f.Value.AsString()
		if text == "" {
			continue
		}
		out[mapping.CanonicalName] = text
	}
	return out, nil
}
