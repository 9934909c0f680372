package extractor_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/extractor"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
	"github.com/docuflow/docuflow/internal/search"
	"github.com/docuflow/docuflow/internal/storage/sqlite"
	"github.com/docuflow/docuflow/internal/validator"
)

type fakeParser struct {
	values map[string]interfaces.ExtractedValue
	err    error
}

func (f *fakeParser) Parse(ctx context.Context, bytes []byte) (string, *models.ParsedResult, error) {
	return "", nil, nil
}

func (f *fakeParser) ExtractStructured(ctx context.Context, sourceRef string, fields []models.FieldSpec) (map[string]interfaces.ExtractedValue, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.values, nil
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(arbor.NewLogger(), &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "extractor-test.db"),
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func setupDocument(t *testing.T, store *sqlite.Store, tmpl *models.Template) *models.Document {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateTemplate(ctx, tmpl))

	doc, err := store.CreateDocument(ctx, "invoice.pdf", "", []byte("hello"), "/tmp/invoice.pdf")
	require.NoError(t, err)
	require.NoError(t, store.UpdateDocumentStatus(ctx, doc.ID, models.DocumentStatusAnalyzing, ""))
	require.NoError(t, store.CacheParseResult(ctx, doc.ID, "job-1", &models.ParsedResult{FullText: "Vendor: Acme"}))
	require.NoError(t, store.SetDocumentTemplate(ctx, doc.ID, tmpl.ID))
	require.NoError(t, store.UpdateDocumentStatus(ctx, doc.ID, models.DocumentStatusTemplateMatched, ""))
	require.NoError(t, store.UpdateDocumentStatus(ctx, doc.ID, models.DocumentStatusProcessing, ""))

	doc, err = store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	return doc
}

func defaultValidationConfig() *common.ValidationConfig {
	return &common.ValidationConfig{
		ReviewThreshold:      0.60,
		HighConfidence:       0.85,
		MonetaryCapMinor:     100_000_000_00,
		DateFutureWindowDays: 30,
		DatePastWindowDays:   3650,
		TotalTolerance:       0.01,
	}
}

func TestExtract_PersistsFieldsAndIndexesDocument(t *testing.T) {
	store := newTestStore(t)
	idx := search.New(store.DB(), store, &common.SearchIndexConfig{WeightA: 3, WeightB: 2, WeightC: 1, MaxDynamicFields: 1000, KeywordMaxLen: 256}, arbor.NewLogger())
	v := validator.New(defaultValidationConfig(), arbor.NewLogger())

	tmpl := &models.Template{
		ID:   "tmpl-1",
		Name: "Invoice",
		Kind: models.TemplateKindInvoice,
		Fields: []models.FieldSpec{
			{Name: "vendor", Type: models.FieldTypeText, Required: true},
			{Name: "total", Type: models.FieldTypeNumber, Required: true},
		},
	}
	doc := setupDocument(t, store, tmpl)

	parser := &fakeParser{values: map[string]interfaces.ExtractedValue{
		"vendor": {Value: models.NewScalarValue("Acme Corp"), Confidence: 0.95},
		"total":  {Value: models.NewNumberValue(150.0), Confidence: 0.92},
	}}

	ex := extractor.New(parser, v, store, idx, nil, defaultValidationConfig(), arbor.NewLogger())

	fields, err := ex.Extract(context.Background(), doc, tmpl)
	require.NoError(t, err)
	require.Len(t, fields, 2)

	stored, err := store.GetExtractedFields(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	plan := models.Plan{TextQuery: "Acme"}
	hits, _, err := idx.Search(context.Background(), plan, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, doc.ID, hits[0].DocumentID)
}

func TestExtract_NoParseJobID_ReturnsPipelineFatalError(t *testing.T) {
	store := newTestStore(t)
	idx := search.New(store.DB(), store, &common.SearchIndexConfig{WeightA: 3, WeightB: 2, WeightC: 1, MaxDynamicFields: 1000, KeywordMaxLen: 256}, arbor.NewLogger())
	v := validator.New(defaultValidationConfig(), arbor.NewLogger())

	tmpl := &models.Template{ID: "tmpl-2", Name: "Generic", Kind: models.TemplateKindGeneric}
	require.NoError(t, store.CreateTemplate(context.Background(), tmpl))

	doc, err := store.CreateDocument(context.Background(), "unparsed.pdf", "", []byte("hi"), "/tmp/unparsed.pdf")
	require.NoError(t, err)

	ex := extractor.New(&fakeParser{}, v, store, idx, nil, defaultValidationConfig(), arbor.NewLogger())

	_, err = ex.Extract(context.Background(), doc, tmpl)
	require.Error(t, err)
	require.True(t, common.IsFatal(err))
}

func TestExtract_RequiredFieldMissing_LowPriorityNotAssigned(t *testing.T) {
	store := newTestStore(t)
	idx := search.New(store.DB(), store, &common.SearchIndexConfig{WeightA: 3, WeightB: 2, WeightC: 1, MaxDynamicFields: 1000, KeywordMaxLen: 256}, arbor.NewLogger())
	v := validator.New(defaultValidationConfig(), arbor.NewLogger())

	tmpl := &models.Template{
		ID:     "tmpl-3",
		Name:   "Receipt",
		Kind:   models.TemplateKindReceipt,
		Fields: []models.FieldSpec{{Name: "vendor", Type: models.FieldTypeText, Required: true}},
	}
	doc := setupDocument(t, store, tmpl)

	parser := &fakeParser{values: map[string]interfaces.ExtractedValue{}}
	ex := extractor.New(parser, v, store, idx, nil, defaultValidationConfig(), arbor.NewLogger())

	fields, err := ex.Extract(context.Background(), doc, tmpl)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	require.Equal(t, models.ValidationStatusWarning, fields[0].ValidationStatus)
	require.Equal(t, models.AuditPriorityHigh, fields[0].AuditPriority)
}
