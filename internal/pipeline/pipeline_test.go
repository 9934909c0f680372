package pipeline_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
	"github.com/docuflow/docuflow/internal/pipeline"
	"github.com/docuflow/docuflow/internal/storage/sqlite"
)

type fakeParser struct{}

func (f *fakeParser) Parse(ctx context.Context, bytes []byte) (string, *models.ParsedResult, error) {
	return "job-1", &models.ParsedResult{FullText: "Vendor: Acme\nTotal: 100"}, nil
}

func (f *fakeParser) ExtractStructured(ctx context.Context, sourceRef string, fields []models.FieldSpec) (map[string]interfaces.ExtractedValue, error) {
	return map[string]interfaces.ExtractedValue{}, nil
}

type failingParser struct{ message string }

func (f *failingParser) Parse(ctx context.Context, bytes []byte) (string, *models.ParsedResult, error) {
	return "", nil, assertError(f.message)
}

func (f *failingParser) ExtractStructured(ctx context.Context, sourceRef string, fields []models.FieldSpec) (map[string]interfaces.ExtractedValue, error) {
	return nil, assertError(f.message)
}

type testErr string

func (e testErr) Error() string { return string(e) }

func assertError(msg string) error { return testErr(msg) }

type fakeMatcher struct {
	result interfaces.MatchResult
	err    error
}

func (f *fakeMatcher) Match(ctx context.Context, parsed *models.ParsedResult, candidateFields []string) (interfaces.MatchResult, error) {
	return f.result, f.err
}

type fakeExtractor struct {
	err error
}

func (f *fakeExtractor) Extract(ctx context.Context, doc *models.Document, tmpl *models.Template) ([]models.ExtractedField, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.ExtractedField{{DocumentID: doc.ID, FieldName: "vendor"}}, nil
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(arbor.NewLogger(), &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "pipeline-test.db"),
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func workersConfig() *common.WorkersConfig {
	return &common.WorkersConfig{PoolSize: 4, ParseDeadlineMS: 5000, ExtractDeadlineMS: 5000}
}

func TestIngestBatch_FastMatch_CompletesDocument(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateTemplate(context.Background(), &models.Template{
		ID: "tmpl-1", Name: "Invoice", Kind: models.TemplateKindInvoice,
		Fields: []models.FieldSpec{{Name: "vendor", Type: models.FieldTypeText}},
	}))

	id := "tmpl-1"
	m := &fakeMatcher{result: interfaces.MatchResult{TemplateID: &id, Confidence: 0.9, Source: interfaces.MatchSourceFastMatch}}
	ex := &fakeExtractor{}
	p := pipeline.New(store, &fakeParser{}, m, ex, workersConfig(), arbor.NewLogger())

	result, err := p.IngestBatch(context.Background(), []interfaces.BatchFile{
		{Filename: "invoice.pdf", Bytes: []byte("hello")},
	})
	require.NoError(t, err)
	require.Empty(t, result.Failed)
	require.Len(t, result.Succeeded, 1)
	require.Equal(t, models.DocumentStatusCompleted, result.Succeeded[0].Status)
	require.Equal(t, 1, result.Analytics.FastMatches)

	doc, err := store.GetDocument(context.Background(), result.Succeeded[0].DocumentID)
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusCompleted, doc.Status)
}

func TestIngestBatch_NeedsNewTemplate_LeavesDocumentPending(t *testing.T) {
	store := newTestStore(t)
	m := &fakeMatcher{result: interfaces.MatchResult{TemplateID: nil, Confidence: 0.2, Source: interfaces.MatchSourceNeedsNewTemplate}}
	p := pipeline.New(store, &fakeParser{}, m, &fakeExtractor{}, workersConfig(), arbor.NewLogger())

	result, err := p.IngestBatch(context.Background(), []interfaces.BatchFile{
		{Filename: "mystery.pdf", Bytes: []byte("hello")},
	})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)
	require.Equal(t, models.DocumentStatusTemplateNeeded, result.Succeeded[0].Status)
}

func TestIngestBatch_LLMFallbackMatch_WaitsForConfirmation(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateTemplate(context.Background(), &models.Template{
		ID: "tmpl-2", Name: "Receipt", Kind: models.TemplateKindReceipt,
	}))
	id := "tmpl-2"
	m := &fakeMatcher{result: interfaces.MatchResult{TemplateID: &id, Confidence: 0.65, Source: interfaces.MatchSourceLLMFallback}}
	p := pipeline.New(store, &fakeParser{}, m, &fakeExtractor{}, workersConfig(), arbor.NewLogger())

	result, err := p.IngestBatch(context.Background(), []interfaces.BatchFile{
		{Filename: "receipt.pdf", Bytes: []byte("hello")},
	})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)
	require.Equal(t, models.DocumentStatusTemplateSuggested, result.Succeeded[0].Status)
	require.Equal(t, 1, result.Analytics.LLMMatches)
	require.Greater(t, result.Analytics.CostEstimate, 0.0)
}

func TestIngestBatch_ParseFailure_IsPartial(t *testing.T) {
	store := newTestStore(t)
	m := &fakeMatcher{result: interfaces.MatchResult{Source: interfaces.MatchSourceNeedsNewTemplate}}
	p := pipeline.New(store, &failingParser{message: "boom"}, m, &fakeExtractor{}, workersConfig(), arbor.NewLogger())

	result, err := p.IngestBatch(context.Background(), []interfaces.BatchFile{
		{Filename: "bad.pdf", Bytes: []byte("hello")},
		{Filename: "mystery.pdf", Bytes: nil},
	})
	require.NoError(t, err)
	require.Len(t, result.Failed, 2)
	for _, f := range result.Failed {
		require.Equal(t, interfaces.BatchErrorParseFailed, f.Code)
	}
}

func TestIngestBatch_RequestedTemplateID_SkipsMatching(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateTemplate(context.Background(), &models.Template{
		ID: "tmpl-3", Name: "PO", Kind: models.TemplateKindPurchaseOrder,
	}))
	id := "tmpl-3"
	// fakeMatcher would return needs_new_template; requesting a template
	// explicitly must bypass it entirely.
	m := &fakeMatcher{result: interfaces.MatchResult{Source: interfaces.MatchSourceNeedsNewTemplate}}
	p := pipeline.New(store, &fakeParser{}, m, &fakeExtractor{}, workersConfig(), arbor.NewLogger())

	result, err := p.IngestBatch(context.Background(), []interfaces.BatchFile{
		{Filename: "po.pdf", Bytes: []byte("hello"), RequestedTemplateID: &id},
	})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)
	require.Equal(t, models.DocumentStatusCompleted, result.Succeeded[0].Status)
}
