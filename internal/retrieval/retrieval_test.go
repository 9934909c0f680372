package retrieval_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
	"github.com/docuflow/docuflow/internal/planner"
	"github.com/docuflow/docuflow/internal/retrieval"
	"github.com/docuflow/docuflow/internal/search"
	"github.com/docuflow/docuflow/internal/storage/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(arbor.NewLogger(), &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "retrieval-test.db"),
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestIndex(store *sqlite.Store) *search.Index {
	return search.New(store.DB(), store, &common.SearchIndexConfig{
		WeightA: 3, WeightB: 2, WeightC: 1, MaxDynamicFields: 1000, KeywordMaxLen: 256,
	}, arbor.NewLogger())
}

func testConfig() *common.QueryConfig {
	return &common.QueryConfig{
		FastPathThreshold: 0.70,
		MaxExpansions:     3,
		RRFK:              60,
		RRFAlpha:          0.5,
		TopK:              50,
		AnswerK:           10,
		QueryDeadlineMS:   5000,
		FuzzySimilarity:   0.3,
	}
}

// invoiceTemplate returns the shared "Invoice" template for store, creating
// it (and its canonical field mapping) on first use; templates.name is
// unique, so repeated seedInvoice calls against the same store must reuse
// one template row rather than creating a new one each time.
func invoiceTemplate(t *testing.T, store *sqlite.Store) *models.Template {
	t.Helper()
	ctx := context.Background()

	existing, err := store.ListTemplates(ctx)
	require.NoError(t, err)
	for i := range existing {
		if existing[i].Name == "Invoice" {
			return &existing[i]
		}
	}

	tmpl := &models.Template{
		Name: "Invoice",
		Kind: models.TemplateKindInvoice,
		Fields: []models.FieldSpec{
			{Name: "vendor_name", Type: models.FieldTypeText},
			{Name: "total_amount", Type: models.FieldTypeNumber},
		},
	}
	require.NoError(t, store.CreateTemplate(ctx, tmpl))
	require.NoError(t, store.UpsertCanonicalMapping(ctx, models.CanonicalFieldMapping{
		CanonicalName:   "amount",
		FieldMappings:   map[string]string{"Invoice": "total_amount"},
		AggregationType: models.AggregationSum,
	}))
	return tmpl
}

// seedInvoice creates a document under the shared Invoice template, its
// extracted fields, and indexes it for search; it returns the document ID.
func seedInvoice(t *testing.T, store *sqlite.Store, idx *search.Index, vendor string, amount float64, verified bool) string {
	t.Helper()
	ctx := context.Background()

	tmpl := invoiceTemplate(t, store)

	doc, err := store.CreateDocument(ctx, "invoice.pdf", "", []byte(vendor+"-"+time.Now().String()), "/tmp/invoice.pdf")
	require.NoError(t, err)
	require.NoError(t, store.SetDocumentTemplate(ctx, doc.ID, tmpl.ID))

	fields := []models.ExtractedField{
		{DocumentID: doc.ID, FieldName: "vendor_name", FieldType: models.FieldTypeText, Value: models.NewScalarValue(vendor), Confidence: 0.95, Verified: verified},
		{DocumentID: doc.ID, FieldName: "total_amount", FieldType: models.FieldTypeNumber, Value: models.NewNumberValue(amount), Confidence: 0.9, Verified: verified},
	}
	require.NoError(t, store.UpsertExtractedFields(ctx, doc.ID, fields))

	require.NoError(t, idx.IndexDocument(ctx, models.SearchDoc{
		DocumentID:   doc.ID,
		Filename:     "invoice.pdf",
		TemplateID:   tmpl.ID,
		TemplateName: tmpl.Name,
		FullText:     vendor + " invoice",
		FieldValues: map[string]string{
			"vendor_name":  vendor,
			"total_amount": models.NewNumberValue(amount).AsString(),
		},
		CanonicalText: map[string]string{"amount": models.NewNumberValue(amount).AsString()},
	}))
	return doc.ID
}

func TestRetrieve_KeywordMatch_ReturnsSourceAndDeterministicAnswer(t *testing.T) {
	store := newTestStore(t)
	idx := newTestIndex(store)
	seedInvoice(t, store, idx, "Acme Corp", 1500, false)

	engine := retrieval.New(idx, store, nil, nil, nil, testConfig(), arbor.NewLogger())
	plan := models.Plan{Intent: models.IntentSearch, TextQuery: "Acme", FuzzyEligible: true}

	resp, err := engine.Retrieve(context.Background(), plan, models.QueryRequest{Query: "Acme invoice"})
	require.NoError(t, err)
	require.Len(t, resp.Sources, 1)
	require.Contains(t, resp.Answer, "[[FIELD:")
}

func TestRetrieve_RangeFilter_ExcludesNonMatchingDocument(t *testing.T) {
	store := newTestStore(t)
	idx := newTestIndex(store)
	seedInvoice(t, store, idx, "Acme Corp", 1500, false)
	seedInvoice(t, store, idx, "Acme Branch", 100, false)

	engine := retrieval.New(idx, store, nil, nil, nil, testConfig(), arbor.NewLogger())
	plan := models.Plan{
		Intent:    models.IntentFilter,
		TextQuery: "Acme",
		Filters:   []models.Filter{{Field: "amount", Op: models.FilterOpGte, Value: 500}},
	}

	resp, err := engine.Retrieve(context.Background(), plan, models.QueryRequest{Query: "Acme over $500"})
	require.NoError(t, err)
	require.Len(t, resp.Sources, 1)
}

func TestRetrieve_NoSurvivingCandidate_ReturnsReformulationHint(t *testing.T) {
	store := newTestStore(t)
	idx := newTestIndex(store)
	seedInvoice(t, store, idx, "Acme Corp", 100, false)

	engine := retrieval.New(idx, store, nil, nil, nil, testConfig(), arbor.NewLogger())
	plan := models.Plan{
		Intent:    models.IntentFilter,
		TextQuery: "Acme",
		Filters:   []models.Filter{{Field: "amount", Op: models.FilterOpGte, Value: 99999}},
	}

	resp, err := engine.Retrieve(context.Background(), plan, models.QueryRequest{Query: "Acme over $99999"})
	require.NoError(t, err)
	require.Empty(t, resp.Sources)
	require.NotEmpty(t, resp.Answer)
}

func TestRetrieve_AggregateIntent_ComputesDeterministicTotal(t *testing.T) {
	store := newTestStore(t)
	idx := newTestIndex(store)
	seedInvoice(t, store, idx, "Acme Corp", 1000, false)
	seedInvoice(t, store, idx, "Acme West", 2000, false)

	engine := retrieval.New(idx, store, nil, nil, nil, testConfig(), arbor.NewLogger())
	plan := models.Plan{
		Intent:      models.IntentAggregate,
		TextQuery:   "Acme",
		Aggregation: &models.AggregationSpec{Type: models.AggregationSum, Field: "amount"},
	}

	resp, err := engine.Retrieve(context.Background(), plan, models.QueryRequest{Query: "total Acme spend"})
	require.NoError(t, err)
	require.Contains(t, resp.Answer, "3000")
}

func TestRetrieve_VerifiedDocumentRanksAboveUnverified(t *testing.T) {
	store := newTestStore(t)
	idx := newTestIndex(store)
	seedInvoice(t, store, idx, "Acme Corp", 500, false)
	verifiedID := seedInvoice(t, store, idx, "Acme Corp", 500, true)

	engine := retrieval.New(idx, store, nil, nil, nil, testConfig(), arbor.NewLogger())
	plan := models.Plan{Intent: models.IntentSearch, TextQuery: "Acme", FuzzyEligible: true}

	resp, err := engine.Retrieve(context.Background(), plan, models.QueryRequest{Query: "Acme"})
	require.NoError(t, err)
	require.Len(t, resp.Sources, 2)
	require.GreaterOrEqual(t, resp.Sources[0].Score, resp.Sources[1].Score)
	require.Equal(t, verifiedID, resp.Sources[0].DocumentID)
}

type fakeLLM struct {
	text string
	err  error
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string, opts interfaces.CompletionOptions) (string, interfaces.CompletionUsage, error) {
	return f.text, interfaces.CompletionUsage{}, f.err
}

func (f *fakeLLM) CompleteJSON(ctx context.Context, prompt string, schema []byte, opts interfaces.CompletionOptions, out interface{}) (interfaces.CompletionUsage, error) {
	return interfaces.CompletionUsage{}, f.err
}

func TestRetrieve_LLMOmitsMarkers_FallsBackToDeterministicAnswer(t *testing.T) {
	store := newTestStore(t)
	idx := newTestIndex(store)
	seedInvoice(t, store, idx, "Acme Corp", 750, false)

	llm := &fakeLLM{text: "Acme Corp's invoice total is seven hundred fifty dollars."}
	engine := retrieval.New(idx, store, llm, nil, nil, testConfig(), arbor.NewLogger())
	plan := models.Plan{Intent: models.IntentSearch, TextQuery: "Acme", FuzzyEligible: true}

	resp, err := engine.Retrieve(context.Background(), plan, models.QueryRequest{Query: "Acme invoice total"})
	require.NoError(t, err)
	require.Contains(t, resp.Answer, "[[FIELD:")
	require.False(t, resp.PlanDiagnostics.UsedLLM)
}

func TestRetrieve_LLMProducesMarkers_UsesLLMAnswer(t *testing.T) {
	store := newTestStore(t)
	idx := newTestIndex(store)
	docID := seedInvoice(t, store, idx, "Acme Corp", 750, false)

	llm := &fakeLLM{text: "Acme Corp's total is $750 [[FIELD:total_amount:" + docID + "]]."}
	engine := retrieval.New(idx, store, llm, nil, nil, testConfig(), arbor.NewLogger())
	plan := models.Plan{Intent: models.IntentSearch, TextQuery: "Acme", FuzzyEligible: true}

	resp, err := engine.Retrieve(context.Background(), plan, models.QueryRequest{Query: "Acme invoice total"})
	require.NoError(t, err)
	require.Equal(t, llm.text, resp.Answer)
	require.True(t, resp.PlanDiagnostics.UsedLLM)
}

type fakeQueryCache struct {
	entries map[string]models.QueryCacheEntry
}

func newFakeQueryCache() *fakeQueryCache {
	return &fakeQueryCache{entries: make(map[string]models.QueryCacheEntry)}
}

func (c *fakeQueryCache) Get(key string) (*models.QueryCacheEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return &e, true
}

func (c *fakeQueryCache) Put(key string, entry models.QueryCacheEntry) error {
	c.entries[key] = entry
	return nil
}

func TestService_Ask_CachesSecondCallAsCacheHit(t *testing.T) {
	store := newTestStore(t)
	idx := newTestIndex(store)
	seedInvoice(t, store, idx, "Acme Corp", 500, false)

	p := planner.New(store, nil, testConfig(), arbor.NewLogger())
	engine := retrieval.New(idx, store, nil, nil, nil, testConfig(), arbor.NewLogger())
	cache := newFakeQueryCache()
	service := retrieval.NewService(p, engine, cache, 5000, arbor.NewLogger())

	req := models.QueryRequest{Query: "Acme"}
	first, err := service.Ask(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.PlanDiagnostics.CacheHit)

	second, err := service.Ask(context.Background(), req)
	require.NoError(t, err)
	require.True(t, second.PlanDiagnostics.CacheHit)
}
