package matcher_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/matcher"
	"github.com/docuflow/docuflow/internal/models"
	"github.com/docuflow/docuflow/internal/storage/sqlite"
)

type fakeIndexer struct {
	matches []models.TemplateMatch
}

func (f *fakeIndexer) FindSimilarTemplates(ctx context.Context, fieldNames []string, sampleText string, topK int) ([]models.TemplateMatch, error) {
	return f.matches, nil
}

func (f *fakeIndexer) IndexTemplateSignature(ctx context.Context, sig models.SignatureDoc) error {
	return nil
}

type fakeLLM struct {
	templateID *string
	confidence float64
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string, opts interfaces.CompletionOptions) (string, interfaces.CompletionUsage, error) {
	return "", interfaces.CompletionUsage{}, nil
}

func (f *fakeLLM) CompleteJSON(ctx context.Context, prompt string, schema []byte, opts interfaces.CompletionOptions, out interface{}) (interfaces.CompletionUsage, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"template_id": f.templateID,
		"confidence":  f.confidence,
		"reasoning":   "test",
	})
	return interfaces.CompletionUsage{}, json.Unmarshal(payload, out)
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(arbor.NewLogger(), &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "matcher-test.db"),
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createTemplate(t *testing.T, store *sqlite.Store, id, name string, fieldNames ...string) {
	t.Helper()
	fields := make([]models.FieldSpec, 0, len(fieldNames))
	for _, n := range fieldNames {
		fields = append(fields, models.FieldSpec{Name: n, Type: models.FieldTypeText})
	}
	require.NoError(t, store.CreateTemplate(context.Background(), &models.Template{
		ID: id, Name: name, Kind: models.TemplateKindInvoice, Fields: fields,
	}))
}

func defaultConfig() *common.MatchingConfig {
	return &common.MatchingConfig{
		FastMatchThreshold:    0.70,
		CreateNewThreshold:    0.60,
		EnableLLMFallback:     true,
		CandidateTopK:         3,
		SampleChunkCount:      8,
		MaxCandidateTemplates: 10,
	}
}

func TestMatcher_FastMatch(t *testing.T) {
	store := newTestStore(t)
	createTemplate(t, store, "tmpl-1", "Invoice", "vendor", "total")

	idx := &fakeIndexer{matches: []models.TemplateMatch{{TemplateID: "tmpl-1", Score: 0.92}}}
	m := matcher.New(idx, store, nil, defaultConfig(), arbor.NewLogger())

	result, err := m.Match(context.Background(), &models.ParsedResult{FullText: "invoice"}, []string{"vendor"})
	require.NoError(t, err)
	require.Equal(t, interfaces.MatchSourceFastMatch, result.Source)
	require.NotNil(t, result.TemplateID)
	require.Equal(t, "tmpl-1", *result.TemplateID)
}

func TestMatcher_LLMFallback_WhenBelowFastMatchThreshold(t *testing.T) {
	store := newTestStore(t)
	createTemplate(t, store, "tmpl-1", "Invoice", "vendor", "total")

	idx := &fakeIndexer{matches: []models.TemplateMatch{{TemplateID: "tmpl-1", Score: 0.50}}}
	id := "tmpl-1"
	llm := &fakeLLM{templateID: &id, confidence: 0.8}
	m := matcher.New(idx, store, llm, defaultConfig(), arbor.NewLogger())

	result, err := m.Match(context.Background(), &models.ParsedResult{FullText: "invoice"}, []string{"vendor"})
	require.NoError(t, err)
	require.Equal(t, interfaces.MatchSourceLLMFallback, result.Source)
	require.NotNil(t, result.TemplateID)
	require.Equal(t, "tmpl-1", *result.TemplateID)
}

func TestMatcher_NeedsNewTemplate_WhenLLMUncertain(t *testing.T) {
	store := newTestStore(t)
	createTemplate(t, store, "tmpl-1", "Invoice", "vendor", "total")

	idx := &fakeIndexer{matches: []models.TemplateMatch{{TemplateID: "tmpl-1", Score: 0.40}}}
	llm := &fakeLLM{templateID: nil, confidence: 0.3}
	m := matcher.New(idx, store, llm, defaultConfig(), arbor.NewLogger())

	result, err := m.Match(context.Background(), &models.ParsedResult{FullText: "mystery doc"}, nil)
	require.NoError(t, err)
	require.Equal(t, interfaces.MatchSourceNeedsNewTemplate, result.Source)
	require.Nil(t, result.TemplateID)
}

func TestMatcher_NeedsNewTemplate_WhenLLMDisabledAndNoMatches(t *testing.T) {
	store := newTestStore(t)
	idx := &fakeIndexer{}
	cfg := defaultConfig()
	cfg.EnableLLMFallback = false
	m := matcher.New(idx, store, nil, cfg, arbor.NewLogger())

	result, err := m.Match(context.Background(), &models.ParsedResult{FullText: "mystery doc"}, nil)
	require.NoError(t, err)
	require.Equal(t, interfaces.MatchSourceNeedsNewTemplate, result.Source)
	require.Nil(t, result.TemplateID)
}

func TestCandidateFields_ExtractsLabelsAndHeaders(t *testing.T) {
	parsed := &models.ParsedResult{
		Chunks: []models.ParsedChunk{
			{Text: "Vendor: Acme Corp\nINVOICE\nTotal: 1500.00"},
		},
	}
	fields := matcher.CandidateFields(parsed)
	require.Contains(t, fields, "Vendor")
	require.Contains(t, fields, "Total")
	require.Contains(t, fields, "INVOICE")
}
