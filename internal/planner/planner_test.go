package planner_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
	"github.com/docuflow/docuflow/internal/planner"
	"github.com/docuflow/docuflow/internal/storage/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(arbor.NewLogger(), &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "planner-test.db"),
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
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

func TestPlan_AggregateIntent_HowManyQuery(t *testing.T) {
	store := newTestStore(t)
	p := planner.New(store, nil, testConfig(), arbor.NewLogger())

	plan, err := p.Plan(context.Background(), models.QueryRequest{Query: "how many invoices over $500"})
	require.NoError(t, err)
	require.Equal(t, models.IntentAggregate, plan.Intent)
	require.NotNil(t, plan.Aggregation)
	require.Equal(t, models.AggregationCount, plan.Aggregation.Type)
	require.Len(t, plan.Filters, 1)
	require.Equal(t, models.FilterOpGte, plan.Filters[0].Op)
	require.Equal(t, 500.0, plan.Filters[0].Value)
	require.Equal(t, "amount", plan.Filters[0].Field)
}

func TestPlan_CompareIntent(t *testing.T) {
	store := newTestStore(t)
	p := planner.New(store, nil, testConfig(), arbor.NewLogger())

	plan, err := p.Plan(context.Background(), models.QueryRequest{Query: "compare Acme vs Globex spending"})
	require.NoError(t, err)
	require.Equal(t, models.IntentCompare, plan.Intent)
}

func TestPlan_EntityFilter_QuotedName(t *testing.T) {
	store := newTestStore(t)
	p := planner.New(store, nil, testConfig(), arbor.NewLogger())

	plan, err := p.Plan(context.Background(), models.QueryRequest{Query: `find the contract with "Acme Corp"`})
	require.NoError(t, err)
	require.Len(t, plan.Filters, 1)
	require.Equal(t, "entity_name", plan.Filters[0].Field)
	require.Equal(t, "Acme Corp", plan.Filters[0].ValueStr)
}

func TestPlan_QueryExpansion_AddsSynonyms(t *testing.T) {
	store := newTestStore(t)
	p := planner.New(store, nil, testConfig(), arbor.NewLogger())

	plan, err := p.Plan(context.Background(), models.QueryRequest{Query: "invoice from vendor"})
	require.NoError(t, err)
	require.Contains(t, plan.TextQuery, "invoice")
	require.Contains(t, plan.TextQuery, "bill")
	require.Contains(t, plan.TextQuery, "supplier")
}

func TestPlan_AmbiguousQuery_LowConfidence_NoLLM_ReturnsHeuristic(t *testing.T) {
	store := newTestStore(t)
	p := planner.New(store, nil, testConfig(), arbor.NewLogger())

	plan, err := p.Plan(context.Background(), models.QueryRequest{Query: "acme documents"})
	require.NoError(t, err)
	require.Equal(t, models.IntentSearch, plan.Intent)
	require.Less(t, plan.Confidence, testConfig().FastPathThreshold)
	require.False(t, plan.UseLLMRefinement)
}

func TestPlan_RequestedTemplateID_PinsPlan(t *testing.T) {
	store := newTestStore(t)
	p := planner.New(store, nil, testConfig(), arbor.NewLogger())

	id := "tmpl-1"
	plan, err := p.Plan(context.Background(), models.QueryRequest{Query: "vendor name", TemplateID: &id})
	require.NoError(t, err)
	require.NotNil(t, plan.TemplateID)
	require.Equal(t, id, *plan.TemplateID)
}

func TestPlan_ExplicitRequestFilters_MergedIn(t *testing.T) {
	store := newTestStore(t)
	p := planner.New(store, nil, testConfig(), arbor.NewLogger())

	plan, err := p.Plan(context.Background(), models.QueryRequest{
		Query:   "status",
		Filters: map[string]string{"status": "completed"},
	})
	require.NoError(t, err)

	var found bool
	for _, f := range plan.Filters {
		if f.Field == "status" && f.ValueStr == "completed" {
			found = true
		}
	}
	require.True(t, found)
}

func TestPlan_LastNDays_ResolvesConcreteDateWindow(t *testing.T) {
	store := newTestStore(t)
	p := planner.New(store, nil, testConfig(), arbor.NewLogger())

	plan, err := p.Plan(context.Background(), models.QueryRequest{Query: "invoices from the last 30 days"})
	require.NoError(t, err)
	require.Len(t, plan.Filters, 1)
	require.True(t, plan.Filters[0].IsDate)
	require.NotNil(t, plan.Filters[0].From)
	require.NotNil(t, plan.Filters[0].To)
}

func TestPlan_LowConfidenceWithLLM_RefinesAndSetsFlag(t *testing.T) {
	store := newTestStore(t)
	llm := &fakeLLM{}
	p := planner.New(store, llm, testConfig(), arbor.NewLogger())

	plan, err := p.Plan(context.Background(), models.QueryRequest{Query: "acme documents"})
	require.NoError(t, err)
	require.True(t, plan.UseLLMRefinement)
}
