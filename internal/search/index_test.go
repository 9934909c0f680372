package search_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/models"
	"github.com/docuflow/docuflow/internal/search"
	"github.com/docuflow/docuflow/internal/storage/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	logger := arbor.NewLogger()
	store, err := sqlite.NewStore(logger, &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "docuflow-search-test.db"),
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestIndex_IndexAndSearchDocument(t *testing.T) {
	store := newTestStore(t)
	idx := search.New(store.DB(), store, &common.SearchIndexConfig{
		WeightA:          3,
		WeightB:          2,
		WeightC:          1,
		MaxDynamicFields: 1000,
		KeywordMaxLen:    256,
	}, arbor.NewLogger())
	ctx := context.Background()

	doc := models.SearchDoc{
		DocumentID:   "doc-1",
		Filename:     "acme-invoice-042.pdf",
		TemplateID:   "tmpl-invoice",
		TemplateName: "Invoice",
		FullText:     "Thank you for your business. Net 30 terms apply.",
		FieldValues: map[string]string{
			"vendor": "Acme Corp",
			"total":  "1500.00",
		},
	}
	require.NoError(t, idx.IndexDocument(ctx, doc))

	hits, diag, err := idx.Search(ctx, models.Plan{TextQuery: "Acme", FuzzyEligible: true}, 10)
	require.NoError(t, err)
	require.False(t, diag.FuzzyFallbackUsed)
	require.Len(t, hits, 1)
	require.Equal(t, "doc-1", hits[0].DocumentID)
}

func TestIndex_Search_FuzzyFallback(t *testing.T) {
	store := newTestStore(t)
	idx := search.New(store.DB(), store, &common.SearchIndexConfig{
		WeightA: 3, WeightB: 2, WeightC: 1, MaxDynamicFields: 1000, KeywordMaxLen: 256,
	}, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, idx.IndexDocument(ctx, models.SearchDoc{
		DocumentID:   "doc-2",
		Filename:     "invoice.pdf",
		TemplateName: "Invoice",
		FullText:     "invoice document body text",
	}))

	hits, diag, err := idx.Search(ctx, models.Plan{TextQuery: "invioce", FuzzyEligible: true}, 10)
	require.NoError(t, err)
	require.True(t, diag.FuzzyFallbackUsed)
	require.NotEmpty(t, hits)
}

func TestIndex_Search_NotFuzzyEligible_ReturnsNoHits(t *testing.T) {
	store := newTestStore(t)
	idx := search.New(store.DB(), store, &common.SearchIndexConfig{
		WeightA: 3, WeightB: 2, WeightC: 1, MaxDynamicFields: 1000, KeywordMaxLen: 256,
	}, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, idx.IndexDocument(ctx, models.SearchDoc{
		DocumentID: "doc-3",
		Filename:   "invoice.pdf",
		FullText:   "invoice document body text",
	}))

	hits, diag, err := idx.Search(ctx, models.Plan{TextQuery: "invioce", FuzzyEligible: false}, 10)
	require.NoError(t, err)
	require.False(t, diag.FuzzyFallbackUsed)
	require.Empty(t, hits)
}

func TestIndex_IndexDocument_TruncatesFieldValues(t *testing.T) {
	store := newTestStore(t)
	cfg := &common.SearchIndexConfig{WeightA: 3, WeightB: 2, WeightC: 1, MaxDynamicFields: 2, KeywordMaxLen: 4}
	idx := search.New(store.DB(), store, cfg, arbor.NewLogger())
	ctx := context.Background()

	doc := models.SearchDoc{
		DocumentID: "doc-4",
		Filename:   "report.pdf",
		FieldValues: map[string]string{
			"aaa": "first-value-longer-than-four",
			"bbb": "second",
		},
	}
	// Within MaxDynamicFields=2; each value is truncated to KeywordMaxLen=4
	// for keyword indexing but the write still succeeds.
	require.NoError(t, idx.IndexDocument(ctx, doc))
}

func TestIndex_IndexDocument_RejectsOverDynamicFieldCap(t *testing.T) {
	store := newTestStore(t)
	cfg := &common.SearchIndexConfig{WeightA: 3, WeightB: 2, WeightC: 1, MaxDynamicFields: 1, KeywordMaxLen: 4}
	idx := search.New(store.DB(), store, cfg, arbor.NewLogger())
	ctx := context.Background()

	doc := models.SearchDoc{
		DocumentID: "doc-5",
		Filename:   "report.pdf",
		FieldValues: map[string]string{
			"aaa": "first-value-longer-than-four",
			"bbb": "second",
		},
	}
	// Exceeds MaxDynamicFields=1: the document is rejected outright rather
	// than indexed with the overflow silently dropped.
	err := idx.IndexDocument(ctx, doc)
	require.Error(t, err)
	require.ErrorIs(t, err, common.ErrIndexCapExceeded)
}

func TestIndex_IndexTemplateSignature_FindSimilarTemplates(t *testing.T) {
	store := newTestStore(t)
	idx := search.New(store.DB(), store, &common.SearchIndexConfig{
		WeightA: 3, WeightB: 2, WeightC: 1, MaxDynamicFields: 1000, KeywordMaxLen: 256,
	}, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, idx.IndexTemplateSignature(ctx, models.SignatureDoc{
		TemplateID: "tmpl-invoice",
		FieldNames: []string{"vendor", "total", "due_date"},
		SampleText: "invoice vendor total due date terms",
		Version:    1,
	}))
	require.NoError(t, idx.IndexTemplateSignature(ctx, models.SignatureDoc{
		TemplateID: "tmpl-receipt",
		FieldNames: []string{"merchant", "amount"},
		SampleText: "receipt merchant amount purchase",
		Version:    1,
	}))

	matches, err := idx.FindSimilarTemplates(ctx, []string{"vendor", "total"}, "invoice vendor total", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	require.Equal(t, "tmpl-invoice", matches[0].TemplateID)
}
