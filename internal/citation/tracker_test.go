package citation_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/citation"
	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/models"
	"github.com/docuflow/docuflow/internal/storage/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(arbor.NewLogger(), &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "citation-test.db"),
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedDocumentWithField(t *testing.T, store *sqlite.Store, fieldName string, confidence float64, verified bool) (documentID string) {
	t.Helper()
	ctx := context.Background()

	doc, err := store.CreateDocument(ctx, "invoice.pdf", "", []byte(fieldName), "/tmp/invoice.pdf")
	require.NoError(t, err)

	fields := []models.ExtractedField{
		{DocumentID: doc.ID, FieldName: fieldName, FieldType: models.FieldTypeText, Value: models.NewScalarValue("Acme Corp"), Confidence: confidence, Verified: verified},
	}
	require.NoError(t, store.UpsertExtractedFields(ctx, doc.ID, fields))
	return doc.ID
}

func TestResolveCitations_ResolvesMarkerAndRecordsCitation(t *testing.T) {
	store := newTestStore(t)
	docID := seedDocumentWithField(t, store, "vendor_name", 0.95, false)

	tracker := citation.New(store, &common.ValidationConfig{ReviewThreshold: 0.75, HighConfidence: 0.9}, arbor.NewLogger())
	answer := "The vendor is Acme Corp [[FIELD:vendor_name:" + docID + "]]."

	citations, err := tracker.ResolveCitations(context.Background(), answer, "qry-1", "who is the vendor", models.QuerySourceAskAI)
	require.NoError(t, err)
	require.Len(t, citations, 1)
	require.Equal(t, docID, citations[0].DocumentID)
	require.Equal(t, 0.95, citations[0].ConfidenceAtCitation)
	require.Contains(t, citations[0].ContextSnippet, "Acme Corp")
	require.Empty(t, citations[0].AuditLink)

	fields, err := store.GetExtractedFields(context.Background(), docID)
	require.NoError(t, err)
	require.Equal(t, 1, fields[0].CitationCount)
}

func TestResolveCitations_LowConfidenceUnverifiedField_GetsAuditLink(t *testing.T) {
	store := newTestStore(t)
	docID := seedDocumentWithField(t, store, "total_amount", 0.4, false)

	tracker := citation.New(store, &common.ValidationConfig{ReviewThreshold: 0.75, HighConfidence: 0.9}, arbor.NewLogger())
	answer := "The total is $500 [[FIELD:total_amount:" + docID + "]]."

	citations, err := tracker.ResolveCitations(context.Background(), answer, "qry-2", "what is the total", models.QuerySourceAskAI)
	require.NoError(t, err)
	require.Len(t, citations, 1)
	require.NotEmpty(t, citations[0].AuditLink)
}

func TestResolveCitations_VerifiedField_NeverGetsAuditLink(t *testing.T) {
	store := newTestStore(t)
	docID := seedDocumentWithField(t, store, "total_amount", 0.2, true)

	tracker := citation.New(store, &common.ValidationConfig{ReviewThreshold: 0.75, HighConfidence: 0.9}, arbor.NewLogger())
	answer := "The total is $500 [[FIELD:total_amount:" + docID + "]]."

	citations, err := tracker.ResolveCitations(context.Background(), answer, "qry-3", "what is the total", models.QuerySourceAskAI)
	require.NoError(t, err)
	require.Len(t, citations, 1)
	require.Empty(t, citations[0].AuditLink)
}

func TestResolveCitations_UnresolvableMarker_SkippedWithoutError(t *testing.T) {
	store := newTestStore(t)
	docID := seedDocumentWithField(t, store, "vendor_name", 0.95, false)

	tracker := citation.New(store, &common.ValidationConfig{ReviewThreshold: 0.75}, arbor.NewLogger())
	answer := "The total is $500 [[FIELD:nonexistent_field:" + docID + "]]."

	citations, err := tracker.ResolveCitations(context.Background(), answer, "qry-4", "what is the total", models.QuerySourceAskAI)
	require.NoError(t, err)
	require.Empty(t, citations)
}

func TestResolveCitations_NoMarkers_ReturnsEmpty(t *testing.T) {
	store := newTestStore(t)
	tracker := citation.New(store, &common.ValidationConfig{}, arbor.NewLogger())

	citations, err := tracker.ResolveCitations(context.Background(), "No facts available.", "qry-5", "anything", models.QuerySourceAskAI)
	require.NoError(t, err)
	require.Empty(t, citations)
}

func TestQueue_Verify_ReturnsUpdatedFieldAndContext(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tmpl := &models.Template{Name: "Invoice", Kind: models.TemplateKindInvoice, Fields: []models.FieldSpec{{Name: "vendor_name", Type: models.FieldTypeText}}}
	require.NoError(t, store.CreateTemplate(ctx, tmpl))

	doc, err := store.CreateDocument(ctx, "invoice.pdf", "", []byte("verify-test"), "/tmp/invoice.pdf")
	require.NoError(t, err)
	require.NoError(t, store.SetDocumentTemplate(ctx, doc.ID, tmpl.ID))

	require.NoError(t, store.UpsertExtractedFields(ctx, doc.ID, []models.ExtractedField{
		{DocumentID: doc.ID, FieldName: "vendor_name", FieldType: models.FieldTypeText, Value: models.NewScalarValue("Acme Corp"), Confidence: 0.4},
	}))
	fields, err := store.GetExtractedFields(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, fields, 1)

	queue := citation.NewQueue(store, arbor.NewLogger())
	corrected := "Acme Corporation"
	field, withCtx, err := queue.Verify(ctx, fields[0].ID, models.VerificationActionCorrect, &corrected, "fixed casing", "reviewer-1")
	require.NoError(t, err)
	require.True(t, field.Verified)
	require.NotNil(t, withCtx)
	require.Equal(t, "invoice.pdf", withCtx.DocumentName)
	require.Equal(t, "Invoice", withCtx.TemplateName)
}
