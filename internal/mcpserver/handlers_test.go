package mcpserver

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/models"
)

type fakeQueryService struct {
	resp models.QueryResponse
	err  error

	lastReq models.QueryRequest
}

func (f *fakeQueryService) Ask(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error) {
	f.lastReq = req
	return f.resp, f.err
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func textOf(t *testing.T, content mcp.Content) string {
	t.Helper()
	switch c := content.(type) {
	case *mcp.TextContent:
		return c.Text
	case mcp.TextContent:
		return c.Text
	default:
		t.Fatalf("unexpected content type %T", content)
		return ""
	}
}

func TestHandleSearch_BuildsMCPSearchRequestAndFormatsAnswer(t *testing.T) {
	svc := &fakeQueryService{resp: models.QueryResponse{
		Answer:  "Acme Corp is the vendor.",
		Sources: []models.SourceDoc{{DocumentID: "doc-1", Filename: "invoice.pdf", Score: 0.9}},
	}}

	handler := handleSearch(svc, arbor.NewLogger())
	result, err := handler(context.Background(), callRequest(map[string]interface{}{"query": "who is the vendor"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Equal(t, models.QuerySourceMCPSearch, svc.lastReq.QuerySource)
	require.Equal(t, "who is the vendor", svc.lastReq.Query)

	text := textOf(t, result.Content[0])
	require.Contains(t, text, "Acme Corp is the vendor.")
	require.Contains(t, text, "invoice.pdf")
}

func TestHandleSearch_MissingQuery_ReturnsErrorContent(t *testing.T) {
	svc := &fakeQueryService{}
	handler := handleSearch(svc, arbor.NewLogger())

	result, err := handler(context.Background(), callRequest(map[string]interface{}{}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestHandleAsk_BuildsMCPRagRequestWithDeadline(t *testing.T) {
	svc := &fakeQueryService{resp: models.QueryResponse{Answer: "Total is $500."}}
	handler := handleAsk(svc, arbor.NewLogger())

	result, err := handler(context.Background(), callRequest(map[string]interface{}{
		"question":    "what is the total",
		"deadline_ms": float64(2000),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Equal(t, models.QuerySourceMCPRag, svc.lastReq.QuerySource)
	require.Equal(t, 2000, svc.lastReq.DeadlineMS)
}

func TestHandleAsk_QueryServiceError_ReturnsErrorContent(t *testing.T) {
	svc := &fakeQueryService{err: context.DeadlineExceeded}
	handler := handleAsk(svc, arbor.NewLogger())

	result, err := handler(context.Background(), callRequest(map[string]interface{}{"question": "anything"}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}
