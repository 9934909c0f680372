package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
)

// handleSearch implements the search_documents tool, tagging the resulting
// citations with QuerySourceMCPSearch (§3).
func handleSearch(query interfaces.QueryService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := request.RequireString("query")
		if err != nil || q == "" {
			return errorResult("query parameter is required"), nil
		}

		req := models.QueryRequest{Query: q, QuerySource: models.QuerySourceMCPSearch}
		if templateID := request.GetString("template_id", ""); templateID != "" {
			req.TemplateID = &templateID
		}

		resp, err := query.Ask(ctx, req)
		if err != nil {
			logger.Error().Err(err).Str("query", q).Msg("search_documents failed")
			return errorResult(fmt.Sprintf("search error: %v", err)), nil
		}

		return textResult(formatQueryResponse(q, resp)), nil
	}
}

// handleAsk implements the ask_question tool, tagging the resulting
// citations with QuerySourceMCPRag (§3).
func handleAsk(query interfaces.QueryService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := request.RequireString("question")
		if err != nil || question == "" {
			return errorResult("question parameter is required"), nil
		}

		req := models.QueryRequest{
			Query:       question,
			QuerySource: models.QuerySourceMCPRag,
			DeadlineMS:  request.GetInt("deadline_ms", 0),
		}

		resp, err := query.Ask(ctx, req)
		if err != nil {
			logger.Error().Err(err).Str("question", question).Msg("ask_question failed")
			return errorResult(fmt.Sprintf("ask error: %v", err)), nil
		}

		return textResult(formatQueryResponse(question, resp)), nil
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent("Error: " + msg)},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(text)}}
}
