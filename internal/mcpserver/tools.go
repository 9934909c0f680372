package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createSearchTool returns the search_documents tool definition: a
// keyword-leaning lookup surfaced as QuerySource mcp_search.
func createSearchTool() mcp.Tool {
	return mcp.NewTool("search_documents",
		mcp.WithDescription("Search ingested business documents by keyword, entity, or structured filter (vendor name, amount range, date window)"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural-language search query, e.g. \"invoices from Acme Corp last 30 days\""),
		),
		mcp.WithString("template_id",
			mcp.Description("Restrict the search to documents matched against this template ID"),
		),
	)
}

// createAskTool returns the ask_question tool definition: the
// retrieval-augmented question-answering surface, QuerySource mcp_rag.
func createAskTool() mcp.Tool {
	return mcp.NewTool("ask_question",
		mcp.WithDescription("Ask a natural-language question over the ingested documents and receive a cited answer, e.g. \"how many invoices over $500 last quarter?\""),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithNumber("deadline_ms",
			mcp.Description("Optional caller deadline in milliseconds before the query path times out"),
		),
	)
}
