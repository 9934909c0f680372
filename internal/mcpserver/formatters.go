package mcpserver

import (
	"fmt"
	"strings"

	"github.com/docuflow/docuflow/internal/models"
)

// formatQueryResponse formats a QueryResponse as markdown, styled on the
// teacher's formatSearchResults/formatDocument conventions.
func formatQueryResponse(query string, resp models.QueryResponse) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Answer for \"%s\"\n\n", query))
	sb.WriteString(resp.Answer)
	sb.WriteString("\n\n")

	if resp.AuditRecommended {
		sb.WriteString(fmt.Sprintf("_%d field(s) in this answer are low-confidence and recommended for human review._\n\n", resp.LowConfidenceCount))
	}

	sb.WriteString(formatSources(resp.Sources))
	sb.WriteString(formatCitations(resp.Citations))

	sb.WriteString(fmt.Sprintf("**Intent:** %s | **Cache hit:** %t | **Timing:** %dms\n", resp.PlanDiagnostics.Intent, resp.PlanDiagnostics.CacheHit, resp.TimingMS))

	return sb.String()
}

func formatSources(sources []models.SourceDoc) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("### Sources (%d)\n\n", len(sources)))
	if len(sources) == 0 {
		sb.WriteString("No matching documents.\n\n")
		return sb.String()
	}
	for i, src := range sources {
		sb.WriteString(fmt.Sprintf("%d. **%s** (`%s`) score=%.3f\n", i+1, src.Filename, src.DocumentID, src.Score))
	}
	sb.WriteString("\n")
	return sb.String()
}

func formatCitations(citations []models.Citation) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("### Citations (%d)\n\n", len(citations)))
	if len(citations) == 0 {
		sb.WriteString("No field-level citations in this answer.\n\n")
		return sb.String()
	}
	for i, c := range citations {
		sb.WriteString(fmt.Sprintf("%d. document `%s`, field `%s`, confidence %.2f\n", i+1, c.DocumentID, c.FieldID, c.ConfidenceAtCitation))
		sb.WriteString(fmt.Sprintf("   > %s\n", c.ContextSnippet))
		if c.AuditLink != "" {
			sb.WriteString(fmt.Sprintf("   review: %s\n", c.AuditLink))
		}
	}
	sb.WriteString("\n")
	return sb.String()
}
