package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
)

// maxFactsPerDocument bounds how many of a document's fields are offered to
// the answer-generation prompt, keeping the prompt size proportional to
// answer_k rather than to the full field count of every matched document.
const maxFactsPerDocument = 5

// fact is one citable (field, document) pair offered to the LLM prompt; it
// carries everything ResolveCitations will later need to re-derive from the
// marker alone, but is not itself part of the marker syntax.
type fact struct {
	documentID string
	fieldID    string
	fieldName  string
	value      string
	confidence float64
}

func marker(f fact) string {
	return fmt.Sprintf("[[FIELD:%s:%s]]", f.fieldName, f.documentID)
}

// buildFacts collects the candidate facts an answer may cite: the
// aggregation's contributing fields when the plan is an aggregate, or a
// bounded sample of each selected document's fields otherwise.
func buildFacts(selected []*docContext, agg *aggregationResult) []fact {
	if agg != nil {
		facts := make([]fact, 0, len(agg.contributions))
		byID := make(map[string]*docContext, len(selected))
		for _, c := range selected {
			byID[c.document.ID] = c
		}
		for _, contribution := range agg.contributions {
			f := fact{documentID: contribution.documentID, fieldID: contribution.fieldID, fieldName: contribution.fieldName, value: fmt.Sprintf("%g", contribution.value)}
			if c, ok := byID[contribution.documentID]; ok {
				if field := findFieldByID(c.fields, contribution.fieldID); field != nil {
					f.value = field.Value.AsString()
					f.confidence = field.Confidence
				}
			}
			facts = append(facts, f)
		}
		return facts
	}

	var facts []fact
	for _, c := range selected {
		fields := make([]models.ExtractedField, len(c.fields))
		copy(fields, c.fields)
		sort.Slice(fields, func(i, j int) bool { return fields[i].FieldName < fields[j].FieldName })
		n := maxFactsPerDocument
		if n > len(fields) {
			n = len(fields)
		}
		for _, field := range fields[:n] {
			facts = append(facts, fact{
				documentID: c.document.ID,
				fieldID:    field.ID,
				fieldName:  field.FieldName,
				value:      field.Value.AsString(),
				confidence: field.Confidence,
			})
		}
	}
	return facts
}

func findFieldByID(fields []models.ExtractedField, id string) *models.ExtractedField {
	for i := range fields {
		if fields[i].ID == id {
			return &fields[i]
		}
	}
	return nil
}

var markerPattern = regexp.MustCompile(`\[\[FIELD:[^:\]]+:[^\]]+\]\]`)

// composeAnswer generates the final answer text. When an LLM is configured
// it is asked to phrase the facts with inline [[FIELD:name:document_id]]
// markers and retried once if the first attempt omits them entirely (§4.9
// step 5); with no LLM, or if both attempts fail to cite, a deterministic
// fallback composes the same markers directly so the citation-consistency
// property in §8 always holds.
func (e *Engine) composeAnswer(ctx context.Context, query string, plan models.Plan, facts []fact, agg *aggregationResult) (string, bool) {
	if len(facts) == 0 {
		return "No citable fields were found for this query.", false
	}

	if e.llm != nil {
		prompt := buildAnswerPrompt(query, plan, facts, agg, false)
		if answer, err := e.llm.Complete(ctx, prompt, interfaces.CompletionOptions{}); err == nil && markerPattern.MatchString(answer) {
			return answer, true
		} else if err != nil {
			e.logger.Warn().Err(err).Msg("answer generation call failed; retrying with a stricter prompt")
		}

		retryPrompt := buildAnswerPrompt(query, plan, facts, agg, true)
		if answer, err := e.llm.Complete(ctx, retryPrompt, interfaces.CompletionOptions{}); err == nil && markerPattern.MatchString(answer) {
			return answer, true
		} else if err != nil {
			e.logger.Warn().Err(err).Msg("answer generation retry failed; falling back to a deterministic answer")
		} else {
			e.logger.Warn().Msg("answer generation retry omitted citation markers; falling back to a deterministic answer")
		}
	}

	return deterministicAnswer(plan, facts, agg), false
}

// buildAnswerPrompt constructs the answer-generation prompt, following the
// teacher's system-prompt-construction style (a role statement, the source
// facts, and a closing instruction to acknowledge uncertainty rather than
// invent one). strict tightens the marker instruction for the retry pass.
func buildAnswerPrompt(query string, plan models.Plan, facts []fact, agg *aggregationResult, strict bool) string {
	var sb strings.Builder
	sb.WriteString("You are answering a question about a set of business documents using only the facts listed below.\n\n")
	fmt.Fprintf(&sb, "Question: %q\n\n", query)

	if agg != nil {
		fmt.Fprintf(&sb, "A %s aggregation over %q has already been computed: total=%g, count=%d.\n", agg.spec.Type, agg.spec.Field, agg.total, agg.count)
		sb.WriteString("Quote this computed total verbatim; do not recompute it.\n\n")
	}

	sb.WriteString("Facts (field_name, document_id, value, confidence):\n")
	for _, f := range facts {
		fmt.Fprintf(&sb, "- %s, %s, %q, %.2f\n", f.fieldName, f.documentID, f.value, f.confidence)
	}

	sb.WriteString("\nEvery factual claim in your answer must be immediately followed by a marker in the exact form [[FIELD:field_name:document_id]] naming the fact it came from.\n")
	if strict {
		sb.WriteString("Your previous answer was rejected for missing these markers. Do not omit them this time.\n")
	}
	sb.WriteString("If the facts don't support a confident answer, say so rather than guessing.\n")
	return sb.String()
}

// deterministicAnswer composes a plain-Go answer when no LLM is configured
// or both LLM attempts failed to cite. It is intentionally terse: one
// sentence per fact, each immediately followed by its marker.
func deterministicAnswer(plan models.Plan, facts []fact, agg *aggregationResult) string {
	var sb strings.Builder
	if agg != nil {
		fmt.Fprintf(&sb, "%s of %s is %g across %d matching document(s).", capitalize(string(agg.spec.Type)), agg.spec.Field, agg.total, agg.count)
		for _, f := range facts {
			fmt.Fprintf(&sb, " %s contributes %s %s.", f.documentID, f.value, marker(f))
		}
		return sb.String()
	}

	for i, f := range facts {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%s: %s %s.", f.fieldName, f.value, marker(f))
	}
	return sb.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
