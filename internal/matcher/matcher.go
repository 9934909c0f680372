// Package matcher implements interfaces.TemplateMatcher: given a parsed
// document, pick the template that best describes it (§4.4). Grounded on
// the teacher's internal/services/search/fts5_search_service.go for the
// signature-lookup step and internal/services/llm for the fallback
// classification call; the overlap-counting tie-break follows the simple
// scoring idiom in the teacher's internal/services/identifiers/extractor.go
// (count shared tokens, prefer the larger count, fall back to name order).
package matcher

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
)

// Matcher implements interfaces.TemplateMatcher.
type Matcher struct {
	index  interfaces.TemplateIndexer
	store  interfaces.Store
	llm    interfaces.LLMClient // nil when EnableLLMFallback is false
	config *common.MatchingConfig
	logger arbor.ILogger
}

// New constructs a Matcher. llm may be nil; Match then returns
// needs_new_template whenever the best score is below FastMatchThreshold,
// without attempting a fallback call.
var _ interfaces.TemplateMatcher = (*Matcher)(nil)

func New(index interfaces.TemplateIndexer, store interfaces.Store, llm interfaces.LLMClient, config *common.MatchingConfig, logger arbor.ILogger) *Matcher {
	return &Matcher{index: index, store: store, llm: llm, config: config, logger: logger}
}

// sampleChunkText joins the first N chunks of a parsed document, per
// SampleChunkCount, into one sample-text blob for both signature search and
// the LLM fallback prompt.
func (m *Matcher) sampleChunkText(parsed *models.ParsedResult) string {
	n := m.config.SampleChunkCount
	if n <= 0 || n > len(parsed.Chunks) {
		n = len(parsed.Chunks)
	}
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString(parsed.Chunks[i].Text)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return parsed.FullText
	}
	return sb.String()
}

// Match runs the full fast-match/LLM-fallback/needs-new-template algorithm.
func (m *Matcher) Match(ctx context.Context, parsed *models.ParsedResult, candidateFields []string) (interfaces.MatchResult, error) {
	sampleText := m.sampleChunkText(parsed)

	topK := m.config.CandidateTopK
	if topK <= 0 {
		topK = 3
	}
	matches, err := m.index.FindSimilarTemplates(ctx, candidateFields, sampleText, topK)
	if err != nil {
		return interfaces.MatchResult{}, fmt.Errorf("template signature search failed: %w", err)
	}

	if best, ok, err := m.pickBest(ctx, matches, candidateFields); err != nil {
		return interfaces.MatchResult{}, err
	} else if ok && best.score >= m.config.FastMatchThreshold {
		id := best.templateID
		return interfaces.MatchResult{TemplateID: &id, Confidence: best.score, Source: interfaces.MatchSourceFastMatch}, nil
	}

	if m.config.EnableLLMFallback && m.llm != nil {
		result, err := m.llmFallback(ctx, sampleText, matches)
		if err != nil {
			return interfaces.MatchResult{}, err
		}
		if result.TemplateID != nil {
			return result, nil
		}
		if result.Confidence >= m.config.CreateNewThreshold {
			return result, nil
		}
		return interfaces.MatchResult{Confidence: result.Confidence, Source: interfaces.MatchSourceNeedsNewTemplate}, nil
	}

	return interfaces.MatchResult{Confidence: 0, Source: interfaces.MatchSourceNeedsNewTemplate}, nil
}

type scoredCandidate struct {
	templateID string
	score      float64
	overlap    int
}

// pickBest normalizes FindSimilarTemplates' results against the tie-break
// rule: highest candidate-field overlap wins, then lexicographic template
// name, only when scores are within floating-point tolerance of each other.
func (m *Matcher) pickBest(ctx context.Context, matches []models.TemplateMatch, candidateFields []string) (scoredCandidate, bool, error) {
	if len(matches) == 0 {
		return scoredCandidate{}, false, nil
	}

	candidates := make([]scoredCandidate, 0, len(matches))
	nameByID := make(map[string]string, len(matches))
	for _, match := range matches {
		tmpl, err := m.store.GetTemplate(ctx, match.TemplateID)
		if err != nil {
			return scoredCandidate{}, false, fmt.Errorf("failed to load template %s for tie-break: %w", match.TemplateID, err)
		}
		overlap := countOverlap(candidateFields, tmpl.Fields)
		candidates = append(candidates, scoredCandidate{templateID: match.TemplateID, score: match.Score, overlap: overlap})
		nameByID[match.TemplateID] = tmpl.Name
	}

	const epsilon = 1e-9
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score-candidates[j].score > epsilon {
			return true
		}
		if candidates[j].score-candidates[i].score > epsilon {
			return false
		}
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		return nameByID[candidates[i].templateID] < nameByID[candidates[j].templateID]
	})

	return candidates[0], true, nil
}

func countOverlap(candidateFields []string, specs []models.FieldSpec) int {
	fieldSet := make(map[string]struct{}, len(specs))
	for _, f := range specs {
		fieldSet[strings.ToLower(f.Name)] = struct{}{}
	}
	overlap := 0
	for _, c := range candidateFields {
		if _, ok := fieldSet[strings.ToLower(c)]; ok {
			overlap++
		}
	}
	return overlap
}

type llmClassification struct {
	TemplateID *string `json:"template_id"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

var llmClassificationSchema = []byte(`{"template_id": "string or null", "confidence": "number between 0 and 1", "reasoning": "string"}`)

// llmFallback asks the LLM to classify sampleText against up to
// MaxCandidateTemplates candidate templates, each with its field list.
func (m *Matcher) llmFallback(ctx context.Context, sampleText string, matches []models.TemplateMatch) (interfaces.MatchResult, error) {
	maxCandidates := m.config.MaxCandidateTemplates
	if maxCandidates <= 0 || maxCandidates > len(matches) {
		maxCandidates = len(matches)
	}

	var prompt strings.Builder
	prompt.WriteString("You are classifying a parsed business document against a set of candidate templates.\n\n")
	prompt.WriteString("Document sample text:\n")
	prompt.WriteString(sampleText)
	prompt.WriteString("\n\nCandidate templates:\n")

	for i := 0; i < maxCandidates; i++ {
		tmpl, err := m.store.GetTemplate(ctx, matches[i].TemplateID)
		if err != nil {
			return interfaces.MatchResult{}, fmt.Errorf("failed to load candidate template %s: %w", matches[i].TemplateID, err)
		}
		fields := make([]string, 0, len(tmpl.Fields))
		for _, f := range tmpl.Fields {
			fields = append(fields, f.Name)
		}
		fmt.Fprintf(&prompt, "- id=%s name=%q kind=%s fields=[%s]\n", tmpl.ID, tmpl.Name, tmpl.Kind, strings.Join(fields, ", "))
	}
	prompt.WriteString("\nPick the single best-fitting template id, or null if none fit well.\n")

	var out llmClassification
	_, err := m.llm.CompleteJSON(ctx, prompt.String(), llmClassificationSchema, interfaces.CompletionOptions{}, &out)
	if err != nil {
		return interfaces.MatchResult{}, fmt.Errorf("LLM template classification failed: %w", err)
	}

	m.logger.Debug().
		Interface("template_id", out.TemplateID).
		Float64("confidence", out.Confidence).
		Str("reasoning", out.Reasoning).
		Msg("LLM template classification result")

	return interfaces.MatchResult{TemplateID: out.TemplateID, Confidence: out.Confidence, Source: interfaces.MatchSourceLLMFallback}, nil
}

// labelPattern matches capitalized labels and "key:" prefixes used by
// CandidateFields to derive a field-name candidate set from raw chunk text
// (§4.4 step 1).
var labelPattern = regexp.MustCompile(`(?m)^([A-Z][A-Za-z0-9 _/-]{1,40}):`)

// CandidateFields derives a field-name candidate set from a parsed
// document's chunks: capitalized labels immediately preceding a colon, plus
// recurring header-like tokens (all-caps words appearing on their own
// line). Deduplicated, order-stable by first occurrence.
func CandidateFields(parsed *models.ParsedResult) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(raw string) {
		name := strings.TrimSpace(raw)
		if name == "" {
			return
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}

	for _, chunk := range parsed.Chunks {
		for _, m := range labelPattern.FindAllStringSubmatch(chunk.Text, -1) {
			add(m[1])
		}
		for _, line := range strings.Split(chunk.Text, "\n") {
			line = strings.TrimSpace(line)
			if len(line) < 2 || len(line) > 40 {
				continue
			}
			if line == strings.ToUpper(line) && strings.ToLower(line) != strings.ToUpper(line) {
				add(line)
			}
		}
	}
	return out
}
