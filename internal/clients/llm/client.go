// Package llm implements interfaces.LLMClient over the Anthropic Claude
// API, adapted from the teacher's internal/services/llm/claude_service.go
// (client construction, timeout/max-tokens defaulting, response-text
// extraction) generalized to the narrower {Complete, CompleteJSON}
// capability set and wired to common.RetryPolicy.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
)

var _ interfaces.LLMClient = (*Client)(nil)

// Client is the Claude-backed LLMClient.
type Client struct {
	config    *common.ClaudeConfig
	client    anthropic.Client
	timeout   time.Duration
	maxTokens int
	logger    arbor.ILogger
	retry     *common.RetryPolicy
}

// New constructs a Client, defaulting the model and max-token count the
// same way the teacher's NewClaudeService does.
func New(config *common.ClaudeConfig, logger arbor.ILogger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required (set ANTHROPIC_API_KEY, DOCUFLOW_CLAUDE_API_KEY, or claude.api_key)")
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}

	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid claude timeout %q: %w", config.Timeout, err)
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &Client{
		config:    config,
		client:    anthropic.NewClient(option.WithAPIKey(config.APIKey)),
		timeout:   timeout,
		maxTokens: maxTokens,
		logger:    logger,
		retry:     common.NewRetryPolicy(),
	}, nil
}

// Complete issues a single-turn completion, marking opts.CacheableSystemPrefix
// for prompt caching per SPEC_FULL.md §4.3 so repeated TemplateMatcher/
// QueryPlanner calls against the same template or query-planning prompt
// prefix are billed at the reduced cached-read rate.
func (c *Client) Complete(ctx context.Context, prompt string, opts interfaces.CompletionOptions) (string, interfaces.CompletionUsage, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		text  string
		usage interfaces.CompletionUsage
	)

	_, err := c.retry.Execute(timeoutCtx, c.logger, func() (int, error) {
		t, u, err := c.complete(timeoutCtx, prompt, opts)
		if err != nil {
			return 0, classifyAnthropicErr(err)
		}
		text, usage = t, u
		return 200, nil
	})
	if err != nil {
		return "", interfaces.CompletionUsage{}, fmt.Errorf("llm.Complete failed: %w", err)
	}
	return text, usage, nil
}

// CompleteJSON asks Claude to answer strictly as JSON matching schema and
// unmarshals the result into out. Claude has no native structured-output
// enforcement in this SDK version, so schema is embedded in the prompt and
// the response is parsed defensively.
func (c *Client) CompleteJSON(ctx context.Context, prompt string, schema []byte, opts interfaces.CompletionOptions, out interface{}) (interfaces.CompletionUsage, error) {
	fullPrompt := prompt + "\n\nRespond with JSON matching this schema, and nothing else:\n" + string(schema)

	text, usage, err := c.Complete(ctx, fullPrompt, opts)
	if err != nil {
		return usage, err
	}

	jsonText := extractJSON(text)
	if err := json.Unmarshal([]byte(jsonText), out); err != nil {
		return usage, fmt.Errorf("%w: failed to parse LLM JSON response: %v", common.ErrMalformedExternal, err)
	}
	return usage, nil
}

func (c *Client) complete(ctx context.Context, prompt string, opts interfaces.CompletionOptions) (string, interfaces.CompletionUsage, error) {
	maxTokens := c.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(opts.Temperature))
	} else if c.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.config.Temperature))
	}

	if opts.CacheableSystemPrefix != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Text:         opts.CacheableSystemPrefix,
				CacheControl: anthropic.CacheControlEphemeralParam{},
			},
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", interfaces.CompletionUsage{}, err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", interfaces.CompletionUsage{}, fmt.Errorf("%w: empty completion from claude", common.ErrMalformedExternal)
	}

	usage := interfaces.CompletionUsage{
		CachedTokens: int(resp.Usage.CacheReadInputTokens),
		TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}
	return sb.String(), usage, nil
}

// extractJSON trims any leading/trailing prose around a ```json fenced
// block or a bare JSON object, since Claude sometimes wraps structured
// answers in commentary despite instructions not to.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}
	if start := strings.IndexAny(text, "{["); start > 0 {
		text = text[start:]
	}
	return text
}

func classifyAnthropicErr(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", common.ErrTransientExternal, err)
		}
		return fmt.Errorf("%w: %v", common.ErrMalformedExternal, err)
	}
	return fmt.Errorf("%w: %v", common.ErrTransientExternal, err)
}
