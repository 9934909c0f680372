// Package embedder implements interfaces.EmbedderClient over Google's
// genai embedding API, adapted from the teacher's
// internal/services/embeddings/embedding_service.go (service struct shape,
// dimension/model bookkeeping, empty-text/empty-result guards) but
// swapping the teacher's raw-HTTP Ollama call for the google.golang.org/genai
// SDK per SPEC_FULL.md §4.3, wiring common.RetryPolicy for the transient-retry
// contract and a golang.org/x/time/rate limiter ahead of each call so a large
// ingestion batch can't burst past the embedding API's own rate limit.
package embedder

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
)

var _ interfaces.EmbedderClient = (*Client)(nil)

// Client is the genai-backed EmbedderClient.
type Client struct {
	genai     *genai.Client
	model     string
	dimension int
	timeout   time.Duration
	logger    arbor.ILogger
	retry     *common.RetryPolicy
	limiter   *rate.Limiter
}

// New constructs a Client. Returns (nil, nil) when the embedder is
// disabled in config, so callers can skip semantic indexing entirely
// without special-casing a nil interface value everywhere.
func New(ctx context.Context, config *common.EmbedderConfig, logger arbor.ILogger) (*Client, error) {
	if !config.Enabled {
		return nil, nil
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("embedder api key is required when embedder.enabled is true")
	}

	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid embedder timeout %q: %w", config.Timeout, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: config.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = "text-embedding-004"
	}
	dimension := config.Dimension
	if dimension <= 0 {
		dimension = 768
	}
	rps := config.RateLimitRPS
	if rps <= 0 {
		rps = 10
	}

	return &Client{
		genai:     client,
		model:     model,
		dimension: dimension,
		timeout:   timeout,
		logger:    logger,
		retry:     common.NewRetryPolicy(),
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// Embed returns a fixed-dimension vector for text. Transient failures are
// retried internally up to RetryPolicy.MaxAttempts times; failures that
// survive retries wrap common.ErrMalformedExternal or
// common.ErrTransientExternal so IngestionPipeline callers can skip the
// semantic index for this document rather than abort the batch.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", common.ErrMalformedExternal)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var vector []float32
	_, err := c.retry.Execute(timeoutCtx, c.logger, func() (int, error) {
		v, err := c.embedOnce(timeoutCtx, text)
		if err != nil {
			return 0, err
		}
		vector = v
		return 200, nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedder.Embed failed: %w", err)
	}
	return vector, nil
}

func (c *Client) embedOnce(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter wait: %v", common.ErrTransientExternal, err)
	}

	resp, err := c.genai.Models.EmbedContent(ctx, c.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransientExternal, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: genai returned an empty embedding", common.ErrMalformedExternal)
	}
	return resp.Embeddings[0].Values, nil
}

func (c *Client) Dimension() int { return c.dimension }
