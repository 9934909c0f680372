// Package parser implements interfaces.ParserClient over the external
// Parser service's HTTP API (§4.3). The teacher has no HTTP-client
// analogue for an external document-parsing service (its equivalents
// fetch HTML via gocolly/chromedp for crawling, a different shape of
// problem), so this package is grounded directly on stdlib net/http
// rather than adapted from a teacher file; see DESIGN.md for the
// justification.
package parser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
)

var _ interfaces.ParserClient = (*Client)(nil)

// Client is the HTTP-backed ParserClient.
type Client struct {
	baseURL string
	http    *http.Client
	logger  arbor.ILogger
	retry   *common.RetryPolicy
}

// New constructs a Client from ParserConfig, validating the base URL the
// same way the teacher validates connector base URLs.
func New(config *common.ParserConfig, logger arbor.ILogger) (*Client, error) {
	ok, _, problems, err := common.ValidateBaseURL(config.BaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to validate parser base url: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("invalid parser base url %q: %s", config.BaseURL, strings.Join(problems, "; "))
	}

	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid parser timeout %q: %w", config.Timeout, err)
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
		retry:   common.NewRetryPolicy(),
	}, nil
}

type parseRequest struct {
	ContentBase64 string `json:"content_base64"`
}

type parseResponse struct {
	JobID  string               `json:"job_id"`
	Chunks []models.ParsedChunk `json:"chunks"`
	Text   string               `json:"full_text"`
}

// Parse uploads raw document bytes and returns the opaque parse-job-id
// plus the structured parse result. The job-id must be cached by the
// caller (Store.CacheParseResult) so a later ExtractStructured call can
// reuse it via the jobid:// form instead of re-uploading bytes.
func (c *Client) Parse(ctx context.Context, docBytes []byte) (string, *models.ParsedResult, error) {
	var out parseResponse
	body := parseRequest{ContentBase64: base64.StdEncoding.EncodeToString(docBytes)}

	_, err := c.retry.Execute(ctx, c.logger, func() (int, error) {
		return c.postJSON(ctx, "/v1/parse", body, &out)
	})
	if err != nil {
		return "", nil, fmt.Errorf("parser.Parse failed: %w", err)
	}

	return out.JobID, &models.ParsedResult{Chunks: out.Chunks, FullText: out.Text}, nil
}

type extractRequest struct {
	SourceRef string             `json:"source_ref"`
	Fields    []models.FieldSpec `json:"fields"`
}

type extractResponse struct {
	Values map[string]interfaces.ExtractedValue `json:"values"`
}

// ExtractStructured asks the Parser service to pull the requested fields
// out of a previously-parsed document. sourceRef beginning with "jobid://"
// MUST NOT cause a re-upload of the original bytes; the Parser service is
// expected to look the parse job up by id.
func (c *Client) ExtractStructured(ctx context.Context, sourceRef string, fields []models.FieldSpec) (map[string]interfaces.ExtractedValue, error) {
	var out extractResponse
	body := extractRequest{SourceRef: sourceRef, Fields: fields}

	_, err := c.retry.Execute(ctx, c.logger, func() (int, error) {
		return c.postJSON(ctx, "/v1/extract", body, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("parser.ExtractStructured failed: %w", err)
	}
	return out.Values, nil
}

// postJSON returns the response status code alongside any error so
// RetryPolicy.Execute can classify retryability from the code directly.
func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to marshal request: %v", common.ErrPipelineFatal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to build request: %v", common.ErrPipelineFatal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrTransientExternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		kind := common.ErrMalformedExternal
		if resp.StatusCode >= 500 {
			kind = common.ErrTransientExternal
		}
		return resp.StatusCode, fmt.Errorf("%w: parser returned status %d", kind, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: failed to decode parser response: %v", common.ErrMalformedExternal, err)
	}
	return resp.StatusCode, nil
}
