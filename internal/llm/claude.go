// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/essay-engine/internal/httputil"
	"github.com/pdiddy/essay-engine/internal/logging"
)

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

const (
	providerName     = "anthropic"
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 4096
)

// Options configures a ClaudeClient. Nothing here changes stage behavior.
type Options struct {
	APIKey     string
	Model      string
	MaxTokens  int
	MaxRetries int

	// TracingEnabled logs each call with sizes, token usage, and latency.
	TracingEnabled bool
	// ProjectName is attached to traced calls.
	ProjectName string

	Client *http.Client
	Logger *zap.Logger
}

// ClaudeClient calls the Claude Messages API.
type ClaudeClient struct {
	opts   Options
	logger *zap.Logger
}

// NewClaudeClient returns a client with defaults filled in.
func NewClaudeClient(opts Options) *ClaudeClient {
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	logger := logging.OrNop(opts.Logger)
	return &ClaudeClient{
		opts:   opts,
		logger: logger.With(zap.String("provider", providerName), zap.String("model", opts.Model)),
	}
}

// claudeRequest is the request body for the Claude Messages API.
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

// claudeMessage is a single message in the Claude API conversation.
type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the response body from the Claude Messages API.
type claudeResponse struct {
	Content []claudeContent `json:"content"`
	Usage   claudeUsage     `json:"usage"`
}

// claudeContent is a content block in the Claude API response.
type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// claudeError is the error envelope returned on non-2xx responses.
type claudeError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends prompt as a single user message and returns the joined text
// blocks of the response.
func (c *ClaudeClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.opts.APIKey == "" {
		return "", &ProviderError{Provider: providerName, Err: errors.New("API key is missing")}
	}

	start := time.Now()

	reqBody := claudeRequest{
		Model:     c.opts.Model,
		MaxTokens: c.opts.MaxTokens,
		Messages: []claudeMessage{
			{Role: "user", Content: prompt},
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.opts.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := httputil.DoWithRetry(ctx, c.opts.Client, req, c.opts.MaxRetries, c.logger)
	if err != nil {
		return "", &ProviderError{Provider: providerName, Err: fmt.Errorf("calling Claude API: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(body))
		var apiErr claudeError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Type + ": " + apiErr.Error.Message
		}
		return "", &ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", &ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding Claude response: %w", err)}
	}

	var parts []string
	for _, block := range cResp.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", &ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Err: errors.New("no text content in Claude API response")}
	}
	text := strings.Join(parts, "")

	if c.opts.TracingEnabled {
		c.logger.Info("llm call",
			zap.String("project", c.opts.ProjectName),
			zap.Int("prompt_chars", len(prompt)),
			zap.Int("response_chars", len(text)),
			zap.Int("input_tokens", cResp.Usage.InputTokens),
			zap.Int("output_tokens", cResp.Usage.OutputTokens),
			zap.Duration("latency", time.Since(start)),
		)
	}
	return text, nil
}

// CompleteStructured calls Complete and parses the result with ParseQueries.
// Provider failures are returned unchanged; malformed output yields a
// *StructuredOutputParseError.
func (c *ClaudeClient) CompleteStructured(ctx context.Context, prompt string, maxQueries int) (Queries, error) {
	text, err := c.Complete(ctx, prompt)
	if err != nil {
		return Queries{}, err
	}
	q, err := ParseQueries(text, maxQueries)
	if err != nil {
		c.logger.Debug("structured output rejected", zap.Int("response_chars", len(text)), zap.Error(err))
		return Queries{}, err
	}
	return q, nil
}
