// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/pdiddy/essay-engine/internal/httputil"
)

// tavilyAPIURL is the Tavily search endpoint. Declared as a var so tests can
// substitute an httptest server.
var tavilyAPIURL = "https://api.tavily.com/search"

// tavilyMaxResults is the API's upper bound for max_results.
const tavilyMaxResults = 20

// TavilyBackend queries the Tavily web search API.
type TavilyBackend struct {
	Client    *http.Client
	APIKey    string
	UserAgent string
	Logger    *zap.Logger
}

type tavilyRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type tavilyAPIError struct {
	Detail struct {
		Error string `json:"error"`
	} `json:"detail"`
}

// Search posts the query to Tavily and returns the content of up to
// maxResults results.
func (b *TavilyBackend) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	n := limit(maxResults)
	if n > tavilyMaxResults {
		n = tavilyMaxResults
	}
	fail := func(status int, err error) error {
		return &SearchError{Backend: "tavily", Query: query, StatusCode: status, Err: err}
	}

	body, err := json.Marshal(tavilyRequest{Query: query, SearchDepth: "basic", MaxResults: n})
	if err != nil {
		return nil, fail(0, fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyAPIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fail(0, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.APIKey)
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, 0, b.Logger)
	if err != nil {
		return nil, fail(0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr tavilyAPIError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Detail.Error != "" {
			return nil, fail(resp.StatusCode, errors.New(apiErr.Detail.Error))
		}
		return nil, fail(resp.StatusCode, fmt.Errorf("unexpected response: %s", string(data)))
	}

	var tr tavilyResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("parsing response: %w", err))
	}

	var snippets []string
	for _, r := range tr.Results {
		if len(snippets) == n {
			break
		}
		if s := cleanSnippet(r.Content); s != "" {
			snippets = append(snippets, s)
		}
	}
	return snippets, nil
}
