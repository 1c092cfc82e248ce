// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/essay-engine/internal/httputil"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,year"

// SemanticScholarBackend queries the Semantic Scholar API. Useful for essays
// on academic topics; the API key is optional.
type SemanticScholarBackend struct {
	Client    *http.Client
	APIKey    string
	UserAgent string
	Logger    *zap.Logger
}

// Search returns one snippet per paper: "Title (Year): abstract". Papers with
// neither title nor abstract are skipped.
func (b *SemanticScholarBackend) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	fail := func(status int, err error) error {
		return &SearchError{Backend: "semantic_scholar", Query: query, StatusCode: status, Err: err}
	}

	q := strings.TrimSpace(query)
	if q == "" {
		return nil, fail(0, fmt.Errorf("empty query"))
	}

	n := limit(maxResults)
	params := url.Values{
		"query":  {q},
		"limit":  {fmt.Sprintf("%d", n)},
		"fields": {semanticFields},
	}
	reqURL := semanticAPIBase + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fail(0, fmt.Errorf("creating request: %w", err))
	}
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}
	if b.APIKey != "" {
		req.Header.Set("x-api-key", b.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, 0, b.Logger)
	if err != nil {
		return nil, fail(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fail(resp.StatusCode, fmt.Errorf("Semantic Scholar API returned HTTP %d", resp.StatusCode))
	}

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("parsing Semantic Scholar response: %w", err))
	}

	var snippets []string
	for _, paper := range sr.Data {
		if len(snippets) == n {
			break
		}
		if s := formatPaper(paper.Title, paper.Abstract, paper.Year); s != "" {
			snippets = append(snippets, s)
		}
	}
	return snippets, nil
}

// formatPaper renders a paper as a single research snippet. Shared by the
// academic backends.
func formatPaper(rawTitle, rawAbstract string, year int) string {
	title := cleanSnippet(rawTitle)
	abstract := cleanSnippet(rawAbstract)
	if title == "" && abstract == "" {
		return ""
	}
	if title != "" && year > 0 {
		title = fmt.Sprintf("%s (%d)", title, year)
	}
	switch {
	case abstract == "":
		return title
	case title == "":
		return abstract
	default:
		return title + ": " + abstract
	}
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Data   []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID  string `json:"paperId"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Year     int    `json:"year"`
}
