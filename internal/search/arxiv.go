// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/essay-engine/internal/httputil"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// ArxivBackend queries the arXiv API. Suited to essays on scientific topics.
type ArxivBackend struct {
	Client    *http.Client
	UserAgent string
	Logger    *zap.Logger
}

// Search returns one "Title (Year): abstract" snippet per entry.
func (b *ArxivBackend) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	fail := func(status int, err error) error {
		return &SearchError{Backend: "arxiv", Query: query, StatusCode: status, Err: err}
	}

	terms := strings.Fields(query)
	if len(terms) == 0 {
		return nil, fail(0, fmt.Errorf("empty query"))
	}

	n := limit(maxResults)
	params := url.Values{
		"search_query": {"all:" + strings.Join(terms, " AND all:")},
		"start":        {"0"},
		"max_results":  {fmt.Sprintf("%d", n)},
		"sortBy":       {"relevance"},
		"sortOrder":    {"descending"},
	}
	reqURL := arxivAPIBase + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fail(0, fmt.Errorf("creating request: %w", err))
	}
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, 0, b.Logger)
	if err != nil {
		return nil, fail(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fail(resp.StatusCode, fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode))
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("parsing arXiv response: %w", err))
	}

	var snippets []string
	for _, entry := range feed.Entries {
		if len(snippets) == n {
			break
		}
		year := 0
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			year = t.Year()
		}
		if s := formatPaper(entry.Title, entry.Summary, year); s != "" {
			snippets = append(snippets, s)
		}
	}
	return snippets, nil
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
}
