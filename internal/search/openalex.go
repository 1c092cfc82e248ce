// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/essay-engine/internal/httputil"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

// OpenAlexBackend queries the OpenAlex API. No key is needed.
type OpenAlexBackend struct {
	Client *http.Client
	// Email is sent as mailto parameter for polite pool access.
	Email     string
	UserAgent string
	Logger    *zap.Logger
}

// Search returns one "Title (Year): abstract" snippet per work.
func (b *OpenAlexBackend) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	fail := func(status int, err error) error {
		return &SearchError{Backend: "openalex", Query: query, StatusCode: status, Err: err}
	}

	q := strings.TrimSpace(query)
	if q == "" {
		return nil, fail(0, fmt.Errorf("empty query"))
	}

	n := min(limit(maxResults), 200)
	params := url.Values{
		"search":   {q},
		"per_page": {fmt.Sprintf("%d", n)},
		"page":     {"1"},
		"select":   {"id,title,publication_year,abstract_inverted_index"},
	}
	if b.Email != "" {
		params.Set("mailto", b.Email)
	}
	reqURL := openAlexSearchBase + "?" + params.Encode()

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
		return nil, fail(resp.StatusCode, fmt.Errorf("OpenAlex API returned HTTP %d", resp.StatusCode))
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("parsing OpenAlex response: %w", err))
	}

	var snippets []string
	for _, work := range oar.Results {
		if len(snippets) == n {
			break
		}
		if s := formatPaper(work.Title, reconstructAbstract(work.AbstractInvertedIndex), work.PublicationYear); s != "" {
			snippets = append(snippets, s)
		}
	}
	return snippets, nil
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to a list of positions
// where that word appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string           `json:"id"`
	Title                 string           `json:"title"`
	PublicationYear       int              `json:"publication_year"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}
