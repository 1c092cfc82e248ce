// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search queries web and academic search APIs and returns short text
// snippets for the research stages.
package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"go.uber.org/zap"

	"github.com/pdiddy/essay-engine/pkg/types"
)

// DefaultMaxResults is the number of snippets requested per query.
const DefaultMaxResults = 2

// Searcher returns up to maxResults snippet texts for a query. Each backend
// (Tavily, Semantic Scholar, OpenAlex, arXiv) implements this interface.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]string, error)
}

// SearchError reports a failed search call. Research stages recover from it
// by skipping the query.
type SearchError struct {
	Backend    string
	Query      string
	StatusCode int
	Err        error
}

func (e *SearchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s search %q failed (HTTP %d): %v", e.Backend, e.Query, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s search %q failed: %v", e.Backend, e.Query, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// New builds the Searcher selected by cfg.Backend. Tavily is the default.
func New(cfg types.SearchConfig, logger *zap.Logger) (Searcher, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Backend {
	case types.BackendTavily, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("tavily backend requires an API key (tavily-api-key secret or search.api_key)")
		}
		return &TavilyBackend{Client: client, APIKey: cfg.APIKey, UserAgent: cfg.UserAgent, Logger: logger}, nil
	case types.BackendSemanticScholar:
		return &SemanticScholarBackend{Client: client, APIKey: cfg.APIKey, UserAgent: cfg.UserAgent, Logger: logger}, nil
	case types.BackendOpenAlex:
		return &OpenAlexBackend{Client: client, Email: cfg.Email, UserAgent: cfg.UserAgent, Logger: logger}, nil
	case types.BackendArxiv:
		return &ArxivBackend{Client: client, UserAgent: cfg.UserAgent, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported search backend %q: use tavily, semantic_scholar, openalex, or arxiv", cfg.Backend)
	}
}

// cleanSnippet converts HTML fragments to Markdown and collapses whitespace.
// Snippets without markup are only trimmed.
func cleanSnippet(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "<") && strings.Contains(s, ">") {
		if md, err := htmltomarkdown.ConvertString(s); err == nil {
			s = md
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

// limit returns n, or DefaultMaxResults when n is not positive.
func limit(n int) int {
	if n <= 0 {
		return DefaultMaxResults
	}
	return n
}
