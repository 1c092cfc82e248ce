// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm defines the language-model client used by the essay stages and
// the parsing of schema-constrained (structured) responses.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// DefaultMaxQueries is the number of search queries a structured call may yield.
const DefaultMaxQueries = 3

// Client abstracts the Generative AI API so tests can supply a mock.
type Client interface {
	// Complete sends a single prompt and returns the free-text response.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteStructured sends a prompt that asks for {"queries": [...]} and
	// returns at most maxQueries parsed queries.
	CompleteStructured(ctx context.Context, prompt string, maxQueries int) (Queries, error)
}

// Queries is the structured response of the query-generation stages.
type Queries struct {
	Queries []string `json:"queries" yaml:"queries"`
}

// ProviderError reports a failed call to the model provider: network, auth,
// rate limiting, or an unusable response body. It aborts the run.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (HTTP %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StructuredOutputParseError reports a query-generation response that does
// not match {"queries": [string, ...]}. Stages treat it as zero queries.
type StructuredOutputParseError struct {
	Raw string
	Err error
}

func (e *StructuredOutputParseError) Error() string {
	return fmt.Sprintf("parsing structured output: %v", e.Err)
}

func (e *StructuredOutputParseError) Unwrap() error { return e.Err }

// structuredShape uses a pointer so a missing "queries" field is detectable.
type structuredShape struct {
	Queries *[]string `json:"queries"`
}

// ParseQueries parses raw model output into Queries. Code fences and prose
// around the JSON object are stripped, malformed JSON is repaired once, blank
// queries are dropped and the list is truncated to maxQueries.
func ParseQueries(raw string, maxQueries int) (Queries, error) {
	if maxQueries <= 0 {
		maxQueries = DefaultMaxQueries
	}

	body := extractJSONObject(raw)
	if body == "" {
		return Queries{}, &StructuredOutputParseError{Raw: raw, Err: fmt.Errorf("no JSON object in response")}
	}

	var shape structuredShape
	if err := json.Unmarshal([]byte(body), &shape); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(body)
		if repairErr != nil {
			return Queries{}, &StructuredOutputParseError{Raw: raw, Err: fmt.Errorf("unmarshal: %w (repair: %v)", err, repairErr)}
		}
		shape = structuredShape{}
		if err := json.Unmarshal([]byte(repaired), &shape); err != nil {
			return Queries{}, &StructuredOutputParseError{Raw: raw, Err: fmt.Errorf("unmarshal repaired JSON: %w", err)}
		}
	}
	if shape.Queries == nil {
		return Queries{}, &StructuredOutputParseError{Raw: raw, Err: fmt.Errorf(`missing "queries" field`)}
	}

	var out Queries
	for _, q := range *shape.Queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if len(out.Queries) == maxQueries {
			break
		}
		out.Queries = append(out.Queries, q)
	}
	return out, nil
}

// extractJSONObject returns the text between the first '{' and the last '}',
// after removing Markdown code fences.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		// Unterminated object; let jsonrepair try to close it.
		return s[start:]
	}
	return s[start : end+1]
}
