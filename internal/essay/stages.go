// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package essay

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/essay-engine/internal/llm"
	"github.com/pdiddy/essay-engine/internal/prompts"
	"github.com/pdiddy/essay-engine/pkg/types"
)

// plan writes the outline for the task into s.Plan.
func (w *Writer) plan(ctx context.Context, s *types.EssaySession) (string, error) {
	prompt, err := prompts.Plan(s.Task)
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	text, err := w.llm.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	s.Plan = text
	return text, nil
}

// researchPlan searches for queries derived from the task and appends the
// snippets to s.Content.
func (w *Writer) researchPlan(ctx context.Context, s *types.EssaySession) ([]string, error) {
	prompt, err := prompts.ResearchPlan(s.Task, w.maxQueries)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}
	return w.research(ctx, s, prompt)
}

// generate writes a new draft and advances the revision counter.
func (w *Writer) generate(ctx context.Context, s *types.EssaySession) (string, error) {
	prompt, err := prompts.Write(s.Task, s.Plan, s.Content, s.Critique)
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	text, err := w.llm.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	s.Draft = text
	s.RevisionNumber++
	return text, nil
}

// reflect critiques the current draft into s.Critique.
func (w *Writer) reflect(ctx context.Context, s *types.EssaySession) (string, error) {
	prompt, err := prompts.Reflect(s.Draft)
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	text, err := w.llm.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	s.Critique = text
	return text, nil
}

// researchCritique searches for queries derived from the critique and appends
// the snippets to s.Content.
func (w *Writer) researchCritique(ctx context.Context, s *types.EssaySession) ([]string, error) {
	prompt, err := prompts.ResearchCritique(s.Critique, w.maxQueries)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}
	return w.research(ctx, s, prompt)
}

// research asks the model for queries, searches each one, and appends every
// snippet to s.Content in query order. A malformed structured response counts
// as zero queries; a failed search skips that query only.
func (w *Writer) research(ctx context.Context, s *types.EssaySession, prompt string) ([]string, error) {
	q, err := w.llm.CompleteStructured(ctx, prompt, w.maxQueries)
	if err != nil {
		var perr *llm.StructuredOutputParseError
		if errors.As(err, &perr) {
			w.logger.Warn("ignoring malformed query list", zap.String("session", s.ID), zap.Error(err))
			return nil, nil
		}
		return nil, fmt.Errorf("generating queries: %w", err)
	}

	queries := q.Queries
	if len(queries) > w.maxQueries {
		queries = queries[:w.maxQueries]
	}

	added := w.searchAll(ctx, s.ID, queries)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.Content = append(s.Content, added...)
	return added, nil
}

// searchAll runs the queries with at most w.concurrency in flight and
// returns the snippets flattened in query order.
func (w *Writer) searchAll(ctx context.Context, sessionID string, queries []string) []string {
	results := make([][]string, len(queries))

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for i, query := range queries {
		g.Go(func() error {
			snippets, err := w.searcher.Search(ctx, query, w.maxResults)
			if err != nil {
				w.logger.Warn("search failed, skipping query",
					zap.String("session", sessionID), zap.String("query", query), zap.Error(err))
				return nil
			}
			if len(snippets) == 0 {
				w.logger.Debug("search returned nothing", zap.String("session", sessionID), zap.String("query", query))
				return nil
			}
			if len(snippets) > w.maxResults {
				snippets = snippets[:w.maxResults]
			}
			results[i] = snippets
			return nil
		})
	}
	g.Wait()

	var out []string
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}
