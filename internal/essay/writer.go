// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package essay runs the plan, research, draft, critique loop that writes a
// five-paragraph essay.
// See docs/ARCHITECTURE § Pipeline, § Controller.
package essay

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/essay-engine/internal/logging"
	"github.com/pdiddy/essay-engine/internal/llm"
	"github.com/pdiddy/essay-engine/internal/search"
	"github.com/pdiddy/essay-engine/internal/session"
	"github.com/pdiddy/essay-engine/pkg/types"
)

// Event describes one completed stage. Only the field the stage wrote is set.
type Event struct {
	SessionID      string
	Stage          types.Stage
	Next           types.Stage
	RevisionNumber int

	Plan       string
	Draft      string
	Critique   string
	NewContent []string
}

// Observer receives an Event after every stage. It must not retain or mutate
// the session.
type Observer func(Event)

// Writer owns the stage functions and the controller loop.
type Writer struct {
	llm      llm.Client
	searcher search.Searcher
	store    session.Store
	observer Observer
	logger   *zap.Logger
	progress io.Writer

	maxQueries  int
	maxResults  int
	concurrency int
}

// Option configures a Writer.
type Option func(*Writer)

// WithStore checkpoints the session after every stage.
func WithStore(s session.Store) Option { return func(w *Writer) { w.store = s } }

// WithObserver registers a per-stage callback.
func WithObserver(o Observer) Option { return func(w *Writer) { w.observer = o } }

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option { return func(w *Writer) { w.logger = logging.OrNop(l) } }

// WithProgress writes one human-readable line per stage to out.
func WithProgress(out io.Writer) Option { return func(w *Writer) { w.progress = out } }

// WithSearchLimits sets the queries per research stage, snippets per query,
// and how many queries are searched in parallel. Non-positive values keep
// the defaults (3, 2, 1).
func WithSearchLimits(maxQueries, maxResults, concurrency int) Option {
	return func(w *Writer) {
		if maxQueries > 0 {
			w.maxQueries = maxQueries
		}
		if maxResults > 0 {
			w.maxResults = maxResults
		}
		if concurrency > 0 {
			w.concurrency = concurrency
		}
	}
}

// New returns a Writer that calls client for completions and searcher for research.
func New(client llm.Client, searcher search.Searcher, opts ...Option) *Writer {
	w := &Writer{
		llm:         client,
		searcher:    searcher,
		logger:      zap.NewNop(),
		progress:    io.Discard,
		maxQueries:  llm.DefaultMaxQueries,
		maxResults:  search.DefaultMaxResults,
		concurrency: 1,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Write creates a new session from in and runs it to completion.
// The returned session is non-nil whenever it was created, even on error,
// so callers can report the id for resume.
func (w *Writer) Write(ctx context.Context, in types.SessionInput) (*types.EssaySession, error) {
	s, err := types.NewSession(uuid.NewString(), in)
	if err != nil {
		return nil, err
	}
	w.checkpoint(ctx, s)
	return s, w.Run(ctx, s)
}

// Resume loads the checkpoint for id and continues from its saved stage.
func (w *Writer) Resume(ctx context.Context, id string) (*types.EssaySession, error) {
	if w.store == nil {
		return nil, fmt.Errorf("resuming %s: no session store configured", id)
	}
	s, err := w.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Done() {
		fmt.Fprintf(w.progress, "session %s already finished\n", id)
		return s, nil
	}
	return s, w.Run(ctx, s)
}

// Run drives s from its current stage to StageEnd:
//
//	plan -> research_plan -> generate
//	generate -> end                when revision_number > max_revisions
//	generate -> reflect            otherwise
//	reflect -> research_critique -> generate
//
// A stage error stops the run with s.Stage still pointing at the failed
// stage, so a checkpointed session resumes there.
func (w *Writer) Run(ctx context.Context, s *types.EssaySession) error {
	if s.Stage == "" {
		s.Stage = types.StagePlan
	}
	log := w.logger.With(zap.String("session", s.ID))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			ev   = Event{SessionID: s.ID, Stage: s.Stage}
			next types.Stage
			err  error
		)

		switch s.Stage {
		case types.StagePlan:
			ev.Plan, err = w.plan(ctx, s)
			next = types.StageResearchPlan

		case types.StageResearchPlan:
			ev.NewContent, err = w.researchPlan(ctx, s)
			next = types.StageGenerate

		case types.StageGenerate:
			if s.RevisionNumber > s.MaxRevisions {
				// Only reachable from a hand-edited or foreign checkpoint.
				next = types.StageEnd
				break
			}
			ev.Draft, err = w.generate(ctx, s)
			next = w.afterGenerate(s)

		case types.StageReflect:
			ev.Critique, err = w.reflect(ctx, s)
			next = types.StageResearchCritique

		case types.StageResearchCritique:
			ev.NewContent, err = w.researchCritique(ctx, s)
			next = types.StageGenerate

		case types.StageEnd:
			log.Info("essay finished",
				zap.Int("revision_number", s.RevisionNumber),
				zap.Int("snippets", len(s.Content)),
				zap.Int("draft_chars", len(s.Draft)),
			)
			return nil

		default:
			return fmt.Errorf("session %s: unknown stage %q", s.ID, s.Stage)
		}

		if err != nil {
			log.Error("stage failed", zap.String("stage", string(s.Stage)), zap.Error(err))
			return fmt.Errorf("stage %s: %w", s.Stage, err)
		}

		s.Stage = next
		s.UpdatedAt = time.Now().UTC()
		w.checkpoint(ctx, s)

		ev.Next = next
		ev.RevisionNumber = s.RevisionNumber
		fmt.Fprintf(w.progress, "%-17s -> %-17s revision %d/%d, %d snippets\n",
			ev.Stage, next, s.RevisionNumber, s.MaxRevisions, len(s.Content))
		log.Debug("stage complete",
			zap.String("stage", string(ev.Stage)),
			zap.String("next", string(next)),
			zap.Int("revision_number", s.RevisionNumber),
		)
		if w.observer != nil {
			w.observer(ev)
		}
	}
}

// afterGenerate is the only conditional edge: stop once the revision counter
// passes the limit.
func (w *Writer) afterGenerate(s *types.EssaySession) types.Stage {
	if s.RevisionNumber > s.MaxRevisions {
		return types.StageEnd
	}
	return types.StageReflect
}

// checkpoint saves s when a store is configured. A failed save is logged and
// the run continues; only resume depends on it.
func (w *Writer) checkpoint(ctx context.Context, s *types.EssaySession) {
	if w.store == nil {
		return
	}
	if err := w.store.Save(ctx, s.ID, s); err != nil {
		w.logger.Warn("checkpoint failed", zap.String("session", s.ID), zap.String("stage", string(s.Stage)), zap.Error(err))
	}
}
