// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package essay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/essay-engine/internal/llm"
	"github.com/pdiddy/essay-engine/internal/search"
	"github.com/pdiddy/essay-engine/internal/session"
	"github.com/pdiddy/essay-engine/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- fakes ---

// fakeLLM answers by recognizing which stage's prompt it was sent.
type fakeLLM struct {
	mu         sync.Mutex
	calls      []types.Stage
	structured map[types.Stage]string // raw structured response per stage
	failOn     types.Stage            // stage whose call returns a ProviderError
	drafts     int
}

func stageOf(prompt string) types.Stage {
	switch {
	case strings.Contains(prompt, "high level outline"):
		return types.StagePlan
	case strings.Contains(prompt, "Essay topic:"):
		return types.StageResearchPlan
	case strings.Contains(prompt, "5-paragraph essays"):
		return types.StageGenerate
	case strings.Contains(prompt, "teacher grading"):
		return types.StageReflect
	case strings.Contains(prompt, "Requested revisions:"):
		return types.StageResearchCritique
	}
	return "unknown"
}

func (f *fakeLLM) record(prompt string) (types.Stage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := stageOf(prompt)
	f.calls = append(f.calls, st)
	if st == f.failOn {
		return st, &llm.ProviderError{Provider: "fake", StatusCode: 500, Err: errors.New("boom")}
	}
	return st, nil
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	st, err := f.record(prompt)
	if err != nil {
		return "", err
	}
	switch st {
	case types.StagePlan:
		return "OUTLINE", nil
	case types.StageGenerate:
		f.mu.Lock()
		f.drafts++
		n := f.drafts
		f.mu.Unlock()
		return fmt.Sprintf("DRAFT %d", n), nil
	case types.StageReflect:
		return "CRITIQUE: needs more depth", nil
	}
	return "", fmt.Errorf("unexpected free-text prompt for stage %s", st)
}

func (f *fakeLLM) CompleteStructured(_ context.Context, prompt string, maxQueries int) (llm.Queries, error) {
	st, err := f.record(prompt)
	if err != nil {
		return llm.Queries{}, err
	}
	raw, ok := f.structured[st]
	if !ok {
		raw = fmt.Sprintf(`{"queries": ["%s q1", "%s q2"]}`, st, st)
	}
	return llm.ParseQueries(raw, maxQueries)
}

func (f *fakeLLM) count(st types.Stage) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == st {
			n++
		}
	}
	return n
}

// fakeSearcher returns two snippets per query unless told otherwise.
type fakeSearcher struct {
	fail    map[string]bool
	empty   map[string]bool
	delay   map[string]time.Duration
	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeSearcher) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if d := f.delay[query]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail[query] {
		return nil, &search.SearchError{Backend: "fake", Query: query, Err: errors.New("unavailable")}
	}
	if f.empty[query] {
		return nil, nil
	}
	return []string{query + " snippet A", query + " snippet B", query + " snippet C"}[:maxResults], nil
}

func newSession(t *testing.T, maxRevisions int) *types.EssaySession {
	t.Helper()
	s, err := types.NewSession("test-session", types.SessionInput{
		Task:           "Explain photosynthesis",
		MaxRevisions:   maxRevisions,
		RevisionNumber: 1,
	})
	require.NoError(t, err)
	return s
}

// stageTrace records the stage of every Event.
func stageTrace(dst *[]types.Stage) Option {
	return WithObserver(func(ev Event) { *dst = append(*dst, ev.Stage) })
}

// --- scenarios ---

func TestRunSingleRevisionSkipsReflect(t *testing.T) {
	var trace []types.Stage
	model := &fakeLLM{}
	w := New(model, &fakeSearcher{}, stageTrace(&trace), WithLogger(zaptest.NewLogger(t)))
	s := newSession(t, 1)

	require.NoError(t, w.Run(context.Background(), s))

	assert.Equal(t, []types.Stage{types.StagePlan, types.StageResearchPlan, types.StageGenerate}, trace)
	assert.Equal(t, 2, s.RevisionNumber)
	assert.Equal(t, "DRAFT 1", s.Draft)
	assert.Equal(t, "OUTLINE", s.Plan)
	assert.Empty(t, s.Critique)
	assert.Equal(t, types.StageEnd, s.Stage)
	assert.Zero(t, model.count(types.StageReflect))
}

func TestRunTwoRevisionsLoopsOnce(t *testing.T) {
	var trace []types.Stage
	w := New(&fakeLLM{}, &fakeSearcher{}, stageTrace(&trace))
	s := newSession(t, 2)

	require.NoError(t, w.Run(context.Background(), s))

	assert.Equal(t, []types.Stage{
		types.StagePlan, types.StageResearchPlan, types.StageGenerate,
		types.StageReflect, types.StageResearchCritique, types.StageGenerate,
	}, trace)
	assert.Equal(t, 3, s.RevisionNumber)
	assert.Equal(t, "DRAFT 2", s.Draft)
	assert.Equal(t, "CRITIQUE: needs more depth", s.Critique)
	assert.Equal(t, []string{
		"research_plan q1 snippet A", "research_plan q1 snippet B",
		"research_plan q2 snippet A", "research_plan q2 snippet B",
		"research_critique q1 snippet A", "research_critique q1 snippet B",
		"research_critique q2 snippet A", "research_critique q2 snippet B",
	}, s.Content)
}

func TestRunMalformedQueriesContinues(t *testing.T) {
	searcher := &fakeSearcher{}
	model := &fakeLLM{structured: map[types.Stage]string{
		types.StageResearchPlan: "Sure! Here are some ideas: photosynthesis, chlorophyll",
	}}
	w := New(model, searcher)
	s := newSession(t, 1)

	require.NoError(t, w.Run(context.Background(), s))

	assert.Empty(t, s.Content)
	assert.Zero(t, searcher.calls.Load())
	assert.Equal(t, "DRAFT 1", s.Draft)
}

func TestRunLoopCount(t *testing.T) {
	tests := []struct {
		start, max int
	}{
		{1, 1}, {1, 3}, {2, 4}, {3, 3}, {1, 5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("start=%d max=%d", tt.start, tt.max), func(t *testing.T) {
			model := &fakeLLM{}
			s, err := types.NewSession("s", types.SessionInput{Task: "t", MaxRevisions: tt.max, RevisionNumber: tt.start})
			require.NoError(t, err)

			// Check the counters on every transition.
			lastRev, lastContent := s.RevisionNumber, len(s.Content)
			w := New(model, &fakeSearcher{}, WithObserver(func(ev Event) {
				if ev.Stage == types.StageGenerate {
					assert.Equal(t, lastRev+1, s.RevisionNumber, "generate must add exactly one revision")
					assert.LessOrEqual(t, s.RevisionNumber-1, s.MaxRevisions, "generate ran past the limit")
				} else {
					assert.Equal(t, lastRev, s.RevisionNumber)
				}
				assert.GreaterOrEqual(t, len(s.Content), lastContent, "content shrank")
				lastRev, lastContent = s.RevisionNumber, len(s.Content)
			}))

			require.NoError(t, w.Run(context.Background(), s))

			loops := tt.max - tt.start
			assert.Equal(t, loops+1, model.count(types.StageGenerate))
			assert.Equal(t, loops, model.count(types.StageReflect))
			assert.Equal(t, loops, model.count(types.StageResearchCritique))
			assert.Equal(t, 1, model.count(types.StagePlan))
			assert.Equal(t, tt.max+1, s.RevisionNumber)
		})
	}
}

func TestRunSearchFailureSkipsOnlyThatQuery(t *testing.T) {
	searcher := &fakeSearcher{
		fail:  map[string]bool{"research_plan q1": true},
		empty: map[string]bool{"research_critique q2": true},
	}
	w := New(&fakeLLM{}, searcher, WithLogger(zaptest.NewLogger(t)))
	s := newSession(t, 2)

	require.NoError(t, w.Run(context.Background(), s))

	assert.Equal(t, []string{
		"research_plan q2 snippet A", "research_plan q2 snippet B",
		"research_critique q1 snippet A", "research_critique q1 snippet B",
	}, s.Content)
}

func TestRunTruncatesExtraQueries(t *testing.T) {
	searcher := &fakeSearcher{}
	model := &fakeLLM{structured: map[types.Stage]string{
		types.StageResearchPlan: `{"queries": ["a", "b", "c", "d", "e"]}`,
	}}
	w := New(model, searcher)

	require.NoError(t, w.Run(context.Background(), newSession(t, 1)))
	assert.Equal(t, int32(3), searcher.calls.Load())
}

func TestRunSearchLimits(t *testing.T) {
	searcher := &fakeSearcher{}
	model := &fakeLLM{structured: map[types.Stage]string{
		types.StageResearchPlan: `{"queries": ["a", "b", "c"]}`,
	}}
	w := New(model, searcher, WithSearchLimits(2, 1, 0))
	s := newSession(t, 1)

	require.NoError(t, w.Run(context.Background(), s))
	assert.Equal(t, []string{"a snippet A", "b snippet A"}, s.Content)
}

func TestRunParallelSearchKeepsQueryOrder(t *testing.T) {
	searcher := &fakeSearcher{delay: map[string]time.Duration{
		"research_plan q1": 30 * time.Millisecond,
	}}
	model := &fakeLLM{structured: map[types.Stage]string{
		types.StageResearchPlan: `{"queries": ["research_plan q1", "research_plan q2", "research_plan q3"]}`,
	}}
	w := New(model, searcher, WithSearchLimits(3, 1, 3))
	s := newSession(t, 1)

	require.NoError(t, w.Run(context.Background(), s))

	assert.Equal(t, []string{
		"research_plan q1 snippet A",
		"research_plan q2 snippet A",
		"research_plan q3 snippet A",
	}, s.Content)
	assert.Greater(t, searcher.maxSeen.Load(), int32(1), "searches should overlap")
}

func TestRunSequentialByDefault(t *testing.T) {
	searcher := &fakeSearcher{delay: map[string]time.Duration{
		"research_plan q1": 5 * time.Millisecond,
		"research_plan q2": 5 * time.Millisecond,
	}}
	w := New(&fakeLLM{}, searcher)

	require.NoError(t, w.Run(context.Background(), newSession(t, 1)))
	assert.Equal(t, int32(1), searcher.maxSeen.Load())
}

// --- errors ---

func TestRunProviderErrorAborts(t *testing.T) {
	for _, st := range []types.Stage{types.StagePlan, types.StageResearchPlan, types.StageGenerate, types.StageReflect, types.StageResearchCritique} {
		t.Run(string(st), func(t *testing.T) {
			w := New(&fakeLLM{failOn: st}, &fakeSearcher{})
			s := newSession(t, 2)

			err := w.Run(context.Background(), s)
			require.Error(t, err)

			var perr *llm.ProviderError
			assert.True(t, errors.As(err, &perr), "want *ProviderError in chain, got %v", err)
			assert.Contains(t, err.Error(), "stage "+string(st))
			assert.Equal(t, st, s.Stage, "session should stay at the failed stage")
		})
	}
}

func TestRunContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &fakeLLM{}
	err := New(model, &fakeSearcher{}).Run(ctx, newSession(t, 1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, model.count(types.StagePlan))
}

func TestRunUnknownStage(t *testing.T) {
	s := newSession(t, 1)
	s.Stage = "polish"
	err := New(&fakeLLM{}, &fakeSearcher{}).Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown stage "polish"`)
}

func TestRunGenerateGuard(t *testing.T) {
	model := &fakeLLM{}
	s := newSession(t, 1)
	s.Stage = types.StageGenerate
	s.RevisionNumber = 2

	require.NoError(t, New(model, &fakeSearcher{}).Run(context.Background(), s))
	assert.Zero(t, model.count(types.StageGenerate))
	assert.Equal(t, types.StageEnd, s.Stage)
}

// --- persistence ---

func TestWriteCreatesCheckpointedSession(t *testing.T) {
	store := session.NewMemoryStore()
	var progress bytes.Buffer
	w := New(&fakeLLM{}, &fakeSearcher{}, WithStore(store), WithProgress(&progress))

	s, err := w.Write(context.Background(), types.SessionInput{Task: "Explain photosynthesis", MaxRevisions: 1})
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)

	saved, err := store.Load(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StageEnd, saved.Stage)
	assert.Equal(t, s.Draft, saved.Draft)
	assert.Equal(t, 2, saved.RevisionNumber)
	assert.Contains(t, progress.String(), "research_plan")
}

func TestWriteRejectsInvalidInput(t *testing.T) {
	w := New(&fakeLLM{}, &fakeSearcher{})
	s, err := w.Write(context.Background(), types.SessionInput{Task: "t", MaxRevisions: 0})
	assert.Error(t, err)
	assert.Nil(t, s)
}

func TestResumeAfterResearchPlan(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()

	// First run dies at generate, after research_plan was checkpointed.
	first := New(&fakeLLM{failOn: types.StageGenerate}, &fakeSearcher{}, WithStore(store))
	s, err := first.Write(ctx, types.SessionInput{Task: "Explain photosynthesis", MaxRevisions: 2})
	require.Error(t, err)
	require.NotNil(t, s)

	saved, err := store.Load(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Task, saved.Task)
	assert.Equal(t, s.Plan, saved.Plan)
	assert.Equal(t, s.Content, saved.Content)
	assert.Equal(t, types.StageGenerate, saved.Stage)

	// Second run picks up at generate without re-planning.
	model := &fakeLLM{}
	second := New(model, &fakeSearcher{}, WithStore(store))
	resumed, err := second.Resume(ctx, s.ID)
	require.NoError(t, err)

	assert.Zero(t, model.count(types.StagePlan))
	assert.Zero(t, model.count(types.StageResearchPlan))
	assert.Equal(t, 2, model.count(types.StageGenerate))
	assert.Equal(t, types.StageEnd, resumed.Stage)
	assert.Equal(t, 3, resumed.RevisionNumber)
	assert.Len(t, resumed.Content, 8)
}

func TestResumeErrors(t *testing.T) {
	ctx := context.Background()

	_, err := New(&fakeLLM{}, &fakeSearcher{}).Resume(ctx, "x")
	assert.ErrorContains(t, err, "no session store")

	store := session.NewMemoryStore()
	_, err = New(&fakeLLM{}, &fakeSearcher{}, WithStore(store)).Resume(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestResumeFinishedSessionIsNoop(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	done := newSession(t, 1)
	done.Stage = types.StageEnd
	done.Draft = "final"
	require.NoError(t, store.Save(ctx, done.ID, done))

	model := &fakeLLM{}
	got, err := New(model, &fakeSearcher{}, WithStore(store)).Resume(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Draft)
	assert.Empty(t, model.calls)
}

// failingStore rejects every save.
type failingStore struct{ session.Store }

func (failingStore) Save(context.Context, string, *types.EssaySession) error {
	return errors.New("disk full")
}

func TestCheckpointFailureDoesNotStopRun(t *testing.T) {
	w := New(&fakeLLM{}, &fakeSearcher{}, WithStore(failingStore{}), WithLogger(zaptest.NewLogger(t)))
	s := newSession(t, 1)
	require.NoError(t, w.Run(context.Background(), s))
	assert.Equal(t, types.StageEnd, s.Stage)
}

// --- observation ---

func TestObserverEventsCarryWrittenFields(t *testing.T) {
	var events []Event
	w := New(&fakeLLM{}, &fakeSearcher{}, WithObserver(func(ev Event) { events = append(events, ev) }))
	require.NoError(t, w.Run(context.Background(), newSession(t, 2)))

	require.Len(t, events, 6)
	assert.Equal(t, "OUTLINE", events[0].Plan)
	assert.Equal(t, types.StageResearchPlan, events[0].Next)
	assert.Len(t, events[1].NewContent, 4)
	assert.Equal(t, "DRAFT 1", events[2].Draft)
	assert.Equal(t, 2, events[2].RevisionNumber)
	assert.Equal(t, types.StageReflect, events[2].Next)
	assert.Equal(t, "CRITIQUE: needs more depth", events[3].Critique)
	assert.Len(t, events[4].NewContent, 4)
	assert.Equal(t, types.StageEnd, events[5].Next)
	for _, ev := range events {
		assert.Equal(t, "test-session", ev.SessionID)
	}
}
