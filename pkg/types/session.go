// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the essay-engine pipeline.
// See docs/ARCHITECTURE.md § Session State, § Configuration.
package types

import (
	"fmt"
	"slices"
	"time"
)

// Stage names one step of the essay pipeline. An empty Stage runs as StagePlan.
type Stage string

const (
	StagePlan             Stage = "plan"
	StageResearchPlan     Stage = "research_plan"
	StageGenerate         Stage = "generate"
	StageReflect          Stage = "reflect"
	StageResearchCritique Stage = "research_critique"
	StageEnd              Stage = "end"
)

// Stages lists the executable stages in the order they first run.
var Stages = []Stage{
	StagePlan,
	StageResearchPlan,
	StageGenerate,
	StageReflect,
	StageResearchCritique,
}

// Valid reports whether s is a known stage, including StageEnd.
func (s Stage) Valid() bool {
	return s == StageEnd || slices.Contains(Stages, s)
}

// EssaySession is the mutable record threaded through every stage of one run.
type EssaySession struct {
	// ID identifies the session for checkpointing and resume.
	ID string `json:"id" yaml:"id"`

	// Task is the essay topic. It does not change after creation.
	Task string `json:"task" yaml:"task"`

	// Plan is the outline written by the planning stage.
	Plan string `json:"plan" yaml:"plan"`

	// Draft is the current essay text, overwritten by every generate stage.
	Draft string `json:"draft" yaml:"draft"`

	// Critique is the latest reviewer feedback, overwritten by every reflect stage.
	Critique string `json:"critique" yaml:"critique"`

	// Content accumulates research snippets across all research stages.
	// It is only ever appended to.
	Content []string `json:"content" yaml:"content"`

	// RevisionNumber counts completed generate stages, offset by its starting value.
	RevisionNumber int `json:"revision_number" yaml:"revision_number"`

	// MaxRevisions bounds the draft/critique loop.
	MaxRevisions int `json:"max_revisions" yaml:"max_revisions"`

	// Stage is the next stage to execute. StageEnd once the run has finished.
	Stage Stage `json:"stage" yaml:"stage"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// SessionInput holds the caller-supplied parameters for a new session.
type SessionInput struct {
	Task           string `json:"task" yaml:"task"`
	MaxRevisions   int    `json:"max_revisions" yaml:"max_revisions"`
	RevisionNumber int    `json:"revision_number,omitempty" yaml:"revision_number,omitempty"`
}

// NewSession validates in and returns a session positioned at StagePlan.
// RevisionNumber defaults to 1 when zero.
func NewSession(id string, in SessionInput) (*EssaySession, error) {
	if in.Task == "" {
		return nil, fmt.Errorf("task is empty: provide an essay topic")
	}
	if in.MaxRevisions < 1 {
		return nil, fmt.Errorf("max revisions must be at least 1, got %d", in.MaxRevisions)
	}
	rev := in.RevisionNumber
	if rev == 0 {
		rev = 1
	}
	if rev < 1 {
		return nil, fmt.Errorf("revision number must be at least 1, got %d", rev)
	}
	if rev > in.MaxRevisions {
		return nil, fmt.Errorf("revision number %d exceeds max revisions %d", rev, in.MaxRevisions)
	}
	now := time.Now().UTC()
	return &EssaySession{
		ID:             id,
		Task:           in.Task,
		RevisionNumber: rev,
		MaxRevisions:   in.MaxRevisions,
		Stage:          StagePlan,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Done reports whether the run has reached StageEnd.
func (s *EssaySession) Done() bool {
	return s.Stage == StageEnd
}

// Clone returns a deep copy so checkpoints never alias the live Content slice.
func (s *EssaySession) Clone() *EssaySession {
	c := *s
	if s.Content != nil {
		c.Content = append([]string(nil), s.Content...)
	}
	return &c
}
