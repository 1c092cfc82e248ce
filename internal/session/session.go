// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package session checkpoints EssaySessions so a stopped run can be resumed.
// See docs/ARCHITECTURE § Persistence.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pdiddy/essay-engine/pkg/types"
)

// ErrNotFound is returned by Load when no checkpoint exists for the id.
var ErrNotFound = errors.New("session not found")

// Store saves and loads session checkpoints keyed by session id.
type Store interface {
	Save(ctx context.Context, id string, s *types.EssaySession) error
	Load(ctx context.Context, id string) (*types.EssaySession, error)
}

// Manager is a Store that can also enumerate and remove checkpoints.
// Both MemoryStore and SQLiteStore implement it.
type Manager interface {
	Store
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Store drivers accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Open returns the Manager selected by cfg.Driver. SQLite is the default.
func Open(cfg types.StoreConfig) (Manager, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		dir := cfg.Dir
		if dir == "" {
			dir = "sessions"
		}
		return NewSQLiteStore(dir)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q: use sqlite or memory", cfg.Driver)
	}
}

// Summary is the listing view of a stored session.
type Summary struct {
	ID             string      `json:"id" yaml:"id"`
	Task           string      `json:"task" yaml:"task"`
	Stage          types.Stage `json:"stage" yaml:"stage"`
	RevisionNumber int         `json:"revision_number" yaml:"revision_number"`
	MaxRevisions   int         `json:"max_revisions" yaml:"max_revisions"`
	Snippets       int         `json:"snippets" yaml:"snippets"`
	UpdatedAt      time.Time   `json:"updated_at" yaml:"updated_at"`
}

func summarize(s *types.EssaySession) Summary {
	return Summary{
		ID:             s.ID,
		Task:           s.Task,
		Stage:          s.Stage,
		RevisionNumber: s.RevisionNumber,
		MaxRevisions:   s.MaxRevisions,
		Snippets:       len(s.Content),
		UpdatedAt:      s.UpdatedAt,
	}
}

// MemoryStore keeps checkpoints in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.EssaySession
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*types.EssaySession)}
}

// Save stores a copy of s under id.
func (m *MemoryStore) Save(_ context.Context, id string, s *types.EssaySession) error {
	if id == "" {
		return fmt.Errorf("saving session: empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = s.Clone()
	return nil
}

// Load returns a copy of the checkpoint for id, or ErrNotFound.
func (m *MemoryStore) Load(_ context.Context, id string) (*types.EssaySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("loading session %s: %w", id, ErrNotFound)
	}
	return s.Clone(), nil
}

// List returns summaries of all stored sessions, most recently updated first.
func (m *MemoryStore) List(_ context.Context) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, summarize(s))
	}
	sortSummaries(out)
	return out, nil
}

// Delete removes the checkpoint for id, or returns ErrNotFound.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("deleting session %s: %w", id, ErrNotFound)
	}
	delete(m.sessions, id)
	return nil
}

// Close is a no-op so MemoryStore satisfies the same lifecycle as SQLiteStore.
func (m *MemoryStore) Close() error { return nil }
