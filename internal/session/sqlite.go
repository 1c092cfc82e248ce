// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/essay-engine/pkg/types"
)

const dbFile = "sessions.db"

// SQLiteStore persists checkpoints in a SQLite database at dir/sessions.db.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the session database under dir and creates
// the schema if it does not exist.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			task TEXT NOT NULL,
			plan TEXT NOT NULL DEFAULT '',
			draft TEXT NOT NULL DEFAULT '',
			critique TEXT NOT NULL DEFAULT '',
			revision_number INTEGER NOT NULL,
			max_revisions INTEGER NOT NULL,
			stage TEXT NOT NULL,
			created_at TEXT,
			updated_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS content (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			snippet TEXT NOT NULL,
			PRIMARY KEY (session_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save upserts the session row and rewrites its content snippets in one
// transaction.
func (s *SQLiteStore) Save(ctx context.Context, id string, sess *types.EssaySession) error {
	if id == "" {
		return fmt.Errorf("saving session: empty id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, task, plan, draft, critique, revision_number, max_revisions, stage, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			task=excluded.task, plan=excluded.plan, draft=excluded.draft,
			critique=excluded.critique, revision_number=excluded.revision_number,
			max_revisions=excluded.max_revisions, stage=excluded.stage,
			updated_at=excluded.updated_at`,
		id, sess.Task, sess.Plan, sess.Draft, sess.Critique,
		sess.RevisionNumber, sess.MaxRevisions, string(sess.Stage),
		formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM content WHERE session_id = ? AND position >= ?`, id, len(sess.Content),
	); err != nil {
		return fmt.Errorf("trimming content: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO content (session_id, position, snippet) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, snippet := range sess.Content {
		if _, err := stmt.ExecContext(ctx, id, i, snippet); err != nil {
			return fmt.Errorf("inserting snippet %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Load reads the checkpoint for id, or returns ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*types.EssaySession, error) {
	var (
		sess               types.EssaySession
		stage              string
		createdAt, updated sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, task, plan, draft, critique, revision_number, max_revisions, stage, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Task, &sess.Plan, &sess.Draft, &sess.Critique,
		&sess.RevisionNumber, &sess.MaxRevisions, &stage, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loading session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	sess.Stage = types.Stage(stage)
	if !sess.Stage.Valid() {
		return nil, fmt.Errorf("loading session %s: invalid stage %q", id, stage)
	}
	sess.CreatedAt = parseTime(createdAt.String)
	sess.UpdatedAt = parseTime(updated.String)

	rows, err := s.db.QueryContext(ctx,
		`SELECT snippet FROM content WHERE session_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("loading content for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var snippet string
		if err := rows.Scan(&snippet); err != nil {
			return nil, fmt.Errorf("scanning snippet: %w", err)
		}
		sess.Content = append(sess.Content, snippet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading content for %s: %w", id, err)
	}
	return &sess, nil
}

// List returns summaries of all stored sessions, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.task, s.stage, s.revision_number, s.max_revisions, s.updated_at,
			(SELECT count(*) FROM content c WHERE c.session_id = s.id)
		 FROM sessions s`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum     Summary
			stage   string
			updated sql.NullString
		)
		if err := rows.Scan(&sum.ID, &sum.Task, &stage, &sum.RevisionNumber, &sum.MaxRevisions, &updated, &sum.Snippets); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sum.Stage = types.Stage(stage)
		sum.UpdatedAt = parseTime(updated.String)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	sortSummaries(out)
	return out, nil
}

// Delete removes the session and its content, or returns ErrNotFound.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("deleting session %s: %w", id, ErrNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// sortSummaries orders by UpdatedAt descending, then by ID for stability.
func sortSummaries(s []Summary) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].UpdatedAt.Equal(s[j].UpdatedAt) {
			return s[i].UpdatedAt.After(s[j].UpdatedAt)
		}
		return s[i].ID < s[j].ID
	})
}
