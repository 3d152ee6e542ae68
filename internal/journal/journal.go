// Package journal keeps a SQLite record of every batch the orchestrator
// dispatched and how far each one got.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/leafo/shelf/internal/action"
)

// Batch status values.
const (
	StatusRunning = "running"
	StatusApplied = "applied"
	StatusFailed  = "failed"
)

// Journal writes batch history into a SQLite database.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the journal database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return New(db), nil
}

// New wraps an existing database handle. The schema must already exist.
func New(db *sql.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// EnsureSchema creates the journal tables if they do not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS batches (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    planned INTEGER NOT NULL,
    applied INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    started_at DATETIME NOT NULL,
    finished_at DATETIME
);
CREATE TABLE IF NOT EXISTS actions (
    batch_id TEXT NOT NULL REFERENCES batches(id),
    seq INTEGER NOT NULL,
    type TEXT NOT NULL,
    path TEXT NOT NULL,
    target TEXT NOT NULL,
    description TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (batch_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_batches_started_at ON batches(started_at);
`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure journal schema: %w", err)
	}
	return nil
}

// BeginBatch records a planned batch and returns its id.
func (j *Journal) BeginBatch(ctx context.Context, planned []action.Action) (string, error) {
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx, `
INSERT INTO batches (id, status, planned, started_at)
VALUES (?, ?, ?, ?)
`, id, StatusRunning, len(planned), j.now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert batch: %w", err)
	}
	return id, nil
}

// RecordAction stores the outcome of the action at position seq.
func (j *Journal) RecordAction(ctx context.Context, batchID string, seq int, a action.Action, actionErr error) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO actions (batch_id, seq, type, path, target, description, error)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, batchID, seq, string(a.Type()), string(a.Key()), a.Target().String(), a.String(), errorText(actionErr)); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert action: %w", err)
	}
	if actionErr == nil {
		if _, err := tx.ExecContext(ctx, `UPDATE batches SET applied = applied + 1 WHERE id = ?`, batchID); err != nil {
			tx.Rollback()
			return fmt.Errorf("update batch progress: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// FinishBatch marks a batch applied, or failed when batchErr is set.
func (j *Journal) FinishBatch(ctx context.Context, batchID string, batchErr error) error {
	status := StatusApplied
	if batchErr != nil {
		status = StatusFailed
	}
	res, err := j.db.ExecContext(ctx, `
UPDATE batches SET status = ?, error = ?, finished_at = ?
WHERE id = ?
`, status, errorText(batchErr), j.now().UTC(), batchID)
	if err != nil {
		return fmt.Errorf("finish batch: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish batch: unknown batch %s", batchID)
	}
	return nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
