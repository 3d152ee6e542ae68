package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BatchSummary is one row of batch history.
type BatchSummary struct {
	ID         string
	Status     string
	Planned    int
	Applied    int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// ActionRecord is one dispatched action of a batch.
type ActionRecord struct {
	Seq         int
	Type        string
	Path        string
	Target      string
	Description string
	Error       string
}

// Batches returns the most recent batches, newest first. A limit of zero
// or less returns all of them.
func (j *Journal) Batches(ctx context.Context, limit int) ([]BatchSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, status, planned, applied, error, started_at, finished_at
FROM batches
ORDER BY started_at DESC, rowid DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []BatchSummary
	for rows.Next() {
		var b BatchSummary
		var finished sql.NullTime
		if err := rows.Scan(&b.ID, &b.Status, &b.Planned, &b.Applied, &b.Error, &b.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			b.FinishedAt = &t
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}

	return batches, nil
}

// Actions returns the recorded actions of a batch in dispatch order.
func (j *Journal) Actions(ctx context.Context, batchID string) ([]ActionRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT seq, type, path, target, description, error
FROM actions
WHERE batch_id = ?
ORDER BY seq
`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var records []ActionRecord
	for rows.Next() {
		var r ActionRecord
		if err := rows.Scan(&r.Seq, &r.Type, &r.Path, &r.Target, &r.Description, &r.Error); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}

	return records, nil
}
