package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle of a rename batch.
type BatchStatus string

const (
	BatchPending             BatchStatus = "pending"
	BatchPreviewing          BatchStatus = "previewing"
	BatchExecuting           BatchStatus = "executing"
	BatchCompleted           BatchStatus = "completed"
	BatchCompletedWithErrors BatchStatus = "completed_with_errors"
	BatchRolledBack          BatchStatus = "rolled_back"
	BatchFailed              BatchStatus = "failed"
)

// Terminal reports whether execute can no longer run on the batch.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchCompleted, BatchCompletedWithErrors, BatchRolledBack, BatchFailed:
		return true
	}
	return false
}

// Counters are the aggregate item outcomes kept on a batch or job row.
type Counters struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// RenameBatch is one preview/execute/rollback run over a target directory.
type RenameBatch struct {
	ID           string
	TargetPath   string
	Options      json.RawMessage
	Status       BatchStatus
	Counters     Counters
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	// Claim counts the executes that took the batch over.
	Claim int64
}

const batchColumns = `id, target_path, options, status, total_items, success_items,
	failed_items, skipped_items, error_message, created_at, updated_at, claim`

// CreateRenameBatch inserts the batch and its items in one transaction.
// Empty batch ids are filled with a fresh uuid; item ids and BatchID are set
// on the passed items.
func (m *MediaDB) CreateRenameBatch(ctx context.Context, b *RenameBatch, items []*RenameItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = BatchPending
	}
	if len(b.Options) == 0 {
		b.Options = json.RawMessage("{}")
	}
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rename_batches (`+batchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.TargetPath, string(b.Options), b.Status,
		b.Counters.Total, b.Counters.Success, b.Counters.Failed, b.Counters.Skipped,
		b.ErrorMessage, b.CreatedAt, b.UpdatedAt, b.Claim,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	for _, it := range items {
		it.BatchID = b.ID
		id, err := insertItem(ctx, tx, renameItems, &ScrapeItem{RenameItem: *it}, now, false)
		if err != nil {
			return err
		}
		it.ID = id
		it.CreatedAt, it.UpdatedAt = now, now
	}

	return tx.Commit()
}

// GetRenameBatch returns ErrNotFound when id is unknown.
func (m *MediaDB) GetRenameBatch(ctx context.Context, id string) (*RenameBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row := m.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM rename_batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	return b, err
}

// ListRenameBatches returns the newest batches first.
func (m *MediaDB) ListRenameBatches(ctx context.Context, limit int) ([]*RenameBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := m.db.QueryContext(ctx, `SELECT `+batchColumns+` FROM rename_batches
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RenameBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SetRenameBatchStatus moves the batch from -> to only if it is still in
// from. Returns ErrConflict when another writer got there first.
func (m *MediaDB) SetRenameBatchStatus(ctx context.Context, id string, from, to BatchStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.db.ExecContext(ctx, `
		UPDATE rename_batches SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, errMsg, time.Now().UTC(), id, from)
	if err != nil {
		return err
	}
	return m.casResult(ctx, res, "rename_batches", id)
}

// ClaimRenameBatch moves the batch from -> executing and bumps its claim,
// but only while the claim is still seen. Of two writers that loaded the same
// row only one wins; the other gets ErrConflict. It returns the new claim.
func (m *MediaDB) ClaimRenameBatch(ctx context.Context, id string, from BatchStatus, seen int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.db.ExecContext(ctx, `
		UPDATE rename_batches SET status = ?, claim = claim + 1, error_message = '', updated_at = ?
		WHERE id = ? AND status = ? AND claim = ?`,
		BatchExecuting, time.Now().UTC(), id, from, seen)
	if err != nil {
		return 0, err
	}
	if err := m.casResult(ctx, res, "rename_batches", id); err != nil {
		return 0, err
	}
	return seen + 1, nil
}

// RenameBatchClaim returns the current claim of a batch.
func (m *MediaDB) RenameBatchClaim(ctx context.Context, id string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var claim int64
	err := m.db.QueryRowContext(ctx, `SELECT claim FROM rename_batches WHERE id = ?`, id).Scan(&claim)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	return claim, err
}

// AddRenameBatchCounters increments the outcome counters of a batch.
func (m *MediaDB) AddRenameBatchCounters(ctx context.Context, id string, delta Counters) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.db.ExecContext(ctx, `
		UPDATE rename_batches SET
			total_items = total_items + ?,
			success_items = success_items + ?,
			failed_items = failed_items + ?,
			skipped_items = skipped_items + ?,
			updated_at = ?
		WHERE id = ?`,
		delta.Total, delta.Success, delta.Failed, delta.Skipped, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteRenameBatch removes the batch; its items go with it.
func (m *MediaDB) DeleteRenameBatch(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.db.ExecContext(ctx, `DELETE FROM rename_batches WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	return nil
}

// casResult turns a zero-row compare-and-set into ErrNotFound or ErrConflict.
// Callers hold m.mu.
func (m *MediaDB) casResult(ctx context.Context, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var status string
	err = m.db.QueryRowContext(ctx, `SELECT status FROM `+table+` WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%s %s is %s: %w", table, id, status, ErrConflict)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBatch(row rowScanner) (*RenameBatch, error) {
	var b RenameBatch
	var opts, status string
	err := row.Scan(
		&b.ID, &b.TargetPath, &opts, &status,
		&b.Counters.Total, &b.Counters.Success, &b.Counters.Failed, &b.Counters.Skipped,
		&b.ErrorMessage, &b.CreatedAt, &b.UpdatedAt, &b.Claim,
	)
	if err != nil {
		return nil, err
	}
	b.Options = json.RawMessage(opts)
	b.Status = BatchStatus(status)
	return &b, nil
}
