package database

import (
	"context"
	"time"
)

// OperationType defines the type of operation performed
type OperationType string

const (
	OpMove     OperationType = "move"
	OpCopy     OperationType = "copy"
	OpHardlink OperationType = "hardlink"
	OpSoftlink OperationType = "softlink"
	OpRollback OperationType = "rollback"
	OpDelete   OperationType = "delete"
	OpSidecar  OperationType = "sidecar"
)

// ExecutedBy defines who/what triggered the operation
type ExecutedBy string

const (
	ExecCLI     ExecutedBy = "cli"
	ExecAPI     ExecutedBy = "api"
	ExecWatcher ExecutedBy = "watcher"
)

// OperationLog is one filesystem change in the audit log.
type OperationLog struct {
	ID            int64
	OperationType OperationType
	BatchID       string
	ItemID        int64
	SourcePath    string
	TargetPath    string
	Reason        string
	Bytes         int64
	ExecutedBy    ExecutedBy
	ExecutedAt    time.Time
}

// LogOperation records an operation in the audit log
func (m *MediaDB) LogOperation(ctx context.Context, op OperationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if op.ExecutedAt.IsZero() {
		op.ExecutedAt = time.Now().UTC()
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO operations_log (
			operation_type, batch_id, item_id, source_path, target_path,
			reason, bytes, executed_by, executed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(op.OperationType), op.BatchID, op.ItemID, op.SourcePath, op.TargetPath,
		op.Reason, op.Bytes, string(op.ExecutedBy), op.ExecutedAt)

	return err
}

// GetRecentOperations returns the most recent operations, optionally limited
// to one batch or job.
func (m *MediaDB) GetRecentOperations(ctx context.Context, batchID string, limit int) ([]OperationLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, operation_type, batch_id, item_id, source_path, target_path,
		       reason, bytes, executed_by, executed_at
		FROM operations_log`
	args := []interface{}{}
	if batchID != "" {
		query += ` WHERE batch_id = ?`
		args = append(args, batchID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []OperationLog
	for rows.Next() {
		var op OperationLog
		var opType, execBy string
		err := rows.Scan(
			&op.ID, &opType, &op.BatchID, &op.ItemID, &op.SourcePath, &op.TargetPath,
			&op.Reason, &op.Bytes, &execBy, &op.ExecutedAt,
		)
		if err != nil {
			return nil, err
		}
		op.OperationType = OperationType(opType)
		op.ExecutedBy = ExecutedBy(execBy)
		ops = append(ops, op)
	}

	return ops, rows.Err()
}

// GetOperationStats returns operation counts by type and the bytes moved.
func (m *MediaDB) GetOperationStats(ctx context.Context) (map[OperationType]int, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, err := m.db.QueryContext(ctx, `
		SELECT operation_type, COUNT(*) FROM operations_log GROUP BY operation_type
	`)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	counts := make(map[OperationType]int)
	for rows.Next() {
		var opType string
		var count int
		if err := rows.Scan(&opType, &count); err != nil {
			return nil, 0, err
		}
		counts[OperationType(opType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	var total int64
	err = m.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(bytes), 0) FROM operations_log WHERE operation_type != ?
	`, string(OpRollback)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	return counts, total, nil
}
