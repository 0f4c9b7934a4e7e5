package organizer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/lifecycle"
	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/transfer"
)

// RollbackResult is the aggregate of one rollback sweep.
type RollbackResult struct {
	BatchID  string        `json:"batch_id"`
	Restored int           `json:"restored"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Items    []ItemOutcome `json:"items"`
}

// Rollback moves every executed item back to its original path, newest
// execution first. Item failures are counted and the sweep goes on.
func (e *Engine) Rollback(ctx context.Context, batchID string) (*RollbackResult, error) {
	b, err := e.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status == database.BatchRolledBack {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRolledBack, batchID)
	}
	if err := e.acquire(batchID); err != nil {
		return nil, err
	}
	defer e.release(batchID)

	opts := e.Resolve(batchOptions(b))
	guard := e.GuardFor(b.TargetPath, opts.OutputRoot)
	res := &RollbackResult{BatchID: batchID}

	items, err := e.store.ListRenameItems(ctx, batchID, database.ItemFilter{OnlyExecuted: true})
	if err != nil {
		return nil, fmt.Errorf("load executed items: %w", err)
	}

	var restored []string
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out := e.rollbackItem(ctx, batchID, guard, opts.Action, it)
		switch out.Outcome {
		case OutcomeSuccess:
			res.Restored++
			restored = append(restored, filepath.Dir(it.NewPath))
		case OutcomeFailed:
			res.Failed++
		default:
			res.Skipped++
		}
		res.Items = append(res.Items, out)
	}

	if err := e.store.SetRenameBatchStatus(ctx, batchID, b.Status, database.BatchRolledBack, ""); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return res, fmt.Errorf("%w: %s changed during rollback", ErrBatchBusy, batchID)
		}
		return res, err
	}

	e.logger.Info("organizer", "Batch rolled back",
		logging.F("batch", batchID),
		logging.F("restored", res.Restored),
		logging.F("failed", res.Failed))
	if res.Restored > 0 {
		e.notifier.LibraryRefresh(restored)
	}
	return res, nil
}

func (e *Engine) rollbackItem(ctx context.Context, batchID string, guard *transfer.Guard, fallback transfer.Action, it *database.RenameItem) (out ItemOutcome) {
	out = ItemOutcome{ItemID: it.ID, OriginalPath: it.OriginalPath, NewPath: it.NewPath, Status: it.Status}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.Outcome = OutcomeFailed
			out.ErrorCode = CodeTransferFailed
			out.Error = fmt.Sprintf("rollback crashed: %v", r)
		}
	}()

	action := transfer.Action(it.Action)
	if action == "" {
		action = fallback
	}

	if err := e.placer.Restore(guard, action, it.OriginalPath, it.NewPath); err != nil {
		code := CodeOf(err)
		out.Outcome = OutcomeFailed
		out.ErrorCode = code
		out.Error = err.Error()
		_, _ = e.store.UpdateRenameItem(ctx, it.ID, it.Status, database.ItemUpdate{
			ErrorCode:    database.Ptr(string(code)),
			ErrorMessage: database.Ptr("rollback: " + err.Error()),
		})
		e.logger.Warn("organizer", "Rollback of item failed",
			logging.F("item", it.ID),
			logging.F("code", string(code)),
			logging.F("error", err.Error()))
		e.logActivity(e.activityEntry(it, batchID, "rollback", it.OriginalPath, 0, time.Since(start), err))
		return out
	}

	// Sidecars go back after their media file, last placed first.
	for i := len(it.RelatedFiles) - 1; i >= 0; i-- {
		rf := it.RelatedFiles[i]
		if rf.NewPath == "" {
			continue
		}
		if err := e.placer.Restore(guard, action, rf.OriginalPath, rf.NewPath); err != nil {
			e.logger.Warn("organizer", "Sidecar not restored",
				logging.F("sidecar", rf.NewPath),
				logging.F("error", err.Error()))
		}
	}

	if _, err := e.store.UpdateRenameItem(ctx, it.ID, it.Status, database.ItemUpdate{MarkRolledBack: true}); err != nil {
		e.logger.Error("organizer", "Restored file but could not record it", err, logging.F("item", it.ID))
	}
	e.logOp(ctx, database.OperationLog{
		OperationType: database.OpRollback,
		BatchID:       batchID,
		ItemID:        it.ID,
		SourcePath:    it.NewPath,
		TargetPath:    it.OriginalPath,
		Reason:        string(action),
	})
	e.logActivity(e.activityEntry(it, batchID, "rollback", it.OriginalPath, 0, time.Since(start), nil))

	out.Outcome = OutcomeSuccess
	out.NewPath = it.OriginalPath
	return out
}

// StatusSnapshot is a read-only view of a batch.
type StatusSnapshot struct {
	Batch    *database.RenameBatch    `json:"batch"`
	ByStatus map[lifecycle.Status]int `json:"by_status"`
	Items    []*database.RenameItem   `json:"items"`
}

// Status returns the batch row, its items and a count per item status.
func (e *Engine) Status(ctx context.Context, batchID string) (*StatusSnapshot, error) {
	b, err := e.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	items, err := e.store.ListRenameItems(ctx, batchID, database.ItemFilter{})
	if err != nil {
		return nil, err
	}
	snap := &StatusSnapshot{Batch: b, ByStatus: make(map[lifecycle.Status]int), Items: items}
	for _, it := range items {
		snap.ByStatus[it.Status]++
	}
	return snap, nil
}
