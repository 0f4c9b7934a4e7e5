package organizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Nomadcxx/jellysort/internal/activity"
	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/lifecycle"
	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/naming"
	"github.com/Nomadcxx/jellysort/internal/notify"
	"github.com/Nomadcxx/jellysort/internal/transfer"
)

// ItemOutcome is the per-item line of an execute or rollback report.
type ItemOutcome struct {
	ItemID       int64            `json:"item_id"`
	OriginalPath string           `json:"original_path"`
	NewPath      string           `json:"new_path,omitempty"`
	Status       lifecycle.Status `json:"status"`
	Outcome      string           `json:"outcome"` // success, failed, skipped
	ErrorCode    ErrorCode        `json:"error_code,omitempty"`
	Error        string           `json:"error,omitempty"`
}

const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// ExecuteResult is the aggregate of one execute run.
type ExecuteResult struct {
	BatchID string               `json:"batch_id"`
	Status  database.BatchStatus `json:"status"`
	Success int                  `json:"success"`
	Failed  int                  `json:"failed"`
	Skipped int                  `json:"skipped"`
	Items   []ItemOutcome        `json:"items"`
}

func (r *ExecuteResult) add(o ItemOutcome) {
	switch o.Outcome {
	case OutcomeSuccess:
		r.Success++
	case OutcomeFailed:
		r.Failed++
	default:
		r.Skipped++
	}
	r.Items = append(r.Items, o)
}

func batchOptions(b *database.RenameBatch) PreviewOptions {
	var opts PreviewOptions
	if len(b.Options) > 0 {
		_ = json.Unmarshal(b.Options, &opts)
	}
	return opts
}

// Execute applies a previewed batch. overrides maps an original path to a new
// file name; an empty name accepts the proposal as is. Overrides also promote
// needs_confirmation items so they take part in the run.
func (e *Engine) Execute(ctx context.Context, batchID string, overrides map[string]string) (*ExecuteResult, error) {
	b, err := e.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrBatchTerminal, batchID, b.Status)
	}
	if err := e.acquire(batchID); err != nil {
		return nil, err
	}
	defer e.release(batchID)

	// A batch left in executing by a crash resumes where it stopped. The claim
	// keeps two processes from resuming it together.
	claim, err := e.store.ClaimRenameBatch(ctx, batchID, b.Status, b.Claim)
	if err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrBatchBusy, batchID)
		}
		return nil, err
	}
	b.Claim = claim

	res, err := e.execute(ctx, b, overrides)
	if errors.Is(err, ErrBatchBusy) {
		e.logger.Warn("organizer", "Batch taken over by another execute", logging.F("batch", batchID))
		return res, err
	}
	if err != nil {
		if serr := e.store.SetRenameBatchStatus(context.WithoutCancel(ctx), batchID,
			database.BatchExecuting, database.BatchFailed, err.Error()); serr != nil {
			e.logger.Error("organizer", "Failed to mark batch failed", serr, logging.F("batch", batchID))
		}
		e.notifier.JobFailed("batch", batchID, b.TargetPath, err)
		return res, err
	}
	return res, nil
}

// holdsClaim fails with ErrBatchBusy once another execute has claimed b.
func (e *Engine) holdsClaim(ctx context.Context, b *database.RenameBatch) error {
	claim, err := e.store.RenameBatchClaim(ctx, b.ID)
	if err != nil {
		return err
	}
	if claim != b.Claim {
		return fmt.Errorf("%w: %s was claimed by another execute", ErrBatchBusy, b.ID)
	}
	return nil
}

func (e *Engine) execute(ctx context.Context, b *database.RenameBatch, overrides map[string]string) (*ExecuteResult, error) {
	opts := e.Resolve(batchOptions(b))
	guard := e.GuardFor(b.TargetPath, opts.OutputRoot)
	res := &ExecuteResult{BatchID: b.ID}

	items, err := e.store.ListRenameItems(ctx, b.ID, database.ItemFilter{})
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	var placed []string
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := e.holdsClaim(ctx, b); err != nil {
			return res, err
		}
		if !e.prepareItem(ctx, it, overrides) {
			continue
		}
		out := e.executeItem(ctx, b.ID, guard, opts.Action, it)
		if out.Outcome == OutcomeSuccess {
			placed = append(placed, out.NewPath)
		}
		res.add(out)
	}

	if err := e.holdsClaim(ctx, b); err != nil {
		return res, err
	}

	delta := database.Counters{Success: res.Success, Failed: res.Failed, Skipped: res.Skipped}
	if err := e.store.AddRenameBatchCounters(ctx, b.ID, delta); err != nil {
		return res, fmt.Errorf("update counters: %w", err)
	}

	res.Status = database.BatchCompleted
	if res.Failed > 0 {
		res.Status = database.BatchCompletedWithErrors
	}
	if err := e.store.SetRenameBatchStatus(ctx, b.ID, database.BatchExecuting, res.Status, ""); err != nil {
		return res, fmt.Errorf("finish batch: %w", err)
	}

	e.logger.Info("organizer", "Batch executed",
		logging.F("batch", b.ID),
		logging.F("status", string(res.Status)),
		logging.F("success", res.Success),
		logging.F("failed", res.Failed),
		logging.F("skipped", res.Skipped))
	e.notifier.JobCompleted("batch", b.ID, b.TargetPath,
		notify.Counts{Total: b.Counters.Total, Success: res.Success, Failed: res.Failed, Skipped: res.Skipped},
		placed)
	return res, nil
}

// prepareItem applies overrides and crash recovery, and reports whether the
// item should be executed.
func (e *Engine) prepareItem(ctx context.Context, it *database.RenameItem, overrides map[string]string) bool {
	name, overridden := overrides[it.OriginalPath]

	switch it.Status {
	case lifecycle.StatusRenaming:
		if it.ExecutedAt != nil {
			// The file was placed but the final write was lost.
			if _, err := e.store.UpdateRenameItem(ctx, it.ID, lifecycle.StatusRenamed, database.ItemUpdate{}); err != nil {
				e.logger.Warn("organizer", "Could not settle interrupted item",
					logging.F("item", it.ID), logging.F("error", err.Error()))
			}
			return false
		}
		upd := database.ItemUpdate{
			ErrorCode:    database.Ptr(string(CodeTransferFailed)),
			ErrorMessage: database.Ptr("interrupted before the file was placed"),
		}
		if _, err := e.store.UpdateRenameItem(ctx, it.ID, lifecycle.StatusRenameFailed, upd); err != nil {
			return false
		}
		it.Status = lifecycle.StatusRenameFailed
		return true
	case lifecycle.StatusRenameFailed:
		// Only items that already reached a proposal are retried.
		return it.NewPath != "" && it.ExecutedAt == nil
	case lifecycle.StatusMatched, lifecycle.StatusParsed:
		if overridden && name != "" {
			e.applyOverride(ctx, it, it.Status, name)
		}
		return true
	case lifecycle.StatusNeedsConfirmation:
		if !overridden {
			return false
		}
		return e.applyOverride(ctx, it, lifecycle.StatusParsed, name)
	default:
		return false
	}
}

func (e *Engine) applyOverride(ctx context.Context, it *database.RenameItem, to lifecycle.Status, name string) bool {
	upd := database.ItemUpdate{NeedsConfirmation: database.Ptr(false)}
	if name = strings.TrimSpace(name); name != "" {
		name = naming.Sanitize(filepath.Base(name))
		if filepath.Ext(name) == "" {
			name += strings.ToLower(filepath.Ext(it.OriginalPath))
		}
		dir := filepath.Dir(it.NewPath)
		if it.NewPath == "" {
			dir = filepath.Dir(it.OriginalPath)
		}
		newPath := filepath.Join(dir, name)
		upd.NewName = &name
		upd.NewPath = &newPath
		it.NewName, it.NewPath = name, newPath
	}
	if _, err := e.store.UpdateRenameItem(ctx, it.ID, to, upd); err != nil {
		e.logger.Warn("organizer", "Override rejected",
			logging.F("item", it.ID),
			logging.F("error", err.Error()))
		return false
	}
	it.Status = to
	it.NeedsConfirmation = false
	return true
}

// executeItem places one file. Every failure stays inside the item.
func (e *Engine) executeItem(ctx context.Context, batchID string, guard *transfer.Guard, action transfer.Action, it *database.RenameItem) (out ItemOutcome) {
	out = ItemOutcome{ItemID: it.ID, OriginalPath: it.OriginalPath, NewPath: it.NewPath, Status: it.Status}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := itemErr(CodeTransferFailed, "execute crashed", fmt.Errorf("%v", r))
			e.logger.Error("organizer", "Execute item panicked", err, logging.F("item", it.ID))
			out = e.failItem(ctx, it, err)
		}
	}()

	if it.NewPath == "" {
		return e.failItem(ctx, it, itemErr(CodeParseFailure, "no target name", nil))
	}
	if filepath.Clean(it.NewPath) == filepath.Clean(it.OriginalPath) {
		if _, err := e.store.UpdateRenameItem(ctx, it.ID, lifecycle.StatusRenaming, database.ItemUpdate{}); err == nil {
			_, _ = e.store.UpdateRenameItem(ctx, it.ID, lifecycle.StatusRenamed, database.ItemUpdate{ClearError: true})
			out.Status = lifecycle.StatusRenamed
		}
		out.Outcome = OutcomeSkipped
		return out
	}

	if _, err := e.store.UpdateRenameItem(ctx, it.ID, lifecycle.StatusRenaming, database.ItemUpdate{}); err != nil {
		// The item moved under us; leave it to whoever owns it.
		out.Outcome = OutcomeFailed
		out.ErrorCode = CodeOf(err)
		out.Error = err.Error()
		return out
	}
	it.Status = lifecycle.StatusRenaming

	var sidecars []string
	for _, rf := range it.RelatedFiles {
		sidecars = append(sidecars, rf.OriginalPath)
	}
	placement, err := e.placer.Place(guard, action, it.OriginalPath, it.NewPath, sidecars)
	if err != nil {
		return e.failItem(ctx, it, err)
	}

	upd := database.ItemUpdate{
		NewPath:      database.Ptr(placement.Target),
		NewName:      database.Ptr(filepath.Base(placement.Target)),
		Action:       database.Ptr(string(placement.Result.Effective)),
		RelatedFiles: placement.Sidecars,
		MarkExecuted: true,
		ClearError:   true,
	}
	if _, err := e.store.UpdateRenameItem(ctx, it.ID, lifecycle.StatusRenamed, upd); err != nil {
		e.logger.Error("organizer", "Placed file but could not record it", err,
			logging.F("item", it.ID),
			logging.F("target", placement.Target))
		out.Outcome = OutcomeFailed
		out.ErrorCode = CodeOf(err)
		out.Error = err.Error()
		return out
	}

	e.logOp(ctx, database.OperationLog{
		OperationType: database.OperationType(placement.Result.Effective),
		BatchID:       batchID,
		ItemID:        it.ID,
		SourcePath:    it.OriginalPath,
		TargetPath:    placement.Target,
		Bytes:         placement.Result.BytesTotal,
	})
	for _, sc := range placement.Sidecars {
		if sc.NewPath != "" {
			e.logOp(ctx, database.OperationLog{
				OperationType: database.OpSidecar,
				BatchID:       batchID,
				ItemID:        it.ID,
				SourcePath:    sc.OriginalPath,
				TargetPath:    sc.NewPath,
				Reason:        string(placement.Result.Effective),
			})
		}
	}
	e.logActivity(e.activityEntry(it, batchID, string(placement.Result.Effective), placement.Target,
		placement.Result.BytesTotal, time.Since(start), nil))

	out.NewPath = placement.Target
	out.Status = lifecycle.StatusRenamed
	out.Outcome = OutcomeSuccess
	return out
}

func (e *Engine) failItem(ctx context.Context, it *database.RenameItem, err error) ItemOutcome {
	code := CodeOf(err)
	out := ItemOutcome{
		ItemID:       it.ID,
		OriginalPath: it.OriginalPath,
		NewPath:      it.NewPath,
		Status:       lifecycle.StatusRenameFailed,
		Outcome:      OutcomeFailed,
		ErrorCode:    code,
		Error:        err.Error(),
	}
	upd := database.ItemUpdate{
		ErrorCode:    database.Ptr(string(code)),
		ErrorMessage: database.Ptr(err.Error()),
	}
	if _, uerr := e.store.UpdateRenameItem(ctx, it.ID, lifecycle.StatusRenameFailed, upd); uerr != nil {
		e.logger.Warn("organizer", "Could not record item failure",
			logging.F("item", it.ID),
			logging.F("error", uerr.Error()))
		out.Status = it.Status
	}
	e.logger.Warn("organizer", "Item failed",
		logging.F("item", it.ID),
		logging.F("file", it.OriginalPath),
		logging.F("code", string(code)),
		logging.F("error", err.Error()))
	e.logActivity(e.activityEntry(it, it.BatchID, "rename", it.NewPath, 0, 0, err))
	return out
}

func (e *Engine) activityEntry(it *database.RenameItem, batchID, action, target string, bytes int64, took time.Duration, err error) activity.Entry {
	entry := activity.Entry{
		Action:     action,
		BatchID:    batchID,
		ItemID:     it.ID,
		Source:     it.OriginalPath,
		Target:     target,
		Success:    err == nil,
		Bytes:      bytes,
		DurationMs: took.Milliseconds(),
	}
	if it.Parsed != nil {
		entry.MediaType = string(it.Parsed.MediaType)
		entry.ParseMethod = activity.MethodFor(string(it.Parsed.Source))
		entry.ParsedTitle = it.Parsed.Title
		entry.ParsedYear = it.Parsed.Year
	}
	if it.Match != nil {
		entry.ExternalID = it.Match.ExternalID
	}
	if it.OverallConfidence > 0 {
		c := it.OverallConfidence
		entry.Confidence = &c
	}
	if err != nil {
		entry.Error = err.Error()
	}
	return entry
}
