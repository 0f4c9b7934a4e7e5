package organizer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/sourcegraph/conc/pool"

	"github.com/Nomadcxx/jellysort/internal/analyzer"
	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/lifecycle"
	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/naming"
	"github.com/Nomadcxx/jellysort/internal/transfer"
)

// PreviewOptions override the engine defaults for one batch. They are stored
// on the batch so execute applies the same settings.
type PreviewOptions struct {
	Algorithm  Algorithm       `json:"algorithm,omitempty"`
	Standard   naming.Standard `json:"standard,omitempty"`
	Action     transfer.Action `json:"action,omitempty"`
	OutputRoot string          `json:"output_root,omitempty"`
	ForceAI    bool            `json:"force_ai,omitempty"`
}

// PreviewResult is the persisted batch and its items.
type PreviewResult struct {
	Batch *database.RenameBatch
	Items []*database.RenameItem
}

// Resolve fills unset options from the engine configuration.
func (e *Engine) Resolve(opts PreviewOptions) PreviewOptions {
	if opts.Algorithm == "" {
		opts.Algorithm = e.cfg.Algorithm
	}
	if opts.Standard == "" {
		opts.Standard = e.cfg.Layout.Standard
	}
	if opts.Action == "" {
		opts.Action = e.cfg.Action
	}
	if opts.OutputRoot == "" {
		opts.OutputRoot = e.cfg.OutputRoot
	}
	return opts
}

// Preview scans targetPath, identifies every media file and persists the
// proposals as a batch in previewing state. Item failures are recorded on
// the item and counted as skipped.
func (e *Engine) Preview(ctx context.Context, targetPath string, opts PreviewOptions) (*PreviewResult, error) {
	targetPath, err := filepath.Abs(targetPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(targetPath)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", targetPath, err)
	}
	opts = e.Resolve(opts)
	if opts.OutputRoot != "" {
		if opts.OutputRoot, err = filepath.Abs(opts.OutputRoot); err != nil {
			return nil, err
		}
	}

	guard := e.GuardFor(targetPath, opts.OutputRoot)
	if err := guard.Check(checkPaths(targetPath, opts.OutputRoot)...); err != nil {
		return nil, err
	}

	files, err := analyzer.ScanMedia(ctx, targetPath)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", targetPath, err)
	}

	root := rootFor(targetPath, opts.OutputRoot, info.IsDir())
	layout := e.cfg.Layout
	layout.Standard = opts.Standard
	idOpts := IdentifyOptions{Algorithm: opts.Algorithm, Layout: layout, ForceAI: opts.ForceAI}

	e.logger.Info("organizer", "Preview started",
		logging.F("target", targetPath),
		logging.F("files", len(files)),
		logging.F("algorithm", string(opts.Algorithm)))

	items := make([]*database.RenameItem, len(files))
	for start := 0; start < len(files); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(files) {
			end = len(files)
		}
		p := pool.New().WithMaxGoroutines(e.cfg.ParseConcurrency)
		for i := start; i < end; i++ {
			i := i
			p.Go(func() {
				items[i] = e.previewItem(ctx, files[i], root, idOpts)
			})
		}
		p.Wait()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	rawOpts, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	batch := &database.RenameBatch{
		TargetPath: targetPath,
		Options:    rawOpts,
		Status:     database.BatchPreviewing,
	}
	batch.Counters.Total = len(items)
	for _, it := range items {
		if it.Status.Failed() {
			batch.Counters.Skipped++
		}
	}
	if err := e.store.CreateRenameBatch(ctx, batch, items); err != nil {
		return nil, fmt.Errorf("persist batch: %w", err)
	}

	e.logger.Info("organizer", "Preview stored",
		logging.F("batch", batch.ID),
		logging.F("items", len(items)),
		logging.F("skipped", batch.Counters.Skipped))
	return &PreviewResult{Batch: batch, Items: items}, nil
}

// previewItem identifies one file. It never panics and never returns nil.
func (e *Engine) previewItem(ctx context.Context, file analyzer.FileInfo, root string, opts IdentifyOptions) (it *database.RenameItem) {
	it = &database.RenameItem{
		OriginalPath: file.Path,
		OriginalName: file.Name,
		Status:       lifecycle.StatusPending,
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("organizer", "Preview item panicked", fmt.Errorf("%v", r),
				logging.F("file", file.Path),
				logging.F("stack", string(debug.Stack())))
			fail(it, itemErr(CodeParseFailure, "identification crashed", fmt.Errorf("%v", r)))
		}
	}()

	if err := advance(it, lifecycle.StatusScanned, lifecycle.StatusMatching); err != nil {
		fail(it, err)
		return it
	}

	id, err := e.identifier.Identify(ctx, file.Path, opts)
	if err != nil {
		fail(it, itemErr(CodeParseFailure, "identification aborted", err))
		return it
	}

	parsed := id.Parsed
	it.Parsed = &parsed
	it.Match = id.Match
	it.OverallConfidence = id.Overall
	it.NeedsConfirmation = id.NeedsConfirmation
	it.ConfirmationReason = id.Reason
	it.NewName = id.File
	it.NewPath = filepath.Join(root, filepath.FromSlash(id.Dir), id.File)

	if sidecars, err := analyzer.FindSidecars(file.Path); err == nil {
		for _, sc := range sidecars {
			it.RelatedFiles = append(it.RelatedFiles, database.RelatedFile{OriginalPath: sc})
		}
	}

	next := lifecycle.StatusMatched
	if id.NeedsConfirmation {
		next = lifecycle.StatusNeedsConfirmation
	}
	if err := advance(it, next); err != nil {
		fail(it, err)
	}
	return it
}

// advance walks an in-memory item through steps, checking every edge.
func advance(it *database.RenameItem, steps ...lifecycle.Status) error {
	for _, s := range steps {
		if err := lifecycle.Assert(it.Status, s); err != nil {
			return err
		}
		it.Status = s
	}
	return nil
}

// fail moves it to rename_failed and records err. An item with no edge to
// rename_failed keeps its status and records the transition error instead.
func fail(it *database.RenameItem, err error) {
	if terr := lifecycle.Assert(it.Status, lifecycle.StatusRenameFailed); terr != nil {
		err = terr
	} else {
		it.Status = lifecycle.StatusRenameFailed
	}
	it.ErrorCode = string(CodeOf(err))
	it.ErrorMessage = err.Error()
}
