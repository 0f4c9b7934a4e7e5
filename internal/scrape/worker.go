package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/Nomadcxx/jellysort/internal/analyzer"
	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/lifecycle"
	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/naming"
	"github.com/Nomadcxx/jellysort/internal/notify"
	"github.com/Nomadcxx/jellysort/internal/organizer"
	"github.com/Nomadcxx/jellysort/internal/transfer"
)

// jobRun is the per-run state shared by the items of one job.
type jobRun struct {
	job    *database.ScrapeJob
	opts   Options
	guard  *transfer.Guard
	root   string
	idOpts organizer.IdentifyOptions
	placed []string
}

func (r *Runner) newRun(job *database.ScrapeJob) (*jobRun, error) {
	var opts Options
	if len(job.Options) > 0 {
		if err := json.Unmarshal(job.Options, &opts); err != nil {
			return nil, fmt.Errorf("decode job options: %w", err)
		}
	}
	opts.PreviewOptions = r.engine.Resolve(opts.PreviewOptions)

	info, err := os.Stat(job.TargetPath)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", job.TargetPath, err)
	}
	root := opts.OutputRoot
	if root == "" {
		root = job.TargetPath
		if !info.IsDir() {
			root = filepath.Dir(job.TargetPath)
		}
	}

	layout := r.engine.Config().Layout
	layout.Standard = opts.Standard
	return &jobRun{
		job:    job,
		opts:   opts,
		guard:  r.engine.GuardFor(job.TargetPath, opts.OutputRoot),
		root:   root,
		idOpts: organizer.IdentifyOptions{Algorithm: opts.Algorithm, Layout: layout, ForceAI: opts.ForceAI},
	}, nil
}

// process drives a running job to a terminal status. ctx is checked only
// between items.
func (r *Runner) process(ctx context.Context, job *database.ScrapeJob) error {
	run, err := r.newRun(job)
	if err != nil {
		return err
	}

	items, err := r.store.ListScrapeItems(ctx, job.ID, database.ItemFilter{})
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	if len(items) == 0 {
		if items, err = r.scan(ctx, run); err != nil {
			return err
		}
	}

	r.logger.Info("scrape", "Job running",
		logging.F("job", job.ID),
		logging.F("target", job.TargetPath),
		logging.F("items", len(items)))

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.processItem(context.WithoutCancel(ctx), run, it)
		if err := r.recount(context.WithoutCancel(ctx), job.ID); err != nil {
			return err
		}
	}

	counts, err := r.store.CountScrapeItems(ctx, job.ID)
	if err != nil {
		return err
	}
	final := database.JobCompleted
	if counts.Failed > 0 {
		final = database.JobCompletedWithErrors
	}
	err = r.store.SetScrapeJobStatus(ctx, job.ID, database.JobRunning, final, "")
	if errors.Is(err, database.ErrConflict) {
		// Stopped while the last item ran.
		return nil
	}
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}

	r.logger.Info("scrape", "Job finished",
		logging.F("job", job.ID),
		logging.F("status", string(final)),
		logging.F("success", counts.Success),
		logging.F("failed", counts.Failed),
		logging.F("skipped", counts.Skipped))
	r.notifier.JobCompleted("scrape", job.ID, job.TargetPath,
		notify.Counts{Total: counts.Total, Success: counts.Success, Failed: counts.Failed, Skipped: counts.Skipped},
		run.placed)
	return nil
}

func (r *Runner) scan(ctx context.Context, run *jobRun) ([]*database.ScrapeItem, error) {
	files, err := analyzer.ScanMedia(ctx, run.job.TargetPath)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", run.job.TargetPath, err)
	}
	items := make([]*database.ScrapeItem, 0, len(files))
	for _, f := range files {
		items = append(items, &database.ScrapeItem{RenameItem: database.RenameItem{
			OriginalPath: f.Path,
			OriginalName: f.Name,
			Status:       lifecycle.StatusScanned,
		}})
	}
	if _, err := r.store.AddScrapeItems(ctx, run.job.ID, items); err != nil {
		return nil, fmt.Errorf("persist items: %w", err)
	}
	return r.store.ListScrapeItems(ctx, run.job.ID, database.ItemFilter{})
}

func (r *Runner) recount(ctx context.Context, jobID string) error {
	c, err := r.store.CountScrapeItems(ctx, jobID)
	if err != nil {
		return fmt.Errorf("count items: %w", err)
	}
	return r.store.SetScrapeJobCounters(ctx, jobID, c)
}

// processItem takes one item as far as it can go. Failures stay on the item.
func (r *Runner) processItem(ctx context.Context, run *jobRun, it *database.ScrapeItem) {
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("%v", p)
			r.logger.Error("scrape", "Item panicked", err,
				logging.F("item", it.ID),
				logging.F("file", it.OriginalPath),
				logging.F("stack", string(debug.Stack())))
			r.failItem(ctx, it, err)
		}
	}()

	switch it.Status {
	case lifecycle.StatusScrapeFailed:
		if !r.move(ctx, it, lifecycle.StatusScanned, database.ItemUpdate{ClearError: true}) {
			return
		}
		fallthrough
	case lifecycle.StatusScanned:
		if !r.identify(ctx, run, it) {
			return
		}
		fallthrough
	case lifecycle.StatusScraped:
		if !r.move(ctx, it, lifecycle.StatusRenaming, database.ItemUpdate{}) {
			return
		}
		r.place(ctx, run, it, false)
	case lifecycle.StatusRenameFailed:
		if it.NewPath == "" || it.ExecutedAt != nil {
			return
		}
		if !r.move(ctx, it, lifecycle.StatusRenaming, database.ItemUpdate{ClearError: true}) {
			return
		}
		r.place(ctx, run, it, true)
	case lifecycle.StatusRenaming:
		if it.ExecutedAt != nil {
			r.finish(ctx, run, it)
			return
		}
		r.place(ctx, run, it, true)
	}
}

// move persists a transition and mirrors it on it. false means the item was
// failed or left alone.
func (r *Runner) move(ctx context.Context, it *database.ScrapeItem, to lifecycle.Status, upd database.ItemUpdate) bool {
	if _, err := r.store.UpdateScrapeItem(ctx, it.ID, to, upd); err != nil {
		r.logger.Warn("scrape", "Item transition rejected",
			logging.F("item", it.ID),
			logging.F("from", string(it.Status)),
			logging.F("to", string(to)),
			logging.F("error", err.Error()))
		if errors.Is(err, lifecycle.ErrInvalidTransition) {
			r.failItem(ctx, it, err)
		}
		return false
	}
	it.Status = to
	if upd.ClearError {
		it.ErrorCode, it.ErrorMessage = "", ""
	}
	return true
}

// identify runs scanned -> scraping -> scraped, or parks the item in
// needs_confirmation. It reports whether the item may be renamed.
func (r *Runner) identify(ctx context.Context, run *jobRun, it *database.ScrapeItem) bool {
	id, err := r.engine.Identifier().Identify(ctx, it.OriginalPath, run.idOpts)
	if err != nil {
		r.failItem(ctx, it, err)
		return false
	}

	parsed := id.Parsed
	newPath := filepath.Join(run.root, filepath.FromSlash(id.Dir), id.File)
	upd := database.ItemUpdate{
		Parsed:             &parsed,
		Match:              id.Match,
		OverallConfidence:  database.Ptr(id.Overall),
		NeedsConfirmation:  database.Ptr(id.NeedsConfirmation),
		ConfirmationReason: database.Ptr(id.Reason),
		NewPath:            &newPath,
		NewName:            database.Ptr(id.File),
	}
	if sidecars, err := analyzer.FindSidecars(it.OriginalPath); err == nil {
		for _, sc := range sidecars {
			upd.RelatedFiles = append(upd.RelatedFiles, database.RelatedFile{OriginalPath: sc})
		}
	}

	if id.NeedsConfirmation {
		if r.move(ctx, it, lifecycle.StatusMatching, database.ItemUpdate{}) {
			r.move(ctx, it, lifecycle.StatusNeedsConfirmation, upd)
		}
		r.logger.Info("scrape", "Item needs confirmation",
			logging.F("item", it.ID),
			logging.F("file", it.OriginalName),
			logging.F("reason", id.Reason))
		return false
	}

	if !r.move(ctx, it, lifecycle.StatusScraping, database.ItemUpdate{Parsed: &parsed}) {
		return false
	}
	if !r.move(ctx, it, lifecycle.StatusScraped, upd) {
		return false
	}
	it.Parsed, it.Match = &parsed, id.Match
	it.NewPath, it.NewName = newPath, id.File
	it.RelatedFiles = upd.RelatedFiles
	return true
}

// place moves the media file and its sidecars into the library. The item is
// in renaming on entry. A resumed item whose source is gone but whose target
// exists was placed by a run that died before recording it.
func (r *Runner) place(ctx context.Context, run *jobRun, it *database.ScrapeItem, resumed bool) {
	var sidecars []string
	for _, rf := range it.RelatedFiles {
		sidecars = append(sidecars, rf.OriginalPath)
	}

	target := it.NewPath
	action := run.opts.Action
	var bytes int64
	var related []database.RelatedFile

	_, srcErr := os.Stat(it.OriginalPath)
	_, dstErr := os.Stat(it.NewPath)
	if resumed && os.IsNotExist(srcErr) && dstErr == nil {
		r.logger.Info("scrape", "Adopting file already in place",
			logging.F("item", it.ID),
			logging.F("target", it.NewPath))
		related = it.RelatedFiles
	} else {
		placement, err := r.engine.Placer().Place(run.guard, action, it.OriginalPath, it.NewPath, sidecars)
		if err != nil {
			r.failItem(ctx, it, err)
			return
		}
		target = placement.Target
		action = placement.Result.Effective
		bytes = placement.Result.BytesTotal
		related = placement.Sidecars
	}

	upd := database.ItemUpdate{
		NewPath:      database.Ptr(target),
		NewName:      database.Ptr(filepath.Base(target)),
		Action:       database.Ptr(string(action)),
		RelatedFiles: related,
		MarkExecuted: true,
	}
	if _, err := r.store.UpdateScrapeItem(ctx, it.ID, lifecycle.StatusRenaming, upd); err != nil {
		r.logger.Error("scrape", "Could not record placed file", err, logging.F("item", it.ID))
		return
	}
	it.NewPath, it.NewName = target, filepath.Base(target)
	it.Action = string(action)
	it.RelatedFiles = related

	r.logOp(ctx, run.job.ID, it.ID, database.OperationType(action), it.OriginalPath, target, bytes)
	for _, rf := range related {
		if rf.NewPath != "" {
			r.logOp(ctx, run.job.ID, it.ID, database.OpSidecar, rf.OriginalPath, rf.NewPath, 0)
		}
	}
	r.finish(ctx, run, it)
}

// finish writes metadata sidecars next to a placed file and marks it
// renamed. Sidecar failures are logged and do not fail the item.
func (r *Runner) finish(ctx context.Context, run *jobRun, it *database.ScrapeItem) {
	upd := database.ItemUpdate{ClearError: true}
	if run.opts.writeNFO() {
		if path, err := r.writeNFOFile(run, it); err != nil {
			r.logger.Warn("scrape", "NFO not written",
				logging.F("item", it.ID),
				logging.F("error", err.Error()))
		} else if path != "" {
			upd.NFOPath = database.Ptr(path)
		}
	}
	if run.opts.downloadImages() && it.Match != nil {
		dir, stem := artworkBase(run, it)
		if p, err := fetchImage(ctx, r.client, it.Match.PosterURL, dir, stem+"poster"); err != nil {
			r.logger.Warn("scrape", "Poster download failed",
				logging.F("item", it.ID),
				logging.F("error", err.Error()))
		} else if p != "" {
			upd.PosterPath = database.Ptr(p)
		}
		if p, err := fetchImage(ctx, r.client, it.Match.FanartURL, dir, stem+"fanart"); err != nil {
			r.logger.Warn("scrape", "Fanart download failed",
				logging.F("item", it.ID),
				logging.F("error", err.Error()))
		} else if p != "" {
			upd.FanartPath = database.Ptr(p)
		}
	}

	if _, err := r.store.UpdateScrapeItem(ctx, it.ID, lifecycle.StatusRenamed, upd); err != nil {
		r.logger.Error("scrape", "Could not mark item renamed", err, logging.F("item", it.ID))
		return
	}
	it.Status = lifecycle.StatusRenamed
	run.placed = append(run.placed, it.NewPath)
	r.logger.Info("scrape", "Item organized",
		logging.F("item", it.ID),
		logging.F("from", it.OriginalPath),
		logging.F("to", it.NewPath))
}

func (r *Runner) writeNFOFile(run *jobRun, it *database.ScrapeItem) (string, error) {
	var parsed naming.ParsedInfo
	if it.Parsed != nil {
		parsed = *it.Parsed
	}
	nfoPath := strings.TrimSuffix(it.NewPath, filepath.Ext(it.NewPath)) + ".nfo"

	if !parsed.IsEpisodic() {
		data, err := EncodeMovie(&parsed, it.Match)
		if err != nil {
			return "", err
		}
		return nfoPath, keepExisting(writeFileAtomic(nfoPath, data, false))
	}

	data, err := EncodeEpisode(&parsed, it.Match)
	if err != nil {
		return "", err
	}
	if err := keepExisting(writeFileAtomic(nfoPath, data, false)); err != nil {
		return "", err
	}
	show, err := EncodeShow(&parsed, it.Match)
	if err != nil {
		return nfoPath, err
	}
	showPath := filepath.Join(showDir(run, it.NewPath), "tvshow.nfo")
	if err := keepExisting(writeFileAtomic(showPath, show, false)); err != nil {
		r.logger.Warn("scrape", "tvshow.nfo not written",
			logging.F("path", showPath),
			logging.F("error", err.Error()))
	}
	return nfoPath, nil
}

func keepExisting(err error) error {
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	return err
}

// showDir is the series folder of an episode placed at path.
func showDir(run *jobRun, path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(dir)
	specials := run.idOpts.Layout.SpecialsFolder
	if strings.HasPrefix(base, "Season ") || (specials != "" && base == specials) {
		return filepath.Dir(dir)
	}
	return dir
}

// artworkBase returns where artwork of it goes and the file name prefix.
// Items in a folder of their own get plain poster/fanart names; a movie that
// shares its folder gets names prefixed with its stem.
func artworkBase(run *jobRun, it *database.ScrapeItem) (string, string) {
	if it.Parsed != nil && it.Parsed.IsEpisodic() {
		return showDir(run, it.NewPath), ""
	}
	dir := filepath.Dir(it.NewPath)
	if run.idOpts.Layout.CreateMovieFolder {
		return dir, ""
	}
	return dir, analyzer.Stem(filepath.Base(it.NewPath)) + "-"
}

func (r *Runner) failItem(ctx context.Context, it *database.ScrapeItem, err error) {
	to := lifecycle.StatusScrapeFailed
	switch it.Status {
	case lifecycle.StatusRenaming, lifecycle.StatusScraped, lifecycle.StatusMatching:
		to = lifecycle.StatusRenameFailed
	}
	code := organizer.CodeOf(err)
	if _, uerr := r.store.UpdateScrapeItem(ctx, it.ID, to, database.ItemUpdate{
		ErrorCode:    database.Ptr(string(code)),
		ErrorMessage: database.Ptr(err.Error()),
	}); uerr != nil {
		r.logger.Warn("scrape", "Could not record item failure",
			logging.F("item", it.ID),
			logging.F("error", uerr.Error()))
		return
	}
	it.Status = to
	it.ErrorCode, it.ErrorMessage = string(code), err.Error()
	r.logger.Warn("scrape", "Item failed",
		logging.F("item", it.ID),
		logging.F("file", it.OriginalPath),
		logging.F("code", string(code)),
		logging.F("error", err.Error()))
}

func (r *Runner) logOp(ctx context.Context, jobID string, itemID int64, op database.OperationType, src, dst string, bytes int64) {
	err := r.store.LogOperation(ctx, database.OperationLog{
		OperationType: op,
		BatchID:       jobID,
		ItemID:        itemID,
		SourcePath:    src,
		TargetPath:    dst,
		Reason:        "scrape",
		Bytes:         bytes,
		ExecutedBy:    r.executedBy,
	})
	if err != nil {
		r.logger.Warn("scrape", "Operations log write failed",
			logging.F("job", jobID),
			logging.F("error", err.Error()))
	}
}
