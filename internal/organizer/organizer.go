// Package organizer turns a directory of loosely named media into a batch of
// proposed renames, applies it, and can undo it.
package organizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Nomadcxx/jellysort/internal/activity"
	"github.com/Nomadcxx/jellysort/internal/ai"
	"github.com/Nomadcxx/jellysort/internal/analyzer"
	"github.com/Nomadcxx/jellysort/internal/catalog"
	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/lifecycle"
	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/naming"
	"github.com/Nomadcxx/jellysort/internal/notify"
	"github.com/Nomadcxx/jellysort/internal/transfer"
)

// Store is the slice of the record store the engine needs.
type Store interface {
	CategoryStore
	CreateRenameBatch(ctx context.Context, b *database.RenameBatch, items []*database.RenameItem) error
	GetRenameBatch(ctx context.Context, id string) (*database.RenameBatch, error)
	SetRenameBatchStatus(ctx context.Context, id string, from, to database.BatchStatus, errMsg string) error
	ClaimRenameBatch(ctx context.Context, id string, from database.BatchStatus, seen int64) (int64, error)
	RenameBatchClaim(ctx context.Context, id string) (int64, error)
	AddRenameBatchCounters(ctx context.Context, id string, delta database.Counters) error
	ListRenameItems(ctx context.Context, batchID string, f database.ItemFilter) ([]*database.RenameItem, error)
	UpdateRenameItem(ctx context.Context, id int64, to lifecycle.Status, upd database.ItemUpdate) (lifecycle.Status, error)
	LogOperation(ctx context.Context, op database.OperationLog) error
}

// Engine runs preview, execute and rollback over rename batches.
type Engine struct {
	store      Store
	cfg        Config
	identifier *Identifier
	placer     *Placer
	categories *CategoryCache
	activity   *activity.Logger
	notifier   *notify.Manager
	logger     *logging.Logger
	executedBy database.ExecutedBy

	classifier *ai.Classifier
	catalog    catalog.Catalog
	parser     *naming.CachedParser
	transferer transfer.Transferer
	category   CategoryStrategy

	mu   sync.Mutex
	busy map[string]bool
}

type Option func(*Engine)

func WithClassifier(c *ai.Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

func WithCatalog(c catalog.Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

func WithParser(p *naming.CachedParser) Option {
	return func(e *Engine) { e.parser = p }
}

func WithTransferer(t transfer.Transferer) Option {
	return func(e *Engine) { e.transferer = t }
}

// WithCategory sets the strategy used until one is saved in the store.
func WithCategory(s CategoryStrategy) Option {
	return func(e *Engine) { e.category = s }
}

func WithActivity(a *activity.Logger) Option {
	return func(e *Engine) { e.activity = a }
}

func WithNotifier(n *notify.Manager) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithExecutedBy tags operations-log rows with the caller surface.
func WithExecutedBy(by database.ExecutedBy) Option {
	return func(e *Engine) { e.executedBy = by }
}

func NewEngine(store Store, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		cfg:        cfg,
		executedBy: database.ExecCLI,
		busy:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.BatchSize <= 0 {
		e.cfg.BatchSize = DefaultConfig().BatchSize
	}
	if e.cfg.ParseConcurrency <= 0 {
		e.cfg.ParseConcurrency = DefaultConfig().ParseConcurrency
	}
	if e.cfg.Action == "" {
		e.cfg.Action = transfer.ActionMove
	}
	if e.cfg.Layout.Standard == "" {
		e.cfg.Layout = naming.DefaultLayoutConfig()
	}

	e.categories = NewCategoryCache(store, e.category)
	e.identifier = NewIdentifier(e.cfg, e.parser, e.classifier,
		catalog.NewMatcher(e.catalog, e.logger), e.categories, e.logger)
	e.placer = NewPlacer(e.transferer, e.cfg.Transfer, e.logger)
	return e
}

// Identifier exposes the identification pipeline for scrape jobs.
func (e *Engine) Identifier() *Identifier { return e.identifier }

// Placer exposes the guarded filesystem actions for scrape jobs.
func (e *Engine) Placer() *Placer { return e.placer }

// Categories exposes the category strategy cache.
func (e *Engine) Categories() *CategoryCache { return e.categories }

func (e *Engine) Config() Config { return e.cfg }

// GuardFor builds the path guard of a run over targetPath with output root
// outputRoot. Configured roots win; otherwise the run may touch only its own
// target directory (the parent of a single-file target) and output root.
func (e *Engine) GuardFor(targetPath, outputRoot string) *transfer.Guard {
	if len(e.cfg.AllowedRoots) > 0 {
		return transfer.NewGuard(e.cfg.AllowedRoots...)
	}
	g := transfer.NewGuard(targetDir(targetPath))
	if outputRoot != "" {
		g = g.With(outputRoot)
	}
	return g
}

// targetDir returns targetPath, or its parent when it names a file. A target
// that no longer exists (a moved single file at rollback) is judged by name.
func targetDir(targetPath string) string {
	info, err := os.Stat(targetPath)
	switch {
	case err == nil && !info.IsDir():
		return filepath.Dir(targetPath)
	case err != nil && analyzer.IsVideoFile(targetPath):
		return filepath.Dir(targetPath)
	}
	return targetPath
}

// acquire marks a batch busy for this process.
func (e *Engine) acquire(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy[id] {
		return fmt.Errorf("%w: %s", ErrBatchBusy, id)
	}
	e.busy[id] = true
	return nil
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	delete(e.busy, id)
	e.mu.Unlock()
}

func (e *Engine) loadBatch(ctx context.Context, id string) (*database.RenameBatch, error) {
	b, err := e.store.GetRenameBatch(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	return b, err
}

// checkPaths lists what a new run must be allowed to touch up front.
func checkPaths(targetPath, outputRoot string) []string {
	if outputRoot == "" {
		return []string{targetPath}
	}
	return []string{targetPath, outputRoot}
}

// CheckTarget rejects a run whose target or output root lies outside the
// allowed roots.
func (e *Engine) CheckTarget(targetPath, outputRoot string) error {
	return e.GuardFor(targetPath, outputRoot).Check(checkPaths(targetPath, outputRoot)...)
}

// rootFor returns the directory organized files of targetPath land under.
func rootFor(targetPath, outputRoot string, targetIsDir bool) string {
	if outputRoot != "" {
		return outputRoot
	}
	if targetIsDir {
		return targetPath
	}
	return filepath.Dir(targetPath)
}

func (e *Engine) logOp(ctx context.Context, op database.OperationLog) {
	op.ExecutedBy = e.executedBy
	if err := e.store.LogOperation(ctx, op); err != nil {
		e.logger.Warn("organizer", "Operations log write failed",
			logging.F("batch", op.BatchID),
			logging.F("error", err.Error()))
	}
}

func (e *Engine) logActivity(entry activity.Entry) {
	entry.ExecutedBy = string(e.executedBy)
	if err := e.activity.Log(entry); err != nil {
		e.logger.Warn("organizer", "Activity log write failed", logging.F("error", err.Error()))
	}
}
