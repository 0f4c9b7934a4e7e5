// Package scrape runs background jobs that identify, rename and decorate a
// directory of media with NFO and artwork sidecars.
package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/lifecycle"
	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/notify"
	"github.com/Nomadcxx/jellysort/internal/organizer"
)

var (
	ErrJobNotFound = errors.New("scrape job not found")
	ErrJobTerminal = errors.New("scrape job already finished")
	ErrClosed      = errors.New("scrape runner closed")
)

// Store is the slice of the record store scrape jobs need.
type Store interface {
	CreateScrapeJob(ctx context.Context, j *database.ScrapeJob) error
	GetScrapeJob(ctx context.Context, id string) (*database.ScrapeJob, error)
	ListScrapeJobs(ctx context.Context, statuses ...database.JobStatus) ([]*database.ScrapeJob, error)
	SetScrapeJobStatus(ctx context.Context, id string, from, to database.JobStatus, errMsg string) error
	SetScrapeJobCounters(ctx context.Context, id string, c database.Counters) error
	AddScrapeItems(ctx context.Context, jobID string, items []*database.ScrapeItem) (int, error)
	ListScrapeItems(ctx context.Context, jobID string, f database.ItemFilter) ([]*database.ScrapeItem, error)
	UpdateScrapeItem(ctx context.Context, id int64, to lifecycle.Status, upd database.ItemUpdate) (lifecycle.Status, error)
	CountScrapeItems(ctx context.Context, jobID string) (database.Counters, error)
	LogOperation(ctx context.Context, op database.OperationLog) error
}

// Options are stored on the job. Unset sidecar switches take the runner
// defaults when the job is created.
type Options struct {
	organizer.PreviewOptions
	WriteNFO       *bool `json:"write_nfo,omitempty"`
	DownloadImages *bool `json:"download_images,omitempty"`
}

func (o Options) writeNFO() bool       { return o.WriteNFO != nil && *o.WriteNFO }
func (o Options) downloadImages() bool { return o.DownloadImages != nil && *o.DownloadImages }

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner owns the scrape job workers of this process. At most maxConcurrent
// jobs run at once; further jobs wait for a slot.
type Runner struct {
	store      Store
	engine     *organizer.Engine
	sem        *semaphore.Weighted
	client     *http.Client
	notifier   *notify.Manager
	logger     *logging.Logger
	executedBy database.ExecutedBy

	maxConcurrent  int64
	writeNFO       bool
	downloadImages bool

	base     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
}

type Option func(*Runner)

func WithMaxConcurrent(n int) Option {
	return func(r *Runner) { r.maxConcurrent = int64(n) }
}

// WithHTTPClient sets the client used for artwork downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runner) { r.client = c }
}

func WithNotifier(n *notify.Manager) Option {
	return func(r *Runner) { r.notifier = n }
}

func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithSidecars sets the defaults for jobs that do not choose themselves.
func WithSidecars(writeNFO, downloadImages bool) Option {
	return func(r *Runner) {
		r.writeNFO = writeNFO
		r.downloadImages = downloadImages
	}
}

func WithExecutedBy(by database.ExecutedBy) Option {
	return func(r *Runner) { r.executedBy = by }
}

func NewRunner(store Store, engine *organizer.Engine, opts ...Option) *Runner {
	r := &Runner{
		store:         store,
		engine:        engine,
		maxConcurrent: 2,
		writeNFO:      true,
		executedBy:    database.ExecAPI,
		tasks:         make(map[string]*task),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxConcurrent < 1 {
		r.maxConcurrent = 1
	}
	if r.client == nil {
		r.client = &http.Client{Timeout: 30 * time.Second}
	}
	r.sem = semaphore.NewWeighted(r.maxConcurrent)
	r.base, r.shutdown = context.WithCancel(context.Background())
	return r
}

// Create persists a pending job over targetPath. It does not start it.
func (r *Runner) Create(ctx context.Context, targetPath string, opts Options) (*database.ScrapeJob, error) {
	targetPath, err := filepath.Abs(targetPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(targetPath); err != nil {
		return nil, fmt.Errorf("target %s: %w", targetPath, err)
	}

	opts.PreviewOptions = r.engine.Resolve(opts.PreviewOptions)
	if opts.OutputRoot != "" {
		if opts.OutputRoot, err = filepath.Abs(opts.OutputRoot); err != nil {
			return nil, err
		}
	}
	if err := r.engine.CheckTarget(targetPath, opts.OutputRoot); err != nil {
		return nil, err
	}
	if opts.WriteNFO == nil {
		opts.WriteNFO = database.Ptr(r.writeNFO)
	}
	if opts.DownloadImages == nil {
		opts.DownloadImages = database.Ptr(r.downloadImages)
	}

	raw, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	job := &database.ScrapeJob{TargetPath: targetPath, Options: raw}
	if err := r.store.CreateScrapeJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}
	r.logger.Info("scrape", "Job created",
		logging.F("job", job.ID),
		logging.F("target", targetPath))
	return job, nil
}

func (r *Runner) load(ctx context.Context, id string) (*database.ScrapeJob, error) {
	j, err := r.store.GetScrapeJob(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j, err
}

// Start runs a pending job, or re-attaches a worker to one persisted as
// running. Starting a job that already has a worker in this process is a
// no-op.
func (r *Runner) Start(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, ok := r.tasks[id]; ok {
		return nil
	}

	job, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	switch job.Status {
	case database.JobPending:
		if err := r.store.SetScrapeJobStatus(ctx, id, database.JobPending, database.JobRunning, ""); err != nil {
			return fmt.Errorf("start job %s: %w", id, err)
		}
		job.Status = database.JobRunning
	case database.JobRunning:
		r.logger.Info("scrape", "Re-attaching worker", logging.F("job", id))
	default:
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, id, job.Status)
	}

	jobCtx, cancel := context.WithCancel(r.base)
	t := &task{cancel: cancel, done: make(chan struct{})}
	r.tasks[id] = t
	r.wg.Add(1)
	go r.run(jobCtx, job, t)
	return nil
}

// Stop persists the job as cancelled and then signals its worker, which
// stops at the next item boundary.
func (r *Runner) Stop(ctx context.Context, id string) error {
	job, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	switch job.Status {
	case database.JobCancelled:
		return nil
	case database.JobPending, database.JobRunning:
	default:
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, id, job.Status)
	}

	if err := r.store.SetScrapeJobStatus(ctx, id, job.Status, database.JobCancelled, "stopped by request"); err != nil {
		return fmt.Errorf("stop job %s: %w", id, err)
	}

	r.mu.Lock()
	t := r.tasks[id]
	r.mu.Unlock()
	if t != nil {
		t.cancel()
	}
	r.logger.Info("scrape", "Job stopped", logging.F("job", id))
	return nil
}

// Recover resets items interrupted by a crash and re-attaches workers to
// every job persisted as running.
func (r *Runner) Recover(ctx context.Context) (int, error) {
	jobs, err := r.store.ListScrapeJobs(ctx, database.JobRunning)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, job := range jobs {
		if err := r.resetInterrupted(ctx, job.ID); err != nil {
			r.logger.Error("scrape", "Interrupted item reset failed", err, logging.F("job", job.ID))
			continue
		}
		if err := r.Start(ctx, job.ID); err != nil {
			r.logger.Error("scrape", "Job recovery failed", err, logging.F("job", job.ID))
			continue
		}
		started++
	}
	if started > 0 {
		r.logger.Info("scrape", "Recovered running jobs", logging.F("count", started))
	}
	return started, nil
}

// Resume continues one job left running by a crashed process, or starts a
// pending one.
func (r *Runner) Resume(ctx context.Context, id string) error {
	if r.Running(id) {
		return nil
	}
	job, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == database.JobRunning {
		if err := r.resetInterrupted(ctx, id); err != nil {
			return fmt.Errorf("reset interrupted items of %s: %w", id, err)
		}
	}
	return r.Start(ctx, id)
}

// resetInterrupted moves items caught mid-step into their failure state so
// the retry edges pick them up.
func (r *Runner) resetInterrupted(ctx context.Context, jobID string) error {
	items, err := r.store.ListScrapeItems(ctx, jobID, database.ItemFilter{
		Statuses: []lifecycle.Status{lifecycle.StatusScraping, lifecycle.StatusRenaming},
	})
	if err != nil {
		return err
	}
	for _, it := range items {
		to := lifecycle.StatusScrapeFailed
		if it.Status == lifecycle.StatusRenaming {
			if it.ExecutedAt != nil {
				continue
			}
			to = lifecycle.StatusRenameFailed
		}
		_, err := r.store.UpdateScrapeItem(ctx, it.ID, to, database.ItemUpdate{
			ErrorCode:    database.Ptr("interrupted"),
			ErrorMessage: database.Ptr("process stopped while the item was in " + string(it.Status)),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Running reports whether the job has a worker in this process.
func (r *Runner) Running(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[id]
	return ok
}

// Wait blocks until every worker has exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close stops all workers without changing job status, so the next process
// can recover them.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.shutdown()
	r.wg.Wait()
}

// JobSnapshot is the persisted view of one job.
type JobSnapshot struct {
	Job     *database.ScrapeJob     `json:"job"`
	Running bool                   `json:"running"`
	Items   []*database.ScrapeItem `json:"items"`
}

// Status reads the job with its items.
func (r *Runner) Status(ctx context.Context, id string) (*JobSnapshot, error) {
	job, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := r.store.ListScrapeItems(ctx, id, database.ItemFilter{})
	if err != nil {
		return nil, err
	}
	return &JobSnapshot{Job: job, Running: r.Running(id), Items: items}, nil
}

func (r *Runner) run(ctx context.Context, job *database.ScrapeJob, t *task) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.tasks, job.ID)
		r.mu.Unlock()
		t.cancel()
		close(t.done)
	}()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer r.sem.Release(1)

	err := r.process(ctx, job)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		r.logger.Info("scrape", "Job worker stopped", logging.F("job", job.ID))
	default:
		r.logger.Error("scrape", "Job failed", err, logging.F("job", job.ID))
		bg := context.WithoutCancel(ctx)
		if serr := r.store.SetScrapeJobStatus(bg, job.ID, database.JobRunning, database.JobFailed, err.Error()); serr != nil {
			r.logger.Warn("scrape", "Could not mark job failed",
				logging.F("job", job.ID),
				logging.F("error", serr.Error()))
		}
		r.notifier.JobFailed("scrape", job.ID, job.TargetPath, err)
	}
}
