package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/scrape"
)

// JobStarter is the part of the scrape runner the trigger drives.
type JobStarter interface {
	Create(ctx context.Context, targetPath string, opts scrape.Options) (*database.ScrapeJob, error)
	Start(ctx context.Context, id string) error
	Running(id string) bool
}

// Trigger turns file events into scrape jobs. Events are grouped by the
// file's directory; a job starts once the directory has been quiet for the
// debounce window. While a job runs over a directory, events below it are
// dropped so the job's own moves do not schedule another run.
type Trigger struct {
	starter  JobStarter
	opts     scrape.Options
	debounce time.Duration
	logger   *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]*time.Timer
	// active maps a directory to its job id; "" while the job is created.
	active map[string]string
	closed bool
}

type TriggerOption func(*Trigger)

func WithDebounce(d time.Duration) TriggerOption {
	return func(t *Trigger) { t.debounce = d }
}

func WithJobOptions(opts scrape.Options) TriggerOption {
	return func(t *Trigger) { t.opts = opts }
}

func WithTriggerLogger(l *logging.Logger) TriggerOption {
	return func(t *Trigger) { t.logger = l }
}

func NewTrigger(starter JobStarter, opts ...TriggerOption) *Trigger {
	t := &Trigger{
		starter:  starter,
		debounce: 10 * time.Second,
		pending:  make(map[string]*time.Timer),
		active:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t
}

func (t *Trigger) HandleFileEvent(event FileEvent) error {
	if event.Type == EventDelete {
		return nil
	}
	dir := filepath.Dir(event.Path)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	if owner := t.busyOwner(event.Path); owner != "" {
		t.logger.Debug("watcher", "Ignoring event inside active job",
			logging.F("path", event.Path),
			logging.F("dir", owner))
		return nil
	}
	t.schedule(dir)
	return nil
}

// schedule (re)arms the timer of dir. Callers hold mu.
func (t *Trigger) schedule(dir string) {
	if timer, ok := t.pending[dir]; ok {
		timer.Stop()
	}
	t.pending[dir] = time.AfterFunc(t.debounce, func() { t.fire(dir) })
}

// busyOwner returns the active directory containing path, pruning jobs
// that have finished. Callers hold mu.
func (t *Trigger) busyOwner(path string) string {
	for dir, id := range t.active {
		if id != "" && !t.starter.Running(id) {
			delete(t.active, dir)
			continue
		}
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return dir
		}
	}
	return ""
}

func (t *Trigger) fire(dir string) {
	t.mu.Lock()
	delete(t.pending, dir)
	if t.closed {
		t.mu.Unlock()
		return
	}
	if id, ok := t.active[dir]; ok && (id == "" || t.starter.Running(id)) {
		t.schedule(dir)
		t.mu.Unlock()
		return
	}
	t.active[dir] = ""
	t.mu.Unlock()

	id, err := t.startJob(dir)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		delete(t.active, dir)
		t.logger.Error("watcher", "Failed to start scrape job", err, logging.F("dir", dir))
		return
	}
	t.active[dir] = id
}

func (t *Trigger) startJob(dir string) (string, error) {
	job, err := t.starter.Create(t.ctx, dir, t.opts)
	if err != nil {
		return "", err
	}
	if err := t.starter.Start(t.ctx, job.ID); err != nil {
		return "", err
	}
	t.logger.Info("watcher", "Scrape job started",
		logging.F("job", job.ID),
		logging.F("dir", dir))
	return job.ID, nil
}

// Pending reports how many directories wait for their debounce window.
func (t *Trigger) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Close drops pending timers. Jobs already started keep running.
func (t *Trigger) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for dir, timer := range t.pending {
		timer.Stop()
		delete(t.pending, dir)
	}
	t.cancel()
}
