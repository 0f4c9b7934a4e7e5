package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/Nomadcxx/jellysort/internal/activity"
	"github.com/Nomadcxx/jellysort/internal/ai"
	"github.com/Nomadcxx/jellysort/internal/catalog"
	"github.com/Nomadcxx/jellysort/internal/config"
	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/naming"
	"github.com/Nomadcxx/jellysort/internal/notify"
	"github.com/Nomadcxx/jellysort/internal/organizer"
	"github.com/Nomadcxx/jellysort/internal/paths"
	"github.com/Nomadcxx/jellysort/internal/scrape"
)

// app holds everything a command needs, built once from the config file.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	db       *database.MediaDB
	notifier *notify.Manager
	activity *activity.Logger
	engine   *organizer.Engine
	metrics  *ai.Metrics
	lock     *flock.Flock
}

const activityRetentionDays = 90

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newApp(by database.ExecutedBy) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Logging
	if verbose {
		logCfg.Level = "debug"
		logCfg.Console = true
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.db, err = database.OpenPath(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	if cfgFile == "" && !config.ConfigExists() {
		logger.Debug("app", "No config file, using defaults")
	}

	if dir, err := paths.ActivityDir(); err == nil {
		if a.activity, err = activity.NewLogger(dir); err != nil {
			logger.Warn("app", "Activity log disabled", logging.F("error", err.Error()))
		} else if err := a.activity.PruneOld(activityRetentionDays); err != nil {
			logger.Warn("app", "Activity prune failed", logging.F("error", err.Error()))
		}
	}

	a.notifier = notify.FromConfig(cfg.Notify, logger)

	a.metrics = &ai.Metrics{}
	classifier, err := ai.FromConfig(cfg.AI, a.metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("unable to configure classifier: %w", err)
	}
	cat, err := catalog.FromConfig(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("unable to configure catalog: %w", err)
	}
	engineCfg, err := organizer.ConfigFrom(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid rename settings: %w", err)
	}

	a.engine = organizer.NewEngine(a.db, engineCfg,
		organizer.WithClassifier(classifier),
		organizer.WithCatalog(cat),
		organizer.WithParser(naming.NewCachedParser(cfg.Rename.ParseCacheSize)),
		organizer.WithCategory(organizer.CategoryFromConfig(cfg.Category)),
		organizer.WithActivity(a.activity),
		organizer.WithNotifier(a.notifier),
		organizer.WithLogger(logger),
		organizer.WithExecutedBy(by),
	)
	ok = true
	return a, nil
}

func (a *app) runner(by database.ExecutedBy) *scrape.Runner {
	return scrape.NewRunner(a.db, a.engine,
		scrape.WithMaxConcurrent(a.cfg.Jobs.MaxConcurrent),
		scrape.WithSidecars(a.cfg.Scrape.WriteNFO, a.cfg.Scrape.DownloadImages),
		scrape.WithNotifier(a.notifier),
		scrape.WithLogger(a.logger),
		scrape.WithExecutedBy(by),
	)
}

// acquireLock takes the single-writer lock next to the database. Only the
// long-running commands hold it.
func (a *app) acquireLock() error {
	lockPath, err := paths.LockPath()
	if err != nil {
		return err
	}
	if a.cfg.Database.Path != "" {
		lockPath = filepath.Join(filepath.Dir(a.cfg.Database.Path), "jellysort.lock")
	}

	a.lock = flock.New(lockPath)
	locked, err := a.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another jellysort process holds %s", lockPath)
	}
	a.logger.Debug("app", "Lock acquired", logging.F("path", lockPath))
	return nil
}

func (a *app) Close() {
	if a.metrics != nil && a.metrics.TotalParsings.Load() > 0 {
		summary := a.metrics.Summary()
		keys := make([]string, 0, len(summary))
		for k := range summary {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]logging.Field, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, logging.F(k, summary[k]))
		}
		a.logger.Debug("app", "Classifier usage", fields...)
	}
	if a.notifier != nil {
		waitNotifier(a.notifier, 5*time.Second)
	}
	if a.activity != nil {
		a.activity.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			a.logger.Warn("app", "Failed to release lock", logging.F("error", err.Error()))
		}
	}
	a.logger.Close()
}

// waitNotifier lets in-flight notifications finish, bounded by d.
func waitNotifier(m *notify.Manager, d time.Duration) {
	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}
