package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/scrape"
	"github.com/Nomadcxx/jellysort/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var (
		flags       runFlags
		debounce    time.Duration
		noRecursive bool
	)

	cmd := &cobra.Command{
		Use:   "watch [dir...]",
		Short: "Run scrape jobs automatically when media lands in watched directories",
		Long: `Watch directories for new media files. Once a directory has been quiet for
the debounce window, a scrape job runs over it.

Without arguments the [watch] dirs from the config file are used.

Examples:
  jellysort watch
  jellysort watch /downloads/complete --output /media --debounce 30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}

			a, err := newApp(database.ExecWatcher)
			if err != nil {
				return err
			}
			defer a.Close()

			dirs := args
			if len(dirs) == 0 {
				dirs = a.cfg.Watch.Dirs
			}
			if len(dirs) == 0 {
				return fmt.Errorf("no watch directories given or configured")
			}
			if debounce <= 0 {
				debounce = time.Duration(a.cfg.Watch.DebounceSeconds) * time.Second
			}

			if err := a.acquireLock(); err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			runner := a.runner(database.ExecWatcher)
			defer runner.Close()
			if _, err := runner.Recover(ctx); err != nil {
				a.logger.Error("watch", "Job recovery failed", err)
			}

			trigger := watcher.NewTrigger(runner,
				watcher.WithDebounce(debounce),
				watcher.WithJobOptions(scrape.Options{PreviewOptions: opts}),
				watcher.WithTriggerLogger(a.logger))
			defer trigger.Close()

			w, err := watcher.NewWatcher(trigger,
				watcher.WithRecursive(!noRecursive),
				watcher.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer w.Close()
			if err := w.Watch(dirs); err != nil {
				return fmt.Errorf("unable to watch directories: %w", err)
			}

			a.logger.Info("watch", "Watching for media",
				logging.F("dirs", dirs),
				logging.F("debounce", debounce.String()),
				logging.F("log_file", a.logger.FilePath()))
			fmt.Printf("Watching %d director(ies). Press Ctrl+C to stop.\n", len(dirs))

			if err := w.Start(ctx); err != nil && !errors.Is(err, ctx.Err()) {
				return err
			}
			a.logger.Info("watch", "Stopped")
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before a directory is processed (default: [watch] debounce_seconds)")
	cmd.Flags().BoolVar(&noRecursive, "no-recursive", false, "watch only the top level of each directory")
	return cmd
}
