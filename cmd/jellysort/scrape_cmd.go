package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/scrape"
	"github.com/Nomadcxx/jellysort/internal/ui"
)

func newScrapeCmd() *cobra.Command {
	var (
		flags    runFlags
		noNFO    bool
		noImages bool
		resume   string
	)

	cmd := &cobra.Command{
		Use:   "scrape [path]",
		Short: "Identify, rename and decorate media in one unattended job",
		Long: `Run a scrape job over path: every file is identified, moved to its canonical
location and given an .nfo file plus poster and fanart when the catalog has them.
Files that need confirmation are left untouched.

Interrupting the command stops the job at the next file. A job interrupted by a
crash can be continued with --resume.

Examples:
  jellysort scrape /downloads
  jellysort scrape /downloads --output /media --no-images
  jellysort scrape --resume 9b1e...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (resume == "") {
				return fmt.Errorf("give either a path or --resume <job-id>")
			}
			opts, err := flags.options()
			if err != nil {
				return err
			}

			a, err := newApp(database.ExecCLI)
			if err != nil {
				return err
			}
			defer a.Close()

			runner := a.runner(database.ExecCLI)
			defer runner.Close()

			ctx, cancel := signalContext()
			defer cancel()

			started := time.Now()
			id := resume
			if id == "" {
				jobOpts := scrape.Options{PreviewOptions: opts}
				if noNFO {
					jobOpts.WriteNFO = database.Ptr(false)
				}
				if noImages {
					jobOpts.DownloadImages = database.Ptr(false)
				}
				job, err := runner.Create(ctx, args[0], jobOpts)
				if err != nil {
					return err
				}
				id = job.ID
				ui.InfoMsg("Scrape job %s created", ui.Header(id))
			}
			if err := runner.Resume(ctx, id); err != nil {
				return err
			}

			job, err := followJob(ctx, a, runner, id, cmd)
			if err != nil {
				return err
			}

			snap, err := runner.Status(context.Background(), id)
			if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), ui.ScrapeTable(snap.Items))
			}
			report(job.Status == database.JobCompleted, "Job %s %s in %s: %d renamed, %d failed, %d skipped",
				id, job.Status, ui.FormatDuration(time.Since(started)),
				job.Counters.Success, job.Counters.Failed, job.Counters.Skipped)
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVar(&noNFO, "no-nfo", false, "do not write .nfo files")
	cmd.Flags().BoolVar(&noImages, "no-images", false, "do not download poster and fanart")
	cmd.Flags().StringVar(&resume, "resume", "", "continue an interrupted job")
	return cmd
}

// followJob draws progress until the job's worker exits. Cancelling ctx stops
// the job; the worker still finishes the file it is on.
func followJob(ctx context.Context, a *app, runner *scrape.Runner, id string, cmd *cobra.Command) (*database.ScrapeJob, error) {
	done := make(chan struct{})
	go func() {
		runner.Wait()
		close(done)
	}()

	bar := ui.NewProgressBar(cmd.ErrOrStderr(), "scrape")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	update := func() {
		if job, err := a.db.GetScrapeJob(context.Background(), id); err == nil {
			bar.Update(job.Counters)
		}
	}

	interrupt := ctx.Done()
	for {
		select {
		case <-done:
			update()
			bar.Finish()
			return a.db.GetScrapeJob(context.Background(), id)
		case <-ticker.C:
			update()
		case <-interrupt:
			interrupt = nil
			ui.WarningMsg("Stopping job %s after the current file...", id)
			if err := runner.Stop(context.Background(), id); err != nil {
				a.logger.Warn("scrape", "Stop failed", logging.F("job", id), logging.F("error", err.Error()))
			}
		}
	}
}
