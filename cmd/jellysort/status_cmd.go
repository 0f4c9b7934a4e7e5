package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/lifecycle"
	"github.com/Nomadcxx/jellysort/internal/organizer"
	"github.com/Nomadcxx/jellysort/internal/scrape"
	"github.com/Nomadcxx/jellysort/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status [batch-or-job-id]",
		Short: "Show recent batches and jobs, or the items of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(database.ExecCLI)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				return showRecent(ctx, out, a, limit)
			}
			return showOne(ctx, out, a, args[0])
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of batches to list")
	return cmd
}

func showRecent(ctx context.Context, out io.Writer, a *app, limit int) error {
	batches, err := a.db.ListRenameBatches(ctx, limit)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(batches))
	for _, b := range batches {
		rows = append(rows, []string{
			b.ID, string(b.Status), b.TargetPath,
			fmt.Sprintf("%d/%d", b.Counters.Success, b.Counters.Total),
			ui.FormatTime(&b.CreatedAt),
		})
	}
	ui.Section("Batches")
	fmt.Fprintln(out, ui.RenderTable(
		[]string{"ID", "Status", "Target", "Done", "Created"}, rows,
		[]ui.Align{ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignRight, ui.AlignLeft}))

	jobs, err := a.db.ListScrapeJobs(ctx)
	if err != nil {
		return err
	}
	// Newest first, capped like the batches.
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	rows = rows[:0]
	for _, j := range jobs {
		rows = append(rows, []string{
			j.ID, string(j.Status), j.TargetPath,
			fmt.Sprintf("%d/%d", j.Counters.Success, j.Counters.Total),
			ui.FormatTime(j.FinishedAt),
		})
	}
	ui.Section("Scrape jobs")
	fmt.Fprintln(out, ui.RenderTable(
		[]string{"ID", "Status", "Target", "Done", "Finished"}, rows,
		[]ui.Align{ui.AlignLeft, ui.AlignLeft, ui.AlignLeft, ui.AlignRight, ui.AlignLeft}))
	return nil
}

func showOne(ctx context.Context, out io.Writer, a *app, id string) error {
	snap, err := a.engine.Status(ctx, id)
	if err == nil {
		ui.Section("Batch " + id)
		fmt.Fprintf(out, "Status: %s   Target: %s\n", snap.Batch.Status, ui.Path(snap.Batch.TargetPath))
		if snap.Batch.ErrorMessage != "" {
			ui.ErrorMsg("%s", snap.Batch.ErrorMessage)
		}
		fmt.Fprintln(out, ui.CountersTable(snap.Batch.Counters))
		printByStatus(out, snap.ByStatus)
		fmt.Fprintln(out, ui.PreviewTable(snap.Items))
		return nil
	}
	if !errors.Is(err, organizer.ErrBatchNotFound) {
		return err
	}

	r := a.runner(database.ExecCLI)
	defer r.Close()
	job, err := r.Status(ctx, id)
	if errors.Is(err, scrape.ErrJobNotFound) {
		return fmt.Errorf("no batch or scrape job with id %s", id)
	}
	if err != nil {
		return err
	}
	ui.Section("Scrape job " + id)
	fmt.Fprintf(out, "Status: %s   Target: %s\n", job.Job.Status, ui.Path(job.Job.TargetPath))
	if job.Job.ErrorMessage != "" {
		ui.ErrorMsg("%s", job.Job.ErrorMessage)
	}
	fmt.Fprintln(out, ui.CountersTable(job.Job.Counters))
	fmt.Fprintln(out, ui.ScrapeTable(job.Items))
	return nil
}

func printByStatus(out io.Writer, by map[lifecycle.Status]int) {
	statuses := make([]lifecycle.Status, 0, len(by))
	for s := range by {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	for _, s := range statuses {
		fmt.Fprintf(out, "  %-20s %d\n", ui.Status(s), by[s])
	}
}
