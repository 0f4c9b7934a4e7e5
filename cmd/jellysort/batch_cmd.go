package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/naming"
	"github.com/Nomadcxx/jellysort/internal/organizer"
	"github.com/Nomadcxx/jellysort/internal/transfer"
	"github.com/Nomadcxx/jellysort/internal/ui"
)

// runFlags are the per-run overrides shared by preview and scrape.
type runFlags struct {
	algorithm string
	standard  string
	action    string
	output    string
	forceAI   bool
}

func (f *runFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.algorithm, "algorithm", "a", "", "identification algorithm: standard, ai_enhanced, ai_only")
	cmd.Flags().StringVarP(&f.standard, "standard", "s", "", "naming standard: emby, jellyfin, plex, kodi")
	cmd.Flags().StringVar(&f.action, "action", "", "file operation: move, copy, hardlink, softlink")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output root (default: organize in place)")
	cmd.Flags().BoolVar(&f.forceAI, "force-ai", false, "consult the AI classifier for every file")
}

func (f *runFlags) options() (organizer.PreviewOptions, error) {
	opts := organizer.PreviewOptions{OutputRoot: f.output, ForceAI: f.forceAI}
	var err error
	if f.algorithm != "" {
		if opts.Algorithm, err = organizer.ParseAlgorithm(f.algorithm); err != nil {
			return opts, err
		}
	}
	if f.standard != "" {
		if opts.Standard, err = naming.ParseStandard(f.standard); err != nil {
			return opts, err
		}
	}
	if f.action != "" {
		if opts.Action, err = transfer.ParseAction(f.action); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newPreviewCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "preview <path>",
		Short: "Identify media under path and store the proposed renames as a batch",
		Long: `Scan path (a file or a directory), identify every media file and store the
proposals as a batch. Nothing on disk changes until the batch is executed.

Examples:
  jellysort preview /downloads
  jellysort preview /downloads/Show.S01E02.mkv --standard plex
  jellysort preview /downloads --output /media --action hardlink`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}

			a, err := newApp(database.ExecCLI)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			res, err := a.engine.Preview(ctx, args[0], opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.PreviewTable(res.Items))
			fmt.Fprintln(out, ui.CountersTable(res.Batch.Counters))
			ui.InfoMsg("Batch %s stored. Run %s to apply it.",
				ui.Header(res.Batch.ID), ui.Path("jellysort execute "+res.Batch.ID))
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func newExecuteCmd() *cobra.Command {
	var (
		yes     bool
		renames []string
		accept  []string
	)

	cmd := &cobra.Command{
		Use:   "execute <batch-id>",
		Short: "Apply a previewed batch",
		Long: `Apply the renames of a previewed batch. Items that need confirmation are
skipped unless accepted or renamed explicitly.

Examples:
  jellysort execute 5f0c...
  jellysort execute 5f0c... --accept "/downloads/Odd.Name.mkv"
  jellysort execute 5f0c... --rename "/downloads/Odd.Name.mkv=Film (2001).mkv"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseOverrides(renames, accept)
			if err != nil {
				return err
			}

			a, err := newApp(database.ExecCLI)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			snap, err := a.engine.Status(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.PreviewTable(snap.Items))
			if !yes && !ui.Confirm(cmd.InOrStdin(), out, fmt.Sprintf("Apply batch %s?", args[0])) {
				ui.WarningMsg("Aborted")
				return nil
			}

			res, err := a.engine.Execute(ctx, args[0], overrides)
			if res != nil {
				fmt.Fprintln(out, ui.OutcomeTable(res.Items))
			}
			if err != nil {
				return err
			}
			report(res.Status == database.BatchCompleted, "Batch %s: %d applied, %d failed, %d skipped",
				args[0], res.Success, res.Failed, res.Skipped)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().StringArrayVar(&renames, "rename", nil, `override a proposal: "original-path=new-file-name"`)
	cmd.Flags().StringArrayVar(&accept, "accept", nil, "accept a proposal that needs confirmation")
	return cmd
}

// parseOverrides turns --rename and --accept flags into the map Execute
// takes. Paths are made absolute to match the stored items.
func parseOverrides(renames, accept []string) (map[string]string, error) {
	overrides := make(map[string]string, len(renames)+len(accept))
	for _, p := range accept {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		overrides[abs] = ""
	}
	for _, r := range renames {
		i := strings.LastIndex(r, "=")
		if i <= 0 || i == len(r)-1 {
			return nil, fmt.Errorf("invalid --rename %q: want original-path=new-file-name", r)
		}
		abs, err := filepath.Abs(r[:i])
		if err != nil {
			return nil, err
		}
		overrides[abs] = r[i+1:]
	}
	return overrides, nil
}

func newRollbackCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rollback <batch-id>",
		Short: "Move every file of an executed batch back where it came from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(database.ExecCLI)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			out := cmd.OutOrStdout()
			if !yes && !ui.Confirm(cmd.InOrStdin(), out, fmt.Sprintf("Roll back batch %s?", args[0])) {
				ui.WarningMsg("Aborted")
				return nil
			}

			res, err := a.engine.Rollback(ctx, args[0])
			if res != nil {
				fmt.Fprintln(out, ui.OutcomeTable(res.Items))
			}
			if err != nil {
				return err
			}
			report(res.Failed == 0, "Batch %s: %d restored, %d failed, %d skipped",
				args[0], res.Restored, res.Failed, res.Skipped)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func report(ok bool, format string, args ...interface{}) {
	if ok {
		ui.SuccessMsg(format, args...)
		return
	}
	ui.WarningMsg(format, args...)
}
