package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nomadcxx/jellysort/internal/api"
	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/scrape"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API for previews, batches and scrape jobs.

Scrape jobs left running by a previous process are resumed on start.

Examples:
  jellysort serve                       # listen on [server] addr
  jellysort serve --addr 0.0.0.0:9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(database.ExecAPI)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.cfg.ValidateServe(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if err := a.acquireLock(); err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			ctx, cancel := signalContext()
			defer cancel()

			runner := a.runner(database.ExecAPI)
			defer runner.Close()
			return serve(ctx, a, runner, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "address to listen on (default: [server] addr)")
	return cmd
}

// serve runs the API until ctx is cancelled, then drains requests.
func serve(ctx context.Context, a *app, runner *scrape.Runner, addr string) error {
	if n, err := runner.Recover(ctx); err != nil {
		a.logger.Error("serve", "Job recovery failed", err)
	} else if n > 0 {
		fmt.Printf("Resumed %d scrape job(s)\n", n)
	}

	server := api.NewServer(a.engine, runner, a.db, a.cfg.Server,
		api.WithLogger(a.logger),
		api.WithVersion(version))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	fmt.Printf("jellysort API listening on %s\n", addr)
	a.logger.Info("serve", "API server started",
		logging.F("addr", addr),
		logging.F("version", version))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("serve", "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
