package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/surveyops/internal/server"
)

// shutdownTimeout bounds how long in-flight HTTP requests may take once a
// signal arrives.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen   string
	NoExport bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP triggers, the task worker and the export schedule",
		Long: `Run the HTTP triggers, the task worker and the daily partner export.

All three share one database. The worker resets tasks a previous process
left running, then drains due tasks until the process is stopped.

Example:
  surveyops serve --config surveyops.yaml
  surveyops serve --listen :9090 --no-export`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&opts.NoExport, "no-export", false, "do not schedule the daily partner export")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	serverOpts := []server.Option{}
	for name, h := range a.handlers {
		serverOpts = append(serverOpts, server.WithHandler(name, h))
	}
	if a.batcher != nil {
		serverOpts = append(serverOpts, server.WithExporter(a.batcher))
	}
	srv := server.New(a.store, a.engine, serverOpts...)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var scheduler *cron.Cron
	if a.batcher != nil && !opts.NoExport {
		scheduler, err = scheduleExport(ctx, a, cfg.Partner.ExportSchedule)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to schedule export", err)
		}
		scheduler.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("worker: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("http listening", "addr", cfg.Listen)
		if err := srv.Listen(cfg.Listen); err != nil && gctx.Err() == nil {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		if scheduler != nil {
			<-scheduler.Stop().Done()
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	fmt.Fprintf(cmd.OutOrStdout(), "surveyops serving on %s. Press Ctrl-C to stop.\n", cfg.Listen)
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "serve failed", err)
	}
	slog.Info("stopped gracefully")
	return nil
}

// scheduleExport registers the daily export on a cron running in the
// configured start zone.
func scheduleExport(ctx context.Context, a *app, schedule string) (*cron.Cron, error) {
	startZone, _, err := a.cfg.Locations()
	if err != nil {
		return nil, err
	}
	c := cron.New(cron.WithLocation(startZone))
	_, err = c.AddFunc(schedule, func() {
		report, err := a.batcher.Run(ctx)
		if err != nil {
			slog.Error("scheduled export failed", "error", err)
			return
		}
		slog.Info("scheduled export finished",
			"events", report.Events,
			"surveys", report.Surveys,
			"marked", report.Marked,
			"upload_error", report.UploadError,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	slog.Info("partner export scheduled", "schedule", schedule, "zone", startZone.String())
	return c, nil
}
