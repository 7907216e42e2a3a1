package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/surveyops/internal/partner"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Run the partner export batch once",
		Long: `Run the partner export batch once, outside the daily schedule.

Every event of the configured brand whose window ended within the export
window is swept; unexported responses are uploaded in one bulk call.

Example:
  surveyops export --config surveyops.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, cmd)
		},
	}
}

type exportReport partner.BatchReport

func (r exportReport) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "Export at %s\n", r.RunAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "  events:   %d\n", r.Events)
	fmt.Fprintf(w, "  surveys:  %d\n", r.Surveys)
	fmt.Fprintf(w, "  vehicles: %d\n", r.Vehicles)
	fmt.Fprintf(w, "  skipped:  %d\n", r.Skipped)
	fmt.Fprintf(w, "  deferred: %d\n", r.Deferred)
	fmt.Fprintf(w, "  marked:   %d\n", r.Marked)
	if r.UploadError != "" {
		fmt.Fprintf(w, "  upload error: %s\n", r.UploadError)
	}
	return nil
}

func runExport(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if !cfg.Partner.Enabled() {
		return NewExitError(ExitCommandError, "partner export is not configured (partner.baseUrl)")
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

	report, err := a.batcher.Run(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "export failed", err)
	}

	if err := opts.formatter(cmd).Success(exportReport(report)); err != nil {
		return err
	}
	if report.UploadError != "" {
		return NewExitError(ExitFailure, "partner upload failed")
	}
	return nil
}
