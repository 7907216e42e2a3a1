package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/surveyops/internal/schedule"
	"github.com/roach88/surveyops/internal/store"
)

// NewResponsesCommand creates the responses command group.
func NewResponsesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "responses",
		Short: "Inspect and repair stored responses",
	}
	cmd.AddCommand(newReplayCommand(rootOpts))
	return cmd
}

func newReplayCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <response-id>",
		Short: "Rerun the follow-up pipeline for a stored response",
		Long: `Rerun the follow-up pipeline for a stored response.

Use this when the pipeline failed after the response was stored. Emails and
reporting tasks are enqueued again, so replaying a response whose pipeline
already completed sends its emails twice and counts it twice.

Example:
  surveyops responses replay r-123`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return replayResponse(rootOpts, args[0], cmd)
		},
	}
}

type planView schedule.Plan

func (p planView) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "Response %s (event %s)\n", p.ResponseID, p.EventID)
	if p.PreRegistration {
		fmt.Fprintln(w, "  pre-registration")
	}
	if p.Bootstrapped {
		fmt.Fprintln(w, "  results: bootstrapped")
	}
	if p.UploadError != "" {
		fmt.Fprintf(w, "  upload error: %s\n", p.UploadError)
	}
	if len(p.Tasks) == 0 {
		fmt.Fprintln(w, "  no tasks")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  QUEUE\tTASK\tNOT BEFORE")
	for _, t := range p.Tasks {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", t.Queue, t.TaskID, t.NotBefore.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func replayResponse(opts *RootOptions, id string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
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

	resp, err := a.store.GetResponse(cmd.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitFailure, fmt.Sprintf("response %s not found", id))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read response", err)
	}

	plan, err := a.engine.OnResponseCreated(cmd.Context(), resp)
	if err != nil {
		return WrapExitError(ExitFailure, "replay failed", err)
	}
	return opts.formatter(cmd).Success(planView(plan))
}
