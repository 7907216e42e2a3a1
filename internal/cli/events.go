package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/surveyops/internal/eventdef"
)

// NewEventsCommand creates the events command group.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Manage event definitions",
	}
	cmd.AddCommand(newEventsImportCommand(rootOpts))
	return cmd
}

func newEventsImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Validate and store event definitions from a YAML or JSON file",
		Long: `Validate and store event definitions from a YAML or JSON file.

The whole file is validated before anything is written; a file with any
error imports nothing. Existing events are replaced, their results are kept.

Example:
  surveyops events import events.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return importEvents(rootOpts, args[0], cmd)
		},
	}
}

type importResult struct {
	File   string   `json:"file"`
	Events []string `json:"events"`
}

func (r importResult) String() string {
	return fmt.Sprintf("Imported %d events from %s", len(r.Events), r.File)
}

func importEvents(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	events, err := eventdef.LoadFile(path)
	if err != nil {
		var loadErrs eventdef.LoadErrors
		if !errors.As(err, &loadErrs) {
			return WrapExitError(ExitCommandError, "failed to load events", err)
		}
		if fmtErr := out.LoadErrors(loadErrs); fmtErr != nil {
			return fmtErr
		}
		return WrapExitError(ExitFailure, "invalid event file", err)
	}

	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	result := importResult{File: path, Events: make([]string, 0, len(events))}
	for _, e := range events {
		if err := st.PutEvent(cmd.Context(), e); err != nil {
			return WrapExitError(ExitCommandError, "failed to store event", err)
		}
		out.VerboseLog("stored event %s", e.ID)
		result.Events = append(result.Events, e.ID)
	}
	return out.Success(result)
}
