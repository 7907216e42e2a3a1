package cli

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/surveyops/internal/model"
)

// TasksOptions holds flags for the tasks command.
type TasksOptions struct {
	*RootOptions
	Status string
	Limit  int
}

// NewTasksCommand creates the tasks command and its drain subcommand.
func NewTasksCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TasksOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List queued tasks",
		Long: `List queued tasks, oldest due first.

Example:
  surveyops tasks
  surveyops tasks --status failed --limit 20`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTasks(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status (pending|running|failed)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum number of tasks")

	cmd.AddCommand(newDrainCommand(rootOpts))
	return cmd
}

type taskList []model.Task

func (l taskList) RenderText(w io.Writer) error {
	if len(l) == 0 {
		fmt.Fprintln(w, "No tasks.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tQUEUE\tSTATUS\tATTEMPTS\tNOT BEFORE\tLAST ERROR")
	for _, t := range l {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			t.ID, t.Queue, t.Status, t.Attempts, t.MaxAttempts,
			t.NotBefore.UTC().Format(time.RFC3339), t.LastError)
	}
	return tw.Flush()
}

func listTasks(opts *TasksOptions, cmd *cobra.Command) error {
	status := model.TaskStatus(opts.Status)
	switch status {
	case "", model.TaskPending, model.TaskRunning, model.TaskFailed:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q", opts.Status))
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	tasks, err := st.ListTasks(cmd.Context(), status, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list tasks", err)
	}
	return opts.formatter(cmd).Success(taskList(tasks))
}

func newDrainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Run every due task once and exit",
		Long: `Run every due task with the configured executors, then exit.

Tasks that fail are rescheduled with backoff as usual. Useful for running
the queue from an external scheduler instead of "surveyops serve".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return drainTasks(rootOpts, cmd)
		},
	}
}

func drainTasks(opts *RootOptions, cmd *cobra.Command) error {
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

	n, err := a.worker.Drain(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "drain failed", err)
	}
	return opts.formatter(cmd).Success(map[string]int{"dispatched": n})
}
