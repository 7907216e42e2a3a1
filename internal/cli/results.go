package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/surveyops/internal/model"
)

// NewResultsCommand creates the results command.
func NewResultsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "results <event-id>",
		Short: "Print an event's aggregated answer counts",
		Long: `Print an event's aggregated answer counts.

Example:
  surveyops results spring-drive
  surveyops results spring-drive --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showResults(rootOpts, args[0], cmd)
		},
	}
}

type resultsView struct {
	EventID string         `json:"eventId"`
	Results *model.Results `json:"results"`
}

func (v resultsView) RenderText(w io.Writer) error {
	r := v.Results
	fmt.Fprintf(w, "Event %s: %d responses\n", v.EventID, r.TotalCount)
	for _, q := range r.SortedQuestions() {
		fmt.Fprintf(w, "\n%s (%d)\n", q, r.QuestionTotal(q))

		buckets := r.Tallies[q]
		answers := make([]string, 0, len(buckets))
		for a := range buckets {
			answers = append(answers, a)
		}
		sort.Slice(answers, func(i, j int) bool {
			if buckets[answers[i]] != buckets[answers[j]] {
				return buckets[answers[i]] > buckets[answers[j]]
			}
			return answers[i] < answers[j]
		})
		for _, a := range answers {
			fmt.Fprintf(w, "  %-30s %d\n", a, buckets[a])
		}
	}
	return nil
}

func showResults(opts *RootOptions, eventID string, cmd *cobra.Command) error {
	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	results, err := st.ReadResults(cmd.Context(), eventID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read results", err)
	}
	if results == nil {
		return NewExitError(ExitFailure, fmt.Sprintf("no results for event %s", eventID))
	}
	return opts.formatter(cmd).Success(resultsView{EventID: eventID, Results: results})
}
