package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/surveyops/internal/eventdef"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // outcome failed: invalid event file, partner upload error, unknown response
	ExitCommandError = 2 // setup failed: config, database or zones
)

// ExitError carries the process exit code out of a command's RunE.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code of the first ExitError in err's chain, or
// ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or as a JSON envelope.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose output; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of the envelope. Code is an event file code
// (E101..E104) for import failures.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// FileProblem is one event file error with its source position, when the
// schema reported one.
type FileProblem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func fileProblems(errs eventdef.LoadErrors) []FileProblem {
	problems := make([]FileProblem, 0, len(errs))
	for _, e := range errs {
		p := FileProblem{Code: e.Code, Message: e.Message}
		if e.Pos.IsValid() {
			p.File = e.Pos.Filename()
			p.Line = e.Pos.Line()
			p.Column = e.Pos.Column()
		}
		problems = append(problems, p)
	}
	return problems
}

// TextRenderer is implemented by command results with their own text
// layout: task tables, export reports, results and pipeline plans.
type TextRenderer interface {
	RenderText(w io.Writer) error
}

// Success writes data in the envelope, or as text through RenderText or
// fmt.Println.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if r, ok := data.(TextRenderer); ok {
		return r.RenderText(f.Writer)
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// LoadErrors reports every problem of a rejected event file. JSON output is
// one envelope coded with the first problem and listing all of them in
// details; text output is one line per problem.
func (f *OutputFormatter) LoadErrors(errs eventdef.LoadErrors) error {
	if len(errs) == 0 {
		return nil
	}
	problems := fileProblems(errs)
	if f.Format == "json" {
		return f.Error(errs[0].Code, "invalid event file: "+errs.Error(), problems)
	}

	for _, p := range problems {
		if p.File != "" {
			fmt.Fprintf(f.Writer, "Error [%s] %s:%d:%d: %s\n", p.Code, p.File, p.Line, p.Column, p.Message)
			continue
		}
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", p.Code, p.Message)
	}
	return nil
}

// VerboseLog writes a progress line when --verbose is set, on ErrWriter
// so JSON output stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
