// Package eventdef loads event definitions from YAML or JSON files,
// validating them against an embedded CUE schema before they reach the
// store.
package eventdef

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/surveyops/internal/model"
)

//go:embed schema.cue
var schemaSource string

// Error codes reported in LoadError.Code.
const (
	ErrCodeRead     = "E101" // file could not be read
	ErrCodeSyntax   = "E102" // not YAML or JSON
	ErrCodeSchema   = "E103" // schema violation
	ErrCodeSemantic = "E104" // valid shape, invalid meaning
)

// LoadError is one problem found in an event file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadErrors collects every problem in a file.
type LoadErrors []*LoadError

func (errs LoadErrors) Error() string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", errs[0].Error(), len(errs)-1)
}

type file struct {
	Events []model.Event `json:"events"`
}

// LoadFile reads and validates an event file.
func LoadFile(path string) ([]model.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, LoadErrors{{Code: ErrCodeRead, Message: err.Error()}}
	}
	return Parse(path, data)
}

// Parse validates data (YAML or JSON) and returns its events. filename
// is used in error positions only.
func Parse(filename string, data []byte) ([]model.Event, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, LoadErrors{{Code: ErrCodeSyntax, Message: err.Error()}}
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, LoadErrors{{Code: ErrCodeSyntax, Message: err.Error()}}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}

	value := ctx.CompileBytes(asJSON, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, LoadErrors{{Code: ErrCodeSyntax, Message: err.Error()}}
	}

	unified := schema.LookupPath(cue.ParsePath("#File")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, schemaErrors(err)
	}

	validated, err := unified.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode validated events: %w", err)
	}
	var f file
	if err := json.Unmarshal(validated, &f); err != nil {
		return nil, LoadErrors{{Code: ErrCodeSemantic, Message: err.Error()}}
	}

	if errs := checkEvents(f.Events); len(errs) > 0 {
		return nil, errs
	}
	return f.Events, nil
}

func schemaErrors(err error) LoadErrors {
	var out LoadErrors
	for _, e := range cueerrors.Errors(err) {
		out = append(out, &LoadError{
			Code:    ErrCodeSchema,
			Message: e.Error(),
			Pos:     e.Position(),
		})
	}
	if len(out) == 0 {
		out = append(out, &LoadError{Code: ErrCodeSchema, Message: err.Error()})
	}
	return out
}

// checkEvents enforces the rules the schema cannot express.
func checkEvents(events []model.Event) LoadErrors {
	var errs LoadErrors
	seen := make(map[string]bool, len(events))

	fail := func(id, format string, args ...any) {
		errs = append(errs, &LoadError{
			Code:    ErrCodeSemantic,
			Message: fmt.Sprintf("event %s: ", id) + fmt.Sprintf(format, args...),
		})
	}

	for _, e := range events {
		if seen[e.ID] {
			fail(e.ID, "duplicate id")
		}
		seen[e.ID] = true

		if e.Timezone != "" {
			if _, err := time.LoadLocation(e.Timezone); err != nil {
				fail(e.ID, "unknown timezone %q", e.Timezone)
			}
		}
		if e.StartDate != nil && e.EndDate != nil && e.EndDate.Before(*e.StartDate) {
			fail(e.ID, "endDate is before startDate")
		}
		if e.ReminderEmail != nil && e.StartDate == nil {
			fail(e.ID, "reminderEmail needs a startDate")
		}
		if ty := e.ThankYouEmail; ty != nil {
			if ty.SendNow && ty.SendNowAfterDays != nil {
				fail(e.ID, "thankYouEmail: sendNow and sendNowAfterDays are mutually exclusive")
			}
			if !ty.SendNow && ty.SendNowAfterDays == nil && e.StartDate == nil && e.EndDate == nil {
				fail(e.ID, "thankYouEmail: end-of-event timing needs a startDate or endDate")
			}
		}
		if e.CheckOutEmail != nil && (e.AutoCheckOut == nil || e.AutoCheckOut.PostEventID == "") {
			fail(e.ID, "checkOutEmail needs autoCheckOut.postEventId")
		}
	}
	return errs
}
