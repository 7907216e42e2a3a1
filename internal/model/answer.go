package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// AnswerKind distinguishes the shapes an answer value can take.
type AnswerKind int

const (
	// AnswerScalar is a single value (string, number or boolean).
	AnswerScalar AnswerKind = iota + 1
	// AnswerList is an array of values, e.g. a checkbox question.
	AnswerList
	// AnswerOther is a structured value (matrix rows, dynamic panels).
	// It is stored verbatim and never tabulated.
	AnswerOther
)

// Answer is a tagged union over the values a question can hold.
// The zero Answer means "no answer" and is treated like an absent key.
type Answer struct {
	kind   AnswerKind
	scalar string
	list   []string
	raw    json.RawMessage
}

// Scalar returns a single-valued answer.
func Scalar(v string) Answer {
	return Answer{kind: AnswerScalar, scalar: v}
}

// List returns a multi-valued answer.
func List(values ...string) Answer {
	cp := make([]string, len(values))
	copy(cp, values)
	return Answer{kind: AnswerList, list: cp}
}

// Kind reports the answer shape. Zero for an empty answer.
func (a Answer) Kind() AnswerKind { return a.kind }

// IsZero reports whether the answer carries no value.
func (a Answer) IsZero() bool { return a.kind == 0 }

// Value returns the scalar value, or "" for other kinds.
func (a Answer) Value() string { return a.scalar }

// Values returns the list elements, or nil for other kinds.
func (a Answer) Values() []string { return a.list }

// Raw returns the original JSON for the answer, if it was decoded from JSON.
func (a Answer) Raw() json.RawMessage { return a.raw }

// String renders the answer for logs and flat exports.
func (a Answer) String() string {
	switch a.kind {
	case AnswerScalar:
		return a.scalar
	case AnswerList:
		return strings.Join(a.list, ",")
	case AnswerOther:
		return string(a.raw)
	default:
		return ""
	}
}

// MarshalJSON preserves the original encoding when the answer was decoded
// from JSON so numbers and booleans round-trip unchanged.
func (a Answer) MarshalJSON() ([]byte, error) {
	if len(a.raw) > 0 {
		return a.raw, nil
	}
	switch a.kind {
	case AnswerScalar:
		return json.Marshal(a.scalar)
	case AnswerList:
		return json.Marshal(a.list)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes any JSON value into the matching answer kind.
// null decodes to the zero Answer.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Answer{}
		return nil
	}

	raw := make(json.RawMessage, len(data))
	copy(raw, data)

	switch data[0] {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(data, &elems); err != nil {
			return fmt.Errorf("decode list answer: %w", err)
		}
		values := make([]string, 0, len(elems))
		for _, e := range elems {
			v, ok, err := scalarText(e)
			if err != nil {
				return err
			}
			if ok {
				values = append(values, v)
			}
		}
		*a = Answer{kind: AnswerList, list: values, raw: raw}
	case '{':
		*a = Answer{kind: AnswerOther, raw: raw}
	default:
		v, _, err := scalarText(data)
		if err != nil {
			return err
		}
		*a = Answer{kind: AnswerScalar, scalar: v, raw: raw}
	}
	return nil
}

// scalarText renders a JSON scalar as text. Strings are unquoted, numbers and
// booleans keep their literal form, nulls are reported as absent and nested
// objects fall back to their raw JSON.
func scalarText(data json.RawMessage) (string, bool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", false, nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", false, fmt.Errorf("decode answer value: %w", err)
		}
		return s, true, nil
	}
	return string(data), true, nil
}
