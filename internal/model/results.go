package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Reserved keys inside the serialized results document.
const (
	ResultsQuestionsKey  = "__questions"
	ResultsTotalCountKey = "__totalCount"
)

// Results is the per-event tally of answer occurrences.
//
// Questions is fixed by the first tabulated response and never changes.
// Tallies maps question key -> sanitized answer key -> count.
type Results struct {
	Questions  []string
	TotalCount int
	Tallies    map[string]map[string]int
}

// TallyKey addresses one bucket in Results.Tallies.
type TallyKey struct {
	Question string
	Answer   string
}

// Count returns the tally for one bucket, zero if absent.
func (r *Results) Count(question, answer string) int {
	if r == nil || r.Tallies == nil {
		return 0
	}
	return r.Tallies[question][answer]
}

// QuestionTotal sums every bucket recorded for a question.
func (r *Results) QuestionTotal(question string) int {
	if r == nil {
		return 0
	}
	total := 0
	for _, n := range r.Tallies[question] {
		total += n
	}
	return total
}

// MarshalJSON flattens the results into the stored document shape:
//
//	{"__questions": [...], "__totalCount": n, "<question>": {"<answer>": n}}
func (r Results) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(r.Tallies)+2)
	questions := r.Questions
	if questions == nil {
		questions = []string{}
	}
	doc[ResultsQuestionsKey] = questions
	doc[ResultsTotalCountKey] = r.TotalCount
	for q, buckets := range r.Tallies {
		doc[q] = buckets
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads the flattened document shape back.
func (r *Results) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode results: %w", err)
	}

	out := Results{Tallies: make(map[string]map[string]int)}
	for key, raw := range doc {
		switch key {
		case ResultsQuestionsKey:
			if err := json.Unmarshal(raw, &out.Questions); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
		case ResultsTotalCountKey:
			if err := json.Unmarshal(raw, &out.TotalCount); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
		default:
			var buckets map[string]int
			if err := json.Unmarshal(raw, &buckets); err != nil {
				return fmt.Errorf("decode tally %q: %w", key, err)
			}
			out.Tallies[key] = buckets
		}
	}
	*r = out
	return nil
}

// SortedQuestions returns the tallied question keys in lexical order.
func (r *Results) SortedQuestions() []string {
	keys := make([]string, 0, len(r.Tallies))
	for k := range r.Tallies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
