package tally

import (
	"regexp"

	"github.com/roach88/surveyops/internal/model"
)

// nonTabulable lists question types whose answer space is not a small
// enumerable set.
var nonTabulable = map[string]bool{
	"text":           true,
	"comment":        true,
	"file":           true,
	"image":          true,
	"signaturepad":   true,
	"matrix":         true,
	"matrixdropdown": true,
	"matrixdynamic":  true,
	"multipletext":   true,
	"paneldynamic":   true,
	"expression":     true,
	"html":           true,
}

var unsafeChars = regexp.MustCompile(`[^\w\s-]`)

// Sanitize strips every character that is not a word character,
// whitespace or a dash, so the result is safe as a tally bucket key.
func Sanitize(v string) string {
	return unsafeChars.ReplaceAllString(v, "")
}

// IsTabulable reports whether answers to a question type are counted.
func IsTabulable(questionType string) bool {
	return !nonTabulable[questionType]
}

// TabulableQuestions returns the keys of the questions whose answers are
// counted, in schema order.
func TabulableQuestions(questions []model.Question) []string {
	keys := make([]string, 0, len(questions))
	for _, q := range questions {
		if q.Name == "" || !IsTabulable(q.Type) {
			continue
		}
		keys = append(keys, q.Name)
	}
	return keys
}

// Count returns one bucket key per counted answer value: one per list
// element, one per scalar, none for absent, null or structured answers.
// Keys repeat when a response picks two values that sanitize alike.
// Values that sanitize to "" (blank or punctuation only) are not counted.
func Count(questions []string, answers map[string]model.Answer) []model.TallyKey {
	var keys []model.TallyKey
	add := func(q, v string) {
		if key := Sanitize(v); key != "" {
			keys = append(keys, model.TallyKey{Question: q, Answer: key})
		}
	}
	for _, q := range questions {
		a := answers[q]
		switch a.Kind() {
		case model.AnswerScalar:
			add(q, a.Value())
		case model.AnswerList:
			for _, v := range a.Values() {
				add(q, v)
			}
		}
	}
	return keys
}
