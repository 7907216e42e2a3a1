package model

import "time"

// Response is one attendee's submitted answers plus system bookkeeping.
type Response struct {
	ID            string            `json:"id"`
	EventID       string            `json:"eventId"`
	Answers       map[string]Answer `json:"answers"`
	PreResponseID string            `json:"preResponseId,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`

	CheckedIn         *time.Time `json:"_checkedIn,omitempty"`
	CheckedOut        *time.Time `json:"_checkedOut,omitempty"`
	Exported          *time.Time `json:"_exported,omitempty"`
	Used              *time.Time `json:"_used,omitempty"`
	UploadError       string     `json:"_uploadError,omitempty"`
	UploadAttemptedAt *time.Time `json:"_uploadAttemptedAt,omitempty"`
}

// Answer returns the answer for a question key, or the zero Answer.
func (r Response) Answer(key string) Answer {
	if r.Answers == nil {
		return Answer{}
	}
	return r.Answers[key]
}

// Email returns the attendee's email answer, if any.
func (r Response) Email() string {
	return r.Answer("email").Value()
}
