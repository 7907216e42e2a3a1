package queue

import (
	"errors"
	"fmt"
)

// ErrUnknownQueue is returned when enqueuing to a queue with no policy.
var ErrUnknownQueue = errors.New("unknown queue")

// PermanentError marks a handler failure that must not be retried.
// The worker fails the task immediately regardless of remaining attempts.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the worker stops retrying the task.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
