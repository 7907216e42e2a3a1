package queue

import (
	"time"

	"github.com/roach88/surveyops/internal/model"
)

// Task is the durable record handed to handlers.
type Task = model.Task

// Name identifies a queue. Each queue is drained by exactly one executor.
type Name string

const (
	SendConfirmationEmail Name = "send-confirmation-email"
	SendReminderEmail     Name = "send-reminder-email"
	SendThankYouEmail     Name = "send-thank-you-email"
	SendCheckoutEmail     Name = "send-checkout-email"
	UpdateReporting       Name = "update-reporting"
	AutoCheckout          Name = "auto-checkout"
	PartnerUpload         Name = "partner-upload"
)

// EmailQueues lists every queue drained by the email sender.
var EmailQueues = []Name{
	SendConfirmationEmail,
	SendReminderEmail,
	SendThankYouEmail,
	SendCheckoutEmail,
}

// MaxBackoff caps the exponential retry delay.
const MaxBackoff = time.Hour

// Policy is the fixed retry and concurrency configuration of one queue.
type Policy struct {
	MaxAttempts   int
	MinBackoff    time.Duration
	MaxConcurrent int
}

// DefaultPolicies holds the production policy for every queue.
//
// Reporting updates contend on one results row per event, hence the low
// concurrency and the large retry budget.
var DefaultPolicies = map[Name]Policy{
	SendConfirmationEmail: {MaxAttempts: 3, MinBackoff: 10 * time.Second, MaxConcurrent: 10},
	SendReminderEmail:     {MaxAttempts: 3, MinBackoff: 23 * time.Second, MaxConcurrent: 6},
	SendThankYouEmail:     {MaxAttempts: 3, MinBackoff: 23 * time.Second, MaxConcurrent: 6},
	SendCheckoutEmail:     {MaxAttempts: 3, MinBackoff: 10 * time.Second, MaxConcurrent: 10},
	UpdateReporting:       {MaxAttempts: 30, MinBackoff: 37 * time.Second, MaxConcurrent: 2},
	AutoCheckout:          {MaxAttempts: 3, MinBackoff: 10 * time.Second, MaxConcurrent: 10},
	PartnerUpload:         {MaxAttempts: 5, MinBackoff: time.Minute, MaxConcurrent: 4},
}

// Backoff returns the delay before the next attempt after `attempt` failed
// attempts: min * 2^(attempt-1), capped at MaxBackoff.
func Backoff(min time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := min
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= MaxBackoff {
			return MaxBackoff
		}
	}
	if d > MaxBackoff {
		return MaxBackoff
	}
	return d
}
