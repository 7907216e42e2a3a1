// Package checkout executes auto-checkout tasks: it stamps the response as
// checked out and, when the event has a follow-up survey, queues the
// checkout email that links to it.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/surveyops/internal/email"
	"github.com/roach88/surveyops/internal/model"
	"github.com/roach88/surveyops/internal/queue"
	"github.com/roach88/surveyops/internal/store"
)

// Payload is the auto-checkout task body.
type Payload struct {
	PreEventID  string `json:"preEventId"`
	ResponseID  string `json:"responseId"`
	PostEventID string `json:"postEventId,omitempty"`
	Template    string `json:"template,omitempty"`
}

// Store is the store surface the executor needs.
type Store interface {
	MarkCheckedOut(ctx context.Context, id string, at time.Time) error
	GetEvent(ctx context.Context, id string) (model.Event, error)
	GetResponse(ctx context.Context, id string) (model.Response, error)
}

// Executor runs the auto-checkout queue.
type Executor struct {
	store         Store
	queue         queue.Enqueuer
	surveyBaseURL string
	now           func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock overrides the checkout timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates the auto-checkout executor. surveyBaseURL is the
// public survey site used to build the post-event link.
func NewExecutor(s Store, q queue.Enqueuer, surveyBaseURL string, opts ...Option) *Executor {
	e := &Executor{
		store:         s,
		queue:         q,
		surveyBaseURL: surveyBaseURL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SurveyURL is the post-event survey link for one attendee.
func SurveyURL(base, postEventID, responseID string) string {
	return fmt.Sprintf("%s/%s?pre=%s",
		strings.TrimRight(base, "/"),
		url.PathEscape(postEventID),
		url.QueryEscape(responseID),
	)
}

// Handle checks the response out. A failure to stamp the checkout is
// returned; missing data for the follow-up email is logged and ignored.
func (e *Executor) Handle(ctx context.Context, task queue.Task) error {
	name := queue.TaskName(ctx)

	var p Payload
	if err := task.Decode(&p); err != nil {
		return queue.Permanent(fmt.Errorf("auto-checkout: %w", err))
	}
	if p.ResponseID == "" {
		slog.Warn("auto-checkout skipped: no response id", "task", name)
		return nil
	}

	if err := e.store.MarkCheckedOut(ctx, p.ResponseID, e.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return queue.Permanent(fmt.Errorf("auto-checkout %s: %w", p.ResponseID, err))
		}
		return fmt.Errorf("auto-checkout %s: %w", p.ResponseID, err)
	}
	slog.Info("response checked out", "task", name, "response", p.ResponseID, "event", p.PreEventID)

	if p.Template == "" || p.PostEventID == "" {
		return nil
	}
	return e.queueCheckoutEmail(ctx, p)
}

func (e *Executor) queueCheckoutEmail(ctx context.Context, p Payload) error {
	name := queue.TaskName(ctx)

	postEvent, err := e.store.GetEvent(ctx, p.PostEventID)
	if err != nil {
		slog.Warn("checkout email skipped: post-event not loaded",
			"task", name, "post_event", p.PostEventID, "error", err)
		return nil
	}
	resp, err := e.store.GetResponse(ctx, p.ResponseID)
	if err != nil {
		slog.Warn("checkout email skipped: response not loaded",
			"task", name, "response", p.ResponseID, "error", err)
		return nil
	}
	recipient := resp.Email()
	if recipient == "" {
		slog.Warn("checkout email skipped: no recipient", "task", name, "response", p.ResponseID)
		return nil
	}

	data := email.SubstitutionData(postEvent, resp, nil, map[string]any{
		"surveyUrl": SurveyURL(e.surveyBaseURL, p.PostEventID, p.ResponseID),
	})
	if _, err := e.queue.Enqueue(ctx, queue.SendCheckoutEmail, email.Payload{
		Template:         p.Template,
		Recipient:        recipient,
		SubstitutionData: data,
	}, queue.EnqueueOptions{}); err != nil {
		return fmt.Errorf("auto-checkout %s: queue checkout email: %w", p.ResponseID, err)
	}

	slog.Info("checkout email queued", "task", name, "response", p.ResponseID, "post_event", p.PostEventID)
	return nil
}
