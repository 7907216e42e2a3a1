package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/surveyops/internal/checkout"
	"github.com/roach88/surveyops/internal/email"
	"github.com/roach88/surveyops/internal/model"
	"github.com/roach88/surveyops/internal/partner"
	"github.com/roach88/surveyops/internal/queue"
	"github.com/roach88/surveyops/internal/store"
	"github.com/roach88/surveyops/internal/tally"
)

// Store is the store surface the engine needs.
type Store interface {
	GetEvent(ctx context.Context, id string) (model.Event, error)
	GetResponse(ctx context.Context, id string) (model.Response, error)
	MarkUsed(ctx context.Context, id string, at time.Time) error
	MarkCheckedIn(ctx context.Context, id string, at time.Time) error
}

// Aggregator tabulates a new response. *tally.Aggregator implements it.
type Aggregator interface {
	Record(ctx context.Context, event model.Event, resp model.Response) (tally.Outcome, error)
}

// Uploader sends one response to the partner API. *partner.Uploader
// implements it.
type Uploader interface {
	UploadResponse(ctx context.Context, event model.Event, resp model.Response) error
}

// PlannedTask is one task the engine enqueued.
type PlannedTask struct {
	Queue     queue.Name `json:"queue"`
	TaskID    string     `json:"taskId"`
	NotBefore time.Time  `json:"notBefore"`
}

// Plan records what the engine decided for one trigger.
type Plan struct {
	EventID         string        `json:"eventId"`
	ResponseID      string        `json:"responseId"`
	PreRegistration bool          `json:"preRegistration"`
	Tasks           []PlannedTask `json:"tasks"`
	Bootstrapped    bool          `json:"bootstrapped"`
	UploadError     string        `json:"uploadError,omitempty"`
}

// Engine is the scheduling decision engine.
type Engine struct {
	store    Store
	queue    queue.Enqueuer
	agg      Aggregator
	uploader Uploader
	zones    Zones
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithZones overrides the fallback start and end zones.
func WithZones(z Zones) Option {
	return func(e *Engine) { e.zones = z }
}

// WithUploader enables the synchronous partner upload.
func WithUploader(u Uploader) Option {
	return func(e *Engine) { e.uploader = u }
}

// NewEngine creates an engine. Without WithZones the fallback zones are
// UTC; production wiring passes the configured zones.
func NewEngine(s Store, q queue.Enqueuer, agg Aggregator, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		queue: q,
		agg:   agg,
		zones: Zones{Start: time.UTC, End: time.UTC},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnResponseCreated runs the pipeline for a newly stored response:
// confirmation and reminder (pre-registration only), thank-you, pre-response
// marking, partner upload and finally aggregation.
//
// Missing event data is logged and yields an empty plan. Errors returned
// are retryable.
func (e *Engine) OnResponseCreated(ctx context.Context, resp model.Response) (Plan, error) {
	plan := Plan{EventID: resp.EventID, ResponseID: resp.ID, Tasks: []PlannedTask{}}

	if resp.ID == "" || resp.EventID == "" {
		slog.Warn("response skipped: missing id or event id", "response", resp.ID, "event", resp.EventID)
		return plan, nil
	}

	event, err := e.store.GetEvent(ctx, resp.EventID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("response skipped: event not found", "response", resp.ID, "event", resp.EventID)
		return plan, nil
	}
	if err != nil {
		return plan, fmt.Errorf("schedule response %s: %w", resp.ID, err)
	}

	startZone, endZone, err := e.zones.forEvent(event)
	if err != nil {
		slog.Warn("response skipped: bad event timezone", "response", resp.ID, "error", err)
		return plan, nil
	}

	now := e.now()
	plan.PreRegistration = IsPreRegistration(event, now, startZone)

	if plan.PreRegistration {
		if err := e.scheduleConfirmation(ctx, &plan, event, resp); err != nil {
			return plan, err
		}
		if err := e.scheduleReminder(ctx, &plan, event, resp, now, startZone); err != nil {
			return plan, err
		}
	}

	if err := e.scheduleThankYou(ctx, &plan, event, resp, now, endZone); err != nil {
		return plan, err
	}

	if resp.PreResponseID != "" {
		if err := e.store.MarkUsed(ctx, resp.PreResponseID, now); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return plan, fmt.Errorf("schedule response %s: %w", resp.ID, err)
			}
			slog.Warn("linked pre-response not found", "response", resp.ID, "pre_response", resp.PreResponseID)
		}
	}

	if event.HasPartner() {
		e.uploadToPartner(ctx, &plan, event, resp)
	}

	outcome, err := e.agg.Record(ctx, event, resp)
	if err != nil {
		return plan, fmt.Errorf("schedule response %s: %w", resp.ID, err)
	}
	plan.Bootstrapped = outcome.Bootstrapped
	if outcome.Deferred != nil {
		plan.add(*outcome.Deferred)
	}

	slog.Info("response scheduled",
		"response", resp.ID,
		"event", event.ID,
		"pre_registration", plan.PreRegistration,
		"tasks", len(plan.Tasks),
		"bootstrapped", plan.Bootstrapped,
	)
	return plan, nil
}

func (p *Plan) add(t queue.Task) {
	p.Tasks = append(p.Tasks, PlannedTask{
		Queue:     queue.Name(t.Queue),
		TaskID:    t.ID,
		NotBefore: t.NotBefore,
	})
}

func (e *Engine) enqueue(ctx context.Context, plan *Plan, name queue.Name, payload any, opts queue.EnqueueOptions) error {
	t, err := e.queue.Enqueue(ctx, name, payload, opts)
	if err != nil {
		return fmt.Errorf("schedule response %s: %w", plan.ResponseID, err)
	}
	plan.add(t)
	return nil
}

func emailPayload(template string, event model.Event, resp model.Response, custom map[string]any) email.Payload {
	return email.Payload{
		Template:         template,
		Recipient:        resp.Email(),
		SubstitutionData: email.SubstitutionData(event, resp, custom, nil),
	}
}

func (e *Engine) scheduleConfirmation(ctx context.Context, plan *Plan, event model.Event, resp model.Response) error {
	cfg := event.ConfirmationEmail
	if cfg == nil || cfg.Template == "" {
		return nil
	}
	return e.enqueue(ctx, plan, queue.SendConfirmationEmail,
		emailPayload(cfg.Template, event, resp, cfg.CustomData),
		queue.EnqueueOptions{})
}

func (e *Engine) scheduleReminder(ctx context.Context, plan *Plan, event model.Event, resp model.Response, now time.Time, startZone *time.Location) error {
	cfg := event.ReminderEmail
	if cfg == nil || cfg.Template == "" {
		return nil
	}

	at := ReminderTime(*event.StartDate, *cfg, startZone)
	if !at.After(now) {
		slog.Debug("reminder suppressed: fire time passed", "response", resp.ID, "reminder_at", at)
		return nil
	}
	return e.enqueue(ctx, plan, queue.SendReminderEmail,
		emailPayload(cfg.Template, event, resp, cfg.CustomData),
		queue.EnqueueOptions{NotBefore: at})
}

func (e *Engine) scheduleThankYou(ctx context.Context, plan *Plan, event model.Event, resp model.Response, now time.Time, endZone *time.Location) error {
	cfg := event.ThankYouEmail
	if cfg == nil || cfg.Template == "" {
		return nil
	}

	end := event.EndDate
	if end == nil {
		end = event.StartDate
	}
	at, ok := ThankYouTime(now, end, *cfg, endZone)
	if !ok {
		slog.Warn("thank-you skipped: event has no dates", "response", resp.ID, "event", event.ID)
		return nil
	}
	return e.enqueue(ctx, plan, queue.SendThankYouEmail,
		emailPayload(cfg.Template, event, resp, cfg.CustomData),
		queue.EnqueueOptions{NotBefore: at})
}

// uploadToPartner runs the synchronous upload. Its failure is recorded on
// the response and retried through the partner-upload queue; it never stops
// the rest of the pipeline.
func (e *Engine) uploadToPartner(ctx context.Context, plan *Plan, event model.Event, resp model.Response) {
	if e.uploader == nil {
		slog.Debug("partner upload not configured", "response", resp.ID, "event", event.ID)
		return
	}

	err := e.uploader.UploadResponse(ctx, event, resp)
	if err == nil {
		return
	}

	plan.UploadError = err.Error()
	slog.Warn("partner upload failed, queued for retry", "response", resp.ID, "error", err)

	// The failure is already recorded on the response and the daily batch
	// picks unexported responses up, so a lost retry task is only logged.
	retry := queue.DefaultPolicies[queue.PartnerUpload].MinBackoff
	if err := e.enqueue(ctx, plan, queue.PartnerUpload,
		partner.UploadPayload{ResponseID: resp.ID},
		queue.EnqueueOptions{Delay: retry}); err != nil {
		slog.Error("partner upload retry not queued", "response", resp.ID, "error", err)
	}
}

// OnCheckIn stamps the check-in and, when the event auto-checks-out,
// schedules the checkout MinutesAfter later.
func (e *Engine) OnCheckIn(ctx context.Context, responseID string) (Plan, error) {
	resp, event, err := e.loadForCheck(ctx, responseID)
	if err != nil {
		return Plan{}, fmt.Errorf("check in: %w", err)
	}
	plan := Plan{EventID: event.ID, ResponseID: resp.ID, Tasks: []PlannedTask{}}

	now := e.now()
	if err := e.store.MarkCheckedIn(ctx, resp.ID, now); err != nil {
		return plan, fmt.Errorf("check in %s: %w", resp.ID, err)
	}

	if ac := event.AutoCheckOut; ac != nil {
		at := now.Add(time.Duration(ac.MinutesAfter) * time.Minute)
		if err := e.enqueue(ctx, &plan, queue.AutoCheckout, checkoutPayload(event, resp), queue.EnqueueOptions{NotBefore: at}); err != nil {
			return plan, err
		}
	}

	slog.Info("response checked in", "response", resp.ID, "event", event.ID, "tasks", len(plan.Tasks))
	return plan, nil
}

// OnCheckOut queues an immediate checkout, which also sends the checkout
// email when configured.
func (e *Engine) OnCheckOut(ctx context.Context, responseID string) (Plan, error) {
	resp, event, err := e.loadForCheck(ctx, responseID)
	if err != nil {
		return Plan{}, fmt.Errorf("check out: %w", err)
	}
	plan := Plan{EventID: event.ID, ResponseID: resp.ID, Tasks: []PlannedTask{}}

	if err := e.enqueue(ctx, &plan, queue.AutoCheckout, checkoutPayload(event, resp), queue.EnqueueOptions{}); err != nil {
		return plan, err
	}
	return plan, nil
}

func (e *Engine) loadForCheck(ctx context.Context, responseID string) (model.Response, model.Event, error) {
	resp, err := e.store.GetResponse(ctx, responseID)
	if err != nil {
		return model.Response{}, model.Event{}, err
	}
	event, err := e.store.GetEvent(ctx, resp.EventID)
	if err != nil {
		return model.Response{}, model.Event{}, err
	}
	return resp, event, nil
}

func checkoutPayload(event model.Event, resp model.Response) checkout.Payload {
	p := checkout.Payload{PreEventID: event.ID, ResponseID: resp.ID}
	if event.AutoCheckOut != nil {
		p.PostEventID = event.AutoCheckOut.PostEventID
	}
	if event.CheckOutEmail != nil {
		p.Template = event.CheckOutEmail.Template
	}
	return p
}
