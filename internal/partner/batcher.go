package partner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/surveyops/internal/model"
)

// DefaultExportWindow is how far back an event's window may have ended and
// still be swept.
const DefaultExportWindow = 7 * 24 * time.Hour

// DefaultRetryGrace is how long after a failed single upload the batch
// leaves the response to its queued retry. It outlasts the partner-upload
// retry schedule so the two never send the same record.
const DefaultRetryGrace = time.Hour

// ExportPolicy controls how the batch marks responses.
type ExportPolicy struct {
	// MarkExportedOnFailure marks every attempted response exported even
	// when a bulk call failed, so each response is attempted at most once.
	// When false, a failed run leaves them for the next run.
	MarkExportedOnFailure bool
}

// DefaultExportPolicy keeps the at-most-once marking.
var DefaultExportPolicy = ExportPolicy{MarkExportedOnFailure: true}

// BatchStore is the store surface the batch needs.
type BatchStore interface {
	ListPartnerEvents(ctx context.Context, brandID string, since, until time.Time) ([]model.Event, error)
	ListUnexportedResponses(ctx context.Context, eventID string) ([]model.Response, error)
	MarkExported(ctx context.Context, ids []string, at time.Time) error
}

// BatchReport summarizes one batch run.
type BatchReport struct {
	RunAt       time.Time `json:"runAt"`
	Events      int       `json:"events"`
	Surveys     int       `json:"surveys"`
	Vehicles    int       `json:"vehicles"`
	Skipped     int       `json:"skipped"`
	Deferred    int       `json:"deferred"`
	Marked      int       `json:"marked"`
	UploadError string    `json:"uploadError,omitempty"`
}

// Batcher runs the daily partner export for one brand.
type Batcher struct {
	store   BatchStore
	api     API
	brandID string
	window  time.Duration
	grace   time.Duration
	policy  ExportPolicy
	now     func() time.Time
}

// BatcherOption configures a Batcher.
type BatcherOption func(*Batcher)

// WithExportWindow overrides DefaultExportWindow.
func WithExportWindow(d time.Duration) BatcherOption {
	return func(b *Batcher) { b.window = d }
}

// WithRetryGrace overrides DefaultRetryGrace. Zero sends every
// un-exported response regardless of pending retries.
func WithRetryGrace(d time.Duration) BatcherOption {
	return func(b *Batcher) { b.grace = d }
}

// WithExportPolicy overrides DefaultExportPolicy.
func WithExportPolicy(p ExportPolicy) BatcherOption {
	return func(b *Batcher) { b.policy = p }
}

// WithBatchClock overrides the run timestamp source.
func WithBatchClock(now func() time.Time) BatcherOption {
	return func(b *Batcher) { b.now = now }
}

// NewBatcher creates the export batch for a brand.
func NewBatcher(s BatchStore, api API, brandID string, opts ...BatcherOption) *Batcher {
	b := &Batcher{
		store:   s,
		api:     api,
		brandID: brandID,
		window:  DefaultExportWindow,
		grace:   DefaultRetryGrace,
		policy:  DefaultExportPolicy,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run sweeps every un-exported response of the brand's in-window partner
// events, uploads them in one survey call and at most one vehicle call,
// and marks them exported per the policy. Responses whose single upload
// failed within the retry grace are deferred to their queued retry.
//
// A failed upload is reported in BatchReport.UploadError, not returned;
// the returned error covers store failures only.
func (b *Batcher) Run(ctx context.Context) (BatchReport, error) {
	runAt := b.now()
	report := BatchReport{RunAt: runAt}

	events, err := b.store.ListPartnerEvents(ctx, b.brandID, runAt.Add(-b.window), runAt)
	if err != nil {
		return report, fmt.Errorf("export batch: %w", err)
	}
	report.Events = len(events)

	var surveys []SurveyRecord
	var vehicles []VehicleRecord
	var attempted []string

	for _, event := range events {
		responses, err := b.store.ListUnexportedResponses(ctx, event.ID)
		if err != nil {
			return report, fmt.Errorf("export batch: event %s: %w", event.ID, err)
		}
		for _, resp := range responses {
			if b.retryPending(resp, runAt) {
				report.Deferred++
				continue
			}
			rec, vs, err := MapResponse(event, resp)
			if err != nil {
				slog.Warn("export batch: response not mappable", "response", resp.ID, "error", err)
				report.Skipped++
				continue
			}
			surveys = append(surveys, rec)
			vehicles = append(vehicles, vs...)
			attempted = append(attempted, resp.ID)
		}
	}

	report.Surveys = len(surveys)
	report.Vehicles = len(vehicles)
	if len(surveys) == 0 {
		slog.Info("export batch: nothing to export", "brand", b.brandID, "events", report.Events)
		return report, nil
	}

	uploadErr := b.api.UploadSurveys(ctx, surveys)
	if uploadErr == nil && len(vehicles) > 0 {
		uploadErr = b.api.InsertVehicles(ctx, vehicles)
	}
	if uploadErr != nil {
		report.UploadError = uploadErr.Error()
		slog.Error("export batch: upload failed",
			"brand", b.brandID,
			"surveys", len(surveys),
			"vehicles", len(vehicles),
			"error", uploadErr,
		)
	}

	if uploadErr == nil || b.policy.MarkExportedOnFailure {
		if err := b.store.MarkExported(ctx, attempted, runAt); err != nil {
			return report, fmt.Errorf("export batch: %w", err)
		}
		report.Marked = len(attempted)
	}

	slog.Info("export batch finished",
		"brand", b.brandID,
		"events", report.Events,
		"surveys", report.Surveys,
		"vehicles", report.Vehicles,
		"marked", report.Marked,
		"deferred", report.Deferred,
	)
	return report, nil
}

func (b *Batcher) retryPending(resp model.Response, now time.Time) bool {
	if b.grace <= 0 || resp.UploadError == "" || resp.UploadAttemptedAt == nil {
		return false
	}
	return now.Sub(*resp.UploadAttemptedAt) < b.grace
}
