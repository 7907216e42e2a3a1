package partner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/surveyops/internal/model"
	"github.com/roach88/surveyops/internal/queue"
	"github.com/roach88/surveyops/internal/store"
)

// UploadPayload is the partner-upload task body.
type UploadPayload struct {
	ResponseID string `json:"responseId"`
}

// UploadStore is the store surface the single-record path needs.
type UploadStore interface {
	GetEvent(ctx context.Context, id string) (model.Event, error)
	GetResponse(ctx context.Context, id string) (model.Response, error)
	RecordUploadAttempt(ctx context.Context, id string, at time.Time, errMsg string) error
	MarkExported(ctx context.Context, ids []string, at time.Time) error
}

// Uploader sends one response to the partner API.
type Uploader struct {
	store UploadStore
	api   API
	now   func() time.Time
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithUploaderClock overrides the attempt timestamp source.
func WithUploaderClock(now func() time.Time) UploaderOption {
	return func(u *Uploader) { u.now = now }
}

// NewUploader creates the single-record uploader.
func NewUploader(s UploadStore, api API, opts ...UploaderOption) *Uploader {
	u := &Uploader{store: s, api: api, now: time.Now}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// UploadResponse maps and uploads one response, then records the attempt
// on it. A successful upload also marks the response exported so the daily
// batch skips it. The upload error, if any, is returned.
func (u *Uploader) UploadResponse(ctx context.Context, event model.Event, resp model.Response) error {
	at := u.now()
	uploadErr := u.upload(ctx, event, resp)

	msg := ""
	if uploadErr != nil {
		msg = uploadErr.Error()
	}
	if err := u.store.RecordUploadAttempt(ctx, resp.ID, at, msg); err != nil {
		slog.Error("could not record partner upload attempt", "response", resp.ID, "error", err)
	}

	if uploadErr != nil {
		return fmt.Errorf("partner upload %s: %w", resp.ID, uploadErr)
	}

	if err := u.store.MarkExported(ctx, []string{resp.ID}, at); err != nil {
		return fmt.Errorf("partner upload %s: %w", resp.ID, err)
	}
	slog.Info("partner upload succeeded", "response", resp.ID, "partner_event", event.PartnerEventID)
	return nil
}

func (u *Uploader) upload(ctx context.Context, event model.Event, resp model.Response) error {
	rec, vehicles, err := MapResponse(event, resp)
	if err != nil {
		return err
	}
	if err := u.api.UploadSurveys(ctx, []SurveyRecord{rec}); err != nil {
		return err
	}
	if len(vehicles) > 0 {
		if err := u.api.InsertVehicles(ctx, vehicles); err != nil {
			return err
		}
	}
	return nil
}

// Handle executes a partner-upload retry task.
func (u *Uploader) Handle(ctx context.Context, task queue.Task) error {
	name := queue.TaskName(ctx)

	var p UploadPayload
	if err := task.Decode(&p); err != nil {
		return queue.Permanent(fmt.Errorf("partner upload: %w", err))
	}
	if p.ResponseID == "" {
		slog.Warn("partner upload skipped: no response id", "task", name)
		return nil
	}

	resp, err := u.store.GetResponse(ctx, p.ResponseID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("partner upload skipped: response not found", "task", name, "response", p.ResponseID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("partner upload %s: %w", p.ResponseID, err)
	}
	if resp.Exported != nil {
		slog.Debug("partner upload skipped: already exported", "task", name, "response", p.ResponseID)
		return nil
	}

	event, err := u.store.GetEvent(ctx, resp.EventID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("partner upload skipped: event not found", "task", name, "event", resp.EventID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("partner upload %s: %w", p.ResponseID, err)
	}
	if !event.HasPartner() {
		slog.Warn("partner upload skipped: event has no partner", "task", name, "event", event.ID)
		return nil
	}

	return u.UploadResponse(ctx, event, resp)
}
