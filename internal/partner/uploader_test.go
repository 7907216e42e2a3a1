package partner

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/surveyops/internal/model"
	"github.com/roach88/surveyops/internal/queue"
	"github.com/roach88/surveyops/internal/testutil"
)

var uploadTime = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func seedPartnerResponse(t *testing.T, s interface {
	PutEvent(context.Context, model.Event) error
	PutResponse(context.Context, model.Response) error
}) (model.Event, model.Response) {
	t.Helper()
	ctx := context.Background()
	event := model.Event{ID: "evt-1", BrandID: "brand-a", PartnerEventID: "88123"}
	resp := model.Response{
		ID:      "r1",
		EventID: "evt-1",
		Answers: map[string]model.Answer{
			KeyEmail:    model.Scalar("a@example.com"),
			KeyVehicles: model.List("bronco"),
		},
		CreatedAt: uploadTime.Add(-time.Minute),
	}
	require.NoError(t, s.PutEvent(ctx, event))
	require.NoError(t, s.PutResponse(ctx, resp))
	return event, resp
}

func TestUploader_Success(t *testing.T) {
	s := openStore(t)
	api := &fakeAPI{}
	clock := testutil.NewClock(uploadTime)
	u := NewUploader(s, api, WithUploaderClock(clock.Now))
	ctx := context.Background()

	event, resp := seedPartnerResponse(t, s)
	require.NoError(t, u.UploadResponse(ctx, event, resp))

	require.Len(t, api.surveyCalls, 1)
	require.Len(t, api.surveyCalls[0], 1)
	require.Len(t, api.vehicleCalls, 1)

	got, err := s.GetResponse(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got.Exported)
	assert.True(t, uploadTime.Equal(*got.Exported))
	require.NotNil(t, got.UploadAttemptedAt)
	assert.Empty(t, got.UploadError)
}

func TestUploader_FailureIsRecorded(t *testing.T) {
	s := openStore(t)
	api := &fakeAPI{surveyErr: errors.New("502 bad gateway")}
	u := NewUploader(s, api, WithUploaderClock(testutil.NewClock(uploadTime).Now))
	ctx := context.Background()

	event, resp := seedPartnerResponse(t, s)
	err := u.UploadResponse(ctx, event, resp)
	require.Error(t, err)

	got, err := s.GetResponse(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, got.Exported)
	assert.Contains(t, got.UploadError, "502 bad gateway")
	require.NotNil(t, got.UploadAttemptedAt)
	assert.True(t, uploadTime.Equal(*got.UploadAttemptedAt))
	assert.Empty(t, api.vehicleCalls)
}

func uploadTask(t *testing.T, id string) queue.Task {
	t.Helper()
	raw, err := json.Marshal(UploadPayload{ResponseID: id})
	require.NoError(t, err)
	return queue.Task{ID: "t1", Queue: string(queue.PartnerUpload), Payload: raw}
}

func TestUploader_HandleRetriesThenSucceeds(t *testing.T) {
	s := openStore(t)
	api := &fakeAPI{surveyErr: errors.New("timeout")}
	u := NewUploader(s, api)
	ctx := context.Background()
	seedPartnerResponse(t, s)

	require.Error(t, u.Handle(ctx, uploadTask(t, "r1")))

	api.surveyErr = nil
	require.NoError(t, u.Handle(ctx, uploadTask(t, "r1")))

	got, err := s.GetResponse(ctx, "r1")
	require.NoError(t, err)
	assert.NotNil(t, got.Exported)
	assert.Empty(t, got.UploadError, "success clears the previous error")

	// Already exported: nothing more is sent.
	require.NoError(t, u.Handle(ctx, uploadTask(t, "r1")))
	assert.Len(t, api.surveyCalls, 2)
}

func TestUploader_HandleSkipsMissingData(t *testing.T) {
	s := openStore(t)
	api := &fakeAPI{}
	u := NewUploader(s, api)
	ctx := context.Background()

	assert.NoError(t, u.Handle(ctx, uploadTask(t, "ghost")))
	assert.NoError(t, u.Handle(ctx, uploadTask(t, "")))

	require.NoError(t, s.PutEvent(ctx, model.Event{ID: "plain"}))
	require.NoError(t, s.PutResponse(ctx, model.Response{ID: "r2", EventID: "plain"}))
	assert.NoError(t, u.Handle(ctx, uploadTask(t, "r2")))

	assert.Empty(t, api.surveyCalls)
}

func TestUploader_HandleMalformedPayload(t *testing.T) {
	u := NewUploader(openStore(t), &fakeAPI{})
	err := u.Handle(context.Background(), queue.Task{Payload: json.RawMessage(`42`)})
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
}
