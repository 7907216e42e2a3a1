package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/surveyops/internal/model"
)

func TestPutGetResponse_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 5, 2, 15, 4, 5, 0, time.UTC)
	r := model.Response{
		ID:            "resp-1",
		EventID:       "evt-1",
		PreResponseID: "pre-1",
		CreatedAt:     created,
		Answers: map[string]model.Answer{
			"email":  model.Scalar("a@example.com"),
			"models": model.List("Bronco", "F-150"),
		},
	}
	require.NoError(t, s.PutResponse(ctx, r))

	got, err := s.GetResponse(ctx, "resp-1")
	require.NoError(t, err)
	assert.Equal(t, "evt-1", got.EventID)
	assert.Equal(t, "pre-1", got.PreResponseID)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, "a@example.com", got.Email())
	assert.Equal(t, []string{"Bronco", "F-150"}, got.Answer("models").Values())
	assert.Nil(t, got.CheckedIn)
	assert.Nil(t, got.Exported)
}

func TestPutResponse_Duplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := model.Response{ID: "resp-1", EventID: "evt-1"}
	require.NoError(t, s.PutResponse(ctx, r))
	assert.Error(t, s.PutResponse(ctx, r), "responses are created exactly once")
}

func TestResponseMarkers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutResponse(ctx, model.Response{ID: "resp-1", EventID: "evt-1"}))

	at := time.Date(2026, 5, 2, 16, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkCheckedIn(ctx, "resp-1", at))
	require.NoError(t, s.MarkCheckedOut(ctx, "resp-1", at.Add(time.Hour)))
	require.NoError(t, s.MarkUsed(ctx, "resp-1", at))
	require.NoError(t, s.RecordUploadAttempt(ctx, "resp-1", at, "boom"))

	got, err := s.GetResponse(ctx, "resp-1")
	require.NoError(t, err)
	require.NotNil(t, got.CheckedIn)
	assert.True(t, at.Equal(*got.CheckedIn))
	require.NotNil(t, got.CheckedOut)
	assert.True(t, at.Add(time.Hour).Equal(*got.CheckedOut))
	require.NotNil(t, got.Used)
	assert.Equal(t, "boom", got.UploadError)
	require.NotNil(t, got.UploadAttemptedAt)
}

func TestResponseMarkers_NotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	assert.ErrorIs(t, s.MarkCheckedOut(ctx, "missing", now), ErrNotFound)
	assert.ErrorIs(t, s.MarkUsed(ctx, "missing", now), ErrNotFound)
	assert.ErrorIs(t, s.RecordUploadAttempt(ctx, "missing", now, ""), ErrNotFound)

	_, err := s.GetResponse(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnexportedResponses_MarkExported(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, s.PutResponse(ctx, model.Response{
			ID:        id,
			EventID:   "evt-1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.PutResponse(ctx, model.Response{ID: "other", EventID: "evt-2"}))

	pending, err := s.ListUnexportedResponses(ctx, "evt-1")
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "r1", pending[0].ID)

	require.NoError(t, s.MarkExported(ctx, []string{"r1", "r2"}, base))

	pending, err = s.ListUnexportedResponses(ctx, "evt-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "r3", pending[0].ID)

	got, err := s.GetResponse(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got.Exported)
	assert.True(t, base.Equal(*got.Exported))
}

func TestMarkExported_Empty(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.MarkExported(context.Background(), nil, time.Now()))
}
