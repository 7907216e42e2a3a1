package partner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/surveyops/internal/model"
	"github.com/roach88/surveyops/internal/store"
	"github.com/roach88/surveyops/internal/testutil"
)

var batchTime = time.Date(2026, 6, 2, 6, 0, 0, 0, time.UTC)

func tp(t time.Time) *time.Time { return &t }

// seedBatch stores two in-window partner events with three un-exported
// responses each, plus noise the batch must ignore.
func seedBatch(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()

	start := batchTime.Add(-36 * time.Hour)
	end := batchTime.Add(-30 * time.Hour)
	for i := 1; i <= 2; i++ {
		require.NoError(t, s.PutEvent(ctx, model.Event{
			ID:             fmt.Sprintf("evt-%d", i),
			BrandID:        "brand-a",
			PartnerEventID: fmt.Sprintf("P%d", i),
			StartDate:      &start,
			EndDate:        &end,
		}))
		for j := 1; j <= 3; j++ {
			require.NoError(t, s.PutResponse(ctx, model.Response{
				ID:        fmt.Sprintf("evt-%d-r%d", i, j),
				EventID:   fmt.Sprintf("evt-%d", i),
				CreatedAt: start.Add(time.Duration(j) * time.Minute),
				Answers: map[string]model.Answer{
					KeyEmail:    model.Scalar(fmt.Sprintf("r%d@example.com", j)),
					KeyVehicles: model.List("bronco"),
				},
			}))
		}
	}

	// Already exported response on an in-window event.
	require.NoError(t, s.PutResponse(ctx, model.Response{
		ID: "evt-1-old", EventID: "evt-1", CreatedAt: start, Exported: tp(start),
	}))

	// Another brand's event.
	require.NoError(t, s.PutEvent(ctx, model.Event{
		ID: "other-brand", BrandID: "brand-b", PartnerEventID: "X", StartDate: &start, EndDate: &end,
	}))
	require.NoError(t, s.PutResponse(ctx, model.Response{ID: "other-r1", EventID: "other-brand", CreatedAt: start}))

	// Out of window.
	oldStart := batchTime.Add(-30 * 24 * time.Hour)
	oldEnd := oldStart.Add(8 * time.Hour)
	require.NoError(t, s.PutEvent(ctx, model.Event{
		ID: "stale", BrandID: "brand-a", PartnerEventID: "S", StartDate: &oldStart, EndDate: &oldEnd,
	}))
	require.NoError(t, s.PutResponse(ctx, model.Response{ID: "stale-r1", EventID: "stale", CreatedAt: oldStart}))
}

func assertExported(t *testing.T, s *store.Store, want bool) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		for j := 1; j <= 3; j++ {
			r, err := s.GetResponse(ctx, fmt.Sprintf("evt-%d-r%d", i, j))
			require.NoError(t, err)
			if want {
				require.NotNil(t, r.Exported, r.ID)
				assert.True(t, batchTime.Equal(*r.Exported), r.ID)
			} else {
				assert.Nil(t, r.Exported, r.ID)
			}
		}
	}
}

func TestBatcher_CombinedUpload(t *testing.T) {
	s := openStore(t)
	seedBatch(t, s)
	api := &fakeAPI{}
	b := NewBatcher(s, api, "brand-a", WithBatchClock(testutil.NewClock(batchTime).Now))

	report, err := b.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, api.surveyCalls, 1, "one combined survey call")
	assert.Len(t, api.surveyCalls[0], 6)
	require.Len(t, api.vehicleCalls, 1)
	assert.Len(t, api.vehicleCalls[0], 6)

	assert.Equal(t, 2, report.Events)
	assert.Equal(t, 6, report.Surveys)
	assert.Equal(t, 6, report.Marked)
	assert.Empty(t, report.UploadError)
	assertExported(t, s, true)

	// Second run finds nothing.
	report, err = b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Surveys)
	assert.Len(t, api.surveyCalls, 1)
}

func TestBatcher_FailureStillMarksByDefault(t *testing.T) {
	s := openStore(t)
	seedBatch(t, s)
	api := &fakeAPI{surveyErr: errors.New("connection refused")}
	b := NewBatcher(s, api, "brand-a", WithBatchClock(testutil.NewClock(batchTime).Now))

	report, err := b.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, api.surveyCalls, 1)
	assert.Len(t, api.surveyCalls[0], 6)
	assert.Empty(t, api.vehicleCalls, "vehicles are not sent after a failed survey call")
	assert.Contains(t, report.UploadError, "connection refused")
	assert.Equal(t, 6, report.Marked)
	assertExported(t, s, true)
}

func TestBatcher_StrictPolicyLeavesFailuresForNextRun(t *testing.T) {
	s := openStore(t)
	seedBatch(t, s)
	api := &fakeAPI{vehicleErr: errors.New("bad vehicle payload")}
	b := NewBatcher(s, api, "brand-a",
		WithBatchClock(testutil.NewClock(batchTime).Now),
		WithExportPolicy(ExportPolicy{MarkExportedOnFailure: false}),
	)

	report, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Marked)
	assert.NotEmpty(t, report.UploadError)
	assertExported(t, s, false)

	api.vehicleErr = nil
	report, err = b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, report.Marked)
	assertExported(t, s, true)
}

func TestBatcher_WindowExcludesOldEvents(t *testing.T) {
	s := openStore(t)
	seedBatch(t, s)
	api := &fakeAPI{}
	b := NewBatcher(s, api, "brand-a",
		WithBatchClock(testutil.NewClock(batchTime).Now),
		WithExportWindow(60*24*time.Hour),
	)

	report, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Events)
	assert.Equal(t, 7, report.Surveys)
}

func TestBatcher_DefersRecentFailedUploads(t *testing.T) {
	tests := []struct {
		name      string
		attempted time.Time
		uploadErr string
		grace     time.Duration
		wantSent  bool
	}{
		{"retry pending", batchTime.Add(-10 * time.Minute), "timeout", DefaultRetryGrace, false},
		{"grace elapsed", batchTime.Add(-2 * time.Hour), "timeout", DefaultRetryGrace, true},
		{"last attempt succeeded", batchTime.Add(-10 * time.Minute), "", DefaultRetryGrace, true},
		{"grace disabled", batchTime.Add(-10 * time.Minute), "timeout", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openStore(t)
			seedBatch(t, s)
			ctx := context.Background()
			require.NoError(t, s.RecordUploadAttempt(ctx, "evt-1-r1", tt.attempted, tt.uploadErr))

			api := &fakeAPI{}
			b := NewBatcher(s, api, "brand-a",
				WithBatchClock(testutil.NewClock(batchTime).Now),
				WithRetryGrace(tt.grace),
			)
			report, err := b.Run(ctx)
			require.NoError(t, err)

			got, err := s.GetResponse(ctx, "evt-1-r1")
			require.NoError(t, err)
			if tt.wantSent {
				assert.Equal(t, 6, report.Surveys)
				assert.Zero(t, report.Deferred)
				assert.NotNil(t, got.Exported)
			} else {
				assert.Equal(t, 5, report.Surveys)
				assert.Equal(t, 1, report.Deferred)
				assert.Nil(t, got.Exported, "left for the queued retry")
			}
		})
	}
}
