package email

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/surveyops/internal/model"
	"github.com/roach88/surveyops/internal/queue"
)

type fakeTransmitter struct {
	mu   sync.Mutex
	sent []Transmission
	err  error
}

func (f *fakeTransmitter) Send(_ context.Context, t Transmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, t)
	return f.err
}

func emailTask(t *testing.T, p Payload) queue.Task {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return queue.Task{ID: "t1", Queue: string(queue.SendConfirmationEmail), Payload: raw}
}

func TestSender_SendsWithCampaignID(t *testing.T) {
	tests := []struct {
		name  string
		event map[string]any
		check func(t *testing.T, id string)
	}{
		{
			name:  "partner event",
			event: map[string]any{"id": "evt-1", "partnerEventId": "777"},
			check: func(t *testing.T, id string) { assert.Equal(t, "FE-777", id) },
		},
		{
			name:  "internal event",
			event: map[string]any{"id": "evt-1"},
			check: func(t *testing.T, id string) { assert.True(t, strings.HasPrefix(id, "EX-"), id) },
		},
		{
			name:  "no event",
			event: nil,
			check: func(t *testing.T, id string) { assert.Empty(t, id) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransmitter{}
			data := map[string]any{"first": "Ada"}
			if tt.event != nil {
				data["event"] = tt.event
			}

			err := NewSender(ft, Policy{}).Handle(context.Background(), emailTask(t, Payload{
				Template:         "confirm",
				Recipient:        "a@example.com",
				SubstitutionData: data,
			}))
			require.NoError(t, err)
			require.Len(t, ft.sent, 1)
			assert.Equal(t, "confirm", ft.sent[0].TemplateID)
			assert.Equal(t, "a@example.com", ft.sent[0].Recipient)
			assert.Equal(t, "Ada", ft.sent[0].SubstitutionData["first"])
			tt.check(t, ft.sent[0].CampaignID)
		})
	}
}

func TestSender_MissingRecipientSucceeds(t *testing.T) {
	ft := &fakeTransmitter{}
	err := NewSender(ft, Policy{}).Handle(context.Background(), emailTask(t, Payload{Template: "confirm"}))
	require.NoError(t, err)
	assert.Empty(t, ft.sent)
}

func TestSender_ProviderErrorPolicy(t *testing.T) {
	rejection := &ProviderError{StatusCode: 422, Errors: []ProviderErrorDetail{{Message: "template not found"}}}
	task := emailTask(t, Payload{Template: "missing", Recipient: "a@example.com"})

	// Default: logged, task consumed.
	err := NewSender(&fakeTransmitter{err: rejection}, Policy{}).Handle(context.Background(), task)
	assert.NoError(t, err)

	// Strict: returned for retry.
	err = NewSender(&fakeTransmitter{err: rejection}, Policy{TreatProviderErrorAsFailure: true}).Handle(context.Background(), task)
	require.Error(t, err)
	assert.True(t, IsProviderError(err))
	assert.False(t, queue.IsPermanent(err))
}

func TestSender_TransportErrorIsRetryable(t *testing.T) {
	ft := &fakeTransmitter{err: errors.New("connection reset")}
	err := NewSender(ft, Policy{}).Handle(context.Background(), emailTask(t, Payload{Template: "t", Recipient: "a@example.com"}))
	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err))
}

func TestSender_MalformedPayload(t *testing.T) {
	err := NewSender(&fakeTransmitter{}, Policy{}).Handle(context.Background(), queue.Task{Payload: json.RawMessage(`"nope"`)})
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
}

func TestSubstitutionData(t *testing.T) {
	start := time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC)
	event := model.Event{ID: "evt-1", Name: "Spring Drive", PartnerEventID: "P1", StartDate: &start}
	resp := model.Response{ID: "r1", Answers: map[string]model.Answer{
		"first":    model.Scalar("Ada"),
		"vehicles": model.List("A", "B"),
		"skip":     {},
	}}

	data := SubstitutionData(event, resp, map[string]any{"dealer": "Main St", "event": "ignored"}, map[string]any{"surveyUrl": "https://x"})

	assert.Equal(t, "Main St", data["dealer"])
	assert.Equal(t, "https://x", data["surveyUrl"])
	assert.Equal(t, map[string]any{
		"id":             "evt-1",
		"name":           "Spring Drive",
		"partnerEventId": "P1",
		"startDate":      "2026-06-01T14:00:00Z",
	}, data["event"])
	assert.Equal(t, map[string]any{"id": "r1", "first": "Ada", "vehicles": "A,B"}, data["response"])
	assert.Equal(t, "FE-P1", CampaignID(data))
}
