package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/surveyops/internal/email"
	"github.com/roach88/surveyops/internal/model"
	"github.com/roach88/surveyops/internal/queue"
	"github.com/roach88/surveyops/internal/store"
	"github.com/roach88/surveyops/internal/testutil"
)

var checkoutTime = time.Date(2026, 6, 1, 18, 30, 0, 0, time.UTC)

type fixture struct {
	store *store.Store
	queue *testutil.RecordingEnqueuer
	exec  *Executor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "checkout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.PutEvent(ctx, model.Event{ID: "pre-1", Name: "Test Drive"}))
	require.NoError(t, s.PutEvent(ctx, model.Event{ID: "post-1", Name: "Test Drive Follow-up", PartnerEventID: "P9"}))
	require.NoError(t, s.PutResponse(ctx, model.Response{
		ID:      "r1",
		EventID: "pre-1",
		Answers: map[string]model.Answer{
			"email": model.Scalar("ada@example.com"),
			"first": model.Scalar("Ada"),
		},
	}))

	q := &testutil.RecordingEnqueuer{}
	clock := testutil.NewClock(checkoutTime)
	return fixture{
		store: s,
		queue: q,
		exec:  NewExecutor(s, q, "https://survey.example.com/", WithClock(clock.Now)),
	}
}

func payloadTask(t *testing.T, p Payload) queue.Task {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return queue.Task{ID: "t1", Queue: string(queue.AutoCheckout), Payload: raw}
}

func TestSurveyURL(t *testing.T) {
	assert.Equal(t, "https://s.example.com/post-1?pre=r1", SurveyURL("https://s.example.com/", "post-1", "r1"))
	assert.Equal(t, "https://s.example.com/post-1?pre=a%26b", SurveyURL("https://s.example.com", "post-1", "a&b"))
}

func TestExecutor_ChecksOutAndQueuesEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.exec.Handle(ctx, payloadTask(t, Payload{
		PreEventID:  "pre-1",
		ResponseID:  "r1",
		PostEventID: "post-1",
		Template:    "checkout-tpl",
	}))
	require.NoError(t, err)

	resp, err := f.store.GetResponse(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, resp.CheckedOut)
	assert.True(t, checkoutTime.Equal(*resp.CheckedOut))

	tasks := f.queue.ByQueue(queue.SendCheckoutEmail)
	require.Len(t, tasks, 1)

	var p email.Payload
	require.NoError(t, tasks[0].Decode(&p))
	assert.Equal(t, "checkout-tpl", p.Template)
	assert.Equal(t, "ada@example.com", p.Recipient)
	assert.Equal(t, "https://survey.example.com/post-1?pre=r1", p.SubstitutionData["surveyUrl"])

	ev, ok := p.SubstitutionData["event"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "post-1", ev["id"])
	assert.Equal(t, "FE-P9", email.CampaignID(p.SubstitutionData))

	r, ok := p.SubstitutionData["response"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ada", r["first"])
}

func TestExecutor_NoTemplateOnlyChecksOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.exec.Handle(ctx, payloadTask(t, Payload{PreEventID: "pre-1", ResponseID: "r1"})))

	resp, err := f.store.GetResponse(ctx, "r1")
	require.NoError(t, err)
	assert.NotNil(t, resp.CheckedOut)
	assert.Empty(t, f.queue.Tasks())
}

func TestExecutor_MissingPostEventIsSwallowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.exec.Handle(ctx, payloadTask(t, Payload{
		PreEventID:  "pre-1",
		ResponseID:  "r1",
		PostEventID: "does-not-exist",
		Template:    "checkout-tpl",
	}))
	require.NoError(t, err)

	resp, err := f.store.GetResponse(ctx, "r1")
	require.NoError(t, err)
	assert.NotNil(t, resp.CheckedOut, "checkout still happens")
	assert.Empty(t, f.queue.Tasks())
}

func TestExecutor_UnknownResponseFails(t *testing.T) {
	f := newFixture(t)

	err := f.exec.Handle(context.Background(), payloadTask(t, Payload{PreEventID: "pre-1", ResponseID: "ghost"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.True(t, queue.IsPermanent(err))
}

type failingStore struct {
	Store
}

func (failingStore) MarkCheckedOut(context.Context, string, time.Time) error {
	return errors.New("database is locked")
}

func TestExecutor_MarkFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	exec := NewExecutor(failingStore{Store: f.store}, f.queue, "https://survey.example.com")

	err := exec.Handle(context.Background(), payloadTask(t, Payload{ResponseID: "r1", PostEventID: "post-1", Template: "x"}))
	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err))
	assert.Empty(t, f.queue.Tasks())
}

func TestExecutor_EnqueueFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.queue.Err = errors.New("queue down")

	err := f.exec.Handle(context.Background(), payloadTask(t, Payload{ResponseID: "r1", PostEventID: "post-1", Template: "x"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue down")
}

func TestExecutor_EmptyResponseIDSkipped(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.exec.Handle(context.Background(), payloadTask(t, Payload{PreEventID: "pre-1"})))
}
