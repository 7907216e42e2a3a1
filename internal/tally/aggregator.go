package tally

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/roach88/surveyops/internal/model"
	"github.com/roach88/surveyops/internal/queue"
)

// MaxJitter bounds the random delay before a deferred increment runs.
const MaxJitter = 60 * time.Second

// ErrNoResults is returned by Updater when an increment arrives for an
// event whose results were never bootstrapped.
var ErrNoResults = errors.New("results not bootstrapped")

// ResultsStore is the store surface the aggregation pipeline needs.
type ResultsStore interface {
	ReadResults(ctx context.Context, eventID string) (*model.Results, error)
	BootstrapResults(ctx context.Context, eventID string, questions []string, keys []model.TallyKey) (bool, error)
	IncrementResults(ctx context.Context, eventID string, keys []model.TallyKey) error
}

// UpdatePayload is the update-reporting task body.
type UpdatePayload struct {
	EventID  string         `json:"eventId"`
	Response model.Response `json:"response"`
}

// Outcome reports which path Record took.
type Outcome struct {
	Bootstrapped bool
	// Deferred is the update-reporting task, set when the increment was
	// handed to the queue.
	Deferred *queue.Task
}

// Aggregator decides between bootstrap and deferred increment for each
// new response.
type Aggregator struct {
	store  ResultsStore
	queue  queue.Enqueuer
	jitter func() time.Duration
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithJitter overrides the random increment delay (tests).
func WithJitter(f func() time.Duration) AggregatorOption {
	return func(a *Aggregator) { a.jitter = f }
}

// NewAggregator creates an aggregator.
func NewAggregator(store ResultsStore, q queue.Enqueuer, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		store:  store,
		queue:  q,
		jitter: randomJitter,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func randomJitter() time.Duration {
	return time.Duration(rand.Int63n(int64(MaxJitter)))
}

// Record tabulates one response. When the event has no results yet it
// bootstraps them synchronously; otherwise (or when the bootstrap race is
// lost) it enqueues an update-reporting task and mutates nothing.
func (a *Aggregator) Record(ctx context.Context, event model.Event, resp model.Response) (Outcome, error) {
	if event.Results == nil {
		questions := TabulableQuestions(event.Questions)
		keys := Count(questions, resp.Answers)

		inserted, err := a.store.BootstrapResults(ctx, event.ID, questions, keys)
		if err != nil {
			return Outcome{}, fmt.Errorf("record response %s: %w", resp.ID, err)
		}
		if inserted {
			slog.Info("results bootstrapped",
				"event", event.ID,
				"response", resp.ID,
				"questions", len(questions),
				"buckets", len(keys),
			)
			return Outcome{Bootstrapped: true}, nil
		}
		slog.Debug("results bootstrap lost race, deferring", "event", event.ID, "response", resp.ID)
	}

	delay := a.jitter()
	task, err := a.queue.Enqueue(ctx, queue.UpdateReporting, UpdatePayload{
		EventID:  event.ID,
		Response: resp,
	}, queue.EnqueueOptions{Delay: delay})
	if err != nil {
		return Outcome{}, fmt.Errorf("record response %s: %w", resp.ID, err)
	}

	slog.Debug("results increment deferred", "event", event.ID, "response", resp.ID, "delay", delay)
	return Outcome{Deferred: &task}, nil
}

// Updater executes update-reporting tasks.
type Updater struct {
	store ResultsStore
}

// NewUpdater creates the update-reporting executor.
func NewUpdater(store ResultsStore) *Updater {
	return &Updater{store: store}
}

// Handle applies one deferred increment. The tracked questions are re-read
// from the stored results so later schema edits never change what counts.
func (u *Updater) Handle(ctx context.Context, task queue.Task) error {
	var p UpdatePayload
	if err := task.Decode(&p); err != nil {
		return queue.Permanent(fmt.Errorf("update reporting: %w", err))
	}
	if p.EventID == "" {
		slog.Warn("update reporting: payload has no event id", "task", queue.TaskName(ctx))
		return nil
	}

	results, err := u.store.ReadResults(ctx, p.EventID)
	if err != nil {
		return fmt.Errorf("update reporting %s: %w", p.EventID, err)
	}
	if results == nil {
		return fmt.Errorf("update reporting %s: %w", p.EventID, ErrNoResults)
	}

	keys := Count(results.Questions, p.Response.Answers)
	if err := u.store.IncrementResults(ctx, p.EventID, keys); err != nil {
		return fmt.Errorf("update reporting %s: %w", p.EventID, err)
	}

	slog.Info("results incremented",
		"task", queue.TaskName(ctx),
		"event", p.EventID,
		"response", p.Response.ID,
		"buckets", len(keys),
	)
	return nil
}
