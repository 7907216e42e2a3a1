package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/surveyops/internal/model"
)

// TaskWriter is the store surface the dispatcher needs.
type TaskWriter interface {
	InsertTask(ctx context.Context, t model.Task) error
}

// Enqueuer is implemented by Dispatcher. Components that schedule work
// depend on this interface rather than the concrete dispatcher.
type Enqueuer interface {
	Enqueue(ctx context.Context, name Name, payload any, opts EnqueueOptions) (Task, error)
}

// EnqueueOptions chooses when a task becomes due.
// NotBefore wins over Delay; the zero value means "now".
type EnqueueOptions struct {
	NotBefore time.Time
	Delay     time.Duration
}

// Dispatcher records tasks durably. It never executes them.
type Dispatcher struct {
	store    TaskWriter
	ids      IDGenerator
	now      func() time.Time
	policies map[Name]Policy
	wake     *wakeSignal
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithIDGenerator overrides the task id generator (tests).
func WithIDGenerator(g IDGenerator) DispatcherOption {
	return func(d *Dispatcher) { d.ids = g }
}

// WithDispatchClock overrides the wall clock used to compute due times.
func WithDispatchClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// WithDispatchPolicies replaces DefaultPolicies.
func WithDispatchPolicies(p map[Name]Policy) DispatcherOption {
	return func(d *Dispatcher) { d.policies = p }
}

// NewDispatcher creates a dispatcher writing to the given store.
func NewDispatcher(store TaskWriter, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		ids:      UUIDv7Generator{},
		now:      time.Now,
		policies: DefaultPolicies,
		wake:     newWakeSignal(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue durably records a task for the named queue and returns it.
// The payload is JSON-encoded; its shape is the executor's business.
func (d *Dispatcher) Enqueue(ctx context.Context, name Name, payload any, opts EnqueueOptions) (Task, error) {
	policy, ok := d.policies[name]
	if !ok {
		return Task{}, fmt.Errorf("enqueue %s: %w", name, ErrUnknownQueue)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("enqueue %s: marshal payload: %w", name, err)
	}

	now := d.now()
	notBefore := opts.NotBefore
	if notBefore.IsZero() {
		delay := opts.Delay
		if delay < 0 {
			delay = 0
		}
		notBefore = now.Add(delay)
	}

	t := Task{
		ID:          d.ids.Generate(),
		Queue:       string(name),
		Payload:     data,
		NotBefore:   notBefore,
		MaxAttempts: policy.MaxAttempts,
		MinBackoff:  policy.MinBackoff,
		Status:      model.TaskPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := d.store.InsertTask(ctx, t); err != nil {
		return Task{}, fmt.Errorf("enqueue %s: %w", name, err)
	}

	slog.Debug("task enqueued",
		"queue", name,
		"task_id", t.ID,
		"not_before", t.NotBefore,
	)

	d.wake.Notify()
	return t, nil
}

// Wake returns a channel that receives after each successful Enqueue.
// Pass it to a local worker with WithWake.
func (d *Dispatcher) Wake() <-chan struct{} {
	return d.wake.Wait()
}
