package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/roach88/surveyops/internal/model"
)

// DefaultPollInterval is how often the worker looks for due tasks when no
// wake signal arrives.
const DefaultPollInterval = time.Second

// TaskStore is the store surface the worker needs.
type TaskStore interface {
	ClaimDueTasks(ctx context.Context, queue string, now time.Time, limit int) ([]model.Task, error)
	DeleteTask(ctx context.Context, id string) error
	RescheduleTask(ctx context.Context, id string, attempts int, notBefore time.Time, lastErr string) error
	FailTask(ctx context.Context, id string, attempts int, lastErr string) error
	ResetRunningTasks(ctx context.Context) (int64, error)
}

// Handler executes one task invocation.
// Returning nil consumes the task; returning an error schedules a retry
// (or terminal failure once attempts are exhausted).
type Handler interface {
	Handle(ctx context.Context, task Task) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task Task) error

// Handle calls f(ctx, task).
func (f HandlerFunc) Handle(ctx context.Context, task Task) error {
	return f(ctx, task)
}

type taskNameKey struct{}

// TaskName returns the logical name of the task being executed,
// "<queue>/<id>#<attempt>", or "" outside a handler.
func TaskName(ctx context.Context) string {
	name, _ := ctx.Value(taskNameKey{}).(string)
	return name
}

// WithTaskName attaches a logical task name to ctx. The worker does this
// for every invocation; HTTP dispatch endpoints do it for direct calls.
func WithTaskName(ctx context.Context, task Task, attempt int) context.Context {
	return context.WithValue(ctx, taskNameKey{}, fmt.Sprintf("%s/%s#%d", task.Queue, task.ID, attempt))
}

// Worker drains due tasks from the store and runs their handlers.
//
// Thread-safety model:
//   - Register(): call before Run/RunOnce
//   - Run(): must be called from exactly one goroutine
//   - handlers run concurrently, bounded per queue by Policy.MaxConcurrent
type Worker struct {
	store        TaskStore
	handlers     map[Name]Handler
	policies     map[Name]Policy
	sems         map[Name]*semaphore.Weighted
	now          func() time.Time
	pollInterval time.Duration
	wake         <-chan struct{}
	wg           sync.WaitGroup
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerClock overrides the wall clock used to decide due tasks.
func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

// WithPollInterval sets the idle poll interval.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.pollInterval = d }
}

// WithWake lets a local dispatcher wake the worker early.
func WithWake(ch <-chan struct{}) WorkerOption {
	return func(w *Worker) { w.wake = ch }
}

// WithWorkerPolicies replaces DefaultPolicies.
func WithWorkerPolicies(p map[Name]Policy) WorkerOption {
	return func(w *Worker) { w.policies = p }
}

// NewWorker creates a worker with no handlers registered.
func NewWorker(store TaskStore, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:        store,
		handlers:     make(map[Name]Handler),
		policies:     DefaultPolicies,
		sems:         make(map[Name]*semaphore.Weighted),
		now:          time.Now,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Register binds a handler to a queue. Tasks of unregistered queues are
// never claimed by this worker.
func (w *Worker) Register(name Name, h Handler) {
	limit := int64(1)
	if p, ok := w.policies[name]; ok && p.MaxConcurrent > 0 {
		limit = int64(p.MaxConcurrent)
	}
	w.handlers[name] = h
	w.sems[name] = semaphore.NewWeighted(limit)
}

// Queues returns the registered queue names in sorted order.
func (w *Worker) Queues() []Name {
	names := make([]Name, 0, len(w.handlers))
	for name := range w.handlers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Run polls for due tasks until ctx is cancelled, then waits for in-flight
// handlers to finish. Tasks left running by a previous process are reset to
// pending first.
func (w *Worker) Run(ctx context.Context) error {
	n, err := w.store.ResetRunningTasks(ctx)
	if err != nil {
		return fmt.Errorf("worker start: %w", err)
	}
	slog.Info("worker starting", "queues", len(w.handlers), "reset_tasks", n)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.poll(ctx); err != nil && ctx.Err() == nil {
			slog.Error("worker poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("worker stopping: context cancelled")
			w.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// RunOnce claims every currently due task (up to each queue's concurrency
// cap), runs them, and waits for them to finish. Returns the number of
// tasks dispatched.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	n, err := w.poll(ctx)
	w.wg.Wait()
	return n, err
}

// Drain calls RunOnce until no due task remains.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := w.RunOnce(ctx)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
	}
}

// poll dispatches due tasks for every registered queue.
func (w *Worker) poll(ctx context.Context) (int, error) {
	dispatched := 0
	for _, name := range w.Queues() {
		n, err := w.pollQueue(ctx, name)
		dispatched += n
		if err != nil {
			return dispatched, err
		}
	}
	return dispatched, nil
}

func (w *Worker) pollQueue(ctx context.Context, name Name) (int, error) {
	sem := w.sems[name]

	// Reserve every free slot, then claim at most that many tasks.
	slots := 0
	for sem.TryAcquire(1) {
		slots++
	}
	if slots == 0 {
		return 0, nil
	}

	tasks, err := w.store.ClaimDueTasks(ctx, string(name), w.now(), slots)
	if err != nil {
		sem.Release(int64(slots))
		return 0, fmt.Errorf("claim %s: %w", name, err)
	}
	if unused := slots - len(tasks); unused > 0 {
		sem.Release(int64(unused))
	}

	// Handlers outlive a shutdown signal so a claimed task is never
	// abandoned half-way.
	taskCtx := context.WithoutCancel(ctx)
	for _, t := range tasks {
		w.wg.Add(1)
		go func(t Task) {
			defer w.wg.Done()
			defer sem.Release(1)
			w.execute(taskCtx, name, t)
		}(t)
	}

	return len(tasks), nil
}

// execute runs one attempt and records its outcome.
func (w *Worker) execute(ctx context.Context, name Name, t Task) {
	attempt := t.Attempts + 1
	ctx = WithTaskName(ctx, t, attempt)
	taskName := TaskName(ctx)

	slog.Debug("task started", "task", taskName)

	err := w.invoke(ctx, w.handlers[name], t)
	if err == nil {
		if derr := w.store.DeleteTask(ctx, t.ID); derr != nil {
			// The task will be re-run after a restart; handlers are idempotent.
			slog.Error("task completed but could not be removed", "task", taskName, "error", derr)
			return
		}
		slog.Info("task completed", "task", taskName)
		return
	}

	maxAttempts := t.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = w.policies[name].MaxAttempts
	}

	if IsPermanent(err) || attempt >= maxAttempts {
		if ferr := w.store.FailTask(ctx, t.ID, attempt, err.Error()); ferr != nil {
			slog.Error("could not mark task failed", "task", taskName, "error", ferr)
		}
		slog.Error("task failed permanently",
			"task", taskName,
			"attempts", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)
		return
	}

	backoff := Backoff(t.MinBackoff, attempt)
	retryAt := w.now().Add(backoff)
	if rerr := w.store.RescheduleTask(ctx, t.ID, attempt, retryAt, err.Error()); rerr != nil {
		slog.Error("could not reschedule task", "task", taskName, "error", rerr)
		return
	}
	slog.Warn("task attempt failed, retrying",
		"task", taskName,
		"attempt", attempt,
		"retry_in", backoff,
		"error", err,
	)
}

// invoke calls the handler, converting a panic into an error so one bad
// payload cannot take the worker down.
func (w *Worker) invoke(ctx context.Context, h Handler, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, t)
}
