package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/surveyops/internal/queue"
)

// EnqueuedTask is one call captured by RecordingEnqueuer.
type EnqueuedTask struct {
	Queue     queue.Name
	Payload   json.RawMessage
	NotBefore time.Time
	Delay     time.Duration
}

// Decode unmarshals the captured payload into v.
func (e EnqueuedTask) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Task rebuilds the queued task so a test can hand it to an executor.
func (e EnqueuedTask) Task() queue.Task {
	return queue.Task{
		ID:        "recorded",
		Queue:     string(e.Queue),
		Payload:   e.Payload,
		NotBefore: e.NotBefore,
	}
}

// RecordingEnqueuer implements queue.Enqueuer by recording every call.
// Set Err to make every Enqueue fail.
//
// Thread-safety: safe for concurrent use via internal mutex.
type RecordingEnqueuer struct {
	mu    sync.Mutex
	tasks []EnqueuedTask
	Err   error
}

var _ queue.Enqueuer = (*RecordingEnqueuer)(nil)

// Enqueue records the call and returns a synthetic task.
func (r *RecordingEnqueuer) Enqueue(_ context.Context, name queue.Name, payload any, opts queue.EnqueueOptions) (queue.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return queue.Task{}, r.Err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return queue.Task{}, err
	}

	r.tasks = append(r.tasks, EnqueuedTask{
		Queue:     name,
		Payload:   data,
		NotBefore: opts.NotBefore,
		Delay:     opts.Delay,
	})

	return queue.Task{
		ID:        fmt.Sprintf("task-%d", len(r.tasks)),
		Queue:     string(name),
		Payload:   data,
		NotBefore: opts.NotBefore,
	}, nil
}

// Tasks returns a copy of everything enqueued so far.
func (r *RecordingEnqueuer) Tasks() []EnqueuedTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EnqueuedTask, len(r.tasks))
	copy(out, r.tasks)
	return out
}

// ByQueue returns the recorded tasks for one queue.
func (r *RecordingEnqueuer) ByQueue(name queue.Name) []EnqueuedTask {
	var out []EnqueuedTask
	for _, t := range r.Tasks() {
		if t.Queue == name {
			out = append(out, t)
		}
	}
	return out
}
