package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a queued task.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskFailed  TaskStatus = "failed"
)

// Task is a durable unit of deferred work addressed to one executor queue.
// Completed tasks are deleted; tasks that exhaust their attempts stay behind
// with status failed so an operator can inspect them.
type Task struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	NotBefore   time.Time       `json:"notBefore"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	MinBackoff  time.Duration   `json:"minBackoff"`
	Status      TaskStatus      `json:"status"`
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Decode unmarshals the task payload into v.
func (t Task) Decode(v any) error {
	if len(t.Payload) == 0 {
		return fmt.Errorf("decode %s payload: empty", t.Queue)
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", t.Queue, err)
	}
	return nil
}
