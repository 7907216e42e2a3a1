// Package queue implements the durable task dispatcher and the worker that
// drains it.
//
// ARCHITECTURE:
//
// Dispatcher:
// Enqueue() validates the queue name, serializes the payload, stamps the
// queue's fixed retry policy onto the task, and commits it to the store.
// It never runs the task inline. A buffered wake signal tells a local
// worker that new work may be due.
//
// Worker:
// One poll loop per process. For each registered queue it acquires as many
// slots as the queue's concurrency cap allows, claims that many due tasks,
// and runs each handler in its own goroutine. A handler that returns nil
// consumes the task (row deleted). An error reschedules the task with
// exponential backoff until MaxAttempts is reached, after which the task is
// marked failed and logged at error level.
//
// CRITICAL PATTERNS:
//
// At-least-once delivery:
// Tasks left running by a crashed worker are reset to pending when the next
// worker starts. Every handler must tolerate being re-run with the same
// payload.
//
// Policy at the queue, not the call:
// Retry budget, backoff and concurrency are fixed per queue name in
// DefaultPolicies. Callers only choose when a task becomes due.
package queue
