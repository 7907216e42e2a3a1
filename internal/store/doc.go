// Package store provides SQLite-backed durable storage for surveyops.
//
// The store plays two roles:
//   - Document store: events, survey responses and per-event result tallies
//   - Durable task queue: the tasks table drained by internal/queue
//
// # Critical Patterns
//
// Bootstrap guard:
//   - results(event_id) PRIMARY KEY; bootstrap inserts with ON CONFLICT DO NOTHING
//   - A lost race reports inserted=false and writes nothing else
//
// Atomic increments:
//   - Tallies are only ever changed by `count = count + 1` upserts
//   - No read-modify-write of the tally document
//
// At-least-once tasks:
//   - Claimed tasks move to status running; ResetRunningTasks returns them to
//     pending after a crash
//   - Completed tasks are deleted, exhausted tasks are kept as failed
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// All timestamps are stored as unix milliseconds.
package store
