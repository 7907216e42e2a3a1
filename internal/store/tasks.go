package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/surveyops/internal/model"
)

const taskColumns = `id, queue, payload, not_before, attempts, max_attempts,
	min_backoff_ms, status, last_error, created_at, updated_at`

// InsertTask durably records a pending task.
func (s *Store) InsertTask(ctx context.Context, t model.Task) error {
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	payload := string(t.Payload)
	if payload == "" {
		payload = "null"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		t.Queue,
		payload,
		toMillis(t.NotBefore),
		t.Attempts,
		t.MaxAttempts,
		t.MinBackoff.Milliseconds(),
		string(t.Status),
		t.LastError,
		toMillis(t.CreatedAt),
		toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// ClaimDueTasks moves up to limit pending tasks of one queue whose not_before
// has passed into status running and returns them, earliest first.
func (s *Store) ClaimDueTasks(ctx context.Context, queue string, now time.Time, limit int) ([]model.Task, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim tasks: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	rows, err := tx.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE queue = ? AND status = ? AND not_before <= ?
		ORDER BY not_before ASC, id ASC
		LIMIT ?
	`, queue, string(model.TaskPending), toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("claim tasks: query: %w", err)
	}

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("claim tasks: scan: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("claim tasks: iterate: %w", err)
	}
	rows.Close()

	for i := range tasks {
		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?
		`, string(model.TaskRunning), toMillis(now), tasks[i].ID); err != nil {
			return nil, fmt.Errorf("claim task %s: %w", tasks[i].ID, err)
		}
		tasks[i].Status = model.TaskRunning
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim tasks: commit: %w", err)
	}
	return tasks, nil
}

// DeleteTask removes a task that completed successfully.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// RescheduleTask returns a failed attempt to pending with a new not_before.
func (s *Store) RescheduleTask(ctx context.Context, id string, attempts int, notBefore time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, attempts = ?, not_before = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, string(model.TaskPending), attempts, toMillis(notBefore), lastErr, toMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("reschedule task %s: %w", id, err)
	}
	return requireRow(res, "reschedule task", id)
}

// FailTask marks a task terminally failed. The row is kept for operators.
func (s *Store) FailTask(ctx context.Context, id string, attempts int, lastErr string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, attempts = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, string(model.TaskFailed), attempts, lastErr, toMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("fail task %s: %w", id, err)
	}
	return requireRow(res, "fail task", id)
}

// ResetRunningTasks returns tasks left running by a crashed worker to
// pending. Returns the number of tasks reset.
func (s *Store) ResetRunningTasks(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ? WHERE status = ?
	`, string(model.TaskPending), toMillis(time.Now()), string(model.TaskRunning))
	if err != nil {
		return 0, fmt.Errorf("reset running tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset running tasks: rows affected: %w", err)
	}
	return n, nil
}

// GetTask reads one task. Returns ErrNotFound if absent.
func (s *Store) GetTask(ctx context.Context, id string) (model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, fmt.Errorf("get task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks returns tasks ordered by not_before. An empty status lists all.
func (s *Store) ListTasks(ctx context.Context, status model.TaskStatus, limit int) ([]model.Task, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY not_before ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: scan: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: iterate: %w", err)
	}
	return tasks, nil
}

func scanTask(row rowScanner) (model.Task, error) {
	var t model.Task
	var payload, status string
	var notBefore, backoffMS, createdAt, updatedAt int64

	err := row.Scan(
		&t.ID,
		&t.Queue,
		&payload,
		&notBefore,
		&t.Attempts,
		&t.MaxAttempts,
		&backoffMS,
		&status,
		&t.LastError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return model.Task{}, err
	}

	t.Payload = []byte(payload)
	t.NotBefore = fromMillis(notBefore)
	t.MinBackoff = time.Duration(backoffMS) * time.Millisecond
	t.Status = model.TaskStatus(status)
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return t, nil
}
