package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/surveyops/internal/model"
)

const responseColumns = `id, event_id, pre_response_id, answers, created_at,
	checked_in_at, checked_out_at, exported_at, used_at, upload_error, upload_attempted_at`

// PutResponse inserts a newly submitted response.
// Returns an error if a response with the same id already exists; responses
// are created exactly once and only their system fields change afterwards.
func (s *Store) PutResponse(ctx context.Context, r model.Response) error {
	if r.ID == "" || r.EventID == "" {
		return fmt.Errorf("put response: missing id or event id")
	}

	answers := r.Answers
	if answers == nil {
		answers = map[string]model.Answer{}
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("put response: marshal answers: %w", err)
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO responses (`+responseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.EventID,
		r.PreResponseID,
		string(answersJSON),
		toMillis(createdAt),
		nullMillis(r.CheckedIn),
		nullMillis(r.CheckedOut),
		nullMillis(r.Exported),
		nullMillis(r.Used),
		r.UploadError,
		nullMillis(r.UploadAttemptedAt),
	)
	if err != nil {
		return fmt.Errorf("put response: %w", err)
	}
	return nil
}

// GetResponse reads one response. Returns ErrNotFound if absent.
func (s *Store) GetResponse(ctx context.Context, id string) (model.Response, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+responseColumns+` FROM responses WHERE id = ?`, id)
	r, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Response{}, fmt.Errorf("get response %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Response{}, fmt.Errorf("get response %s: %w", id, err)
	}
	return r, nil
}

// ListUnexportedResponses returns the event's responses that have never been
// marked exported, oldest first.
func (s *Store) ListUnexportedResponses(ctx context.Context, eventID string) ([]model.Response, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+responseColumns+` FROM responses
		WHERE event_id = ? AND exported_at IS NULL
		ORDER BY created_at ASC, id ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query unexported responses: %w", err)
	}
	defer rows.Close()

	responses := []model.Response{}
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	return responses, nil
}

// MarkCheckedIn sets the response's check-in timestamp.
func (s *Store) MarkCheckedIn(ctx context.Context, id string, at time.Time) error {
	return s.setResponseTime(ctx, "checked_in_at", id, at)
}

// MarkCheckedOut sets the response's check-out timestamp.
func (s *Store) MarkCheckedOut(ctx context.Context, id string, at time.Time) error {
	return s.setResponseTime(ctx, "checked_out_at", id, at)
}

// MarkUsed marks a pre-event response as consumed by a post-event submission.
func (s *Store) MarkUsed(ctx context.Context, id string, at time.Time) error {
	return s.setResponseTime(ctx, "used_at", id, at)
}

// RecordUploadAttempt stores the outcome of a single-record partner upload.
// An empty errMsg clears a previous error.
func (s *Store) RecordUploadAttempt(ctx context.Context, id string, at time.Time, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE responses SET upload_attempted_at = ?, upload_error = ? WHERE id = ?
	`, toMillis(at), errMsg, id)
	if err != nil {
		return fmt.Errorf("record upload attempt %s: %w", id, err)
	}
	return requireRow(res, "record upload attempt", id)
}

// MarkExported stamps every listed response as exported in one transaction.
func (s *Store) MarkExported(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark exported: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `UPDATE responses SET exported_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("mark exported: prepare: %w", err)
	}
	defer stmt.Close()

	ms := toMillis(at)
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, ms, id); err != nil {
			return fmt.Errorf("mark exported %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mark exported: commit: %w", err)
	}
	return nil
}

func (s *Store) setResponseTime(ctx context.Context, column, id string, at time.Time) error {
	// column is always one of the fixed names above, never caller input
	res, err := s.db.ExecContext(ctx, `UPDATE responses SET `+column+` = ? WHERE id = ?`, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("set %s on %s: %w", column, id, err)
	}
	return requireRow(res, "set "+column, id)
}

func requireRow(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: rows affected: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResponse(row rowScanner) (model.Response, error) {
	var r model.Response
	var answersJSON string
	var createdAt int64
	var checkedIn, checkedOut, exported, used, uploadedAt sql.NullInt64

	err := row.Scan(
		&r.ID,
		&r.EventID,
		&r.PreResponseID,
		&answersJSON,
		&createdAt,
		&checkedIn,
		&checkedOut,
		&exported,
		&used,
		&r.UploadError,
		&uploadedAt,
	)
	if err != nil {
		return model.Response{}, err
	}

	if err := json.Unmarshal([]byte(answersJSON), &r.Answers); err != nil {
		return model.Response{}, fmt.Errorf("decode answers: %w", err)
	}

	r.CreatedAt = fromMillis(createdAt)
	r.CheckedIn = timePtr(checkedIn)
	r.CheckedOut = timePtr(checkedOut)
	r.Exported = timePtr(exported)
	r.Used = timePtr(used)
	r.UploadAttemptedAt = timePtr(uploadedAt)

	return r, nil
}
