package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/surveyops/internal/model"
)

// BootstrapResults performs the first-ever aggregation write for an event:
// the tracked question list, a total count of one, and the tallies for the
// first response, all in one transaction.
//
// The write is guarded by the results row's primary key. If results already
// exist (another submission won the race) nothing is written and inserted is
// false; the caller must then take the increment path.
func (s *Store) BootstrapResults(ctx context.Context, eventID string, questions []string, keys []model.TallyKey) (inserted bool, err error) {
	if questions == nil {
		questions = []string{}
	}
	questionsJSON, err := json.Marshal(questions)
	if err != nil {
		return false, fmt.Errorf("bootstrap results: marshal questions: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("bootstrap results: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO results (event_id, questions, total_count)
		VALUES (?, ?, 1)
		ON CONFLICT(event_id) DO NOTHING
	`, eventID, string(questionsJSON))
	if err != nil {
		return false, fmt.Errorf("bootstrap results: insert: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("bootstrap results: rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	if err := incrementTallies(ctx, tx, eventID, keys); err != nil {
		return false, fmt.Errorf("bootstrap results: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("bootstrap results: commit: %w", err)
	}
	return true, nil
}

// IncrementResults adds one to the event's total count and one to each
// listed tally bucket. Every change is a field-level `count + 1` so
// concurrent increments interleave safely.
//
// Returns ErrNotFound if the event's results were never bootstrapped.
func (s *Store) IncrementResults(ctx context.Context, eventID string, keys []model.TallyKey) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("increment results: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		UPDATE results SET total_count = total_count + 1 WHERE event_id = ?
	`, eventID)
	if err != nil {
		return fmt.Errorf("increment results: total: %w", err)
	}
	if err := requireRow(res, "increment results", eventID); err != nil {
		return err
	}

	if err := incrementTallies(ctx, tx, eventID, keys); err != nil {
		return fmt.Errorf("increment results: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("increment results: commit: %w", err)
	}
	return nil
}

func incrementTallies(ctx context.Context, tx *sql.Tx, eventID string, keys []model.TallyKey) error {
	if len(keys) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO result_tallies (event_id, question_key, answer_key, count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(event_id, question_key, answer_key) DO UPDATE SET count = count + 1
	`)
	if err != nil {
		return fmt.Errorf("prepare tally upsert: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, eventID, k.Question, k.Answer); err != nil {
			return fmt.Errorf("increment %s/%s: %w", k.Question, k.Answer, err)
		}
	}
	return nil
}

// ReadResults assembles the event's results document.
// Returns nil, nil if results have not been bootstrapped.
func (s *Store) ReadResults(ctx context.Context, eventID string) (*model.Results, error) {
	var questionsJSON string
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT questions, total_count FROM results WHERE event_id = ?
	`, eventID).Scan(&questionsJSON, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read results %s: %w", eventID, err)
	}

	r := &model.Results{
		TotalCount: total,
		Tallies:    make(map[string]map[string]int),
	}
	if err := json.Unmarshal([]byte(questionsJSON), &r.Questions); err != nil {
		return nil, fmt.Errorf("read results %s: decode questions: %w", eventID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT question_key, answer_key, count FROM result_tallies
		WHERE event_id = ?
		ORDER BY question_key ASC, answer_key ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("read tallies %s: %w", eventID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var q, a string
		var n int
		if err := rows.Scan(&q, &a, &n); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		if r.Tallies[q] == nil {
			r.Tallies[q] = make(map[string]int)
		}
		r.Tallies[q][a] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tallies: %w", err)
	}

	return r, nil
}
