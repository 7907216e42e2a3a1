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

// PutEvent inserts or replaces an event's configuration.
// Results are never written through this path; they belong to the
// aggregation tables and survive event edits untouched.
func (s *Store) PutEvent(ctx context.Context, e model.Event) error {
	if e.ID == "" {
		return fmt.Errorf("put event: missing id")
	}

	e.Results = nil
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("put event: marshal: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, brand_id, partner_event_id, start_date, end_date, doc, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			brand_id = excluded.brand_id,
			partner_event_id = excluded.partner_event_id,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			doc = excluded.doc,
			updated_at = excluded.updated_at
	`,
		e.ID,
		e.BrandID,
		e.PartnerEventID,
		nullMillis(e.StartDate),
		nullMillis(e.EndDate),
		string(doc),
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

// GetEvent reads an event and attaches its results, if bootstrapped.
// Returns ErrNotFound if no event has the id.
func (s *Store) GetEvent(ctx context.Context, id string) (model.Event, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM events WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, fmt.Errorf("get event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}

	var e model.Event
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return model.Event{}, fmt.Errorf("get event %s: decode: %w", id, err)
	}

	results, err := s.ReadResults(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	e.Results = results

	return e, nil
}

// ListPartnerEvents returns the brand's partner-linked events whose
// start/end window intersects [since, until]. Events without a start or end
// date are treated as open on that side. Results are not attached.
func (s *Store) ListPartnerEvents(ctx context.Context, brandID string, since, until time.Time) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc FROM events
		WHERE brand_id = ?
		  AND partner_event_id != ''
		  AND (end_date IS NULL OR end_date >= ?)
		  AND (start_date IS NULL OR start_date <= ?)
		ORDER BY id ASC
	`, brandID, toMillis(since), toMillis(until))
	if err != nil {
		return nil, fmt.Errorf("query partner events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan partner event: %w", err)
		}
		var e model.Event
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, fmt.Errorf("decode partner event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partner events: %w", err)
	}

	return events, nil
}
