package db

import (
	"context"

	"github.com/toreaa/ultra-gi-sub000/internal/activity"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
)

// InsertEvent appends an event. The payload is stored as JSON under its type tag.
func InsertEvent(ctx context.Context, q Querier, e *activity.Event) error {
	typ, payload, err := activity.EncodePayload(e.Payload)
	if err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO session_events (id, session_id, type, offset_seconds, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.SessionID, string(typ), e.OffsetSeconds, payload, e.CreatedAt)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListEvents returns a session's events ordered by offset (ties by insertion).
func ListEvents(ctx context.Context, q Querier, sessionID string) ([]activity.Event, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, session_id, type, offset_seconds, payload_json, created_at
		FROM session_events
		WHERE session_id = ?
		ORDER BY offset_seconds ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	events := make([]activity.Event, 0)
	for rows.Next() {
		var (
			e       activity.Event
			typ     string
			payload string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &typ, &e.OffsetSeconds, &payload, &e.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		p, err := activity.DecodePayload(activity.EventType(typ), payload)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		e.Payload = p
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return events, nil
}

// CountEvents returns the number of events logged for a session.
func CountEvents(ctx context.Context, q Querier, sessionID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_events WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// DeleteEvent removes a single event from a session.
func DeleteEvent(ctx context.Context, q Querier, sessionID, eventID string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM session_events WHERE id = ? AND session_id = ?`, eventID, sessionID)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("event", eventID)
	}
	return nil
}
