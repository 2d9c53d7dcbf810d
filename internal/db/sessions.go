package db

import (
	"context"
	"database/sql"

	"github.com/toreaa/ultra-gi-sub000/internal/activity"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
)

const sessionColumns = `
	id, user_id, planned_session_id, started_at, ended_at,
	duration_minutes, status, notes, created_at, updated_at
`

// InsertSession stores a new session row.
func InsertSession(ctx context.Context, q Querier, s *activity.SessionLog) error {
	query := `
		INSERT INTO session_logs (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var endedAt sql.NullInt64
	if s.EndedAt != nil {
		endedAt = sql.NullInt64{Int64: *s.EndedAt, Valid: true}
	}
	_, err := q.ExecContext(ctx, query,
		s.ID, s.UserID, toNullString(s.PlannedSessionID), s.StartedAt, endedAt,
		s.DurationMinutes, string(s.Status), toNullString(s.Notes), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetSession retrieves a session row by ID.
func GetSession(ctx context.Context, q Querier, id string) (*activity.SessionLog, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM session_logs WHERE id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("session", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return s, nil
}

// ListActiveSessions returns every session with status active, newest first.
// More than one row means the single-active invariant was broken; callers
// surface that instead of picking one.
func ListActiveSessions(ctx context.Context, q Querier) ([]*activity.SessionLog, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM session_logs
		WHERE status = 'active'
		ORDER BY started_at DESC, id DESC
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return collectSessions(rows)
}

// ListSessions returns a user's sessions of any status, newest first.
func ListSessions(ctx context.Context, q Querier, userID string, limit, offset int) ([]*activity.SessionLog, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM session_logs
		WHERE user_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return collectSessions(rows)
}

// CountSessions returns the number of sessions owned by a user.
func CountSessions(ctx context.Context, q Querier, userID string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_logs WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// UpdateSessionDuration raises duration_minutes on an active session.
// Returns false when the row is missing or no longer active, so a late
// checkpoint can never touch a finished session. The duration never
// decreases.
func UpdateSessionDuration(ctx context.Context, q Querier, id string, minutes int, now int64) (bool, error) {
	result, err := q.ExecContext(ctx, `
		UPDATE session_logs
		SET duration_minutes = MAX(duration_minutes, ?), updated_at = ?
		WHERE id = ? AND status = 'active'
	`, minutes, now, id)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

// FinishSession moves an active session to a terminal status exactly once.
// durationMinutes and notes are only written when non-nil. Returns false when
// the row is missing or already terminal.
func FinishSession(ctx context.Context, q Querier, id string, status activity.Status, endedAt int64, durationMinutes *int, notes *string) (bool, error) {
	var duration sql.NullInt64
	if durationMinutes != nil {
		duration = sql.NullInt64{Int64: int64(*durationMinutes), Valid: true}
	}
	result, err := q.ExecContext(ctx, `
		UPDATE session_logs
		SET status = ?,
			ended_at = ?,
			duration_minutes = COALESCE(MAX(duration_minutes, ?), duration_minutes),
			notes = COALESCE(?, notes),
			updated_at = ?
		WHERE id = ? AND status = 'active'
	`, string(status), endedAt, duration, toNullString(notes), endedAt, id)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

// UpdateSessionNotes replaces the closing notes of a session of any status.
func UpdateSessionNotes(ctx context.Context, q Querier, id string, notes *string, now int64) error {
	result, err := q.ExecContext(ctx, `
		UPDATE session_logs SET notes = ?, updated_at = ? WHERE id = ?
	`, toNullString(notes), now, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("session", id)
	}
	return nil
}

func collectSessions(rows *sql.Rows) ([]*activity.SessionLog, error) {
	defer rows.Close()

	out := make([]*activity.SessionLog, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// scanSession scans a single row into a SessionLog.
func scanSession(s scanner) (*activity.SessionLog, error) {
	var (
		sl        activity.SessionLog
		plannedID sql.NullString
		endedAt   sql.NullInt64
		status    string
		notes     sql.NullString
	)
	err := s.Scan(
		&sl.ID, &sl.UserID, &plannedID, &sl.StartedAt, &endedAt,
		&sl.DurationMinutes, &status, &notes, &sl.CreatedAt, &sl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sl.PlannedSessionID = fromNullString(plannedID)
	sl.EndedAt = fromNullInt64(endedAt)
	sl.Status = activity.Status(status)
	sl.Notes = fromNullString(notes)
	return &sl, nil
}
