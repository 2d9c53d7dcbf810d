package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/toreaa/ultra-gi-sub000/internal/activity"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
	"github.com/toreaa/ultra-gi-sub000/internal/fuel"
)

const plannedSessionColumns = `
	id, user_id, name, duration_minutes, target_carbs, total_carbs,
	warning, items_json, created_at, updated_at
`

// InsertPlannedSession stores a saved plan. Items are kept as a JSON blob.
func InsertPlannedSession(ctx context.Context, q Querier, ps *activity.PlannedSession) error {
	itemsJSON, err := json.Marshal(ps.Plan.Items)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		INSERT INTO planned_sessions (` + plannedSessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = q.ExecContext(ctx, query,
		ps.ID, ps.UserID, ps.Name, ps.DurationMinutes, ps.Plan.TargetCarbs, ps.Plan.TotalCarbs,
		nullIfEmpty(ps.Plan.Warning), string(itemsJSON), ps.CreatedAt, ps.UpdatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// UpdatePlannedSessionPlan replaces the plan of a saved session.
func UpdatePlannedSessionPlan(ctx context.Context, q Querier, id string, plan fuel.Plan, now int64) error {
	itemsJSON, err := json.Marshal(plan.Items)
	if err != nil {
		return errors.NewInternal(err)
	}

	result, err := q.ExecContext(ctx, `
		UPDATE planned_sessions
		SET target_carbs = ?, total_carbs = ?, warning = ?, items_json = ?, updated_at = ?
		WHERE id = ?
	`, plan.TargetCarbs, plan.TotalCarbs, nullIfEmpty(plan.Warning), string(itemsJSON), now, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("planned session", id)
	}
	return nil
}

// GetPlannedSession retrieves a saved plan by ID.
func GetPlannedSession(ctx context.Context, q Querier, id string) (*activity.PlannedSession, error) {
	row := q.QueryRowContext(ctx, `SELECT `+plannedSessionColumns+` FROM planned_sessions WHERE id = ?`, id)
	ps, err := scanPlannedSession(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("planned session", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return ps, nil
}

// ListPlannedSessions returns a user's saved plans, newest first.
func ListPlannedSessions(ctx context.Context, q Querier, userID string, limit, offset int) ([]*activity.PlannedSession, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+plannedSessionColumns+`
		FROM planned_sessions
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := make([]*activity.PlannedSession, 0)
	for rows.Next() {
		ps, err := scanPlannedSession(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// CountPlannedSessions returns the number of saved plans owned by a user.
func CountPlannedSessions(ctx context.Context, q Querier, userID string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM planned_sessions WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPlannedSession(s scanner) (*activity.PlannedSession, error) {
	var (
		ps        activity.PlannedSession
		warning   sql.NullString
		itemsJSON string
	)
	err := s.Scan(
		&ps.ID, &ps.UserID, &ps.Name, &ps.DurationMinutes, &ps.Plan.TargetCarbs, &ps.Plan.TotalCarbs,
		&warning, &itemsJSON, &ps.CreatedAt, &ps.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if warning.Valid {
		ps.Plan.Warning = warning.String
	}
	ps.Plan.Items = []fuel.Item{}
	if itemsJSON != "" {
		if err := json.Unmarshal([]byte(itemsJSON), &ps.Plan.Items); err != nil {
			return nil, err
		}
	}
	// percentage is derived, never stored
	ps.Plan = fuel.Recalculate(ps.Plan.Items, ps.Plan.TargetCarbs)
	if warning.Valid {
		ps.Plan.Warning = warning.String
	}
	return &ps, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
