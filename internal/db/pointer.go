package db

import (
	"context"
	"database/sql"

	"github.com/toreaa/ultra-gi-sub000/internal/errors"
)

// The recovery pointer is a single-row table: slot is always 'active'.

// Pointer is the recovery pointer row. HeartbeatAt is zero when no process
// holds the pointed session.
type Pointer struct {
	SessionID   string
	UpdatedAt   int64
	HeartbeatAt int64
}

// SetPointer upserts the recovery pointer to sessionID with no holder.
func SetPointer(ctx context.Context, q Querier, sessionID string, now int64) error {
	return upsertPointer(ctx, q, sessionID, now, sql.NullInt64{})
}

// Heartbeat upserts the recovery pointer to sessionID and records that a
// running process held the session at now.
func Heartbeat(ctx context.Context, q Querier, sessionID string, now int64) error {
	return upsertPointer(ctx, q, sessionID, now, sql.NullInt64{Int64: now, Valid: true})
}

func upsertPointer(ctx context.Context, q Querier, sessionID string, now int64, heartbeat sql.NullInt64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO recovery_pointer (slot, session_id, updated_at, heartbeat_at)
		VALUES ('active', ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			session_id = excluded.session_id,
			updated_at = excluded.updated_at,
			heartbeat_at = excluded.heartbeat_at
	`, sessionID, now, heartbeat)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// LoadPointer returns the pointer row, or nil when unset.
func LoadPointer(ctx context.Context, q Querier) (*Pointer, error) {
	var (
		p         Pointer
		heartbeat sql.NullInt64
	)
	err := q.QueryRowContext(ctx, `
		SELECT session_id, updated_at, heartbeat_at FROM recovery_pointer WHERE slot = 'active'
	`).Scan(&p.SessionID, &p.UpdatedAt, &heartbeat)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	p.HeartbeatAt = heartbeat.Int64
	return &p, nil
}

// GetPointer returns the session id the pointer holds, or ok=false when unset.
func GetPointer(ctx context.Context, q Querier) (string, bool, error) {
	p, err := LoadPointer(ctx, q)
	if err != nil || p == nil {
		return "", false, err
	}
	return p.SessionID, true, nil
}

// ClearPointer deletes the recovery pointer.
func ClearPointer(ctx context.Context, q Querier) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM recovery_pointer WHERE slot = 'active'`); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ClearPointerFor deletes the pointer only if it refers to sessionID.
func ClearPointerFor(ctx context.Context, q Querier, sessionID string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM recovery_pointer WHERE slot = 'active' AND session_id = ?`, sessionID); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}
