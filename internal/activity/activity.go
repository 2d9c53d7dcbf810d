// Package activity holds the persisted shapes of a tracked session: the
// session log row, its append-only events and the planned session it may
// have been started from.
package activity

import (
	"github.com/toreaa/ultra-gi-sub000/internal/fuel"
)

// Status is the lifecycle status stored on a session row.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s.Terminal()
}

// SessionLog is one tracked activity. Timestamps are Unix seconds.
type SessionLog struct {
	ID               string  `json:"id"`
	UserID           string  `json:"user_id"`
	PlannedSessionID *string `json:"planned_session_id,omitempty"`
	StartedAt        int64   `json:"started_at"`
	EndedAt          *int64  `json:"ended_at,omitempty"`
	DurationMinutes  int     `json:"duration_minutes"`
	Status           Status  `json:"status"`
	Notes            *string `json:"notes,omitempty"`
	CreatedAt        int64   `json:"created_at"`
	UpdatedAt        int64   `json:"updated_at"`
}

// PlannedSession is a saved fuel plan for a future activity.
type PlannedSession struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	Plan            fuel.Plan `json:"plan"`
	CreatedAt       int64     `json:"created_at"`
	UpdatedAt       int64     `json:"updated_at"`
}
