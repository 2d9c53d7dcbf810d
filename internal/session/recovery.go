package session

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/toreaa/ultra-gi-sub000/internal/activity"
	"github.com/toreaa/ultra-gi-sub000/internal/config"
	"github.com/toreaa/ultra-gi-sub000/internal/db"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
)

// DefaultAbandonReason is written as notes when an interrupted session is
// abandoned without a reason.
const DefaultAbandonReason = "Abandoned after interruption"

// Classification is computed on inspection and never stored.
type Classification string

const (
	ClassNone        Classification = "none"
	ClassRecoverable Classification = "recoverable"
	ClassExpired     Classification = "expired"
)

// RecoverableSession is an active-status session found on inspection.
type RecoverableSession struct {
	Session        *activity.SessionLog `json:"session"`
	AgeSeconds     int64                `json:"age_seconds"`
	EventCount     int                  `json:"event_count"`
	Classification Classification       `json:"classification"`
	CanRecover     bool                 `json:"can_recover"`
	AutoSuggest    bool                 `json:"auto_suggest"`
	// Running is set while another process still heartbeats the session.
	Running bool `json:"running"`
}

// Inspection summarizes the active-status sessions at a point in time.
// MultipleActive flags a broken single-active invariant; nothing is resolved.
type Inspection struct {
	State          Classification       `json:"state"`
	Sessions       []RecoverableSession `json:"sessions"`
	MultipleActive bool                 `json:"multiple_active"`
}

// RecoveryData is everything needed to reconstruct an Active session.
// ElapsedSeconds is wall-clock now - startedAt, not the last checkpoint:
// time kept passing while the process was dead.
type RecoveryData struct {
	Session        *activity.SessionLog     `json:"session"`
	Events         []activity.Event         `json:"events"`
	Plan           *activity.PlannedSession `json:"plan,omitempty"`
	ElapsedSeconds int                      `json:"elapsed_seconds"`
}

// RecoveryManager inspects persisted sessions after a restart.
type RecoveryManager struct {
	db          *sql.DB
	store       *CheckpointStore
	window      time.Duration
	autoSuggest time.Duration
	liveFor     time.Duration
	now         func() time.Time
}

// NewRecoveryManager creates a manager using the configured windows.
func NewRecoveryManager(database *sql.DB, store *CheckpointStore, cfg *config.Config) *RecoveryManager {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &RecoveryManager{
		db:          database,
		store:       store,
		window:      cfg.RecoveryWindow(),
		autoSuggest: cfg.AutoSuggestWindow(),
		liveFor:     2 * cfg.CheckpointEvery(),
		now:         time.Now,
	}
}

// classify maps a session age to its recovery class.
func (m *RecoveryManager) classify(age time.Duration) (Classification, bool) {
	if age < m.window {
		return ClassRecoverable, age < m.autoSuggest
	}
	return ClassExpired, false
}

// ListRecoverable returns every active-status session, newest first, with
// its age, event count and recovery eligibility.
func (m *RecoveryManager) ListRecoverable(ctx context.Context) ([]RecoverableSession, error) {
	active, err := db.ListActiveSessions(ctx, m.db)
	if err != nil {
		return nil, err
	}
	p, err := db.LoadPointer(ctx, m.db)
	if err != nil {
		return nil, err
	}

	now := m.now()
	out := make([]RecoverableSession, 0, len(active))
	for _, sl := range active {
		rs, err := m.describe(ctx, sl, now, p)
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, nil
}

// Inspect classifies the current situation from the newest active session.
func (m *RecoveryManager) Inspect(ctx context.Context) (*Inspection, error) {
	sessions, err := m.ListRecoverable(ctx)
	if err != nil {
		return nil, err
	}
	in := &Inspection{
		State:          ClassNone,
		Sessions:       sessions,
		MultipleActive: len(sessions) > 1,
	}
	if len(sessions) > 0 {
		in.State = sessions[0].Classification
	}
	return in, nil
}

// SmartRecover returns the session to offer proactively, or nil. The pointer
// is tried first; a missing, dangling or non-active pointer falls back to
// the full list, and a dangling one is cleared. Only sessions inside the
// auto-suggest window that no other process is running qualify.
func (m *RecoveryManager) SmartRecover(ctx context.Context) (*RecoverableSession, error) {
	return m.suggest(ctx, true)
}

// Suggest is SmartRecover without clearing a dangling pointer.
func (m *RecoveryManager) Suggest(ctx context.Context) (*RecoverableSession, error) {
	return m.suggest(ctx, false)
}

func (m *RecoveryManager) suggest(ctx context.Context, clearStale bool) (*RecoverableSession, error) {
	now := m.now()

	p, err := db.LoadPointer(ctx, m.db)
	if err != nil {
		return nil, err
	}
	if p != nil {
		sl, err := db.GetSession(ctx, m.db, p.SessionID)
		switch {
		case err == nil && sl.Status == activity.StatusActive:
			rs, err := m.describe(ctx, sl, now, p)
			if err != nil {
				return nil, err
			}
			if rs.AutoSuggest {
				return &rs, nil
			}
		case err == nil, errors.Is(err, errors.ErrNotFound):
			// the row finished or vanished without clearing the pointer
			if clearStale {
				if err := db.ClearPointerFor(ctx, m.db, p.SessionID); err != nil {
					return nil, err
				}
			}
		default:
			return nil, err
		}
	}

	sessions, err := m.ListRecoverable(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].AutoSuggest {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

// LoadFull loads a session of any status with its events and plan.
func (m *RecoveryManager) LoadFull(ctx context.Context, sessionID string) (*RecoveryData, error) {
	sl, err := db.GetSession(ctx, m.db, sessionID)
	if err != nil {
		return nil, err
	}
	events, err := db.ListEvents(ctx, m.db, sessionID)
	if err != nil {
		return nil, err
	}

	data := &RecoveryData{
		Session:        sl,
		Events:         events,
		ElapsedSeconds: elapsedSince(sl.StartedAt, m.now()),
	}
	if sl.PlannedSessionID != nil {
		plan, err := db.GetPlannedSession(ctx, m.db, *sl.PlannedSessionID)
		if err != nil {
			return nil, err
		}
		data.Plan = plan
	}
	return data, nil
}

// Recover loads an interrupted session for resumption. It fails with
// NOT_FOUND for a missing row, CONFLICT for a finished session or one another
// process is still running, and RECOVERY_EXPIRED past the recovery window.
func (m *RecoveryManager) Recover(ctx context.Context, sessionID string) (*RecoveryData, error) {
	data, err := m.LoadFull(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if data.Session.Status != activity.StatusActive {
		return nil, errors.NewSessionNotActive(sessionID, string(data.Session.Status))
	}
	p, err := db.LoadPointer(ctx, m.db)
	if err != nil {
		return nil, err
	}
	if m.heldElsewhere(p, sessionID, m.now()) {
		return nil, errors.NewConflict("session " + sessionID + " is still running in another process")
	}
	age := time.Duration(data.ElapsedSeconds) * time.Second
	if class, _ := m.classify(age); class == ClassExpired {
		return nil, errors.NewRecoveryExpired(sessionID, age.Hours(), int(m.window/time.Hour))
	}
	return data, nil
}

// Abandon ends an interrupted session as abandoned and clears the pointer in
// the same transaction. The last checkpointed duration is kept.
func (m *RecoveryManager) Abandon(ctx context.Context, sessionID, reason string) (*activity.SessionLog, error) {
	notes := strings.TrimSpace(reason)
	if notes == "" {
		notes = DefaultAbandonReason
	}
	return m.store.Finish(ctx, sessionID, activity.StatusAbandoned, m.now(), nil, &notes)
}

// heldElsewhere reports whether a running process heartbeated sessionID
// within the last two checkpoint intervals.
func (m *RecoveryManager) heldElsewhere(p *db.Pointer, sessionID string, now time.Time) bool {
	if p == nil || p.SessionID != sessionID || p.HeartbeatAt == 0 {
		return false
	}
	return now.Sub(time.Unix(p.HeartbeatAt, 0)) < m.liveFor
}

func (m *RecoveryManager) describe(ctx context.Context, sl *activity.SessionLog, now time.Time, p *db.Pointer) (RecoverableSession, error) {
	count, err := db.CountEvents(ctx, m.db, sl.ID)
	if err != nil {
		return RecoverableSession{}, err
	}
	age := now.Sub(time.Unix(sl.StartedAt, 0))
	if age < 0 {
		age = 0
	}
	class, suggest := m.classify(age)
	running := m.heldElsewhere(p, sl.ID, now)
	return RecoverableSession{
		Session:        sl,
		AgeSeconds:     int64(age / time.Second),
		EventCount:     count,
		Classification: class,
		CanRecover:     class == ClassRecoverable && !running,
		AutoSuggest:    suggest && !running,
		Running:        running,
	}, nil
}

func elapsedSince(startedAt int64, now time.Time) int {
	d := now.Sub(time.Unix(startedAt, 0))
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
