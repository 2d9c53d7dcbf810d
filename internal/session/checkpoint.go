package session

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/toreaa/ultra-gi-sub000/internal/activity"
	"github.com/toreaa/ultra-gi-sub000/internal/db"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
)

// CheckpointStore is the only writer of session rows, events and the
// recovery pointer. Every write for a session id holds that id's lock, so a
// checkpoint and an end-session write are never in flight together. All
// state-changing SQL is guarded by status = 'active', which makes the
// terminal write win regardless of arrival order.
type CheckpointStore struct {
	db    *sql.DB
	now   func() time.Time
	locks keyedMutex
}

// NewCheckpointStore creates a store over an initialized database.
func NewCheckpointStore(database *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: database, now: time.Now}
}

// Create inserts a new active session and points the recovery pointer at it.
func (s *CheckpointStore) Create(ctx context.Context, sl *activity.SessionLog) error {
	unlock := s.locks.lock(sl.ID)
	defer unlock()

	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := db.InsertSession(ctx, tx, sl); err != nil {
			return err
		}
		return db.Heartbeat(ctx, tx, sl.ID, sl.StartedAt)
	})
}

// Checkpoint persists floor(elapsedSeconds/60) as the session duration and
// upserts the recovery pointer with a fresh heartbeat, as one transaction. A
// session that is no longer active is left untouched and reported as a
// conflict.
func (s *CheckpointStore) Checkpoint(ctx context.Context, sessionID string, elapsedSeconds int) error {
	return s.checkpoint(ctx, sessionID, elapsedSeconds, db.Heartbeat)
}

// Release writes a last checkpoint and leaves the pointer without a holder,
// so the session is immediately recoverable by another process.
func (s *CheckpointStore) Release(ctx context.Context, sessionID string, elapsedSeconds int) error {
	return s.checkpoint(ctx, sessionID, elapsedSeconds, db.SetPointer)
}

func (s *CheckpointStore) checkpoint(ctx context.Context, sessionID string, elapsedSeconds int,
	point func(context.Context, db.Querier, string, int64) error) error {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	now := s.now().Unix()

	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		hit, err := db.UpdateSessionDuration(ctx, tx, sessionID, elapsedSeconds/60, now)
		if err != nil {
			return err
		}
		if !hit {
			return notActive(ctx, tx, sessionID)
		}
		return point(ctx, tx, sessionID, now)
	})
}

// ClearPointer deletes the recovery pointer.
func (s *CheckpointStore) ClearPointer(ctx context.Context) error {
	return db.ClearPointer(ctx, s.db)
}

// Finish moves an active session to a terminal status, records the end
// instant (and the final duration and notes when given) and clears the
// pointer, as one transaction. A second terminal write is a conflict.
func (s *CheckpointStore) Finish(ctx context.Context, sessionID string, status activity.Status, endedAt time.Time, durationMinutes *int, notes *string) (*activity.SessionLog, error) {
	if !status.Terminal() {
		return nil, errors.NewInvalidRequest("finish requires a terminal status")
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	var finished *activity.SessionLog
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		ok, err := db.FinishSession(ctx, tx, sessionID, status, endedAt.Unix(), durationMinutes, notes)
		if err != nil {
			return err
		}
		if !ok {
			return notActive(ctx, tx, sessionID)
		}
		if err := db.ClearPointerFor(ctx, tx, sessionID); err != nil {
			return err
		}
		finished, err = db.GetSession(ctx, tx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return finished, nil
}

// AppendEvent validates the payload and appends it to an active session.
// Events are written immediately and are not subject to the checkpoint bound.
func (s *CheckpointStore) AppendEvent(ctx context.Context, sessionID string, offsetSeconds int, payload activity.Payload) (*activity.Event, error) {
	if payload == nil {
		return nil, errors.NewInvalidRequest("event payload is required")
	}
	if err := payload.Validate(); err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	if offsetSeconds < 0 {
		offsetSeconds = 0
	}

	id, err := db.NewID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	ev := &activity.Event{
		ID:            id,
		SessionID:     sessionID,
		OffsetSeconds: offsetSeconds,
		Payload:       payload,
		CreatedAt:     s.now().Unix(),
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		sl, err := db.GetSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sl.Status != activity.StatusActive {
			return errors.NewSessionNotActive(sessionID, string(sl.Status))
		}
		return db.InsertEvent(ctx, tx, ev)
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// DeleteEvent removes one event from a session.
func (s *CheckpointStore) DeleteEvent(ctx context.Context, sessionID, eventID string) error {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	return db.DeleteEvent(ctx, s.db, sessionID, eventID)
}

// UpdateNotes replaces a session's notes. Allowed in any status.
func (s *CheckpointStore) UpdateNotes(ctx context.Context, sessionID string, notes *string) error {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	return db.UpdateSessionNotes(ctx, s.db, sessionID, notes, s.now().Unix())
}

// notActive explains why a guarded write matched no row.
func notActive(ctx context.Context, q db.Querier, sessionID string) error {
	sl, err := db.GetSession(ctx, q, sessionID)
	if err != nil {
		return err
	}
	return errors.NewSessionNotActive(sessionID, string(sl.Status))
}

// keyedMutex serializes work per key and drops entries nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
