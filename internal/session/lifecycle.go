package session

import (
	"context"
	"database/sql"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/toreaa/ultra-gi-sub000/internal/activity"
	"github.com/toreaa/ultra-gi-sub000/internal/config"
	"github.com/toreaa/ultra-gi-sub000/internal/db"
	"github.com/toreaa/ultra-gi-sub000/internal/errors"
	"github.com/toreaa/ultra-gi-sub000/internal/fuel"
)

// DefaultEndAbandonReason is written as notes when a running session is
// abandoned without a reason.
const DefaultEndAbandonReason = "Session abandoned"

// State is the in-process lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateAbandoned State = "abandoned"
)

// ReminderScheduler delivers intake reminders. It owns delivery timing; the
// lifecycle only supplies content and the cancellation trigger.
type ReminderScheduler interface {
	Schedule(sessionID string, startedAt time.Time, reminders []fuel.Reminder)
	Cancel(sessionID string)
}

type nopScheduler struct{}

func (nopScheduler) Schedule(string, time.Time, []fuel.Reminder) {}
func (nopScheduler) Cancel(string)                               {}

// Options configures optional collaborators of a Lifecycle.
type Options struct {
	Scheduler ReminderScheduler
	Logger    *log.Logger
	OnUITick  TickFunc
}

// Status is a point-in-time view of the lifecycle.
type Status struct {
	State              State  `json:"state"`
	SessionID          string `json:"session_id,omitempty"`
	StartedAt          int64  `json:"started_at,omitempty"`
	ElapsedSeconds     int    `json:"elapsed_seconds"`
	LastCheckpointAt   int64  `json:"last_checkpoint_at,omitempty"`
	LastCheckpointErr  string `json:"last_checkpoint_error,omitempty"`
	CheckpointFailures int    `json:"checkpoint_failures"`
}

// Lifecycle is the Idle → Active → Completed|Abandoned state machine. It owns
// the clock of the running session and routes every write through the
// shared CheckpointStore.
type Lifecycle struct {
	db              *sql.DB
	store           *CheckpointStore
	recovery        *RecoveryManager
	scheduler       ReminderScheduler
	logger          *log.Logger
	onUI            TickFunc
	userID          string
	uiEvery         time.Duration
	checkpointEvery time.Duration
	now             func() time.Time

	mu        sync.Mutex
	state     State
	sessionID string
	plan      *activity.PlannedSession
	clock     *Clock

	// checkpoint bookkeeping; separate lock because the clock goroutine
	// writes it while End holds mu and waits for that goroutine
	cpMu     sync.Mutex
	cpAt     time.Time
	cpErr    error
	cpFailed int
}

// NewLifecycle wires a store, a recovery manager and the lifecycle over one
// database.
func NewLifecycle(database *sql.DB, cfg *config.Config, opts Options) *Lifecycle {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	store := NewCheckpointStore(database)
	l := &Lifecycle{
		db:              database,
		store:           store,
		recovery:        NewRecoveryManager(database, store, cfg),
		scheduler:       opts.Scheduler,
		logger:          opts.Logger,
		onUI:            opts.OnUITick,
		userID:          cfg.UserID,
		uiEvery:         cfg.UITick(),
		checkpointEvery: cfg.CheckpointEvery(),
		now:             time.Now,
		state:           StateIdle,
	}
	if l.scheduler == nil {
		l.scheduler = nopScheduler{}
	}
	if l.logger == nil {
		l.logger = log.Default()
	}
	return l
}

// Store returns the shared checkpoint store.
func (l *Lifecycle) Store() *CheckpointStore { return l.store }

// Recovery returns the recovery manager sharing this lifecycle's store.
func (l *Lifecycle) Recovery() *RecoveryManager { return l.recovery }

// setNow replaces the time source of the lifecycle and its collaborators.
func (l *Lifecycle) setNow(now func() time.Time) {
	l.now = now
	l.store.now = now
	l.recovery.now = now
}

// Start creates an active session, optionally from a planned session, and
// starts its clock and reminders.
func (l *Lifecycle) Start(ctx context.Context, plannedSessionID *string) (*activity.SessionLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateActive {
		return nil, errors.NewConflict("a session is already running: " + l.sessionID)
	}

	active, err := db.ListActiveSessions(ctx, l.db)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		ids := make([]string, len(active))
		for i, s := range active {
			ids[i] = s.ID
		}
		conflict := errors.NewConflict("an interrupted session exists; recover or abandon it first")
		conflict.Details = map[string]any{"session_ids": ids}
		return nil, conflict
	}

	var plan *activity.PlannedSession
	if plannedSessionID != nil && strings.TrimSpace(*plannedSessionID) != "" {
		plan, err = db.GetPlannedSession(ctx, l.db, *plannedSessionID)
		if err != nil {
			return nil, err
		}
	} else {
		plannedSessionID = nil
	}

	id, err := db.NewID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := l.now().Unix()
	sl := &activity.SessionLog{
		ID:               id,
		UserID:           l.userID,
		PlannedSessionID: plannedSessionID,
		StartedAt:        now,
		Status:           activity.StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := l.store.Create(ctx, sl); err != nil {
		return nil, err
	}

	l.activate(sl.ID, time.Unix(sl.StartedAt, 0), plan)
	return sl, nil
}

// Resume reconstructs Active for an interrupted session. The clock restarts
// from the persisted start instant, so elapsed time includes the time the
// process was dead.
func (l *Lifecycle) Resume(ctx context.Context, sessionID string) (*RecoveryData, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateActive {
		if l.sessionID == sessionID {
			return nil, errors.NewConflict("session is already running: " + sessionID)
		}
		return nil, errors.NewConflict("a session is already running: " + l.sessionID)
	}

	data, err := l.recovery.Recover(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// bring duration and pointer up to wall-clock time before resuming
	if err := l.store.Checkpoint(ctx, sessionID, data.ElapsedSeconds); err != nil {
		return nil, err
	}

	l.activate(sessionID, time.Unix(data.Session.StartedAt, 0), data.Plan)
	return data, nil
}

// LogEvent appends an event at the current elapsed offset. Active only.
func (l *Lifecycle) LogEvent(ctx context.Context, payload activity.Payload) (*activity.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateActive {
		return nil, errors.NewConflict("no running session; start or recover one first")
	}
	return l.store.AppendEvent(ctx, l.sessionID, l.clock.ElapsedSeconds(), payload)
}

// End completes the running session.
func (l *Lifecycle) End(ctx context.Context, notes string) (*activity.SessionLog, error) {
	return l.finish(ctx, activity.StatusCompleted, notes)
}

// Abandon ends the running session as abandoned.
func (l *Lifecycle) Abandon(ctx context.Context, reason string) (*activity.SessionLog, error) {
	if strings.TrimSpace(reason) == "" {
		reason = DefaultEndAbandonReason
	}
	return l.finish(ctx, activity.StatusAbandoned, reason)
}

// Suspend stops the clock and reminders without a terminal transition,
// writing one last checkpoint that releases the session. It stays active and
// is immediately recoverable by another process.
func (l *Lifecycle) Suspend(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateActive {
		return nil
	}
	l.clock.Stop()
	l.scheduler.Cancel(l.sessionID)
	err := l.store.Release(ctx, l.sessionID, l.clock.ElapsedSeconds())

	l.state = StateIdle
	l.sessionID = ""
	l.plan = nil
	l.clock = nil
	return err
}

// Plan returns the planned session behind the running session, or nil.
func (l *Lifecycle) Plan() *activity.PlannedSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.plan
}

// Status returns a snapshot of the lifecycle.
func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	st := Status{State: l.state, SessionID: l.sessionID}
	if l.clock != nil {
		st.StartedAt = l.clock.StartedAt().Unix()
		st.ElapsedSeconds = l.clock.ElapsedSeconds()
	}
	l.mu.Unlock()

	l.cpMu.Lock()
	defer l.cpMu.Unlock()
	if !l.cpAt.IsZero() {
		st.LastCheckpointAt = l.cpAt.Unix()
	}
	if l.cpErr != nil {
		st.LastCheckpointErr = l.cpErr.Error()
	}
	st.CheckpointFailures = l.cpFailed
	return st
}

// finish performs End and Abandon. The clock is stopped first, which waits
// for any in-flight checkpoint, so the terminal write is always the last
// write. If the terminal write fails the session keeps running.
func (l *Lifecycle) finish(ctx context.Context, status activity.Status, notes string) (*activity.SessionLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateActive {
		return nil, errors.NewConflict("no running session to end")
	}

	clock := l.clock
	clock.Stop()

	minutes := clock.ElapsedSeconds() / 60
	var notesPtr *string
	if n := strings.TrimSpace(notes); n != "" {
		notesPtr = &n
	}

	sl, err := l.store.Finish(ctx, l.sessionID, status, l.now(), &minutes, notesPtr)
	if err != nil {
		if !errors.Is(err, errors.ErrConflict) {
			// storage failure: the row is still active, keep checkpointing
			clock.Start(l.onUI, l.checkpointFunc(l.sessionID))
			return nil, err
		}
		// finished elsewhere (e.g. abandoned through recovery); adopt that
		l.scheduler.Cancel(l.sessionID)
		l.state = StateIdle
		l.plan = nil
		l.clock = nil
		return nil, err
	}

	l.scheduler.Cancel(l.sessionID)
	l.plan = nil
	l.clock = nil
	if status == activity.StatusCompleted {
		l.state = StateCompleted
	} else {
		l.state = StateAbandoned
	}
	return sl, nil
}

// activate must be called with mu held.
func (l *Lifecycle) activate(sessionID string, startedAt time.Time, plan *activity.PlannedSession) {
	l.cpMu.Lock()
	l.cpAt, l.cpErr, l.cpFailed = time.Time{}, nil, 0
	l.cpMu.Unlock()

	clock := NewClock(startedAt, l.uiEvery, l.checkpointEvery)
	clock.now = l.now

	l.state = StateActive
	l.sessionID = sessionID
	l.plan = plan
	l.clock = clock
	clock.Start(l.onUI, l.checkpointFunc(sessionID))

	if plan != nil {
		if reminders := fuel.Reminders(plan.Plan); len(reminders) > 0 {
			l.scheduler.Schedule(sessionID, startedAt, reminders)
		}
	}
}

// checkpointFunc persists on each checkpoint tick. A failure is logged and
// recorded and the next tick retries, except when the row is no longer
// active: then the session was finished elsewhere and is detached.
func (l *Lifecycle) checkpointFunc(sessionID string) TickFunc {
	return func(elapsedSeconds int) {
		err := l.store.Checkpoint(context.Background(), sessionID, elapsedSeconds)

		l.cpMu.Lock()
		defer l.cpMu.Unlock()
		if err != nil {
			l.cpErr = err
			l.cpFailed++
			l.logger.Printf("checkpoint failed for session %s at %ds: %v", sessionID, elapsedSeconds, err)
			if errors.Is(err, errors.ErrConflict) || errors.Is(err, errors.ErrNotFound) {
				// Stop waits for this callback, so detach on another goroutine
				go l.detach(sessionID)
			}
			return
		}
		l.cpAt = l.now()
		l.cpErr = nil
	}
}

// detach drops a session that left the active status outside this
// lifecycle: the clock stops, reminders are cancelled and the lifecycle
// returns to Idle. A no-op if the lifecycle has moved on.
func (l *Lifecycle) detach(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateActive || l.sessionID != sessionID {
		return
	}
	l.clock.Stop()
	l.scheduler.Cancel(sessionID)
	l.logger.Printf("session %s was finished elsewhere; stopped tracking it", sessionID)

	l.state = StateIdle
	l.sessionID = ""
	l.plan = nil
	l.clock = nil
}
