package session

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/toreaa/ultra-gi-sub000/internal/activity"
	"github.com/toreaa/ultra-gi-sub000/internal/db"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// fakeTime is a settable time source safe for use from clock goroutines.
type fakeTime struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeTime(now time.Time) *fakeTime {
	return &fakeTime{now: now}
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Set(now time.Time) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// insertActive creates an active session row started at startedAt via the store.
func insertActive(t *testing.T, store *CheckpointStore, id string, startedAt time.Time) *activity.SessionLog {
	t.Helper()
	sl := &activity.SessionLog{
		ID:        id,
		UserID:    "local",
		StartedAt: startedAt.Unix(),
		Status:    activity.StatusActive,
		CreatedAt: startedAt.Unix(),
		UpdatedAt: startedAt.Unix(),
	}
	if err := store.Create(context.Background(), sl); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return sl
}

func stringPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}
