// Package reminder delivers planned intake reminders at their offsets from a
// session's start.
package reminder

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/toreaa/ultra-gi-sub000/internal/fuel"
)

// DeliverFunc is called once per reminder when its offset is reached.
type DeliverFunc func(sessionID string, r fuel.Reminder)

// TimerScheduler arms one timer per reminder. Offsets already in the past
// when scheduling (a resumed session) are skipped, not replayed.
type TimerScheduler struct {
	deliver DeliverFunc
	logger  *log.Logger
	now     func() time.Time

	mu      sync.Mutex
	batches map[string]*batch
}

type batch struct {
	timers []*time.Timer
}

// NewTimerScheduler creates a scheduler. A nil logger uses log.Default.
func NewTimerScheduler(deliver DeliverFunc, logger *log.Logger) *TimerScheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &TimerScheduler{
		deliver: deliver,
		logger:  logger,
		now:     time.Now,
		batches: make(map[string]*batch),
	}
}

// Schedule replaces any reminders pending for sessionID.
func (s *TimerScheduler) Schedule(sessionID string, startedAt time.Time, reminders []fuel.Reminder) {
	s.Cancel(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	b := &batch{}
	now := s.now()
	skipped := 0
	for _, r := range reminders {
		due := startedAt.Add(time.Duration(r.OffsetMinutes) * time.Minute)
		wait := due.Sub(now)
		if wait < 0 {
			skipped++
			continue
		}
		r := r
		b.timers = append(b.timers, time.AfterFunc(wait, func() { s.fire(sessionID, b, r) }))
	}
	s.batches[sessionID] = b

	s.logger.Printf("scheduled %d reminders for session %s (%d already past)", len(b.timers), sessionID, skipped)
}

// Cancel stops every pending reminder of sessionID. Safe to call repeatedly.
func (s *TimerScheduler) Cancel(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[sessionID]
	if !ok {
		return
	}
	for _, t := range b.timers {
		t.Stop()
	}
	delete(s.batches, sessionID)
}

// Pending returns the number of reminders armed for sessionID.
func (s *TimerScheduler) Pending(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.batches[sessionID]; ok {
		return len(b.timers)
	}
	return 0
}

// fire delivers r unless its batch was cancelled or replaced meanwhile.
func (s *TimerScheduler) fire(sessionID string, b *batch, r fuel.Reminder) {
	s.mu.Lock()
	current := s.batches[sessionID] == b
	s.mu.Unlock()
	if !current || s.deliver == nil {
		return
	}
	s.deliver(sessionID, r)
}

// Writer returns a DeliverFunc that prints reminders as lines to w.
func Writer(w io.Writer) DeliverFunc {
	var mu sync.Mutex
	return func(_ string, r fuel.Reminder) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "[+%dm] Take %s (%sg)\n", r.OffsetMinutes, r.ProductName, formatGrams(r.CarbsPerServing))
	}
}

func formatGrams(v float64) string {
	return fmt.Sprintf("%g", v)
}
