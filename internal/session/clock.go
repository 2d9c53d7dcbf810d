package session

import (
	"sync"
	"time"
)

// TickFunc receives elapsed whole seconds since the clock's start instant.
type TickFunc func(elapsedSeconds int)

// Clock drives a UI cadence and a checkpoint cadence from one start instant.
// Elapsed time is always now - start, never a count of ticks, so a late tick
// still reports the right value and drift does not compound. Both callbacks
// run on the clock goroutine and never overlap each other.
type Clock struct {
	start           time.Time
	uiEvery         time.Duration
	checkpointEvery time.Duration
	now             func() time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewClock creates a stopped clock. start may lie in the past when resuming
// a recovered session.
func NewClock(start time.Time, uiEvery, checkpointEvery time.Duration) *Clock {
	return &Clock{
		start:           start,
		uiEvery:         uiEvery,
		checkpointEvery: checkpointEvery,
		now:             time.Now,
	}
}

// StartedAt returns the start instant.
func (c *Clock) StartedAt() time.Time {
	return c.start
}

// Elapsed returns now - start, floored at zero.
func (c *Clock) Elapsed() time.Duration {
	d := c.now().Sub(c.start)
	if d < 0 {
		return 0
	}
	return d
}

// ElapsedSeconds returns Elapsed in whole seconds.
func (c *Clock) ElapsedSeconds() int {
	return int(c.Elapsed() / time.Second)
}

// Start begins both cadences. Calling Start on a running clock is a no-op.
// Either callback may be nil.
func (c *Clock) Start(onUITick, onCheckpointTick TickFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go c.loop(c.stop, c.done, onUITick, onCheckpointTick)
}

// Stop cancels both cadences and waits for an in-flight callback to return.
// It is safe to call on a stopped clock. Must not be called from a callback.
func (c *Clock) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	<-done
}

// Running reports whether the cadences are active.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Clock) loop(stop <-chan struct{}, done chan<- struct{}, onUI, onCheckpoint TickFunc) {
	defer close(done)

	ui := time.NewTicker(c.uiEvery)
	defer ui.Stop()
	checkpoint := time.NewTicker(c.checkpointEvery)
	defer checkpoint.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ui.C:
			if onUI != nil && !stopped(stop) {
				onUI(c.ElapsedSeconds())
			}
		case <-checkpoint.C:
			if onCheckpoint != nil && !stopped(stop) {
				onCheckpoint(c.ElapsedSeconds())
			}
		}
	}
}

// stopped prefers a pending stop over a tick that became ready at the same time.
func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
