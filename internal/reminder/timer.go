package reminder

import (
	"sync"
	"time"

	"remindbot/internal/storage"
)

// wakeSlack is how far ahead of the deadline a wake is tolerated before the
// timer is re-armed. Go timers wait on the monotonic clock; after a process
// suspend the wall clock can be ahead of where the monotonic wait thinks it
// is, so the deadline is re-checked against wall time on every wake.
const wakeSlack = 20 * time.Millisecond

type timerEntry struct {
	rec storage.Reminder

	mu      sync.Mutex
	t       *time.Timer
	stopped bool
}

// arm starts (or restarts) the entry's timer toward its deadline.
// A past deadline fires immediately. Arming a stopped entry is a no-op.
func (s *Service) arm(e *timerEntry) {
	delay := time.Until(e.rec.Deadline)
	if delay < 0 {
		delay = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	if e.t != nil {
		_ = e.t.Stop()
	}
	e.t = time.AfterFunc(delay, func() { s.wake(e) })
}

func (s *Service) wake(e *timerEntry) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	if rem := time.Until(e.rec.Deadline); rem > wakeSlack {
		// Woke early relative to wall clock; wait out the remainder.
		e.t = time.AfterFunc(rem, func() { s.wake(e) })
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	s.fire(e)
}

// halt stops the entry's timer. It never fires after halt returns, except
// for a fire already in flight.
func (e *timerEntry) halt() {
	e.mu.Lock()
	e.stopped = true
	if e.t != nil {
		_ = e.t.Stop()
	}
	e.mu.Unlock()
}
