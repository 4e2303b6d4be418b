package coordinator

import (
	"fmt"
	"sync"
	"time"
)

// Scheduler owns deferred finalize triggers, at most one per session.
//
// Delivery is at-least-once: a trigger that was replaced or cancelled just as
// it fired may still invoke the callback. The finalize claim absorbs the
// duplicate.
type Scheduler interface {
	// Schedule arms the finalize trigger for the session, replacing any
	// pending one for the same identifier.
	Schedule(sessionID string, delay time.Duration) error
	// Cancel disarms the pending trigger. Cancelling a trigger that already
	// fired or never existed is a no-op.
	Cancel(sessionID string)
}

// GraceScheduler implements Scheduler with one in-process timer per session.
type GraceScheduler struct {
	fire func(sessionID string)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewGraceScheduler builds a scheduler that invokes fire when a trigger
// expires.
func NewGraceScheduler(fire func(sessionID string)) *GraceScheduler {
	return &GraceScheduler{
		fire:   fire,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arms the trigger for the session. An existing trigger is replaced.
func (s *GraceScheduler) Schedule(sessionID string, delay time.Duration) error {
	if s == nil || s.fire == nil {
		return fmt.Errorf("scheduler is not configured")
	}
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if timer, ok := s.timers[sessionID]; ok {
		timer.Stop()
	}
	s.timers[sessionID] = time.AfterFunc(delay, func() {
		s.expire(sessionID)
	})
	return nil
}

func (s *GraceScheduler) expire(sessionID string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, sessionID)
	s.mu.Unlock()

	s.fire(sessionID)
}

// Cancel disarms the pending trigger for the session, if any.
func (s *GraceScheduler) Cancel(sessionID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[sessionID]; ok {
		timer.Stop()
		delete(s.timers, sessionID)
	}
}

// Pending returns the number of armed triggers.
func (s *GraceScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every trigger and rejects further scheduling. Safe to call
// repeatedly.
func (s *GraceScheduler) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for sessionID, timer := range s.timers {
		timer.Stop()
		delete(s.timers, sessionID)
	}
	s.stopped = true
}

var _ Scheduler = (*GraceScheduler)(nil)
