package rules

import (
	"sync"
	"time"
)

// Scheduler arms one single-shot timer per expiring rule and fires a callback
// at the rule's end time. Timers live only in memory: after a restart the
// lifecycle controller re-arms them from the store (see Controller.RearmAll).
//
// Firing converges with manual revocation through the callback's own
// not-found handling; a timer firing for an already-removed rule is a no-op.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	fire   func(id string)
}

// NewScheduler creates a scheduler that invokes fire(id) when a rule's end
// time is reached.
func NewScheduler(fire func(id string)) *Scheduler {
	return &Scheduler{
		timers: make(map[string]*time.Timer),
		fire:   fire,
	}
}

// Arm schedules expiry for a rule no earlier than endAt. An elapsed endAt
// fires immediately. Re-arming an id replaces the previous timer.
func (s *Scheduler) Arm(id string, endAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		t.Stop()
	}

	delay := time.Until(endAt)
	if delay < 0 {
		delay = 0
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		s.fire(id)
	})
}

// Cancel stops the pending timer for a rule, if any.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// CancelAll stops every pending timer.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
