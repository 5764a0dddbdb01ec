package capture

import (
	"sync"
	"time"
)

// Scheduler turns raw per-speaker stop signals into confirmed end signals
// after a quiet period. Arming a speaker that already has a pending timer
// replaces it, so only the latest stop counts. Each armed timer fires at
// most once and clears its own registration before invoking the callback.
//
// The generation value passed to Arm is threaded through to the callback
// unchanged; the engine uses it to discard fires that a later state
// transition has made stale.
type Scheduler struct {
	delay time.Duration
	fire  func(speakerID string, gen uint64)

	mu     sync.Mutex
	timers map[string]*pendingTimer
}

type pendingTimer struct {
	timer *time.Timer
	gen   uint64
}

// NewScheduler creates a Scheduler that waits delay after each Arm before
// invoking fire. The callback runs on a timer goroutine.
func NewScheduler(delay time.Duration, fire func(speakerID string, gen uint64)) *Scheduler {
	return &Scheduler{
		delay:  delay,
		fire:   fire,
		timers: make(map[string]*pendingTimer),
	}
}

// Arm schedules a confirmed-end fire for speakerID after the quiet period,
// replacing any pending timer for the same speaker.
func (s *Scheduler) Arm(speakerID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[speakerID]; ok {
		prev.timer.Stop()
	}

	p := &pendingTimer{gen: gen}
	p.timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		cur, ok := s.timers[speakerID]
		if !ok || cur != p {
			// Replaced or cancelled between fire and lock acquisition.
			s.mu.Unlock()
			return
		}
		delete(s.timers, speakerID)
		s.mu.Unlock()
		s.fire(speakerID, p.gen)
	})
	s.timers[speakerID] = p
}

// Cancel drops any pending timer for speakerID. A no-op when none is armed.
func (s *Scheduler) Cancel(speakerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.timers[speakerID]; ok {
		p.timer.Stop()
		delete(s.timers, speakerID)
	}
}

// CancelAll drops every pending timer. Used at session end, where all still
// pending turns are finalized immediately.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.timers {
		p.timer.Stop()
		delete(s.timers, id)
	}
}

// Pending reports the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
