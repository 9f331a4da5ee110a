package engine

import (
	"sort"
	"sync"
	"time"
)

// TimerHandle identifies a pending timer for cancellation.
type TimerHandle int64

// Scheduler is the timer boundary. Callbacks fire on their own goroutine; the
// game funnels them back through its serialized mutation path, so a callback
// never races a player action.
type Scheduler interface {
	After(d time.Duration, fn func()) TimerHandle
	Cancel(h TimerHandle)
}

// ClockScheduler is the production scheduler on time.AfterFunc.
type ClockScheduler struct {
	mu     sync.Mutex
	next   TimerHandle
	timers map[TimerHandle]*time.Timer
}

func NewClockScheduler() *ClockScheduler {
	return &ClockScheduler{timers: make(map[TimerHandle]*time.Timer)}
}

func (s *ClockScheduler) After(d time.Duration, fn func()) TimerHandle {
	s.mu.Lock()
	s.next++
	h := s.next
	s.timers[h] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, h)
		s.mu.Unlock()
		fn()
	})
	s.mu.Unlock()
	return h
}

func (s *ClockScheduler) Cancel(h TimerHandle) {
	s.mu.Lock()
	if t, ok := s.timers[h]; ok {
		t.Stop()
		delete(s.timers, h)
	}
	s.mu.Unlock()
}

// Stop cancels everything outstanding.
func (s *ClockScheduler) Stop() {
	s.mu.Lock()
	for h, t := range s.timers {
		t.Stop()
		delete(s.timers, h)
	}
	s.mu.Unlock()
}

// FakeScheduler drives timers by hand in tests. Advance moves a virtual clock
// and fires due callbacks synchronously in deadline order.
type FakeScheduler struct {
	mu      sync.Mutex
	now     time.Time
	next    TimerHandle
	pending map[TimerHandle]fakeTimer
}

type fakeTimer struct {
	at time.Time
	fn func()
}

func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{
		now:     time.Unix(0, 0),
		pending: make(map[TimerHandle]fakeTimer),
	}
}

func (s *FakeScheduler) After(d time.Duration, fn func()) TimerHandle {
	s.mu.Lock()
	s.next++
	h := s.next
	s.pending[h] = fakeTimer{at: s.now.Add(d), fn: fn}
	s.mu.Unlock()
	return h
}

func (s *FakeScheduler) Cancel(h TimerHandle) {
	s.mu.Lock()
	delete(s.pending, h)
	s.mu.Unlock()
}

func (s *FakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	due := make([]TimerHandle, 0)
	for h, t := range s.pending {
		if !t.at.After(s.now) {
			due = append(due, h)
		}
	}
	sort.Slice(due, func(i, j int) bool { return s.pending[due[i]].at.Before(s.pending[due[j]].at) })
	fns := make([]func(), 0, len(due))
	for _, h := range due {
		fns = append(fns, s.pending[h].fn)
		delete(s.pending, h)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Pending reports how many timers are armed.
func (s *FakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
