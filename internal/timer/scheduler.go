// Package timer runs the per-session periodic tick while a session is in
// the playing state.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/egame/internal/realtime"
)

const defaultInterval = 100 * time.Millisecond

type Config struct {
	Transport realtime.Transport
	// Interval between ticks; 0 means the default of 100ms.
	Interval time.Duration
	// Clock defaults to the real clock; tests inject a fake.
	Clock clockwork.Clock
}

// Scheduler owns at most one repeating tick task per session code. Every
// tick broadcasts the cumulative elapsed time to the session's room. The
// zero tick is broadcast by the caller on state transitions, never here.
type Scheduler struct {
	transport realtime.Transport
	interval  time.Duration
	clock     clockwork.Clock

	mu     sync.Mutex
	timers map[string]*handle
}

type handle struct {
	stop chan struct{}
	done chan struct{}
}

func NewScheduler(c Config) *Scheduler {
	s := &Scheduler{
		transport: c.Transport,
		interval:  c.Interval,
		clock:     c.Clock,
		timers:    make(map[string]*handle),
	}

	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}

	return s
}

// Start begins ticking for code, first cancelling any timer already
// running for it, so the elapsed counter always restarts from zero.
func (s *Scheduler) Start(code string) {
	h := &handle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	old := s.timers[code]
	s.timers[code] = h
	s.mu.Unlock()

	wait(old)

	go s.run(code, h)
}

// Cancel stops the timer for code if one is running. No tick is broadcast
// after Cancel returns.
func (s *Scheduler) Cancel(code string) {
	s.mu.Lock()
	h := s.timers[code]
	delete(s.timers, code)
	s.mu.Unlock()

	wait(h)
}

// CancelAll stops every running timer; used on shutdown.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	timers := s.timers
	s.timers = make(map[string]*handle)
	s.mu.Unlock()

	for _, h := range timers {
		wait(h)
	}
}

func (s *Scheduler) run(code string, h *handle) {
	defer close(h.done)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	var elapsed time.Duration
	for {
		select {
		case <-h.stop:
			return

		case <-ticker.Chan():
			// Re-check so a cancel that raced the tick wins.
			select {
			case <-h.stop:
				return
			default:
			}

			elapsed += s.interval
			s.transport.BroadcastToRoom(context.Background(), code, realtime.MsgTimerUpdate, realtime.TimerUpdate{
				ElapsedMs: elapsed.Milliseconds(),
			})
		}
	}
}

func wait(h *handle) {
	if h == nil {
		return
	}

	close(h.stop)
	<-h.done
}
