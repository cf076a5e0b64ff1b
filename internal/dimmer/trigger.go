package dimmer

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrArmed is returned by Arm when the scheduler already has a pending pulse.
var ErrArmed = errors.New("trigger: already armed")

// Timer is a reusable one-shot callback timer. It is created stopped.
type Timer interface {
	// Reset schedules the callback to run once after d.
	Reset(d time.Duration) bool
	// Stop cancels the callback. It reports false if the callback already ran
	// or was not scheduled.
	Stop() bool
}

// Clock provides monotonic timestamps on the same base as edge timestamps and
// one-shot timers.
type Clock interface {
	Now() time.Duration
	NewTimer(f func()) Timer
}

// Scheduler is a single-slot one-shot trigger. The timer is created once;
// arming only resets it, so the edge path does not allocate.
type Scheduler struct {
	timer Timer
	fire  func()
	armed atomic.Bool
}

// NewScheduler returns a scheduler that runs fire once per successful Arm.
func NewScheduler(clock Clock, fire func()) *Scheduler {
	s := &Scheduler{fire: fire}
	s.timer = clock.NewTimer(s.expire)
	return s
}

// Arm schedules the callback to run once after d. A negative d runs it as
// soon as possible.
func (s *Scheduler) Arm(d time.Duration) error {
	if !s.armed.CompareAndSwap(false, true) {
		return ErrArmed
	}
	if d < 0 {
		d = 0
	}
	s.timer.Reset(d)
	return nil
}

// Armed reports whether a callback is pending.
func (s *Scheduler) Armed() bool {
	return s.armed.Load()
}

// Stop cancels a pending callback and reports whether one was pending.
func (s *Scheduler) Stop() bool {
	if s.timer.Stop() {
		s.armed.Store(false)
		return true
	}
	return false
}

func (s *Scheduler) expire() {
	s.armed.Store(false)
	s.fire()
}

// SystemClock is a Clock backed by Go runtime timers. now supplies the
// timestamp base; it must match the base of the edge timestamps.
type SystemClock struct {
	now func() time.Duration
}

// NewSystemClock returns a clock that reads timestamps from now.
func NewSystemClock(now func() time.Duration) *SystemClock {
	return &SystemClock{now: now}
}

// Now returns the current monotonic timestamp.
func (c *SystemClock) Now() time.Duration {
	return c.now()
}

// NewTimer returns a stopped runtime timer that runs f in its own goroutine
// each time it expires.
func (c *SystemClock) NewTimer(f func()) Timer {
	t := time.AfterFunc(time.Hour, f)
	t.Stop()
	return t
}
