package dimmer

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock for tests. Timers fire synchronously
// from Advance and AdvanceTo, in deadline order.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock  *FakeClock
	f      func()
	at     time.Duration
	active bool
}

// NewFakeClock returns a clock reading start.
func NewFakeClock(start time.Duration) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTimer returns a stopped fake timer.
func (c *FakeClock) NewTimer(f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward by d, firing due timers.
func (c *FakeClock) Advance(d time.Duration) {
	c.AdvanceTo(c.Now() + d)
}

// AdvanceTo moves time forward to target, firing due timers. Moving
// backwards is a no-op.
func (c *FakeClock) AdvanceTo(target time.Duration) {
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.active && t.at <= target && (next == nil || t.at < next.at) {
				next = t
			}
		}
		if next == nil {
			if target > c.now {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		if next.at > c.now {
			c.now = next.at
		}
		next.active = false
		c.mu.Unlock()
		next.f()
	}
}

// Pending reports how many timers are scheduled.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if t.active {
			n++
		}
	}
	return n
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.at = t.clock.now + d
	t.active = true
	return was
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.active = false
	return was
}
