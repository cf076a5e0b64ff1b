package dimmer

import "time"

// HandleEdge processes one transition of the zero-crossing reference signal.
// level is the new signal level and ts its monotonic timestamp.
//
// It must be called from a single goroutine. It never blocks: the estimator
// is woken with a non-blocking send.
func (c *Controller) HandleEdge(level bool, ts time.Duration) {
	s := c.state
	c.edges.Add(1)
	c.lastEdge.Store(int64(ts))

	// Every rising edge ends any pulse, even one whose falling edge was lost.
	if level {
		if err := c.out.Set(false); err != nil {
			c.fatal("dimmer: clear output: %v", err)
			return
		}
	}

	crossing := s.crossing.Load()
	switch {
	case level && !crossing:
		if s.canArm() {
			// Mark the slot taken before arming; a zero delay can fire at once.
			s.triggering.Store(true)
			wait := s.Delay() - (c.clock.Now() - ts)
			if err := c.sched.Arm(wait); err != nil {
				c.fatal("dimmer: arm trigger: %v", err)
				return
			}
			c.arms.Add(1)
		} else {
			c.skips.Add(1)
		}

		if prev := s.rising.Load(); prev != 0 && int64(ts) > prev {
			s.period.Store(int64(ts) - prev)
		}
		s.rising.Store(int64(ts))

	case !level && crossing:
		s.falling.Store(int64(ts))
	}

	s.crossing.Store(level)

	select {
	case c.wake <- struct{}{}:
	default:
	}
}
