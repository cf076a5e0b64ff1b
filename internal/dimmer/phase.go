package dimmer

import (
	"context"
	"time"
)

// TriggerDelay returns the delay from a rising edge at which the output must
// fire for the given brightness:
//
//	delay = (100 - brightness) * period / 100 + offset
//
// Brightness 0 yields period+offset, which the dead-zone guard never arms.
func TriggerDelay(brightness int, period, offset time.Duration) time.Duration {
	b := int64(ClampBrightness(brightness))
	return time.Duration(int64(period)*(MaxBrightness-b)/MaxBrightness) + offset
}

// ZeroCrossingOffset returns half of the sensor's high pulse, which places the
// true zero crossing at the pulse midpoint. ok is false when either edge is
// still unset or the pair is out of order.
func ZeroCrossingOffset(rising, falling time.Duration) (offset time.Duration, ok bool) {
	if rising == 0 || falling == 0 || falling < rising {
		return 0, false
	}
	return (falling - rising) / 2, true
}

// runEstimator sleeps until the edge handler wakes it and runs one estimate
// pass per wake.
func (c *Controller) runEstimator(ctx context.Context) {
	defer close(c.estimatorDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
			c.Estimate()
		}
	}
}

// Estimate runs one pass of the phase estimator against the current state.
// The estimator goroutine calls it once per wake; simulations that never
// call Start may call it directly after each edge.
func (c *Controller) Estimate() {
	s := c.state
	if s.crossing.Load() {
		period := s.Period()
		if period <= 0 {
			return
		}
		s.delay.Store(int64(TriggerDelay(s.Brightness(), period, s.Offset())))
		return
	}

	off, ok := ZeroCrossingOffset(time.Duration(s.rising.Load()), time.Duration(s.falling.Load()))
	if !ok {
		return
	}
	s.offset.Store(int64(off))
}
