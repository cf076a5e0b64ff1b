// Package dimmer contains the phase-cut control loop: edge handling, phase
// estimation and trigger scheduling for a single AC load.
//
// Field ownership in CycleState:
//   - rising, falling, period, crossing: written by the edge handler only.
//   - offset, delay: written by the estimator goroutine only.
//   - triggering: set by the edge handler, cleared by the timer callback.
//   - brightness: written by brightness inputs (HTTP, MQTT, serial).
//
// Every field is atomic so readers in other goroutines never observe a
// partially written value.
package dimmer

import (
	"sync/atomic"
	"time"
)

// Brightness bounds in percent.
const (
	MinBrightness = 0
	MaxBrightness = 100
)

// CycleState is the timing record shared by the edge handler, the estimator
// and the trigger callback. The zero value is the startup state.
type CycleState struct {
	rising  atomic.Int64 // last rising edge, monotonic ns; 0 = unset
	falling atomic.Int64 // last falling edge, monotonic ns; 0 = unset
	period  atomic.Int64 // rising-to-rising interval; 0 until two rising edges
	offset  atomic.Int64 // rising edge to true zero crossing
	delay   atomic.Int64 // rising edge to trigger

	brightness atomic.Int32

	crossing   atomic.Bool // reference signal is high
	triggering atomic.Bool // a pulse is armed and has not fired
}

// ClampBrightness limits v to [MinBrightness, MaxBrightness].
func ClampBrightness(v int) int {
	if v > MaxBrightness {
		return MaxBrightness
	}
	if v < MinBrightness {
		return MinBrightness
	}
	return v
}

// SetBrightness clamps v and stores it.
func (s *CycleState) SetBrightness(v int) {
	s.brightness.Store(int32(ClampBrightness(v)))
}

// Brightness returns the last stored (already clamped) brightness.
func (s *CycleState) Brightness() int {
	return int(s.brightness.Load())
}

// Period returns the last measured rising-to-rising interval.
func (s *CycleState) Period() time.Duration {
	return time.Duration(s.period.Load())
}

// Offset returns the estimated rising-edge-to-zero-crossing offset.
func (s *CycleState) Offset() time.Duration {
	return time.Duration(s.offset.Load())
}

// Delay returns the trigger delay that the next rising edge will arm.
func (s *CycleState) Delay() time.Duration {
	return time.Duration(s.delay.Load())
}

// Crossing reports whether the reference signal was last seen high.
func (s *CycleState) Crossing() bool {
	return s.crossing.Load()
}

// Triggering reports whether a pulse is armed and has not fired yet.
func (s *CycleState) Triggering() bool {
	return s.triggering.Load()
}

// canArm is the dead-zone guard.
func (s *CycleState) canArm() bool {
	return !s.triggering.Load() && s.delay.Load() < s.period.Load()
}
