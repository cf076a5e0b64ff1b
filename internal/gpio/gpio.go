// Package gpio provides the zero-crossing input and TRIAC gate output lines.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// EdgeHandler receives each transition of the zero-crossing input. level is
// the new logical level and ts the kernel event timestamp on the monotonic
// clock (see MonotonicNow).
type EdgeHandler func(level bool, ts time.Duration)

// Input is the zero-crossing reference line. Edges are delivered to the
// EdgeHandler given when the line was requested.
type Input interface {
	// Level returns the current logical level.
	Level() (bool, error)

	// Close releases the line.
	Close() error
}

// Output is the TRIAC gate line.
type Output interface {
	// Set drives the gate: true = conduct.
	Set(on bool) error

	// Close drives the gate low and releases the line.
	Close() error
}

// Defaults (BCM numbering)
const (
	DefaultChip    = "gpiochip0"
	DefaultPinZC   = 17 // zero-crossing optocoupler
	DefaultPinGate = 27 // opto-TRIAC driver
)
