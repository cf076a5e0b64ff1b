//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

// RealInput watches the zero-crossing line through the GPIO character device.
type RealInput struct {
	line *gpiocdev.Line
}

// NewRealInput requests pin on chip as an input with edge detection on both
// edges. Events are passed to handler from the gpiocdev event goroutine, one
// at a time. A nil handler requests the line without edge detection.
// activeLow inverts the line for optocouplers that pull low while the mains
// voltage is near zero.
func NewRealInput(chip string, pin int, activeLow bool, handler EdgeHandler) (*RealInput, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow, gpiocdev.WithPullUp)
	} else {
		opts = append(opts, gpiocdev.WithPullDown)
	}
	if handler != nil {
		opts = append(opts,
			gpiocdev.WithBothEdges,
			gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
				handler(evt.Type == gpiocdev.LineEventRisingEdge, evt.Timestamp)
			}))
	}

	line, err := gpiocdev.RequestLine(chip, pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request zero-crossing pin %d: %w", pin, err)
	}
	return &RealInput{line: line}, nil
}

// Level returns the current logical level of the line.
func (r *RealInput) Level() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read zero-crossing pin: %w", err)
	}
	return v == 1, nil
}

// Close releases the line. Edge events stop before Close returns.
func (r *RealInput) Close() error {
	if r.line == nil {
		return nil
	}
	if err := r.line.Close(); err != nil {
		return fmt.Errorf("close zero-crossing pin: %w", err)
	}
	return nil
}

// RealOutput drives the TRIAC gate through the GPIO character device.
type RealOutput struct {
	line *gpiocdev.Line
}

// NewRealOutput requests pin on chip as an output, initially low.
func NewRealOutput(chip string, pin int) (*RealOutput, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request gate pin %d: %w", pin, err)
	}
	return &RealOutput{line: line}, nil
}

// Set drives the gate line.
func (r *RealOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("set gate pin: %w", err)
	}
	return nil
}

// Close drives the gate low and returns the pin to input with pull-down
// (matching Pi boot defaults) so the driver cannot be left conducting.
func (r *RealOutput) Close() error {
	if r.line == nil {
		return nil
	}

	var errs []error
	if err := r.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("clear gate pin: %w", err))
	}
	if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure gate pin: %w", err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close gate pin: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// MonotonicNow reads CLOCK_MONOTONIC, the clock gpiocdev stamps edge events
// with by default.
func MonotonicNow() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		panic(fmt.Sprintf("gpio: clock_gettime: %v", err))
	}
	return time.Duration(ts.Nano())
}
