package dimmer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"
)

// Output drives the TRIAC gate line.
type Output interface {
	Set(on bool) error
}

// FatalFunc is called when a hardware operation fails inside the edge handler
// or the trigger callback. The default exits the process.
type FatalFunc func(format string, args ...any)

// Stats is a point-in-time copy of the control loop state.
type Stats struct {
	Brightness    int
	Period        time.Duration
	Offset        time.Duration
	Delay         time.Duration
	Crossing      bool
	Triggering    bool
	Edges         uint64
	Arms          uint64
	Fires         uint64
	DeadZoneSkips uint64
	LastEdge      time.Duration // monotonic timestamp of the last edge; 0 = none yet
	Now           time.Duration // monotonic timestamp when the stats were taken
}

// Controller owns the cycle state and wires the edge handler, the phase
// estimator and the trigger scheduler together.
type Controller struct {
	state *CycleState
	out   Output
	clock Clock
	sched *Scheduler
	fatal FatalFunc

	wake          chan struct{}
	estimatorDone chan struct{}
	started       atomic.Bool

	edges    atomic.Uint64
	arms     atomic.Uint64
	fires    atomic.Uint64
	skips    atomic.Uint64
	lastEdge atomic.Int64
}

// New creates a controller driving out. A nil fatal uses log.Fatalf.
func New(out Output, clock Clock, fatal FatalFunc) *Controller {
	if fatal == nil {
		fatal = log.Fatalf
	}
	c := &Controller{
		state:         &CycleState{},
		out:           out,
		clock:         clock,
		fatal:         fatal,
		wake:          make(chan struct{}, 1),
		estimatorDone: make(chan struct{}),
	}
	c.sched = NewScheduler(clock, c.fire)
	return c
}

// Start drives the output low and starts the estimator goroutine. The
// estimator stops when ctx is cancelled.
func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("dimmer: already started")
	}
	if err := c.out.Set(false); err != nil {
		return fmt.Errorf("clear output: %w", err)
	}
	go c.runEstimator(ctx)
	return nil
}

// Stop cancels any pending pulse and drives the output low. A callback that
// has already started cannot be cancelled and may still drive the output
// high; closing the output line afterwards leaves it low.
func (c *Controller) Stop() error {
	if c.sched.Stop() {
		c.state.triggering.Store(false)
	}
	if err := c.out.Set(false); err != nil {
		return fmt.Errorf("clear output: %w", err)
	}
	return nil
}

// Done is closed once the estimator goroutine has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.estimatorDone
}

// SetBrightness clamps v to [0,100] and stores it.
func (c *Controller) SetBrightness(v int) {
	c.state.SetBrightness(v)
}

// Brightness returns the current brightness in percent.
func (c *Controller) Brightness() int {
	return c.state.Brightness()
}

// State exposes the shared cycle state for inspection.
func (c *Controller) State() *CycleState {
	return c.state
}

// Stats returns a snapshot of timing values and counters.
func (c *Controller) Stats() Stats {
	s := c.state
	return Stats{
		Brightness:    s.Brightness(),
		Period:        s.Period(),
		Offset:        s.Offset(),
		Delay:         s.Delay(),
		Crossing:      s.Crossing(),
		Triggering:    s.Triggering(),
		Edges:         c.edges.Load(),
		Arms:          c.arms.Load(),
		Fires:         c.fires.Load(),
		DeadZoneSkips: c.skips.Load(),
		LastEdge:      time.Duration(c.lastEdge.Load()),
		Now:           c.clock.Now(),
	}
}

// fire is the trigger callback: assert the gate, then release the slot.
func (c *Controller) fire() {
	if err := c.out.Set(true); err != nil {
		c.fatal("dimmer: set output: %v", err)
		return
	}
	c.fires.Add(1)
	c.state.triggering.Store(false)
}
