package gpio

import (
	"sync"
	"time"
)

// Edge is a single scripted transition.
type Edge struct {
	Level bool
	TS    time.Duration
}

// FakeInput is a test double for the zero-crossing line. Edges are injected
// with Fire or Play and delivered synchronously to the handler.
type FakeInput struct {
	mu      sync.Mutex
	handler EdgeHandler
	level   bool

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Level()
	ReadError error
}

// NewFakeInput creates a FakeInput delivering edges to handler.
func NewFakeInput(handler EdgeHandler) *FakeInput {
	return &FakeInput{handler: handler}
}

// Fire sets the line level and delivers the edge. Nothing is delivered after
// Close.
func (f *FakeInput) Fire(level bool, ts time.Duration) {
	f.mu.Lock()
	f.level = level
	h := f.handler
	closed := f.Closed
	f.mu.Unlock()

	if h != nil && !closed {
		h(level, ts)
	}
}

// Play fires each scripted edge in order.
func (f *FakeInput) Play(edges []Edge) {
	for _, e := range edges {
		f.Fire(e.Level, e.TS)
	}
}

// Level returns the last level set by Fire.
func (f *FakeInput) Level() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return false, f.ReadError
	}
	return f.level, nil
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// FakeOutput records every level written to the gate line.
type FakeOutput struct {
	mu     sync.Mutex
	levels []bool

	// SetError, if set, will be returned by Set()
	SetError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeOutput creates a FakeOutput, initially low.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the level.
func (f *FakeOutput) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.levels = append(f.levels, on)
	return nil
}

// Level returns the last level written, false if none.
func (f *FakeOutput) Level() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.levels) == 0 {
		return false
	}
	return f.levels[len(f.levels)-1]
}

// Levels returns a copy of all levels written so far.
func (f *FakeOutput) Levels() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.levels...)
}

// Pulses counts low-to-high transitions written so far.
func (f *FakeOutput) Pulses() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	prev := false
	for _, l := range f.levels {
		if l && !prev {
			n++
		}
		prev = l
	}
	return n
}

// Close drives the gate low and marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, false)
	f.Closed = true
	return nil
}

// Reset clears recorded levels and errors.
func (f *FakeOutput) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = nil
	f.SetError = nil
	f.Closed = false
}
