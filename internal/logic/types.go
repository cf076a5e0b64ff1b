// Package logic contains the pure reporting logic of the daemon: it turns
// periodic samples of the dimmer into settled brightness and signal events.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// EventType represents a reported transition.
type EventType string

const (
	EventBrightness     EventType = "BRIGHTNESS"
	EventSignalLost     EventType = "SIGNAL_LOST"
	EventSignalRestored EventType = "SIGNAL_RESTORED"
)

// Event represents a settled transition to be published.
type Event struct {
	Timestamp  time.Time
	Type       EventType
	Brightness int
	Signal     bool
}

// Input represents a single sample of the dimmer.
type Input struct {
	Brightness int
	Signal     bool // zero-crossing edges are arriving
	Time       time.Time
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	BrightnessChanges int
	SignalLost        int
	SignalRestored    int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}

// channel tracks settle state for one sampled value.
type channel[T comparable] struct {
	// Current settled value
	Stable T
	// Candidate value while settling
	Pending    T
	hasPending bool
	// Time when the candidate was first observed
	PendingSince time.Time
	// Whether a first settled value exists
	Baselined bool
}
