// Package status provides a thread-safe status tracker for the phase-dimmer
// daemon. It is read by the HTTP handlers and the MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/phase-dimmer/internal/dimmer"
)

// SignalTimeout is how long after the last zero-crossing edge the reference
// signal is still reported as present.
const SignalTimeout = 100 * time.Millisecond

// NetworkInfo contains network state as written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	SettleMs    int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	PinZC       int
	PinGate     int
	SerialPort  string
}

// Snapshot is a point-in-time view of daemon state.
// Callers may keep it after the tracker lock is released.
type Snapshot struct {
	Dimmer        dimmer.Stats
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether a half-cycle period has been measured, which is the
// earliest point at which the trigger can be armed.
func (s Snapshot) Ready() bool {
	return s.Dimmer.Period > 0
}

// SignalPresent reports whether a zero-crossing edge was seen recently.
func (s Snapshot) SignalPresent() bool {
	return SignalPresent(s.Dimmer)
}

// SignalPresent reports whether stats saw an edge within SignalTimeout of
// being taken.
func SignalPresent(stats dimmer.Stats) bool {
	if stats.LastEdge == 0 {
		return false
	}
	return stats.Now-stats.LastEdge < SignalTimeout
}

// MainsHz derives the line frequency from the half-cycle period. Returns 0
// before a period is measured.
func (s Snapshot) MainsHz() float64 {
	if s.Dimmer.Period <= 0 {
		return 0
	}
	return float64(time.Second) / float64(2*s.Dimmer.Period)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update stores the latest control loop stats.
// Called from runLoop on every tick.
func (t *Tracker) Update(stats dimmer.Stats) {
	t.mu.Lock()
	t.snap.Dimmer = stats
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
