package logic

import "time"

// Detector settles sampled values and reports transitions.
type Detector struct {
	settle        time.Duration
	brightness    channel[int]
	signal        channel[bool]
	baselined     bool
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewDetector creates a detector that reports a value once it has held for
// settle. The startTime is used for calculating uptime in heartbeat events.
func NewDetector(settle time.Duration, startTime time.Time) *Detector {
	return &Detector{
		settle:        settle,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process takes a new sample and returns any events that should be emitted.
// The sample that establishes the baseline yields one brightness event so the
// retained state is current; signal changes are only reported after that.
func (d *Detector) Process(input Input) []Event {
	bChanged := d.brightness.process(input.Brightness, input.Time, d.settle)
	sChanged := d.signal.process(input.Signal, input.Time, d.settle)

	if !d.baselined {
		if !d.brightness.Baselined || !d.signal.Baselined {
			return nil // No events until baseline established
		}
		d.baselined = true
		return []Event{d.event(EventBrightness, input.Time)}
	}

	var events []Event

	// Order: brightness first, then signal if both settle on the same sample
	if bChanged {
		events = append(events, d.event(EventBrightness, input.Time))
		d.eventCounts.BrightnessChanges++
	}

	if sChanged {
		if d.signal.Stable {
			events = append(events, d.event(EventSignalRestored, input.Time))
			d.eventCounts.SignalRestored++
		} else {
			events = append(events, d.event(EventSignalLost, input.Time))
			d.eventCounts.SignalLost++
		}
	}

	return events
}

func (d *Detector) event(typ EventType, now time.Time) Event {
	return Event{
		Timestamp:  now,
		Type:       typ,
		Brightness: d.brightness.Stable,
		Signal:     d.signal.Stable,
	}
}

// process settles one sampled value. Returns true when a baselined channel
// moves to a new settled value.
func (c *channel[T]) process(v T, now time.Time, settle time.Duration) bool {
	if c.Baselined && v == c.Stable {
		// No change from stable value, clear any candidate
		c.hasPending = false
		return false
	}

	if !c.hasPending || c.Pending != v {
		// New candidate
		c.Pending = v
		c.PendingSince = now
		c.hasPending = true
	}

	if now.Sub(c.PendingSince) < settle {
		return false
	}

	c.Stable = v
	c.hasPending = false
	if !c.Baselined {
		c.Baselined = true
		return false
	}
	return true
}

// IsBaselined returns whether the detector has established a baseline.
func (d *Detector) IsBaselined() bool {
	return d.baselined
}

// Current returns the settled brightness and signal presence.
func (d *Detector) Current() (brightness int, signal bool) {
	return d.brightness.Stable, d.signal.Stable
}

// EventCountsSnapshot returns the transition counts so far.
func (d *Detector) EventCountsSnapshot() EventCounts {
	return d.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if not yet baselined, if the
// interval has not elapsed, or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if !d.baselined {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.eventCounts,
	}
}
