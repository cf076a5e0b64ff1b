package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Brightness    int          `json:"brightness"`
	Ready         bool         `json:"ready"`
	Signal        bool         `json:"signal"`
	Timing        TimingJSON   `json:"timing"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// TimingJSON reports the control loop timing in microseconds.
type TimingJSON struct {
	HalfCycleUs    float64 `json:"half_cycle_us"`
	MainsHz        float64 `json:"mains_hz"`
	ZeroCrossingUs float64 `json:"zero_crossing_offset_us"`
	TriggerDelayUs float64 `json:"trigger_delay_us"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of control loop counters.
type CountsJSON struct {
	Edges         uint64 `json:"edges"`
	Arms          uint64 `json:"arms"`
	Fires         uint64 `json:"fires"`
	DeadZoneSkips uint64 `json:"dead_zone_skips"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	SettleMs    int64  `json:"settle_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	PinZC       int    `json:"pin_zc"`
	PinGate     int    `json:"pin_gate"`
	SerialPort  string `json:"serial_port,omitempty"`
}

// micros converts d to microseconds, rounded to 0.1µs.
func micros(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Microsecond)*10) / 10
}

func buildInner(snap Snapshot) StatusInner {
	d := snap.Dimmer
	return StatusInner{
		Brightness: d.Brightness,
		Ready:      snap.Ready(),
		Signal:     snap.SignalPresent(),
		Timing: TimingJSON{
			HalfCycleUs:    micros(d.Period),
			MainsHz:        math.Round(snap.MainsHz()*100) / 100,
			ZeroCrossingUs: micros(d.Offset),
			TriggerDelayUs: micros(d.Delay),
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Edges:         d.Edges,
			Arms:          d.Arms,
			Fires:         d.Fires,
			DeadZoneSkips: d.DeadZoneSkips,
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			SettleMs:    snap.Config.SettleMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			PinZC:       snap.Config.PinZC,
			PinGate:     snap.Config.PinGate,
			SerialPort:  snap.Config.SerialPort,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
