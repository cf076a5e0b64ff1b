package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/phase-dimmer/internal/dimmer"
	"github.com/sweeney/phase-dimmer/internal/mqtt"
	"github.com/sweeney/phase-dimmer/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}

	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("NetworkInfo: got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	info := readNetworkInfo()
	if info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want %q", info.Status, "connected")
	}
	if info.IP != "" || info.SSID != "" {
		t.Errorf("expected empty IP and SSID, got %q %q", info.IP, info.SSID)
	}
}

// --- flag tests ---

func TestParseFlagsDefaults(t *testing.T) {
	cfg, opts, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.GPIO.PinZC != 17 || cfg.GPIO.PinGate != 27 {
		t.Errorf("pins: got zc=%d gate=%d, want 17/27", cfg.GPIO.PinZC, cfg.GPIO.PinGate)
	}
	if cfg.MQTT.TopicPrefix != "home/dimmer" {
		t.Errorf("TopicPrefix: got %q", cfg.MQTT.TopicPrefix)
	}
	if opts.printState || opts.listSerial {
		t.Error("mode flags should default to false")
	}
}

func TestParseFlagsOverrides(t *testing.T) {
	cfg, opts, err := parseFlags([]string{
		"-pin-zc", "5", "-pin-gate", "6", "-brightness", "40",
		"-heartbeat", "0", "-serial", "/dev/ttyUSB0", "-print-state",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.GPIO.PinZC != 5 || cfg.GPIO.PinGate != 6 {
		t.Errorf("pins: got zc=%d gate=%d, want 5/6", cfg.GPIO.PinZC, cfg.GPIO.PinGate)
	}
	if cfg.Brightness != 40 {
		t.Errorf("Brightness: got %d, want 40", cfg.Brightness)
	}
	if cfg.Heartbeat != 0 {
		t.Errorf("Heartbeat: got %v, want 0", time.Duration(cfg.Heartbeat))
	}
	if cfg.Serial.Port != "/dev/ttyUSB0" {
		t.Errorf("Serial.Port: got %q", cfg.Serial.Port)
	}
	if !opts.printState {
		t.Error("expected printState=true")
	}
}

func TestParseFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dimmer.yaml")
	yaml := "gpio:\n  pin_zc: 22\n  pin_gate: 23\nmqtt:\n  broker: tcp://10.0.0.5:1883\nbrightness: 30\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := parseFlags([]string{"-config", path, "-brightness", "80"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.GPIO.PinZC != 22 || cfg.GPIO.PinGate != 23 {
		t.Errorf("pins from file: got zc=%d gate=%d, want 22/23", cfg.GPIO.PinZC, cfg.GPIO.PinGate)
	}
	if cfg.MQTT.Broker != "tcp://10.0.0.5:1883" {
		t.Errorf("Broker from file: got %q", cfg.MQTT.Broker)
	}
	if cfg.Brightness != 80 {
		t.Errorf("explicit flag should win over file: got %d, want 80", cfg.Brightness)
	}
}

func TestParseFlagsInvalid(t *testing.T) {
	if _, _, err := parseFlags([]string{"-pin-zc", "4", "-pin-gate", "4"}); err == nil {
		t.Error("expected error when both pins are equal")
	}
	if _, _, err := parseFlags([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Error("expected error for missing config file")
	}
}

// --- source attribution ---

type fakeControl struct{ level int }

func (f *fakeControl) SetBrightness(v int) { f.level = dimmer.ClampBrightness(v) }
func (f *fakeControl) Brightness() int     { return f.level }

func TestSourceTrackerAttribution(t *testing.T) {
	ctl := &fakeControl{}
	sources := &sourceTracker{}
	sources.set("startup")

	http := sources.via(ctl, "http")
	serial := sources.via(ctl, "serial")

	if got := sources.get(); got != "startup" {
		t.Errorf("initial source: got %q, want startup", got)
	}
	http.SetBrightness(40)
	if got := sources.get(); got != "http" {
		t.Errorf("source: got %q, want http", got)
	}
	serial.SetBrightness(150)
	if got := sources.get(); got != "serial" {
		t.Errorf("source: got %q, want serial", got)
	}
	if http.Brightness() != 100 {
		t.Errorf("Brightness: got %d, want 100", http.Brightness())
	}

	var nilTracker *sourceTracker
	if nilTracker.get() != "" {
		t.Error("nil tracker should report empty source")
	}
}

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// scriptedStats returns script[i] on the i-th call and the last entry after
// the script runs out.
type scriptedStats struct {
	mu     sync.Mutex
	script []dimmer.Stats
	calls  int
}

func (s *scriptedStats) Stats() dimmer.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	return s.script[i]
}

func brightnessScript(levels ...int) *scriptedStats {
	s := &scriptedStats{}
	for _, b := range levels {
		s.script = append(s.script, dimmer.Stats{Brightness: b, Period: 10 * time.Millisecond})
	}
	return s
}

// runRunLoop drives runLoop for nTicks then delivers signal.
func runRunLoop(t *testing.T, ctl statsSource, pub mqtt.Publisher, tracker *status.Tracker, sources *sourceTracker, settle, heartbeat time.Duration, clock func() time.Time, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	var mqttStatus mqtt.ConnectionStatus
	if cs, ok := pub.(mqtt.ConnectionStatus); ok {
		mqttStatus = cs
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(ctl, pub, mqttStatus, tracker, sources, settle, heartbeat, clock, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	return <-errCh
}

func newTracker() *status.Tracker {
	return status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{Broker: "tcp://localhost:1883"})
}

func TestRunLoopPublishesInitialBrightness(t *testing.T) {
	ctl := brightnessScript(25)
	pub := mqtt.NewFakePublisher()
	sources := &sourceTracker{}
	sources.set("startup")
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)

	err := runRunLoop(t, ctl, pub, newTracker(), sources, 0, 0, clock, 3, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.BrightnessEvents) != 1 {
		t.Fatalf("expected 1 brightness event, got %d", len(pub.BrightnessEvents))
	}
	ev := pub.BrightnessEvents[0]
	if ev.Brightness != 25 {
		t.Errorf("Brightness: got %d, want 25", ev.Brightness)
	}
	if ev.Source != "startup" {
		t.Errorf("Source: got %q, want startup", ev.Source)
	}
}

func TestRunLoopPublishesOnChange(t *testing.T) {
	ctl := brightnessScript(0, 0, 40, 40, 100, 0)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)

	err := runRunLoop(t, ctl, pub, newTracker(), nil, 0, 0, clock, 6, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	want := []int{0, 40, 100, 0}
	if len(pub.BrightnessEvents) != len(want) {
		t.Fatalf("expected %d brightness events, got %d", len(want), len(pub.BrightnessEvents))
	}
	for i, b := range want {
		if pub.BrightnessEvents[i].Brightness != b {
			t.Errorf("event %d: got %d, want %d", i, pub.BrightnessEvents[i].Brightness, b)
		}
	}
}

func TestRunLoopUpdatesTracker(t *testing.T) {
	ctl := &scriptedStats{script: []dimmer.Stats{{Brightness: 55, Period: 8333 * time.Microsecond, Fires: 9}}}
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := newTracker()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)

	if err := runRunLoop(t, ctl, pub, tracker, nil, 0, 0, clock, 1, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	snap := tracker.Snapshot()
	if snap.Dimmer.Brightness != 55 || snap.Dimmer.Fires != 9 {
		t.Errorf("tracker stats: got %+v", snap.Dimmer)
	}
	if !snap.MQTTConnected {
		t.Error("expected MQTTConnected=true in tracker")
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// Clock calls: t0 (start), +5m, +10m, +15m, +20m (ticks), +25m (shutdown).
	// With a 15m interval the heartbeat fires once, on the third tick.
	ctl := brightnessScript(10)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 5*time.Minute)

	err := runRunLoop(t, ctl, pub, newTracker(), nil, 0, 15*time.Minute, clock, 4, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var heartbeats, shutdowns int
	for i, se := range pub.SystemEvents {
		switch se.Event {
		case "HEARTBEAT":
			heartbeats++
			var parsed status.StatusJSON
			if err := json.Unmarshal(pub.SystemPayloads[i], &parsed); err != nil {
				t.Fatalf("heartbeat payload: %v", err)
			}
			if parsed.Status.Event != "HEARTBEAT" {
				t.Errorf("payload event: got %q", parsed.Status.Event)
			}
			if parsed.Status.Brightness != 10 {
				t.Errorf("payload brightness: got %d, want 10", parsed.Status.Brightness)
			}
		case "SHUTDOWN":
			shutdowns++
		}
	}
	if heartbeats != 1 {
		t.Errorf("expected 1 HEARTBEAT event, got %d", heartbeats)
	}
	if shutdowns != 1 {
		t.Errorf("expected 1 SHUTDOWN event, got %d", shutdowns)
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	ctl := brightnessScript(10)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Hour)

	if err := runRunLoop(t, ctl, pub, newTracker(), nil, 0, 0, clock, 5, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	for _, se := range pub.SystemEvents {
		if se.Event == "HEARTBEAT" {
			t.Error("no heartbeat expected when interval is 0")
		}
	}
}

func TestRunLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "192.168.1.77")

	ctl := brightnessScript(10)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 10*time.Minute)

	if err := runRunLoop(t, ctl, pub, newTracker(), nil, 0, 10*time.Minute, clock, 1, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.SystemEvents) < 1 || pub.SystemEvents[0].Event != "HEARTBEAT" {
		t.Fatalf("expected HEARTBEAT first, got %+v", pub.SystemEvents)
	}
	var parsed status.StatusJSON
	if err := json.Unmarshal(pub.SystemPayloads[0], &parsed); err != nil {
		t.Fatalf("heartbeat payload: %v", err)
	}
	if parsed.Status.Network == nil || parsed.Status.Network.IP != "192.168.1.77" {
		t.Errorf("expected network info in heartbeat, got %+v", parsed.Status.Network)
	}
}

func TestRunLoopPublishError(t *testing.T) {
	ctl := brightnessScript(10, 20, 30)
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)

	err := runRunLoop(t, ctl, pub, newTracker(), nil, 0, 0, clock, 3, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop should not fail on publish errors: %v", err)
	}
	if len(pub.SystemEvents) != 1 || pub.SystemEvents[0].Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN after publish errors, got %+v", pub.SystemEvents)
	}
}

func TestRunLoopWithoutMQTT(t *testing.T) {
	ctl := brightnessScript(10, 20)
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 10*time.Minute)

	err := runRunLoop(t, ctl, nil, newTracker(), nil, 0, 5*time.Minute, clock, 3, syscall.SIGINT)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	ctl := brightnessScript(70)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)

	if err := runRunLoop(t, ctl, pub, newTracker(), nil, 0, 0, clock, 0, syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	se := pub.SystemEvents[0]
	if se.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", se.Event)
	}
	if se.Reason != "SIGINT" {
		t.Errorf("Reason: got %q, want SIGINT", se.Reason)
	}
	if !se.Retained {
		t.Error("SHUTDOWN should be retained")
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(pub.SystemPayloads[0], &parsed); err != nil {
		t.Fatalf("shutdown payload: %v", err)
	}
	if parsed.Status.Reason != "SIGINT" {
		t.Errorf("payload reason: got %q, want SIGINT", parsed.Status.Reason)
	}
	if parsed.Status.Brightness != 70 {
		t.Errorf("payload brightness: got %d, want 70", parsed.Status.Brightness)
	}
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	ctl := brightnessScript(0)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)

	if err := runRunLoop(t, ctl, pub, newTracker(), nil, 0, 0, clock, 1, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	last := pub.SystemEvents[len(pub.SystemEvents)-1]
	if last.Event != "SHUTDOWN" || last.Reason != "SIGTERM" {
		t.Errorf("got %s/%s, want SHUTDOWN/SIGTERM", last.Event, last.Reason)
	}
}

func TestRunLoopSettlesSliderDrag(t *testing.T) {
	ctl := brightnessScript(10, 20, 30, 30, 30, 30)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond)

	err := runRunLoop(t, ctl, pub, newTracker(), nil, 250*time.Millisecond, 0, clock, 6, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.BrightnessEvents) != 1 {
		t.Fatalf("expected 1 brightness event, got %d: %+v", len(pub.BrightnessEvents), pub.BrightnessEvents)
	}
	if pub.BrightnessEvents[0].Brightness != 30 {
		t.Errorf("Brightness: got %d, want 30", pub.BrightnessEvents[0].Brightness)
	}
}

func TestRunLoopSignalLost(t *testing.T) {
	present := dimmer.Stats{Brightness: 50, Period: 10 * time.Millisecond, LastEdge: time.Second, Now: time.Second + 5*time.Millisecond}
	lost := present
	lost.Now = 3 * time.Second
	ctl := &scriptedStats{script: []dimmer.Stats{present, present, lost, lost}}
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)

	err := runRunLoop(t, ctl, pub, newTracker(), nil, 0, 0, clock, 4, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.SystemEvents) != 2 {
		t.Fatalf("expected SIGNAL_LOST and SHUTDOWN, got %+v", pub.SystemEvents)
	}
	if pub.SystemEvents[0].Event != "SIGNAL_LOST" {
		t.Errorf("Event: got %q, want SIGNAL_LOST", pub.SystemEvents[0].Event)
	}
	var parsed status.StatusJSON
	if err := json.Unmarshal(pub.SystemPayloads[0], &parsed); err != nil {
		t.Fatalf("signal payload: %v", err)
	}
	if parsed.Status.Event != "SIGNAL_LOST" || parsed.Status.Signal {
		t.Errorf("payload: event=%q signal=%v", parsed.Status.Event, parsed.Status.Signal)
	}
}

func TestLevelString(t *testing.T) {
	if levelString(true) != "HIGH" || levelString(false) != "LOW" {
		t.Error("levelString mismatch")
	}
}
