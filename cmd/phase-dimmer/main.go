// Command phase-dimmer drives a TRIAC gate in step with the mains zero
// crossing and accepts brightness over HTTP, MQTT and an optional serial
// console.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sweeney/phase-dimmer/internal/config"
	"github.com/sweeney/phase-dimmer/internal/dimmer"
	"github.com/sweeney/phase-dimmer/internal/gpio"
	"github.com/sweeney/phase-dimmer/internal/logic"
	"github.com/sweeney/phase-dimmer/internal/mqtt"
	"github.com/sweeney/phase-dimmer/internal/serialctl"
	"github.com/sweeney/phase-dimmer/internal/status"
	"github.com/sweeney/phase-dimmer/internal/web"
)

// options are the flags that select a mode rather than configure the daemon.
type options struct {
	printState bool
	listSerial bool
}

func main() {
	cfg, opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("fatal: %v", err)
	}

	if opts.listSerial {
		ports, err := serialctl.Ports()
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	if err := run(cfg, opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// parseFlags builds the configuration: defaults, then the -config file, then
// any flags given explicitly on the command line.
func parseFlags(args []string) (config.Config, options, error) {
	def := config.Default()
	fs := flag.NewFlagSet("phase-dimmer", flag.ContinueOnError)

	configPath := fs.String("config", "", "YAML config file")
	chip := fs.String("chip", def.GPIO.Chip, "GPIO chip")
	pinZC := fs.Int("pin-zc", def.GPIO.PinZC, "BCM pin number for the zero-crossing input")
	pinGate := fs.Int("pin-gate", def.GPIO.PinGate, "BCM pin number for the TRIAC gate output")
	activeLow := fs.Bool("active-low", def.GPIO.ActiveLow, "Zero-crossing input is active low")
	broker := fs.String("broker", def.MQTT.Broker, "MQTT broker address (empty to disable)")
	prefix := fs.String("topic-prefix", def.MQTT.TopicPrefix, "MQTT topic prefix")
	clientID := fs.String("client-id", def.MQTT.ClientID, "MQTT client ID")
	httpAddr := fs.String("http", def.HTTPAddr, "HTTP address (empty to disable)")
	serialPort := fs.String("serial", def.Serial.Port, "Serial console device (empty to disable)")
	baud := fs.Int("baud", def.Serial.Baud, "Serial console baud rate")
	poll := fs.Duration("poll", time.Duration(def.Poll), "Status sample interval")
	settle := fs.Duration("settle", time.Duration(def.Settle), "How long brightness or signal must hold before it is published")
	heartbeat := fs.Duration("heartbeat", time.Duration(def.Heartbeat), "Heartbeat interval (0 to disable)")
	brightness := fs.Int("brightness", def.Brightness, "Initial brightness (0-100)")

	var opts options
	fs.BoolVar(&opts.printState, "print-state", false, "Print the zero-crossing input level and exit")
	fs.BoolVar(&opts.listSerial, "list-serial", false, "List serial ports and exit")

	if err := fs.Parse(args); err != nil {
		return def, opts, err
	}

	cfg := def
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return cfg, opts, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "chip":
			cfg.GPIO.Chip = *chip
		case "pin-zc":
			cfg.GPIO.PinZC = *pinZC
		case "pin-gate":
			cfg.GPIO.PinGate = *pinGate
		case "active-low":
			cfg.GPIO.ActiveLow = *activeLow
		case "broker":
			cfg.MQTT.Broker = *broker
		case "topic-prefix":
			cfg.MQTT.TopicPrefix = *prefix
		case "client-id":
			cfg.MQTT.ClientID = *clientID
		case "http":
			cfg.HTTPAddr = *httpAddr
		case "serial":
			cfg.Serial.Port = *serialPort
		case "baud":
			cfg.Serial.Baud = *baud
		case "poll":
			cfg.Poll = config.Duration(*poll)
		case "settle":
			cfg.Settle = config.Duration(*settle)
		case "heartbeat":
			cfg.Heartbeat = config.Duration(*heartbeat)
		case "brightness":
			cfg.Brightness = *brightness
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, opts, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, opts, nil
}

func run(cfg config.Config, opts options) error {
	// Print state mode
	if opts.printState {
		in, err := gpio.NewRealInput(cfg.GPIO.Chip, cfg.GPIO.PinZC, cfg.GPIO.ActiveLow, nil)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer in.Close()
		level, err := in.Level()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		fmt.Printf("ZC: %s\n", levelString(level))
		return nil
	}

	// Gate first so it is held low before any edge can arm a pulse.
	out, err := gpio.NewRealOutput(cfg.GPIO.Chip, cfg.GPIO.PinGate)
	if err != nil {
		return fmt.Errorf("init gate: %w", err)
	}
	defer out.Close()

	ctl := dimmer.New(out, dimmer.NewSystemClock(gpio.MonotonicNow), nil)
	ctl.SetBrightness(cfg.Brightness)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctl.Start(ctx); err != nil {
		return fmt.Errorf("start dimmer: %w", err)
	}
	defer func() {
		if err := ctl.Stop(); err != nil {
			log.Printf("stop dimmer: %v", err)
		}
	}()

	in, err := gpio.NewRealInput(cfg.GPIO.Chip, cfg.GPIO.PinZC, cfg.GPIO.ActiveLow, ctl.HandleEdge)
	if err != nil {
		return fmt.Errorf("init zero-crossing input: %w", err)
	}
	defer in.Close()

	sources := &sourceTracker{}
	sources.set("startup")

	// Initialize MQTT. Failure is not fatal: the lamp keeps working locally.
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:       cfg.MQTT.Broker,
			ClientID:     cfg.MQTT.ClientID,
			Topics:       mqtt.NewTopics(cfg.MQTT.TopicPrefix),
			OnBrightness: sources.via(ctl, "mqtt").SetBrightness,
		})
		if err != nil {
			log.Printf("mqtt disabled: %v", err)
		} else {
			defer p.Close()
			publisher = p
			mqttStatus = p
		}
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      time.Duration(cfg.Poll).Milliseconds(),
		SettleMs:    time.Duration(cfg.Settle).Milliseconds(),
		HeartbeatMs: time.Duration(cfg.Heartbeat).Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTPAddr,
		PinZC:       cfg.GPIO.PinZC,
		PinGate:     cfg.GPIO.PinGate,
		SerialPort:  cfg.Serial.Port,
	})
	tracker.Update(ctl.Stats())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Start HTTP server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, sources.via(ctl, "http"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http server listening on %s", cfg.HTTPAddr)
	}

	// Start serial console
	if cfg.Serial.Port != "" {
		port, err := serialctl.Open(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			log.Printf("serial console disabled: %v", err)
		} else {
			defer port.Close()
			go func() {
				if err := serialctl.Serve(port, sources.via(ctl, "serial")); err != nil {
					log.Printf("serial console stopped: %v", err)
				}
			}()
			log.Printf("serial console on %s at %d baud", cfg.Serial.Port, cfg.Serial.Baud)
		}
	}

	// Publish startup event with full status snapshot
	if publisher != nil {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		snap := tracker.Snapshot()
		startupEvent := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startupEvent); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	log.Printf("started: zc=%s/%d gate=%s/%d brightness=%d broker=%q heartbeat=%v",
		cfg.GPIO.Chip, cfg.GPIO.PinZC, cfg.GPIO.Chip, cfg.GPIO.PinGate, ctl.Brightness(), cfg.MQTT.Broker, time.Duration(cfg.Heartbeat))

	ticker := time.NewTicker(time.Duration(cfg.Poll))
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctl, publisher, mqttStatus, tracker, sources, time.Duration(cfg.Settle), time.Duration(cfg.Heartbeat), time.Now, ticker.C, sigCh)
}

// statsSource is the part of the controller the loop reads.
type statsSource interface {
	Stats() dimmer.Stats
}

// runLoop samples the controller on every tick, refreshes the status tracker,
// publishes settled brightness and signal changes, emits heartbeats and
// publishes SHUTDOWN on a signal. publisher, mqttStatus, tracker and sources
// may be nil.
func runLoop(ctl statsSource, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, sources *sourceTracker, settle, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	detector := logic.NewDetector(settle, startTime)

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if publisher == nil {
				return nil
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				tracker.Update(ctl.Stats())
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			stats := ctl.Stats()

			// Update status tracker for HTTP consumers
			if tracker != nil {
				tracker.Update(stats)
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}

			events := detector.Process(logic.Input{
				Brightness: stats.Brightness,
				Signal:     status.SignalPresent(stats),
				Time:       t,
			})

			for _, event := range events {
				publishEvent(publisher, tracker, sources, event)
			}

			// Check for heartbeat
			hbData := detector.CheckHeartbeat(t, heartbeat)
			if hbData == nil {
				continue
			}
			log.Printf("heartbeat: uptime=%v brightness=%d fires=%d changes=%d signal_lost=%d",
				hbData.Uptime, stats.Brightness, stats.Fires, hbData.Counts.BrightnessChanges, hbData.Counts.SignalLost)
			if publisher == nil {
				continue
			}
			hbEvent := mqtt.SystemEvent{
				Timestamp: hbData.Timestamp,
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

// publishEvent logs a settled change and publishes it. Brightness goes to the
// retained state topic; signal changes go to the system topic with a status
// snapshot.
func publishEvent(publisher mqtt.Publisher, tracker *status.Tracker, sources *sourceTracker, event logic.Event) {
	if event.Type == logic.EventBrightness {
		source := sources.get()
		log.Printf("brightness: %d (%s)", event.Brightness, source)
		if publisher == nil {
			return
		}
		err := publisher.PublishBrightness(mqtt.BrightnessEvent{
			Timestamp:  event.Timestamp,
			Brightness: event.Brightness,
			Source:     source,
		})
		if err != nil {
			log.Printf("publish error: %v", err)
			// Don't crash on publish failure
		}
		return
	}

	log.Printf("event: %s", event.Type)
	if publisher == nil {
		return
	}
	se := mqtt.SystemEvent{
		Timestamp: event.Timestamp,
		Event:     string(event.Type),
	}
	if tracker != nil {
		se.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), string(event.Type), "")
	}
	if err := publisher.PublishSystem(se); err != nil {
		log.Printf("publish error: %v", err)
	}
}

// sourceTracker remembers which input last set the brightness, so the
// published state can name it.
type sourceTracker struct {
	mu   sync.Mutex
	last string
}

func (s *sourceTracker) set(source string) {
	s.mu.Lock()
	s.last = source
	s.mu.Unlock()
}

func (s *sourceTracker) get() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// brightnessControl is satisfied by *dimmer.Controller.
type brightnessControl interface {
	SetBrightness(v int)
	Brightness() int
}

// via wraps ctl so that writes through it are attributed to source.
func (s *sourceTracker) via(ctl brightnessControl, source string) sourcedDimmer {
	return sourcedDimmer{ctl: ctl, source: source, tracker: s}
}

type sourcedDimmer struct {
	ctl     brightnessControl
	source  string
	tracker *sourceTracker
}

func (d sourcedDimmer) SetBrightness(v int) {
	d.tracker.set(d.source)
	d.ctl.SetBrightness(v)
}

func (d sourcedDimmer) Brightness() int {
	return d.ctl.Brightness()
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func levelString(high bool) string {
	if high {
		return "HIGH"
	}
	return "LOW"
}
