// Package config loads daemon settings from an optional YAML file.
// Command-line flags are applied on top by cmd/phase-dimmer.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/phase-dimmer/internal/gpio"
)

// Config is the complete daemon configuration.
type Config struct {
	GPIO       GPIOConfig   `yaml:"gpio"`
	MQTT       MQTTConfig   `yaml:"mqtt"`
	HTTPAddr   string       `yaml:"http_addr"` // empty disables the HTTP server
	Serial     SerialConfig `yaml:"serial"`
	Poll       Duration     `yaml:"poll"`      // status sample interval
	Settle     Duration     `yaml:"settle"`    // how long a value must hold before it is published
	Heartbeat  Duration     `yaml:"heartbeat"` // 0 disables heartbeats
	Brightness int          `yaml:"brightness"`
}

// GPIOConfig selects the chip and lines.
type GPIOConfig struct {
	Chip      string `yaml:"chip"`
	PinZC     int    `yaml:"pin_zc"`
	PinGate   int    `yaml:"pin_gate"`
	ActiveLow bool   `yaml:"active_low"` // zero-crossing input is inverted
}

// MQTTConfig contains broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// SerialConfig configures the optional brightness console. An empty port
// disables it.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// Duration is a time.Duration that unmarshals from strings like "15m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		GPIO: GPIOConfig{
			Chip:    gpio.DefaultChip,
			PinZC:   gpio.DefaultPinZC,
			PinGate: gpio.DefaultPinGate,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://192.168.1.200:1883",
			ClientID:    "phase-dimmer",
			TopicPrefix: "home/dimmer",
		},
		HTTPAddr:  ":80",
		Serial:    SerialConfig{Baud: 115200},
		Poll:      Duration(100 * time.Millisecond),
		Settle:    Duration(250 * time.Millisecond),
		Heartbeat: Duration(15 * time.Minute),
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports settings the daemon cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.GPIO.Chip == "" {
		errs = append(errs, errors.New("gpio.chip is empty"))
	}
	if c.GPIO.PinZC < 0 || c.GPIO.PinGate < 0 {
		errs = append(errs, fmt.Errorf("gpio pins must be >= 0 (zc=%d gate=%d)", c.GPIO.PinZC, c.GPIO.PinGate))
	}
	if c.GPIO.PinZC == c.GPIO.PinGate {
		errs = append(errs, fmt.Errorf("gpio.pin_zc and gpio.pin_gate are both %d", c.GPIO.PinZC))
	}
	if c.Poll <= 0 {
		errs = append(errs, fmt.Errorf("poll must be > 0, got %v", time.Duration(c.Poll)))
	}
	if c.Settle < 0 {
		errs = append(errs, fmt.Errorf("settle must be >= 0, got %v", time.Duration(c.Settle)))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must be >= 0, got %v", time.Duration(c.Heartbeat)))
	}
	if c.Serial.Port != "" && c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud must be > 0, got %d", c.Serial.Baud))
	}
	if c.MQTT.Broker != "" && c.MQTT.TopicPrefix == "" {
		errs = append(errs, errors.New("mqtt.topic_prefix is empty"))
	}
	return errors.Join(errs...)
}
