// Package mqtt provides MQTT publishing and brightness commands with
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Topics are derived from a single prefix, e.g. "home/dimmer".
type Topics struct {
	Brightness    string // retained brightness state
	BrightnessSet string // incoming brightness commands
	System        string // lifecycle events
}

// NewTopics builds the topic set under prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	return Topics{
		Brightness:    prefix + "/brightness",
		BrightnessSet: prefix + "/brightness/set",
		System:        prefix + "/system",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishBrightness sends the current brightness to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishBrightness(event BrightnessEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// BrightnessEvent is a brightness state change.
type BrightnessEvent struct {
	Timestamp  time.Time
	Brightness int
	Source     string // e.g. "startup", "http", "mqtt", "serial"
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the brightness state message.
type Payload struct {
	Dimmer DimmerPayload `json:"dimmer"`
}

// DimmerPayload contains the brightness details.
type DimmerPayload struct {
	Timestamp  string `json:"timestamp"`
	Brightness int    `json:"brightness"`
	Source     string `json:"source,omitempty"`
}

// FormatPayload creates the JSON payload for a brightness event.
func FormatPayload(event BrightnessEvent) ([]byte, error) {
	payload := Payload{
		Dimmer: DimmerPayload{
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
			Brightness: event.Brightness,
			Source:     event.Source,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Command is the JSON form of a brightness command.
type Command struct {
	Brightness *int `json:"brightness"`
}

// ErrEmptyCommand is returned for an empty command payload.
var ErrEmptyCommand = errors.New("empty brightness command")

// ParseBrightnessCommand accepts either a bare integer ("40") or a JSON
// object ({"brightness": 40}). The value is not clamped here.
func ParseBrightnessCommand(payload []byte) (int, error) {
	s := strings.TrimSpace(string(payload))
	if s == "" {
		return 0, ErrEmptyCommand
	}

	if strings.HasPrefix(s, "{") {
		var cmd Command
		if err := json.Unmarshal([]byte(s), &cmd); err != nil {
			return 0, fmt.Errorf("parse brightness command: %w", err)
		}
		if cmd.Brightness == nil {
			return 0, errors.New("brightness command: missing \"brightness\"")
		}
		return *cmd.Brightness, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse brightness command: %w", err)
	}
	return v, nil
}
