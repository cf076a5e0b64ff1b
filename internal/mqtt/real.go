package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// offlineQueueSize bounds how many messages are kept while disconnected.
const offlineQueueSize = 64

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Topics   Topics

	// OnBrightness, if set, receives every valid command from
	// Topics.BrightnessSet. Called from the paho router goroutine.
	OnBrightness func(v int)
}

// RealPublisher publishes to an actual MQTT broker and listens for
// brightness commands.
type RealPublisher struct {
	client paho.Client
	topics Topics
	onSet  func(int)

	mu      sync.Mutex
	offline *offlineQueue
}

// NewRealPublisher creates a publisher connected to the given broker. If the
// broker is unreachable within the connect timeout the client keeps retrying
// in the background and publishes are queued until it connects.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	p := &RealPublisher{
		topics:  o.Topics,
		onSet:   o.OnBrightness,
		offline: newOfflineQueue(offlineQueueSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "LWT",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(30 * time.Second).
		SetWill(o.Topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost, will auto-reconnect: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, retrying in background", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// onConnect (re)subscribes to commands and replays queued publishes. Runs on
// every successful connection, including automatic reconnects.
func (p *RealPublisher) onConnect(c paho.Client) {
	log.Printf("mqtt: connected")

	if p.onSet != nil {
		token := c.Subscribe(p.topics.BrightnessSet, 1, p.handleCommand)
		go func() {
			if !token.WaitTimeout(5 * time.Second) {
				log.Printf("mqtt: subscribe %s timeout", p.topics.BrightnessSet)
				return
			}
			if err := token.Error(); err != nil {
				log.Printf("mqtt: subscribe %s: %v", p.topics.BrightnessSet, err)
			}
		}()
	}

	p.mu.Lock()
	pending := p.offline.flush()
	p.mu.Unlock()
	if len(pending) > 0 {
		log.Printf("mqtt: replaying %d queued messages", len(pending))
	}
	for _, m := range pending {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

func (p *RealPublisher) handleCommand(_ paho.Client, msg paho.Message) {
	v, err := ParseBrightnessCommand(msg.Payload())
	if err != nil {
		log.Printf("mqtt: ignoring command on %s: %v", msg.Topic(), err)
		return
	}
	p.onSet(v)
}

// PublishBrightness sends the brightness state, retained so new subscribers
// see the current level.
func (p *RealPublisher) PublishBrightness(event BrightnessEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(p.topics.Brightness, 1, true, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(p.topics.System, 1, event.Retained, payload)
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.offline.add(queuedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
