package kasa

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/device"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/infrastructure/mqtt"
)

// MQTTClient is the broker surface the bridge needs. *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Registrar receives discovered devices. *device.Pool satisfies it.
type Registrar interface {
	RegisterFromDiscovery(t device.Transport) (*device.Wrapper, error)
}

// Logger defines the logging interface used by the Bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

const defaultStaleAfter = 30 * time.Second

// Options configures a Bridge.
type Options struct {
	Client    MQTTClient
	Topics    mqtt.Topics
	QoS       byte
	Registrar Registrar
	// StaleAfter bounds how long a cached state report satisfies Poll.
	StaleAfter time.Duration
	Logger     Logger
	Now        func() time.Time
}

// deviceState is the latest report for one device. updated is closed and
// replaced on every report so pollers can wait for the next one.
type deviceState struct {
	status   device.Status
	seen     time.Time
	reported bool
	updated  chan struct{}
}

// Bridge maps MQTT discovery and state topics onto pool transports.
//
// Thread Safety: all methods are safe for concurrent use.
type Bridge struct {
	client     MQTTClient
	topics     mqtt.Topics
	qos        byte
	registrar  Registrar
	staleAfter time.Duration
	logger     Logger
	now        func() time.Time

	mu         sync.Mutex
	states     map[string]*deviceState
	transports map[string]*Transport
}

// NewBridge creates a bridge. Call Start to subscribe.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("kasa bridge: mqtt client is required")
	}
	if opts.Registrar == nil {
		return nil, fmt.Errorf("kasa bridge: registrar is required")
	}

	b := &Bridge{
		client:     opts.Client,
		topics:     opts.Topics,
		qos:        opts.QoS,
		registrar:  opts.Registrar,
		staleAfter: opts.StaleAfter,
		logger:     opts.Logger,
		now:        opts.Now,
		states:     make(map[string]*deviceState),
		transports: make(map[string]*Transport),
	}
	if b.topics.Prefix() == "" {
		b.topics = mqtt.NewTopics(mqtt.DefaultTopicPrefix)
	}
	if b.staleAfter <= 0 {
		b.staleAfter = defaultStaleAfter
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b, nil
}

// Start subscribes to discovery and state topics. State is subscribed
// first so retained reports are cached before devices register.
func (b *Bridge) Start(_ context.Context) error {
	if err := b.client.Subscribe(b.topics.AllStates(), b.qos, b.handleState); err != nil {
		return fmt.Errorf("subscribing to state topics: %w", err)
	}
	if err := b.client.Subscribe(b.topics.AllDiscovery(), b.qos, b.handleDiscovery); err != nil {
		return fmt.Errorf("subscribing to discovery topics: %w", err)
	}
	b.logger.Info("kasa bridge started", "prefix", b.topics.Prefix())
	return nil
}

// Stop unsubscribes from every topic.
func (b *Bridge) Stop() {
	for _, topic := range []string{b.topics.AllDiscovery(), b.topics.AllStates()} {
		if err := b.client.Unsubscribe(topic); err != nil {
			b.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
		}
	}
}

// handleDiscovery registers an announced device with the pool.
func (b *Bridge) handleDiscovery(topic string, payload []byte) error {
	msg, err := decodeDiscovery(payload)
	if err != nil {
		return err
	}
	id := msg.DeviceID
	if id == "" {
		var ok bool
		if id, ok = b.topics.DeviceID(topic); !ok {
			return fmt.Errorf("%w: discovery without device id", ErrInvalidMessage)
		}
	}

	if msg.State != nil {
		b.record(id, statusFromState(msg.State), msg.Timestamp)
	}

	t := b.transport(id)
	w, err := b.registrar.RegisterFromDiscovery(t)
	if err != nil {
		b.logger.Debug("discovered device not registered", "device_id", id, "alias", msg.Alias, "error", err)
		return nil
	}

	b.logger.Debug("discovered device registered",
		"device_id", id,
		"channel", w.Channel,
		"model", msg.Model,
		"host", msg.Host,
	)
	return nil
}

// handleState caches a state report and wakes pollers.
func (b *Bridge) handleState(topic string, payload []byte) error {
	msg, err := decodeState(payload)
	if err != nil {
		return err
	}
	id := msg.DeviceID
	if id == "" {
		var ok bool
		if id, ok = b.topics.DeviceID(topic); !ok {
			return fmt.Errorf("%w: state without device id", ErrInvalidMessage)
		}
	}
	b.record(id, statusFromState(msg.State), msg.Timestamp)
	return nil
}

// record stores a report. A zero timestamp means now.
func (b *Bridge) record(id string, status device.Status, at time.Time) {
	if at.IsZero() {
		at = b.now()
	}

	b.mu.Lock()
	st := b.stateLocked(id)
	if st.reported && at.Before(st.seen) {
		b.mu.Unlock()
		return
	}
	st.status = status
	st.seen = at
	st.reported = true
	close(st.updated)
	st.updated = make(chan struct{})
	b.mu.Unlock()
}

func (b *Bridge) stateLocked(id string) *deviceState {
	st, ok := b.states[id]
	if !ok {
		st = &deviceState{updated: make(chan struct{})}
		b.states[id] = st
	}
	return st
}

// waiter returns a channel closed by the next report for id.
func (b *Bridge) waiter(id string) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked(id).updated
}

// fresh returns the cached status for id if it is recent enough.
func (b *Bridge) fresh(id string) (device.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[id]
	if !ok || !st.reported {
		return device.Status{}, fmt.Errorf("device %q: %w", id, ErrNoState)
	}
	if age := b.now().Sub(st.seen); age > b.staleAfter {
		return device.Status{}, fmt.Errorf("device %q: last report %s ago: %w", id, age.Round(time.Second), ErrStale)
	}
	return st.status, nil
}

// transport returns the single Transport for id, creating it on first use.
func (b *Bridge) transport(id string) *Transport {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.transports[id]
	if !ok {
		t = &Transport{id: id, bridge: b}
		b.transports[id] = t
	}
	return t
}

func (b *Bridge) publishCommand(id, name string, params map[string]any) error {
	msg := CommandMessage{
		ID:         uuid.NewString(),
		Timestamp:  b.now().UTC(),
		DeviceID:   id,
		Command:    name,
		Parameters: params,
		Source:     "kasabridge",
	}
	return b.publish(b.topics.Command(id), msg)
}

func (b *Bridge) publishGet(id string) error {
	return b.publish(b.topics.Get(id), GetMessage{
		ID:        uuid.NewString(),
		Timestamp: b.now().UTC(),
		DeviceID:  id,
	})
}

func (b *Bridge) publish(topic string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", topic, err)
	}
	if err := b.client.Publish(topic, payload, b.qos, false); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
