package statebus

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/embercore/ember-core/internal/infrastructure/mqtt"
)

// Transport is the slice of the MQTT client the bus needs. Satisfied
// by *mqtt.Client; tests substitute a fake.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the logging interface the bus requires.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Bus bridges host state topics and command topics to the rest of the
// core. One Bus serves the whole process.
//
// Thread Safety: all methods are safe for concurrent use. Handlers are
// invoked from the MQTT client's delivery goroutines and must not
// block for long.
type Bus struct {
	transport Transport
	topics    mqtt.Topics
	qos       byte
	log       Logger

	mu   sync.RWMutex
	last map[string]Event // latest event per entity, fed by subscriptions
}

// New creates a Bus over the given transport. qos applies to both
// subscriptions and published commands.
func New(transport Transport, qos byte, log Logger) *Bus {
	return &Bus{
		transport: transport,
		qos:       qos,
		log:       log,
		last:      make(map[string]Event),
	}
}

// Subscribe registers for state changes of the given entities and
// routes each decoded event to onEvent. Retained messages on the state
// topics are delivered immediately, so onEvent typically fires once
// per entity straight after subscribing.
//
// Parameters:
//   - entityIDs: host entity identifiers to watch
//   - onEvent: called once per decoded state change
//
// Returns an error if any underlying subscription fails; earlier
// subscriptions in the list remain active.
func (b *Bus) Subscribe(entityIDs []string, onEvent func(Event)) error {
	if len(entityIDs) == 0 {
		return ErrNoEntities
	}

	for _, id := range entityIDs {
		topic := b.topics.EntityState(id)
		err := b.transport.Subscribe(topic, b.qos, func(topic string, payload []byte) error {
			ev, err := b.decode(topic, payload)
			if err != nil {
				b.log.Warn("dropping undecodable state message",
					"topic", topic,
					"error", err)
				return nil // do not force a broker-level retry
			}

			b.mu.Lock()
			b.last[ev.EntityID] = ev
			b.mu.Unlock()

			onEvent(ev)
			return nil
		})
		if err != nil {
			return fmt.Errorf("statebus: subscribe %s: %w", id, err)
		}
	}
	return nil
}

// ReadState returns the last event seen for the entity, if any. The
// cache is populated by Subscribe deliveries, including the retained
// replay at startup.
func (b *Bus) ReadState(entityID string) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ev, ok := b.last[entityID]
	return ev, ok
}

// CallService publishes a command for the host to execute against a
// device, e.g. ("climate", "living_room", "set_temperature",
// map[string]any{"temperature": 21.5}).
//
// Each call carries a fresh request ID so the host can deduplicate
// QoS 1 redeliveries.
func (b *Bus) CallService(domain, deviceID, service string, params map[string]any) error {
	if domain == "" || deviceID == "" || service == "" {
		return ErrInvalidCall
	}

	payload, err := json.Marshal(commandPayload{
		Service:   service,
		RequestID: uuid.NewString(),
		Params:    params,
	})
	if err != nil {
		return fmt.Errorf("statebus: encode command: %w", err)
	}

	topic := b.topics.Command(domain, deviceID)
	if err := b.transport.Publish(topic, payload, b.qos, false); err != nil {
		return fmt.Errorf("statebus: publish command: %w", err)
	}

	b.log.Debug("service call published",
		"domain", domain,
		"device_id", deviceID,
		"service", service)
	return nil
}

// decode parses a state message into an Event.
func (b *Bus) decode(topic string, payload []byte) (Event, error) {
	entityID, ok := strings.CutPrefix(topic, mqtt.TopicPrefixRoot+"/state/")
	if !ok || entityID == "" {
		return Event{}, fmt.Errorf("%w: unexpected topic %q", ErrInvalidPayload, topic)
	}

	var raw statePayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(raw.Value) == 0 {
		return Event{}, fmt.Errorf("%w: missing value", ErrInvalidPayload)
	}

	value, err := decodeValue(raw.Value)
	if err != nil {
		return Event{}, err
	}

	at := time.Now().UTC()
	if raw.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
			at = parsed
		}
	}

	return Event{EntityID: entityID, Value: value, At: at}, nil
}

// decodeValue normalises the value field to its string form. Strings
// are unquoted; numbers and booleans keep their JSON text.
func decodeValue(raw json.RawMessage) (string, error) {
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return s, nil
	}

	text := string(raw)
	if text == "true" || text == "false" || text == "null" {
		return text, nil
	}
	if _, err := strconv.ParseFloat(text, 64); err != nil {
		return "", fmt.Errorf("%w: value %q", ErrInvalidPayload, text)
	}
	return text, nil
}
