package statebus

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/embercore/ember-core/internal/infrastructure/mqtt"
)

// fakeTransport records subscriptions and publishes, and lets tests
// inject messages.
type fakeTransport struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	published []publishedMsg
	subErr    error
	pubErr    error
}

type publishedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeTransport) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	if f.subErr != nil {
		return f.subErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMsg{topic, payload, qos, retained})
	return nil
}

// deliver simulates a broker delivery on a subscribed topic.
func (f *fakeTransport) deliver(t *testing.T, topic string, payload string) {
	t.Helper()
	f.mu.Lock()
	handler, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for topic %q", topic)
	}
	if err := handler(topic, []byte(payload)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
}

type testLogger struct{}

func (testLogger) Warn(msg string, args ...any)  {}
func (testLogger) Debug(msg string, args ...any) {}

func TestSubscribeRequiresEntities(t *testing.T) {
	bus := New(newFakeTransport(), 1, testLogger{})

	err := bus.Subscribe(nil, func(Event) {})
	if !errors.Is(err, ErrNoEntities) {
		t.Errorf("Subscribe(nil) error = %v, want ErrNoEntities", err)
	}
}

func TestSubscribeDeliversEvents(t *testing.T) {
	transport := newFakeTransport()
	bus := New(transport, 1, testLogger{})

	var events []Event
	err := bus.Subscribe([]string{"sensor.outdoor_temp"}, func(ev Event) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	transport.deliver(t, "embercore/state/sensor.outdoor_temp",
		`{"value": 12.5, "ts": "2026-03-10T09:00:00Z"}`)

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.EntityID != "sensor.outdoor_temp" {
		t.Errorf("EntityID = %q, want %q", ev.EntityID, "sensor.outdoor_temp")
	}
	if ev.Value != "12.5" {
		t.Errorf("Value = %q, want %q", ev.Value, "12.5")
	}
	want := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	if !ev.At.Equal(want) {
		t.Errorf("At = %v, want %v", ev.At, want)
	}
}

func TestSubscribeDecodesValueForms(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"json number", `{"value": 19.5}`, "19.5"},
		{"json integer", `{"value": 20}`, "20"},
		{"json string number", `{"value": "20.5"}`, "20.5"},
		{"binary state", `{"value": "on"}`, "on"},
		{"boolean", `{"value": true}`, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newFakeTransport()
			bus := New(transport, 1, testLogger{})

			var got Event
			if err := bus.Subscribe([]string{"sensor.x"}, func(ev Event) { got = ev }); err != nil {
				t.Fatalf("Subscribe() error = %v", err)
			}
			transport.deliver(t, "embercore/state/sensor.x", tt.payload)

			if got.Value != tt.want {
				t.Errorf("Value = %q, want %q", got.Value, tt.want)
			}
		})
	}
}

func TestSubscribeDropsMalformedPayload(t *testing.T) {
	transport := newFakeTransport()
	bus := New(transport, 1, testLogger{})

	called := 0
	if err := bus.Subscribe([]string{"sensor.x"}, func(Event) { called++ }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	transport.deliver(t, "embercore/state/sensor.x", `not json`)
	transport.deliver(t, "embercore/state/sensor.x", `{"ts": "2026-03-10T09:00:00Z"}`)

	if called != 0 {
		t.Errorf("handler called %d times for malformed payloads, want 0", called)
	}
}

func TestReadStateReflectsLastEvent(t *testing.T) {
	transport := newFakeTransport()
	bus := New(transport, 1, testLogger{})

	if _, ok := bus.ReadState("sensor.x"); ok {
		t.Fatal("ReadState() before any event reported ok")
	}

	if err := bus.Subscribe([]string{"sensor.x"}, func(Event) {}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	transport.deliver(t, "embercore/state/sensor.x", `{"value": 18.0}`)
	transport.deliver(t, "embercore/state/sensor.x", `{"value": 18.5}`)

	ev, ok := bus.ReadState("sensor.x")
	if !ok {
		t.Fatal("ReadState() reported no state after deliveries")
	}
	if ev.Value != "18.5" {
		t.Errorf("Value = %q, want %q (last delivery wins)", ev.Value, "18.5")
	}
}

func TestCallServicePublishesCommand(t *testing.T) {
	transport := newFakeTransport()
	bus := New(transport, 1, testLogger{})

	err := bus.CallService("climate", "living_room", "set_temperature",
		map[string]any{"temperature": 21.5})
	if err != nil {
		t.Fatalf("CallService() error = %v", err)
	}

	if len(transport.published) != 1 {
		t.Fatalf("got %d published messages, want 1", len(transport.published))
	}
	msg := transport.published[0]
	if msg.topic != "embercore/command/climate/living_room" {
		t.Errorf("topic = %q, want %q", msg.topic, "embercore/command/climate/living_room")
	}
	if msg.retained {
		t.Error("command published as retained, want not retained")
	}

	var cmd struct {
		Service   string         `json:"service"`
		RequestID string         `json:"request_id"`
		Params    map[string]any `json:"params"`
	}
	if err := json.Unmarshal(msg.payload, &cmd); err != nil {
		t.Fatalf("command payload not JSON: %v", err)
	}
	if cmd.Service != "set_temperature" {
		t.Errorf("service = %q, want %q", cmd.Service, "set_temperature")
	}
	if cmd.RequestID == "" {
		t.Error("request_id is empty")
	}
	if got := cmd.Params["temperature"]; got != 21.5 {
		t.Errorf("params.temperature = %v, want 21.5", got)
	}
}

func TestCallServiceUniqueRequestIDs(t *testing.T) {
	transport := newFakeTransport()
	bus := New(transport, 1, testLogger{})

	for i := 0; i < 2; i++ {
		if err := bus.CallService("climate", "x", "set_temperature", nil); err != nil {
			t.Fatalf("CallService() error = %v", err)
		}
	}

	var ids [2]string
	for i, msg := range transport.published {
		var cmd struct {
			RequestID string `json:"request_id"`
		}
		if err := json.Unmarshal(msg.payload, &cmd); err != nil {
			t.Fatalf("command payload not JSON: %v", err)
		}
		ids[i] = cmd.RequestID
	}
	if ids[0] == ids[1] {
		t.Errorf("request IDs not unique: %q", ids[0])
	}
}

func TestCallServiceValidation(t *testing.T) {
	bus := New(newFakeTransport(), 1, testLogger{})

	tests := []struct {
		name    string
		domain  string
		device  string
		service string
	}{
		{"empty domain", "", "x", "set_temperature"},
		{"empty device", "climate", "", "set_temperature"},
		{"empty service", "climate", "x", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bus.CallService(tt.domain, tt.device, tt.service, nil)
			if !errors.Is(err, ErrInvalidCall) {
				t.Errorf("CallService() error = %v, want ErrInvalidCall", err)
			}
		})
	}
}
