// Package statebus adapts the host automation platform's state and
// command topics into typed events and service calls.
//
// The host publishes entity state as retained JSON messages on
// embercore/state/{entity_id}; the bus subscribes to the entities the
// core cares about, parses each message into an Event, and fans it out
// to the registered handler. Because state topics are retained, a
// fresh subscription immediately replays the last known value of every
// entity, which is how the core warms its feature cache after a
// restart.
//
// Outbound device control goes the other way: CallService publishes a
// command envelope on embercore/command/{domain}/{device_id} carrying
// the service name, parameters and a unique request ID. The bus never
// interprets commands; it is a transport adapter only.
package statebus
