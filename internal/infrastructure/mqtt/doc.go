// Package mqtt provides MQTT client connectivity for Ember Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Ember Core attaches to the hosting automation installation over MQTT.
// The hosting layer publishes entity state (retained) and consumes
// actuation commands; the broker decouples the core from whichever
// integration actually talks to the devices.
//
//	Ember Core ↔ MQTT Broker ↔ Hosting automation layer ↔ Devices
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all entity state events
//	err = client.Subscribe(mqtt.Topics{}.AllEntityStates(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a setpoint command
//	topic := mqtt.Topics{}.Command("climate", "climate.living_room")
//	client.Publish(topic, []byte(`{"service":"set_temperature","temperature":21.5}`), 1, false)
package mqtt
