// Package publisher implements a resilient publish-side client for links that come
// and go.
//
// Publish never blocks on the network: messages go into a bounded ring buffer and
// a single drain goroutine delivers them, in order, whenever a session is
// connected. When the buffer is full the oldest message is evicted and reported
// as an overflow_drop signal.
//
// # Delivery
//
// Each delivery attempt waits for the backend acknowledgment, bounded by
// Config.PublishTimeout. A failed message is put back at the head of the buffer so
// nothing published later overtakes it. Failures are classified:
//
//   - transient: retried after BaseRetryDelay times the consecutive failure count,
//     capped at MaxRetryDelay
//   - ack_timeout: retried the same way but logged with failure=ack_timeout
//   - session_invalid: the backend forgot this client; reconnect immediately
//
// After RetryThreshold consecutive failures the client stops retrying and
// reconnects. Delivery is at-least-once: a message whose acknowledgment was lost
// is sent again.
//
// # Lifecycle
//
//	client, err := publisher.New(natsclient.NewDialer(natsclient.DefaultConfig()), publisher.DefaultConfig(),
//	    publisher.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx, "nats://edge-1:4222,nats://edge-2:4222", "sensor-7", session.Options{}); err != nil {
//	    return err
//	}
//	defer client.Teardown(context.Background())
//
//	n, err := client.Publish("telemetry.temp", payload)
//
// Reconnect closes the session and dials again with the last Connect parameters
// every ReconnectDelay until it succeeds. Concurrent calls share one attempt.
// Disconnect and Teardown cancel a running reconnect. A session the transport
// closes on its own triggers Reconnect automatically.
//
// # Signals
//
// Observe registers a callback for lifecycle and delivery signals: connected,
// disconnected, reconnecting, reconnected, connection_error, forced_reconnecting,
// forced_disconnected, forced_reconnected, overflow_drop, delivered and
// publish_failed. Anything holding state tied to a session, such as
// subscriptions, should rebuild it on reconnected and forced_reconnected.
package publisher
