// Package edgepub is a publish-side client for edge devices that lose their
// broker connection often.
//
// # Overview
//
// Producers hand messages to a publisher.Client. The client appends every
// message to a bounded ring buffer and a single delivery loop sends the buffer
// head over the current broker session, one message at a time, removing it only
// once the backend acknowledged it. Messages are therefore delivered in publish
// order, at least once, and survive any number of disconnects while the buffer
// has room. When it is full the oldest message is evicted and an overflow_drop
// notification is raised.
//
// Failures are classified. Transient failures and ack timeouts are retried with
// linear backoff until RetryThreshold consecutive failures, after which the
// client tears the session down and reconnects with the parameters of the last
// Connect. A backend that declares the session invalid triggers that reconnect
// immediately.
//
// # Packages
//
//	publisher   buffered client: Connect, Publish, Reconnect, Disconnect, Teardown
//	session     transport abstraction: Dialer, Session, lifecycle events
//	natsclient  NATS core and JetStream transport
//	mqttclient  MQTT transport (Eclipse Paho)
//	pkg/buffer  bounded FIFO with oldest-first eviction
//	pkg/retry   backoff helpers used by delivery and reconnect
//	metric      Prometheus registry and the /metrics and /health server
//	health      health status derived from connection snapshots
//	config      layered JSON/YAML configuration with environment overrides
//	errors      transient, invalid and fatal error classification
//
// # Usage
//
//	dialer, err := natsclient.NewDialer(natsclient.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	client, err := publisher.New(dialer, publisher.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer client.Teardown(context.Background())
//
//	if err := client.Connect(ctx, "nats://hub-1:4222,nats://hub-2:4222", "edge-42", session.DefaultOptions()); err != nil {
//	    return err
//	}
//	if _, err := client.Publish("sensors.temp", []byte(`{"c":21.5}`)); err != nil {
//	    return err
//	}
//
// The edgepub command in cmd/edgepub wraps this for line-oriented input.
package edgepub
