// Package mqttclient connects the publisher to an MQTT broker through the
// Eclipse Paho client.
//
// Paho reports one handler for every successful connection, so the session
// turns the first call into a connect event and later calls into reconnect.
// Connection loss becomes disconnect and each automatic retry becomes
// reconnecting. Paho has no close callback and retries without limit; Close
// emits close itself, and a positive MaxReconnectAttempts is enforced by closing
// the session once the attempts run out.
//
// Subjects are mapped to topics: dots become slashes when TranslateSubjects is
// set and TopicPrefix is prepended. Publishes wait for the broker's
// acknowledgment at the configured QoS; a context deadline while waiting is
// reported as session.ErrAckTimeout.
package mqttclient
