// Package natsclient connects the publisher to NATS.
//
// Dialer implements session.Dialer. Each Dial opens one nats.Conn whose
// lifecycle callbacks are re-emitted as session events:
//
//	connect handler     -> connect
//	disconnect handler  -> disconnect, then reconnecting while nats.go retries
//	reconnect handler   -> reconnect
//	closed handler      -> close
//	async errors        -> error, or permission_error for permission violations
//
// The connection name is the client identity. nats.go's own reconnect buffer is
// disabled because the publisher keeps its own.
//
// # Plain NATS and JetStream
//
// Without JetStream a publish is confirmed by a flush round trip. With
// JetStream enabled every publish waits for the stream acknowledgment, and with
// Provision set the stream is created or updated before the first publish:
//
//	cfg := natsclient.DefaultConfig()
//	cfg.JetStream = natsclient.JetStreamConfig{
//	    Enabled:   true,
//	    Provision: true,
//	    Stream:    "TELEMETRY",
//	    Subjects:  []string{"telemetry.>"},
//	}
//	dialer, err := natsclient.NewDialer(cfg, natsclient.WithLogger(logger))
//
// # Error mapping
//
// Publish errors are translated so the publisher can classify them: a closed or
// draining connection maps to session.ErrSessionClosed, stale connections and
// authorization failures to session.ErrSessionInvalid, flush and ack timeouts to
// session.ErrAckTimeout, and JetStream API errors to session.BackendError.
// Everything else is transient.
//
// # Testing
//
// NewTestServer starts a NATS container with testcontainers-go. Tests that use
// it skip under -short.
package natsclient
