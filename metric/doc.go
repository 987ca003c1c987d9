// Package metric provides Prometheus-based metrics collection and an HTTP server
// for edgepub publish clients.
//
// The package offers a centralized registry holding the publish client metrics
// (accepted, delivered, failed and dropped messages, connection state, reconnects)
// plus any component-specific collectors registered through MetricsRegistrar. The
// Server exposes everything in Prometheus format together with a health endpoint.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry, security.Config{})
//	server.SetHealthFunc(client.Health)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        slog.Error("metrics server failed", "error", err)
//	    }
//	}()
//	defer server.Stop()
//
// # Client Metrics
//
// All client series carry a "client" label:
//
//   - edgepub_publish_accepted_total, delivered_total, failures_total{kind}, overflow_drops_total
//   - edgepub_publish_queue_depth, consecutive_failures
//   - edgepub_publish_delivery_duration_seconds
//   - edgepub_session_state (0=disconnected, 1=connecting, 2=connected)
//   - edgepub_session_reconnects_total{trigger}, events_total{event}
//
// # Component Metrics
//
// Other components register their own collectors. Keys are owner.metricName and a
// key can only be registered once:
//
//	depth := prometheus.NewGauge(prometheus.GaugeOpts{
//	    Name: "my_component_depth",
//	    Help: "Items waiting",
//	})
//	if err := registry.RegisterGauge("my-component", "depth", depth); err != nil {
//	    return err
//	}
//
// # Health Endpoint
//
// /health answers 200 with "OK" when no HealthFunc is set. Otherwise it serves the
// health.Status as JSON with 503 when the status is unhealthy.
//
// # TLS
//
// When security.Config enables server TLS the server is started with
// ListenAndServeTLS using a config from pkg/tlsutil.
package metric
