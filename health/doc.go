// Package health reports publish client health for probes and operators.
//
// A client is healthy while connected. While disconnected it is degraded as long as
// its buffer is below DegradedUtilisation percent full, and unhealthy beyond that,
// since messages are about to be evicted.
//
//	status := health.FromConnection("orders", health.ConnectionSnapshot{
//	    State:       "disconnected",
//	    QueueDepth:  1200,
//	    Utilisation: 12,
//	})
//	status.IsDegraded() // true
//
// Monitor tracks several clients and aggregates them:
//
//	monitor := health.NewMonitor()
//	monitor.Update("orders", status)
//	overall := monitor.AggregateHealth("edgepub")
//
// Error messages placed in a status are sanitized: URLs, file paths, IP addresses,
// ports and credential-looking pairs are replaced with placeholders.
package health
