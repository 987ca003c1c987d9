// Package health reports the state of publish clients and aggregates it for probes.
package health

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Pre-compiled regexes for error message sanitization
var (
	urlRegex         = regexp.MustCompile(`(?i)\b(?:https?|nats|tls|wss?|tcp|ssl|mqtts?)://[^\s]+`)
	unixPathRegex    = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	windowsPathRegex = regexp.MustCompile(`[A-Z]:\\[^:\s]+`)
	ipAddrRegex      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex        = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex  = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// DegradedUtilisation is the buffer utilisation (percent) at or above which a
// disconnected client stops being degraded and becomes unhealthy.
const DegradedUtilisation = 90.0

// Status represents the health state of a client or of the whole process
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related counters for a publish client
type Metrics struct {
	Uptime              time.Duration `json:"uptime"`
	QueueDepth          int           `json:"queue_depth"`
	Utilisation         float64       `json:"utilisation"`
	ConsecutiveFailures int64         `json:"consecutive_failures"`
	MessagesDelivered   int64         `json:"messages_delivered,omitempty"`
	LastActivity        time.Time     `json:"last_activity,omitempty"`
}

// ConnectionSnapshot is the view of a publish client needed to judge its health.
type ConnectionSnapshot struct {
	State               string
	Connected           bool
	QueueDepth          int
	Utilisation         float64
	ConsecutiveFailures int64
	MessagesDelivered   int64
	LastError           string
	Since               time.Time
	LastActivity        time.Time
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == "degraded"
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == "unhealthy"
}

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus adds a sub-status and returns a copy
func (s Status) WithSubStatus(subStatus Status) Status {
	// new backing array so copies never share sub-statuses
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, subStatus)
	return s
}

// sanitizeErrorMessage strips URLs, paths, addresses, ports and credentials from
// an error string before it is exposed on a health endpoint.
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}

	// URLs first, they contain paths
	sanitized := urlRegex.ReplaceAllString(err, "[URL]")
	sanitized = unixPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = windowsPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")

	lower := strings.ToLower(sanitized)
	for _, word := range []string{"password", "token", "key", "secret", "credential"} {
		if strings.Contains(lower, word) {
			sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
			break
		}
	}

	return sanitized
}

// FromConnection judges a publish client: healthy while connected, degraded while
// disconnected with buffer room left, unhealthy once the buffer nears capacity.
func FromConnection(name string, snap ConnectionSnapshot) Status {
	var status Status
	switch {
	case snap.Connected:
		status = NewHealthy(name, "connected")
	case snap.Utilisation < DegradedUtilisation:
		status = NewDegraded(name, fmt.Sprintf("%s, buffering %d messages", snap.State, snap.QueueDepth))
	default:
		status = NewUnhealthy(name, fmt.Sprintf("%s, buffer at %.0f%%", snap.State, snap.Utilisation))
	}

	if snap.LastError != "" && !snap.Connected {
		status.Message += ": " + sanitizeErrorMessage(snap.LastError)
	}

	var uptime time.Duration
	if !snap.Since.IsZero() {
		uptime = time.Since(snap.Since)
	}

	return status.WithMetrics(&Metrics{
		Uptime:              uptime,
		QueueDepth:          snap.QueueDepth,
		Utilisation:         snap.Utilisation,
		ConsecutiveFailures: snap.ConsecutiveFailures,
		MessagesDelivered:   snap.MessagesDelivered,
		LastActivity:        snap.LastActivity,
	})
}
