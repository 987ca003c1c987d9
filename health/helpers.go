package health

import (
	"fmt"
	"strings"
	"time"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

func newStatus(component, status, message string) Status {
	return Status{
		Component: component,
		Healthy:   status == statusHealthy,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status.
func NewHealthy(component, message string) Status {
	return newStatus(component, statusHealthy, message)
}

// NewUnhealthy creates an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, statusUnhealthy, message)
}

// NewDegraded creates a degraded status.
func NewDegraded(component, message string) Status {
	return newStatus(component, statusDegraded, message)
}

func severity(s Status) int {
	switch {
	case s.IsUnhealthy():
		return 2
	case s.IsDegraded():
		return 1
	}
	return 0
}

// Aggregate reports the worst of subStatuses under component and names the
// components responsible. The inputs are kept as sub-statuses.
func Aggregate(component string, subStatuses []Status) Status {
	worst := 0
	var culprits []string
	for _, sub := range subStatuses {
		switch sev := severity(sub); {
		case sev > worst:
			worst = sev
			culprits = append(culprits[:0], sub.Component)
		case sev == worst && sev > 0:
			culprits = append(culprits, sub.Component)
		}
	}

	var status Status
	switch worst {
	case 2:
		status = NewUnhealthy(component, fmt.Sprintf("unhealthy: %s", strings.Join(culprits, ", ")))
	case 1:
		status = NewDegraded(component, fmt.Sprintf("degraded: %s", strings.Join(culprits, ", ")))
	default:
		status = NewHealthy(component, fmt.Sprintf("%d components healthy", len(subStatuses)))
	}

	if len(subStatuses) > 0 {
		status.SubStatuses = append([]Status(nil), subStatuses...)
	}
	return status
}
