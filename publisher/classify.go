package publisher

import (
	"context"
	"strings"

	"github.com/c360/edgepub/errors"
	"github.com/c360/edgepub/session"
)

// FailureKind is the normalized outcome of a failed delivery attempt.
type FailureKind string

const (
	// FailureTransient is retried with backoff.
	FailureTransient FailureKind = "transient"
	// FailureAckTimeout is retried with backoff and logged separately; it usually
	// means the backend is overloaded.
	FailureAckTimeout FailureKind = "ack_timeout"
	// FailureSessionInvalid forces a reconnect immediately.
	FailureSessionInvalid FailureKind = "session_invalid"
)

// Backend codes that mean the backend forgot this client. Matched case-insensitively
// as substrings of BackendError.Code.
var sessionInvalidCodes = []string{
	"invalid publish request",
	"unknown client",
	"client not registered",
	"session expired",
	"stale connection",
}

// Classify maps a publish error, whether a local fault or a backend code, onto a
// FailureKind.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureTransient
	case errors.Is(err, session.ErrSessionInvalid), errors.Is(err, session.ErrSessionClosed):
		return FailureSessionInvalid
	case errors.Is(err, session.ErrAckTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureAckTimeout
	}

	var backend *session.BackendError
	if errors.As(err, &backend) {
		code := strings.ToLower(backend.Code)
		for _, c := range sessionInvalidCodes {
			if strings.Contains(code, c) {
				return FailureSessionInvalid
			}
		}
		if strings.Contains(code, "timeout") {
			return FailureAckTimeout
		}
	}

	return FailureTransient
}
