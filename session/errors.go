package session

import (
	"fmt"

	"github.com/c360/edgepub/errors"
)

var (
	// ErrSessionInvalid means the backend no longer recognizes this session or
	// client identity. Only a fresh session can fix it.
	ErrSessionInvalid = errors.New("session invalid or de-synced")

	// ErrAckTimeout means the message was sent but no acknowledgment arrived in time.
	ErrAckTimeout = errors.New("acknowledgment timeout")

	// ErrSessionClosed is returned by Publish on a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// BackendError carries a failure the backend reported as a string code rather
// than a local fault.
type BackendError struct {
	Code    string
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend error: %s", e.Code)
	}
	return fmt.Sprintf("backend error %s: %s", e.Code, e.Message)
}
