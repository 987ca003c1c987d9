package natsclient

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/edgepub/errors"
	"github.com/c360/edgepub/session"
)

// mapPublishError translates nats.go publish errors into the session error
// vocabulary the publisher classifies on. The original error stays in the chain.
func mapPublishError(err error) error {
	if err == nil {
		return nil
	}

	var sentinel error
	switch {
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrConnectionDraining):
		sentinel = session.ErrSessionClosed
	case errors.Is(err, nats.ErrStaleConnection),
		errors.Is(err, nats.ErrAuthorization),
		errors.Is(err, nats.ErrAuthExpired),
		errors.Is(err, nats.ErrAuthRevoked):
		sentinel = session.ErrSessionInvalid
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		sentinel = session.ErrAckTimeout
	}
	if sentinel != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %w", sentinel, err), "natsclient", "Publish", "publish")
	}

	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		backend := &session.BackendError{
			Code:    strconv.Itoa(int(apiErr.ErrorCode)),
			Message: apiErr.Description,
		}
		return errors.WrapTransient(fmt.Errorf("%w: %w", backend, err), "natsclient", "Publish", "jetstream publish")
	}

	return errors.WrapTransient(err, "natsclient", "Publish", "publish")
}
