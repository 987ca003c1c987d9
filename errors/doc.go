// Package errors provides standardized error handling patterns for edgepub.
//
// # Overview
//
// The package implements a three-class error classification: Transient (temporary,
// retryable), Invalid (bad input or call order, non-retryable) and Fatal
// (unrecoverable). The publisher uses it to decide what is surfaced to callers and
// what is absorbed by the delivery loop.
//
// Only one error is ever surfaced synchronously by the publisher: ErrInvalidState,
// returned from Publish when the client requires an initial connection that has not
// happened yet, or after Teardown. Everything else is retried internally.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Client", "Connect", "dial session")
//	errors.WrapInvalid(err, "Client", "Publish", "check initial connection")
//	errors.WrapFatal(err, "MetricsRegistry", "RegisterCounter", "register counter")
//
// The generic Wrap() keeps whatever classification the wrapped error already has.
//
// # Integration with errors.As/Is
//
//	if errors.Is(err, errors.ErrInvalidState) {
//	    // publish rejected before first connection
//	}
//
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    slog.Warn("operation failed", "component", ce.Component, "class", ce.Class)
//	}
//
// # Context Cancellation
//
// context.DeadlineExceeded and context.Canceled are classified Transient.
//
// # Thread Safety
//
// Classification and wrapping are safe for concurrent use. Error variables are
// immutable and ClassifiedError values are safe to share after creation.
package errors
