package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass says how a failure should be handled.
type ErrorClass int

const (
	// ErrorTransient failures may succeed when retried.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid failures come from bad input, configuration or call order.
	ErrorInvalid
	// ErrorFatal failures cannot be recovered from.
	ErrorFatal
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Client lifecycle
var (
	ErrInvalidState  = errors.New("invalid state")
	ErrNotConnected  = errors.New("not connected")
	ErrNotConfigured = errors.New("connection parameters not configured")
)

// Connectivity
var (
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrRateLimited       = errors.New("rate limited")
)

// Input and configuration
var (
	ErrInvalidData   = errors.New("invalid data format")
	ErrParsingFailed = errors.New("parsing failed")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ErrResourceExhausted is the one sentinel classified fatal.
var ErrResourceExhausted = errors.New("resource exhausted")

// ClassifiedError carries an explicit class. The first ClassifiedError in a
// chain decides the class of the whole chain.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string { return ce.Err.Error() }

func (ce *ClassifiedError) Unwrap() error { return ce.Err }

var (
	transientSentinels = []error{
		ErrConnectionTimeout, ErrConnectionLost, ErrNoConnection, ErrNotConnected,
		ErrRateLimited, context.DeadlineExceeded, context.Canceled,
	}
	invalidSentinels = []error{
		ErrInvalidState, ErrInvalidConfig, ErrMissingConfig, ErrNotConfigured,
		ErrInvalidData, ErrParsingFailed,
	}
	fatalSentinels = []error{ErrResourceExhausted}

	// matched against the lowercased message of errors from other libraries
	transientWords = []string{"timeout", "connection", "network", "temporary", "unavailable", "busy", "retry"}
	fatalWords     = []string{"fatal", "panic", "out of memory"}
)

func explicitClass(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return 0, false
}

func matchesAny(err error, sentinels []error) bool {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

func mentionsAny(err error, words []string) bool {
	msg := strings.ToLower(err.Error())
	for _, w := range words {
		if strings.Contains(msg, w) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := explicitClass(err); ok {
		return class == ErrorTransient
	}
	return matchesAny(err, transientSentinels) || mentionsAny(err, transientWords)
}

// IsFatal reports whether err should stop processing.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := explicitClass(err); ok {
		return class == ErrorFatal
	}
	return matchesAny(err, fatalSentinels) || mentionsAny(err, fatalWords)
}

// IsInvalid reports whether err was caused by input, configuration or call order.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := explicitClass(err); ok {
		return class == ErrorInvalid
	}
	return matchesAny(err, invalidSentinels)
}

// Classify returns the class of err. Unrecognised errors count as transient so
// connectivity faults keep being retried.
func Classify(err error) ErrorClass {
	switch {
	case err == nil, IsTransient(err):
		return ErrorTransient
	case IsFatal(err):
		return ErrorFatal
	case IsInvalid(err):
		return ErrorInvalid
	default:
		return ErrorTransient
	}
}

// Is is errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }

// As is errors.As.
func As(err error, target any) bool { return errors.As(err, target) }

// New is errors.New.
func New(text string) error { return errors.New(text) }

// Wrap adds context in the form "component.method: action failed: cause" and
// keeps whatever class err already has.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{
		Class:     class,
		Err:       Wrap(err, component, method, action),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps err with context and marks it transient.
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapInvalid wraps err with context and marks it invalid.
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}

// WrapFatal wraps err with context and marks it fatal.
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}
