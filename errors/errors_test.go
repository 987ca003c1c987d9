package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"not connected", ErrNotConnected, true},
		{"rate limited", ErrRateLimited, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"invalid state", ErrInvalidState, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"network error", fmt.Errorf("network unreachable"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err), "error: %v", test.err)
		})
	}
}

func TestIsInvalid(t *testing.T) {
	assert.False(t, IsInvalid(nil))
	assert.True(t, IsInvalid(ErrInvalidState))
	assert.True(t, IsInvalid(ErrNotConfigured))
	assert.True(t, IsInvalid(fmt.Errorf("wrapped: %w", ErrInvalidConfig)))
	assert.False(t, IsInvalid(ErrConnectionLost))
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.True(t, IsFatal(ErrResourceExhausted))
	assert.True(t, IsFatal(fmt.Errorf("fatal: disk gone")))
	assert.False(t, IsFatal(ErrInvalidState))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil", nil, ErrorTransient},
		{"transient", ErrConnectionLost, ErrorTransient},
		{"invalid", ErrInvalidState, ErrorInvalid},
		{"fatal", ErrResourceExhausted, ErrorFatal},
		{"unknown defaults to transient", errors.New("something odd"), ErrorTransient},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, Classify(test.err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "Client", "Connect", "dial"))

	err := Wrap(ErrConnectionLost, "Client", "Connect", "dial")
	assert.Equal(t, "Client.Connect: dial failed: connection lost", err.Error())
	assert.True(t, errors.Is(err, ErrConnectionLost))
	assert.True(t, IsTransient(err))
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("boom")

	transient := WrapTransient(base, "Client", "Reconnect", "connect")
	invalid := WrapInvalid(base, "Client", "Publish", "check state")
	fatal := WrapFatal(base, "Registry", "Register", "register")

	assert.True(t, IsTransient(transient))
	assert.True(t, IsInvalid(invalid))
	assert.True(t, IsFatal(fatal))
	assert.True(t, errors.Is(invalid, base))

	var ce *ClassifiedError
	assert.True(t, errors.As(invalid, &ce))
	assert.Equal(t, "Client", ce.Component)
	assert.Equal(t, "Publish", ce.Operation)
	assert.Equal(t, "Client.Publish: check state failed: boom", ce.Error())

	assert.Nil(t, WrapTransient(nil, "a", "b", "c"))
	assert.Nil(t, WrapInvalid(nil, "a", "b", "c"))
	assert.Nil(t, WrapFatal(nil, "a", "b", "c"))
}

func TestClassifiedError_FirstClassWins(t *testing.T) {
	inner := WrapInvalid(ErrInvalidState, "Client", "Publish", "check state")
	outer := WrapTransient(inner, "Client", "Drain", "publish")

	assert.True(t, IsTransient(outer))
	assert.False(t, IsInvalid(outer))
	assert.True(t, errors.Is(outer, ErrInvalidState))

	// plain wrapping keeps the inner class
	assert.True(t, IsInvalid(fmt.Errorf("context: %w", inner)))
}

func TestClassifiedError_Unwrap(t *testing.T) {
	ce := &ClassifiedError{Class: ErrorInvalid, Err: ErrInvalidState}
	assert.Equal(t, "invalid state", ce.Error())
	assert.Equal(t, ErrInvalidState, ce.Unwrap())
}

func BenchmarkClassify(b *testing.B) {
	err := Wrap(ErrConnectionLost, "Client", "Publish", "publish")
	for i := 0; i < b.N; i++ {
		_ = Classify(err)
	}
}
