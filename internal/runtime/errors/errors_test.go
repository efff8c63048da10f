package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrDocumentRequired", ErrDocumentRequired, "asyncflow: document is required"},
		{"ErrOperationIDRequired", ErrOperationIDRequired, "asyncflow: operation id is required"},
		{"ErrHandlerRequired", ErrHandlerRequired, "asyncflow: protocol handler is required"},
		{"ErrConfigRequired", ErrConfigRequired, "asyncflow: configuration is required"},
		{"ErrLoggerRequired", ErrLoggerRequired, "asyncflow: logger is required"},
		{"ErrInvalidExpression", ErrInvalidExpression, "asyncflow: invalid runtime expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestTypedErrorsMatchCategories(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category error
	}{
		{"not found", NewNotFoundError("channel", "#/channels/x"), ErrNotFound},
		{"action mismatch", &ActionMismatchError{OperationID: "op", Action: "receive", Verb: "subscribe"}, ErrActionMismatch},
		{"ambiguous", &AmbiguousMessageError{OperationID: "op"}, ErrAmbiguousMessage},
		{"validation", NewValidationError(Violation{Field: "/id", Message: "missing"}), ErrValidation},
		{"unsupported", &UnsupportedProtocolError{Protocol: "mqtt"}, ErrUnsupportedProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := errors.Join(errors.New("context"), tt.err)
			assert.ErrorIs(t, wrapped, tt.category)
		})
	}
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := NewNotFoundError("operation", "sendOrder")
	assert.Equal(t, `asyncflow: operation "sendOrder" not found`, err.Error())

	err.Detail = "reference cycle"
	assert.Equal(t, `asyncflow: operation "sendOrder" not found: reference cycle`, err.Error())

	var nf *NotFoundError
	require.ErrorAs(t, error(err), &nf)
	assert.Equal(t, "operation", nf.Kind)
}

func TestAmbiguousMessageErrorMessage(t *testing.T) {
	none := &AmbiguousMessageError{
		OperationID: "sendOrder",
		Rejections:  []Rejection{{Message: "OrderCreated", Reason: errors.New("missing id")}},
	}
	assert.Contains(t, none.Error(), "no message of operation \"sendOrder\"")
	assert.Contains(t, none.Error(), "OrderCreated: missing id")

	many := &AmbiguousMessageError{OperationID: "sendOrder", Matches: []string{"A", "B"}}
	assert.Equal(t, `asyncflow: 2 messages of operation "sendOrder" match the outbound data: A, B`, many.Error())
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationError(
		Violation{Field: "/id", Message: "missing property"},
		Violation{Message: "document is not well-formed"},
	)
	assert.Equal(t, "asyncflow: validation failed: /id: missing property; document is not well-formed", err.Error())
	assert.Equal(t, "asyncflow: validation failed", NewValidationError().Error())
}

func TestUnsupportedProtocolErrorMessage(t *testing.T) {
	assert.Equal(t, `asyncflow: no handler registered for protocol "mqtt"`, (&UnsupportedProtocolError{Protocol: "mqtt"}).Error())
	assert.Equal(t, `asyncflow: no handler registered for protocol "kafka" version "3.5"`,
		(&UnsupportedProtocolError{Protocol: "kafka", Version: "3.5"}).Error())
}

func TestConfigValidationError(t *testing.T) {
	inner := errors.New("invalid port")
	err := ConfigValidationError{Err: inner}

	assert.Equal(t, "asyncflow: invalid configuration: invalid port", err.Error())
	assert.Equal(t, inner, err.Unwrap())

	assert.Nil(t, NewConfigValidationError(nil))

	wrapped := NewConfigValidationError(inner)
	var cfgErr ConfigValidationError
	require.ErrorAs(t, wrapped, &cfgErr)
	assert.ErrorIs(t, wrapped, inner)
}
