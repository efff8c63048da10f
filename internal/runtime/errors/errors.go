package errors

import (
	sterrors "errors"
	"fmt"
	"strings"
)

var (
	ErrDocumentRequired    = sterrors.New("asyncflow: document is required")
	ErrOperationIDRequired = sterrors.New("asyncflow: operation id is required")
	ErrHandlerRequired     = sterrors.New("asyncflow: protocol handler is required")
	ErrConfigRequired      = sterrors.New("asyncflow: configuration is required")
	ErrLoggerRequired      = sterrors.New("asyncflow: logger is required")
	ErrInvalidExpression   = sterrors.New("asyncflow: invalid runtime expression")
	ErrInvalidReference    = sterrors.New("asyncflow: invalid reference")

	// Category sentinels matched by the typed errors below through errors.Is.
	ErrNotFound            = sterrors.New("asyncflow: not found")
	ErrActionMismatch      = sterrors.New("asyncflow: operation action mismatch")
	ErrAmbiguousMessage    = sterrors.New("asyncflow: ambiguous message")
	ErrValidation          = sterrors.New("asyncflow: validation failed")
	ErrUnsupportedProtocol = sterrors.New("asyncflow: unsupported protocol")
)

// NotFoundError reports a missing operation, server, channel, message, handler
// or a dangling reference.
type NotFoundError struct {
	Kind   string
	Name   string
	Detail string
}

func NewNotFoundError(kind, name string) *NotFoundError {
	return &NotFoundError{Kind: kind, Name: name}
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("asyncflow: %s %q not found", e.Kind, e.Name)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ActionMismatchError is returned when the action declared by an operation does
// not allow the requested verb.
type ActionMismatchError struct {
	OperationID string
	Action      string
	Verb        string
}

func (e *ActionMismatchError) Error() string {
	return fmt.Sprintf("asyncflow: operation %q declares action %q and cannot be used to %s", e.OperationID, e.Action, e.Verb)
}

func (e *ActionMismatchError) Is(target error) bool { return target == ErrActionMismatch }

// Rejection explains why a candidate message was not selected.
type Rejection struct {
	Message string
	Reason  error
}

// AmbiguousMessageError is returned when zero or several of an operation's
// messages match the outbound data.
type AmbiguousMessageError struct {
	OperationID string
	Matches     []string
	Rejections  []Rejection
}

func (e *AmbiguousMessageError) Error() string {
	if len(e.Matches) == 0 {
		reasons := make([]string, 0, len(e.Rejections))
		for _, r := range e.Rejections {
			reasons = append(reasons, fmt.Sprintf("%s: %v", r.Message, r.Reason))
		}
		msg := fmt.Sprintf("asyncflow: no message of operation %q matches the outbound data", e.OperationID)
		if len(reasons) > 0 {
			msg += " (" + strings.Join(reasons, "; ") + ")"
		}
		return msg
	}
	return fmt.Sprintf("asyncflow: %d messages of operation %q match the outbound data: %s",
		len(e.Matches), e.OperationID, strings.Join(e.Matches, ", "))
}

func (e *AmbiguousMessageError) Is(target error) bool { return target == ErrAmbiguousMessage }

// Violation is a single schema violation.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

// ValidationError carries the per-field violations of a failed schema validation.
type ValidationError struct {
	Violations []Violation
}

func NewValidationError(violations ...Violation) *ValidationError {
	return &ValidationError{Violations: violations}
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "asyncflow: validation failed"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return "asyncflow: validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// UnsupportedProtocolError is returned when no registered handler supports the
// resolved protocol and version.
type UnsupportedProtocolError struct {
	Protocol string
	Version  string
}

func (e *UnsupportedProtocolError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("asyncflow: no handler registered for protocol %q", e.Protocol)
	}
	return fmt.Sprintf("asyncflow: no handler registered for protocol %q version %q", e.Protocol, e.Version)
}

func (e *UnsupportedProtocolError) Is(target error) bool { return target == ErrUnsupportedProtocol }

// ConfigValidationError wraps configuration problems detected at client construction.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "asyncflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
