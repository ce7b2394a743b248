package email

import (
	"errors"
	"fmt"
)

var _ error = Error("")

const (
	// ErrMissingAddress indicates that neither the envelope nor the header
	// form of an address was supplied.
	ErrMissingAddress Error = "missing address"

	// ErrMissingHost indicates that no destination host was supplied.
	ErrMissingHost Error = "missing destination host"

	// ErrInvalidPort indicates a destination port outside 1-65535.
	ErrInvalidPort Error = "invalid port"

	// ErrInvalidAddress indicates an address containing a line break.
	ErrInvalidAddress Error = "invalid address"

	// ErrAttachmentNotFound indicates an attachment path that is absent or
	// not a readable regular file.
	ErrAttachmentNotFound Error = "attachment not found"

	// ErrTransport indicates that a transport failed to deliver a message.
	ErrTransport Error = "transport error"
)

// Error type represents package level errors.
type Error string

func (e Error) Error() string { return string(e) }

// FieldError reports a validation failure for a single request field.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// TransportErrorKind classifies a delivery failure.
type TransportErrorKind string

const (
	KindConnection        TransportErrorKind = "connection"
	KindAuthentication    TransportErrorKind = "authentication"
	KindRejectedRecipient TransportErrorKind = "rejected-recipient"
	KindRejectedMessage   TransportErrorKind = "rejected-message"
)

// TransportError is returned by transports when a send attempt fails.
// It matches ErrTransport as well as the underlying cause.
type TransportError struct {
	Transport string
	Kind      TransportErrorKind
	// Recipient is set for KindRejectedRecipient.
	Recipient string
	Err       error
}

func (e *TransportError) Error() string {
	if e.Recipient != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Transport, e.Kind, e.Recipient, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Transport, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// NewTransportError wraps err as a TransportError of the given kind.
func NewTransportError(transport string, kind TransportErrorKind, err error) *TransportError {
	return &TransportError{Transport: transport, Kind: kind, Err: err}
}

// TransportErrorKindOf returns the kind of the first TransportError in err's
// chain, or an empty kind when there is none.
func TransportErrorKindOf(err error) TransportErrorKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
