// Package shared provides the outcome taxonomy and small helpers used across
// the chat and review engines.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"errors"
	"fmt"
)

// Kind classifies every outcome an engine can observe.
type Kind string

const (
	// KindValidation marks input rejected before any network call.
	KindValidation Kind = "validation"
	// KindApplication marks a backend response that reported failure.
	KindApplication Kind = "application"
	// KindTransport marks a call that produced no usable response.
	KindTransport Kind = "transport"
	// KindPartial marks a valid result whose secondary enrichment failed.
	KindPartial Kind = "partial"
	// KindEmpty marks a valid zero-data outcome. It is not a failure.
	KindEmpty Kind = "empty"
)

// ErrPending is returned when a single-flight operation is already in progress.
var ErrPending = errors.New("request already in flight")

// Error is a classified outcome carrying a user-facing message.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a KindValidation error.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Application returns a KindApplication error with the server-provided text,
// or fallback when the server sent none.
func Application(serverText, fallback string) *Error {
	if serverText == "" {
		serverText = fallback
	}
	return &Error{Kind: KindApplication, Message: serverText}
}

// Transport wraps a transport failure.
func Transport(message string, err error) *Error {
	return &Error{Kind: KindTransport, Message: message, Err: err}
}

// Partial returns a KindPartial warning.
func Partial(message string) *Error {
	return &Error{Kind: KindPartial, Message: message}
}

// KindOf returns the Kind of err, or "" when err is nil or unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
