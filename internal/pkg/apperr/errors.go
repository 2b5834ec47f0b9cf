// internal/pkg/apperr/errors.go
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for the transport layer
type Kind string

const (
	KindUnknown      Kind = "unknown"
	KindAuthRequired Kind = "auth_required"
	KindValidation   Kind = "validation"
	KindEmptyCart    Kind = "empty_cart"
	KindConflict     Kind = "conflict"
	KindStorage      Kind = "storage"
	KindNotFound     Kind = "not_found"
	KindBusy         Kind = "busy"
)

// Error is the application error carried across package boundaries
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind so sentinels can be compared with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is checks. Only the kind is compared.
var (
	ErrAuthRequired = &Error{Kind: KindAuthRequired}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrEmptyCart    = &Error{Kind: KindEmptyCart}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrStorage      = &Error{Kind: KindStorage}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrBusy         = &Error{Kind: KindBusy}
	ErrUnknown      = &Error{Kind: KindUnknown}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func AuthRequired(message string) *Error { return New(KindAuthRequired, message) }

func Validation(message string) *Error { return New(KindValidation, message) }

func EmptyCart(message string) *Error { return New(KindEmptyCart, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

// Storage wraps a backend failure. An error that already carries a kind is
// returned untouched so a conflict raised by a store is not hidden.
func Storage(message string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return Wrap(KindStorage, message, err)
}

// KindOf reports the kind of err, KindUnknown when err carries none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}
