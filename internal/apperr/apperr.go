package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure for callers that need to branch on it.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation_error"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindWalletInactive    Kind = "wallet_inactive"
	KindWalletFrozen      Kind = "wallet_frozen"
	KindPinInvalid        Kind = "pin_invalid"
	KindPinLocked         Kind = "pin_locked"
	KindConflict          Kind = "conflict"
	KindBusy              Kind = "busy"
	KindInternal          Kind = "internal"
)

// Error is a classified domain error. Packages declare their sentinels as
// *Error values and wrap them with fmt.Errorf("%w: ...") to add detail.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

// New builds a classified error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// KindOf returns the kind of the first classified error in the chain, or
// KindInternal when none is found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine-readable code of the first classified error in the chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return string(KindInternal)
}

// Retryable reports whether the caller may retry the same request unchanged.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindBusy, KindConflict, KindInternal:
		return true
	default:
		return false
	}
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindInsufficientFunds, KindWalletInactive, KindWalletFrozen:
		return http.StatusUnprocessableEntity
	case KindPinInvalid:
		return http.StatusUnauthorized
	case KindPinLocked:
		return http.StatusLocked
	case KindConflict:
		return http.StatusConflict
	case KindBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
