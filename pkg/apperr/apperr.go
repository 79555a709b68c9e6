// Package apperr defines the error taxonomy shared by the ledger services and
// the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"
)

// Kind classifies an error for the caller. Remediation differs per kind.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindInsufficientKarma Kind = "insufficient_karma"
	KindConflict          Kind = "conflict"
	KindUpstream          Kind = "upstream_failure"
)

var kindStatus = map[Kind]int{
	KindValidation:        http.StatusBadRequest,
	KindUnauthorized:      http.StatusUnauthorized,
	KindForbidden:         http.StatusForbidden,
	KindNotFound:          http.StatusNotFound,
	KindInsufficientKarma: http.StatusPaymentRequired,
	KindConflict:          http.StatusConflict,
	KindUpstream:          http.StatusInternalServerError,
}

// Error is an application error carrying a Kind and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches bare sentinels (ErrNotFound, ErrConflict, ...) by Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Message != "" || t.Err != nil {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInsufficientKarma = &Error{Kind: KindInsufficientKarma}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrUpstream          = &Error{Kind: KindUpstream}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...any) *Error { return New(KindValidation, format, args...) }
func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, format, args...)
}
func Forbidden(format string, args ...any) *Error { return New(KindForbidden, format, args...) }
func NotFound(format string, args ...any) *Error  { return New(KindNotFound, format, args...) }
func Conflict(format string, args ...any) *Error  { return New(KindConflict, format, args...) }
func InsufficientKarma(format string, args ...any) *Error {
	return New(KindInsufficientKarma, format, args...)
}

// Upstream wraps a store or provider failure.
func Upstream(err error, format string, args ...any) error {
	return Wrap(KindUpstream, err, format, args...)
}

// Get extracts the first *Error in err's chain.
func Get(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// KindOf reports the kind of err. Unclassified errors are upstream failures.
func KindOf(err error) Kind {
	if e := Get(err); e != nil {
		return e.Kind
	}
	return KindUpstream
}

// HTTPStatus maps err to the HTTP status code of its kind.
func HTTPStatus(err error) int {
	if s, ok := kindStatus[KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// IsDuplicate reports whether err is a unique constraint violation, either
// translated by gorm or reported raw by the driver.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// FromStore classifies a gorm error: record-not-found becomes NotFound, a
// unique violation becomes Conflict, anything else is an upstream failure.
func FromStore(err error, format string, args ...any) error {
	switch {
	case err == nil:
		return nil
	case Get(err) != nil:
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Wrap(KindNotFound, err, format, args...)
	case IsDuplicate(err):
		return Wrap(KindConflict, err, format, args...)
	default:
		return Upstream(err, format, args...)
	}
}
