package team

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable category of a team error. Its string form is
// the code rendered to API clients.
type Kind string

const (
	KindNotFound              Kind = "NOT_FOUND"
	KindForbidden             Kind = "FORBIDDEN"
	KindCapacityExceeded      Kind = "CAPACITY_EXCEEDED"
	KindAlreadyMember         Kind = "ALREADY_MEMBER"
	KindDuplicateInvite       Kind = "DUPLICATE_INVITE"
	KindExpired               Kind = "EXPIRED"
	KindLimitReached          Kind = "LIMIT_REACHED"
	KindWrongRecipient        Kind = "WRONG_RECIPIENT"
	KindSelfRemovalNotAllowed Kind = "SELF_REMOVAL_NOT_ALLOWED"
	KindInvalid               Kind = "INVALID"
	KindInvalidArgument       Kind = "INVALID_ARGUMENT"
	KindInternal              Kind = "INTERNAL"
)

// HTTPStatus maps the kind to a response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden, KindWrongRecipient:
		return http.StatusForbidden
	case KindCapacityExceeded, KindAlreadyMember, KindDuplicateInvite, KindLimitReached:
		return http.StatusConflict
	case KindExpired:
		return http.StatusGone
	case KindSelfRemovalNotAllowed, KindInvalid, KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is returned by every team operation that fails for a domain reason.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Kind == KindInternal {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a team error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound              = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden             = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrCapacityExceeded      = &Error{Kind: KindCapacityExceeded, Message: "workspace member capacity exceeded"}
	ErrAlreadyMember         = &Error{Kind: KindAlreadyMember, Message: "user is already a member of this workspace"}
	ErrDuplicateInvite       = &Error{Kind: KindDuplicateInvite, Message: "a pending invitation already exists for this email"}
	ErrExpired               = &Error{Kind: KindExpired, Message: "invitation has expired"}
	ErrLimitReached          = &Error{Kind: KindLimitReached, Message: "invitation usage limit reached"}
	ErrWrongRecipient        = &Error{Kind: KindWrongRecipient, Message: "invitation is addressed to a different email"}
	ErrSelfRemovalNotAllowed = &Error{Kind: KindSelfRemovalNotAllowed, Message: "members cannot remove themselves"}
	ErrInvalid               = &Error{Kind: KindInvalid, Message: "invalid invitation"}
	ErrInvalidArgument       = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrInternal              = &Error{Kind: KindInternal, Message: "internal error"}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// KindOf returns the kind of err, or KindInternal for errors that are not
// team errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
