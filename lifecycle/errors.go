package lifecycle

import (
	"errors"
	"fmt"

	"secondserve/models"
)

type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindForbidden       Kind = "forbidden"
	KindUnauthorized    Kind = "unauthorized"
	KindInvalidCode     Kind = "invalid_code"
	KindTooManyAttempts Kind = "too_many_attempts"
	KindTransient       Kind = "transient"
)

// Error is returned by every engine operation that fails. Status carries
// the post's current status when the failure is a state conflict.
type Error struct {
	Kind    Kind
	Message string
	Status  models.FoodStatus
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a lifecycle error, or "" for anything else.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func notFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func conflict(msg string, status models.FoodStatus) error {
	return &Error{Kind: KindConflict, Message: msg, Status: status}
}

func forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func unauthorized(msg string, status models.FoodStatus) error {
	return &Error{Kind: KindUnauthorized, Message: msg, Status: status}
}

func transient(err error) error {
	return &Error{Kind: KindTransient, Message: "store unavailable, retry the operation", Err: err}
}
