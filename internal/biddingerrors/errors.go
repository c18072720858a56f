package biddingerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure surfaced to callers
type Kind int

const (
	Internal Kind = iota
	Unauthenticated
	PermissionDenied
	InvalidArgument
	NotFound
	FailedPrecondition
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case PermissionDenied:
		return "permission-denied"
	case InvalidArgument:
		return "invalid-argument"
	case NotFound:
		return "not-found"
	case FailedPrecondition:
		return "failed-precondition"
	default:
		return "internal"
	}
}

// Error is a typed failure carrying a kind and a caller-facing message.
// Err, when set, is internal context and never shown to callers.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// for every not-found failure regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// New creates a typed failure
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Internal failure with a generic message around err
func Wrap(err error, message string) *Error {
	return &Error{Kind: Internal, Message: message, Err: err}
}

// KindOf returns the kind of err, or Internal when err is not typed
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the caller-facing message of a typed failure
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// IsTyped reports whether err carries a kind other than Internal
func IsTyped(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind != Internal
}

// Kind sentinels for errors.Is
var (
	ErrUnauthenticated    = &Error{Kind: Unauthenticated}
	ErrPermissionDenied   = &Error{Kind: PermissionDenied}
	ErrInvalidArgument    = &Error{Kind: InvalidArgument}
	ErrNotFound           = &Error{Kind: NotFound}
	ErrFailedPrecondition = &Error{Kind: FailedPrecondition}
	ErrInternal           = &Error{Kind: Internal}
)

// Repository-level errors
var (
	ErrProductNotFound   = errors.New("product not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrConflict          = errors.New("transaction conflict")
	ErrTooMuchContention = errors.New("too much contention on transaction")
)
