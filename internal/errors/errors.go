package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the HTTP layer can map it to a status code
// without inspecting messages.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindNotFound
	KindConflict
	KindResourceExhausted
	KindStoreUnavailable
	KindOverflow
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindResourceExhausted:
		return "resource exhausted"
	case KindStoreUnavailable:
		return "store unavailable"
	case KindOverflow:
		return "overflow"
	default:
		return "internal"
	}
}

// Sentinels usable with errors.Is. Any *Error matches the sentinel of its Kind.
var (
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrResourceExhausted = &Error{Kind: KindResourceExhausted}
	ErrStoreUnavailable  = &Error{Kind: KindStoreUnavailable}
	ErrOverflow          = &Error{Kind: KindOverflow}
)

// ErrShortCodeGenerationFailed is returned when no free random code was found
// within the configured number of attempts.
var ErrShortCodeGenerationFailed = &Error{
	Kind: KindResourceExhausted,
	Msg:  "failed to generate unique short code",
}

// Error is the domain error carried across service boundaries.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "links.Create"
	Msg  string // human readable detail, safe to show to clients
	Err  error  // underlying cause, never shown to clients
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so callers can write
// errors.Is(err, customerrors.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

// Detail returns the client-facing message.
func (e *Error) Detail() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.String()
}

// InvalidArgument builds a KindInvalidArgument error.
func InvalidArgument(op, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(op, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Conflict builds a KindConflict error.
func Conflict(op, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// StoreUnavailable wraps a backing store failure.
func StoreUnavailable(op string, err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Op: op, Msg: "backing store unavailable", Err: err}
}

// Overflow builds a KindOverflow error.
func Overflow(op, format string, args ...any) *Error {
	return &Error{Kind: KindOverflow, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ErrClickRecordingFailed is returned when a click increment could not be stored.
type ErrClickRecordingFailed struct {
	Code   string
	Reason string
}

func (e ErrClickRecordingFailed) Error() string {
	return fmt.Sprintf("failed to record click for code %s: %s", e.Code, e.Reason)
}
