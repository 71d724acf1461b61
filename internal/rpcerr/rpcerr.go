/*
Package rpcerr defines the error kinds the core returns to its
external collaborators (spec section 7, Error Handling Design).

Every kind maps to the POSIX errno the wire protocol reports. Callers
should use errors.Is against the Err* sentinels, or errors.As against
*Error when they need the errno or a formatted message. Wrapping with
fmt.Errorf("...: %w", rpcerr.ErrBusy) preserves both.
*/
package rpcerr

import "errors"

// Kind identifies one of the error kinds from spec section 7.
type Kind string

const (
	KindRequestMalformed Kind = "request_malformed"
	KindBusy             Kind = "busy"
	KindUnsatisfiable    Kind = "unsatisfiable"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindExhausted        Kind = "exhausted"
	KindFatal            Kind = "fatal"
)

// Errno is the POSIX errno a Kind is reported as on the wire.
type Errno string

const (
	EINVAL  Errno = "EINVAL"
	EBUSY   Errno = "EBUSY"
	ENODEV  Errno = "ENODEV"
	ENOENT  Errno = "ENOENT"
	ERANGE  Errno = "ERANGE"
	ENOTSUP Errno = "ENOTSUP"
	ENOMEM  Errno = "ENOMEM"
	EEXIST  Errno = "EEXIST"
	EPROTO  Errno = "EPROTO"
)

// Error is a core error carrying its Kind and wire errno.
type Error struct {
	Kind  Kind
	Errno Errno
	msg   string
}

func (e *Error) Error() string {
	if e.msg == "" {
		return string(e.Errno)
	}
	return e.msg
}

// New constructs an Error with a formatted message.
func New(kind Kind, errno Errno, msg string) *Error {
	return &Error{Kind: kind, Errno: errno, msg: msg}
}

// Sentinel errors for errors.Is comparisons. Wrap these with
// fmt.Errorf("context: %w", rpcerr.ErrBusy) to add detail while
// keeping Is/As working.
var (
	ErrRequestMalformed = &Error{Kind: KindRequestMalformed, Errno: EINVAL, msg: "malformed request"}
	ErrBusy             = &Error{Kind: KindBusy, Errno: EBUSY, msg: "resources currently unavailable"}
	ErrUnsatisfiable    = &Error{Kind: KindUnsatisfiable, Errno: ENODEV, msg: "request cannot be satisfied"}
	ErrNotFound         = &Error{Kind: KindNotFound, Errno: ENOENT, msg: "not found"}
	ErrConflict         = &Error{Kind: KindConflict, Errno: EINVAL, msg: "conflicting request"}
	ErrExhausted        = &Error{Kind: KindExhausted, Errno: ERANGE, msg: "capacity exhausted"}
	ErrFatal            = &Error{Kind: KindFatal, Errno: EINVAL, msg: "invariant violated"}
	ErrUnknownSubsystem  = &Error{Kind: KindRequestMalformed, Errno: ENOTSUP, msg: "unknown subsystem"}
	ErrRemapCollision    = &Error{Kind: KindConflict, Errno: EEXIST, msg: "remap id collision"}
)

// Is implements the errors.Is comparison target contract: two *Error
// values compare equal by Kind, regardless of message.
func (e *Error) Is(target error) bool {
	var o *Error
	if !errors.As(target, &o) {
		return false
	}
	return e.Kind == o.Kind
}

// AsErrno extracts the wire errno from err, falling back to EINVAL
// for errors that never originated from this package.
func AsErrno(err error) Errno {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Errno
	}
	return EINVAL
}
