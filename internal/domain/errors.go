package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the failures the ingest path distinguishes between.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNormalization
	KindDeviceMismatch
	KindRainRate
	KindLatestNotFound
	KindCreateFailed
	KindUpdateFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindNormalization:
		return "normalization failed"
	case KindDeviceMismatch:
		return "device mismatch"
	case KindRainRate:
		return "rain rate"
	case KindLatestNotFound:
		return "latest not found"
	case KindCreateFailed:
		return "create latest failed"
	case KindUpdateFailed:
		return "update latest failed"
	default:
		return "unknown error"
	}
}

// Error carries an ErrorKind plus the device it concerns, if any.
type Error struct {
	Kind     ErrorKind
	DeviceID string
	Err      error
}

// NewError wraps err with a kind. deviceID may be empty.
func NewError(kind ErrorKind, deviceID string, err error) *Error {
	return &Error{Kind: kind, DeviceID: deviceID, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.DeviceID != "" {
		msg = fmt.Sprintf("%s (device %s)", msg, e.DeviceID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind that carries no device or cause,
// so the kind sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.DeviceID == "" && t.Err == nil
}

// Kind sentinels for errors.Is.
var (
	ErrNormalization  = &Error{Kind: KindNormalization}
	ErrDeviceMismatch = &Error{Kind: KindDeviceMismatch}
	ErrRainRate       = &Error{Kind: KindRainRate}
	ErrLatestNotFound = &Error{Kind: KindLatestNotFound}
	ErrCreateFailed   = &Error{Kind: KindCreateFailed}
	ErrUpdateFailed   = &Error{Kind: KindUpdateFailed}
)

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindUnknown when there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
