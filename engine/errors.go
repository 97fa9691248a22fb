package engine

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can map it to a stable code
type Kind string

const (
	KindEmptyInput       Kind = "EMPTY_INPUT"
	KindNotFound         Kind = "NOT_FOUND"
	KindOutOfRange       Kind = "OUT_OF_RANGE"
	KindInvalidPassword  Kind = "INVALID_PASSWORD"
	KindAlreadyProtected Kind = "ALREADY_PROTECTED"
	KindNotProtected     Kind = "NOT_PROTECTED"
	KindWriteFailed      Kind = "WRITE_FAILED"
	KindInvalidSize      Kind = "INVALID_SIZE"
	KindIOError          Kind = "IO_ERROR"
)

// Sentinels for errors.Is, matched by Kind only
var (
	ErrEmptyInput       = &Error{Kind: KindEmptyInput}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrOutOfRange       = &Error{Kind: KindOutOfRange}
	ErrInvalidPassword  = &Error{Kind: KindInvalidPassword}
	ErrAlreadyProtected = &Error{Kind: KindAlreadyProtected}
	ErrNotProtected     = &Error{Kind: KindNotProtected}
	ErrWriteFailed      = &Error{Kind: KindWriteFailed}
	ErrInvalidSize      = &Error{Kind: KindInvalidSize}
	ErrIOError          = &Error{Kind: KindIOError}
)

// Error is returned by every worker operation
type Error struct {
	Kind Kind
	Op   string // operation name, eg "mergeAll"
	Path string // file the failure relates to, if any
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the Kind of err, or "" when err is not an engine error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, op, path string, err error, format string, args ...any) *Error {
	return &Error{
		Kind: kind,
		Op:   op,
		Path: path,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}
