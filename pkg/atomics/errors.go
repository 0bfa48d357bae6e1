package atomics

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the errors raised before any memory is touched.
type ErrorKind int

const (
	// TypeKind: the candidate is not an integer typed view over a shared
	// region, or a value cannot be converted.
	TypeKind ErrorKind = iota + 1
	// RangeKind: the index does not convert to an in-bounds element index.
	RangeKind
)

func (k ErrorKind) String() string {
	switch k {
	case TypeKind:
		return "TypeError"
	case RangeKind:
		return "RangeError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is returned by validation and coercion. errors.Is matches an Error
// target by Kind, and by Msg when the target has one.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

var (
	ErrTypeKind  = &Error{Kind: TypeKind}
	ErrRangeKind = &Error{Kind: RangeKind}

	ErrNotIntegerSharedView     = &Error{Kind: TypeKind, Msg: "not an integer shared typed view"}
	ErrInvalidAtomicAccessIndex = &Error{Kind: RangeKind, Msg: "invalid atomic access index"}
	ErrUnsupportedValue         = &Error{Kind: TypeKind, Msg: "cannot convert value"}

	ErrOperandCount = errors.New("atomics: wrong number of operands")
)

func typeError(sentinel *Error, cause error) error {
	return &Error{Kind: TypeKind, Msg: sentinel.Msg, Err: cause}
}

func rangeError(cause error) error {
	return &Error{Kind: RangeKind, Msg: ErrInvalidAtomicAccessIndex.Msg, Err: cause}
}
