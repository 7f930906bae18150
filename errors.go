package bufferpool

import (
	"fmt"

	"github.com/djdv/go-bufferpool/pagecache"
	"github.com/pkg/errors"
)

// Code is an error code which can be used to check against a given error.
// For example, see the [Is] function.
type Code string

const (
	ErrPoolClosed      Code = "PoolClosed"
	ErrDuplicateEntry  Code = "DuplicateEntry"
	ErrAllPinned       Code = "AllPinned"
	ErrIOFailure       Code = "IOFailure"
	ErrFormatFailure   Code = "FormatFailure"
	ErrUnknownResource Code = "UnknownResource"
	ErrInvalidConfig   Code = "InvalidConfig"
)

// codedError is the error type returned by the pool.
// The cause, if any, stays reachable through Unwrap.
type codedError struct {
	Code    Code
	Message string
	cause   error
}

func (ce *codedError) Error() string {
	if ce.cause != nil {
		return ce.Message + ": " + ce.cause.Error()
	}
	return ce.Message
}

func (ce *codedError) Unwrap() error { return ce.cause }

func (ce *codedError) Is(err error) bool {
	e, ok := err.(*codedError)
	return ok && ce.Code == e.Code
}

func newError(code Code, message string) error {
	return errors.WithStack(&codedError{
		Code:    code,
		Message: message,
	})
}

func wrapError(code Code, cause error, format string, args ...interface{}) error {
	return errors.WithStack(&codedError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	})
}

// Is reports whether any error in err's chain carries code.
func Is(err error, code Code) bool {
	return errors.Is(err, &codedError{Code: code})
}

// ErrorCode returns the code of the first coded error in err's chain.
func ErrorCode(err error) (Code, bool) {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return "", false
}

func closedError() error {
	return newError(ErrPoolClosed, "buffer pool is closed")
}

func unknownResourceError(id ResourceID) error {
	return newError(ErrUnknownResource, fmt.Sprintf("resource %d is not registered", id))
}

// engineError translates replacement errors into the pool's codes.
func engineError(err error, id PageID) error {
	switch {
	case errors.Is(err, pagecache.ErrAllPinned):
		return wrapError(ErrAllPinned, err, "admitting page %v", id)
	case errors.Is(err, pagecache.ErrDuplicateEntry):
		return wrapError(ErrDuplicateEntry, err, "admitting page %v", id)
	default:
		return errors.WithStack(err)
	}
}
