package alloc

import (
	"errors"
	"fmt"
)

// Code classifies an allocation failure.
type Code string

const (
	// CodeUnknownType means the requested resource type has no ID range.
	CodeUnknownType Code = "UNKNOWN_TYPE"

	// CodeNetworkNotFound means the named network is not in the inventory.
	CodeNetworkNotFound Code = "NETWORK_NOT_FOUND"

	// CodeInvalidRange means a static range is malformed: unparseable
	// endpoints, mixed address families, or start after end.
	CodeInvalidRange Code = "INVALID_RANGE"

	// CodeNoCapacity means the entire range is already in use.
	CodeNoCapacity Code = "NO_CAPACITY"
)

// Error is a classified allocation failure. Resource names the type or
// network the request was for so the operator sees what ran out.
type Error struct {
	Code     Code
	Resource string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Resource, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Resource)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on the classification code, so callers can compare against a
// bare &Error{Code: ...}.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && (t.Resource == "" || e.Resource == t.Resource)
}

func newError(code Code, resource, format string, args ...any) *Error {
	return &Error{Code: code, Resource: resource, Err: fmt.Errorf(format, args...)}
}

// IsNoCapacity reports whether err is an exhausted-range failure.
func IsNoCapacity(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeNoCapacity
}

// IsNetworkNotFound reports whether err is an unknown-network failure.
func IsNetworkNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeNetworkNotFound
}

// IsInvalidRange reports whether err is a malformed-range failure.
func IsInvalidRange(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeInvalidRange
}
