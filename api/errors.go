// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error codes shared by the reactor, links, servers
// and lookups.

package api

import (
	"errors"
	"fmt"
	"syscall"
)

// Common errors used across the library.
var (
	ErrNetworkClosed    = errors.New("network is closed")
	ErrLinkClosed       = errors.New("link is closed")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotSupported     = errors.New("operation not supported on this platform")
	ErrAlreadyExists    = errors.New("resource already exists")
	ErrUnsupportedAddr  = errors.New("unsupported address family")
	ErrNoAddressResolve = errors.New("no usable address resolved")
)

// Resolution error codes reported through ResolveCallbacks.OnError and
// ConnectCallbacks.OnError when a hostname cannot be resolved. The values
// follow the getaddrinfo EAI_* numbering.
const (
	ResolveErrAgain  = -3  // temporary failure, including timeouts
	ResolveErrFail   = -4  // non-recoverable server failure
	ResolveErrFamily = -6  // address family not supported or malformed input
	ResolveErrNoName = -2  // name or service not known
	ResolveErrNoData = -5  // name known but no usable address
	ResolveErrSystem = -11 // local failure, see message
)

// Error is a numeric code paired with a human readable message. Socket
// failures carry the errno in Code.
type Error struct {
	Code    int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
	}
	return fmt.Sprintf("%s (code %d): %v", e.Message, e.Code, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new coded error.
func NewError(code int, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// CodeOf extracts a numeric code from err: the errno for system call
// failures, the Code of an *Error, or -1 when no code is known.
func CodeOf(err error) int {
	if err == nil {
		return 0
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return -1
}
