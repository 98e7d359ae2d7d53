//go:build !linux
// +build !linux

// File: internal/concurrency/pin_other.go
// Author: momentics <momentics@gmail.com>

package concurrency

import "errors"

// PinCurrentThread is not available on this platform.
func PinCurrentThread(cpu int) error {
	return errors.New("thread pinning not supported on this platform")
}
