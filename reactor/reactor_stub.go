//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/momentics/hioload-net/api"
)

// New returns an error for unsupported platforms.
func New(maxEvents int, logger *zap.Logger) (Poller, error) {
	return nil, fmt.Errorf("reactor: %w", api.ErrNotSupported)
}
