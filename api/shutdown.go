// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown is implemented by components owning sockets or a reactor
// thread. Shutdown closes every server and link it owns, stops the loop and
// releases OS resources. It is safe to call more than once.
type GracefulShutdown interface {
	Shutdown() error
}
