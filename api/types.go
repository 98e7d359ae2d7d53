// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

// LinkState enumerates the lifecycle of a Link.
type LinkState int32

const (
	LinkConnecting LinkState = iota
	LinkConnected
	LinkClosing
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkClosing:
		return "closing"
	case LinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}
