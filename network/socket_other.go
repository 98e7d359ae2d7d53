//go:build !linux
// +build !linux

// File: network/socket_other.go
// Author: momentics <momentics@gmail.com>
//
// Stub socket layer for platforms without a reactor implementation. New
// fails before any of these can be reached.

package network

import (
	"net/netip"

	"github.com/momentics/hioload-net/api"
)

func sysSocket(bool) (int, error) { return -1, api.ErrNotSupported }
func sysListenSocket(bool) (int, error) { return -1, api.ErrNotSupported }
func sysSetNonblock(int) error { return api.ErrNotSupported }
func sysSetReuseAddr(int) error { return api.ErrNotSupported }
func sysSetV6Only(int, bool) error { return api.ErrNotSupported }
func sysSetNoDelay(int) error { return api.ErrNotSupported }
func sysBind(int, netip.AddrPort) error { return api.ErrNotSupported }
func sysListen(int, int) error { return api.ErrNotSupported }
func sysConnect(int, netip.AddrPort) error { return api.ErrNotSupported }
func sysRead(int, []byte) (int, error) { return 0, api.ErrNotSupported }
func sysWrite(int, []byte) (int, error) { return 0, api.ErrNotSupported }
func sysShutdownWrite(int) error { return api.ErrNotSupported }
func sysClose(int) error { return api.ErrNotSupported }
func sysSocketError(int) error { return api.ErrNotSupported }
func sysLocalAddr(int) (netip.AddrPort, error) { return netip.AddrPort{}, api.ErrNotSupported }
func sysPeerAddr(int) (netip.AddrPort, error) { return netip.AddrPort{}, api.ErrNotSupported }
func isWouldBlock(error) bool { return false }
func isInterrupted(error) bool { return false }
func isNoProtoOpt(error) bool { return false }
func isTransientAccept(error) bool { return false }

func sysAccept(int) (int, netip.AddrPort, error) {
	return -1, netip.AddrPort{}, api.ErrNotSupported
}
