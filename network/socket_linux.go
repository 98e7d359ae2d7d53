//go:build linux
// +build linux

// File: network/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thin non-blocking socket layer over golang.org/x/sys/unix.

package network

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/api"
)

func family(v6 bool) int {
	if v6 {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

// sysSocket creates a non-blocking TCP socket for outgoing connections.
func sysSocket(v6 bool) (int, error) {
	fd, err := unix.Socket(family(v6), unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	return fd, nil
}

// sysListenSocket creates a blocking TCP socket; the caller switches it to
// non-blocking mode as a separate step.
func sysListenSocket(v6 bool) (int, error) {
	return unix.Socket(family(v6), unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
}

func sysSetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

func sysSetReuseAddr(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

func sysSetV6Only(fd int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, v)
}

func sysSetNoDelay(fd int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
}

func sysBind(fd int, ap netip.AddrPort) error {
	return unix.Bind(fd, toSockaddr(ap))
}

func sysListen(fd, backlog int) error {
	return unix.Listen(fd, backlog)
}

// sysConnect starts a non-blocking connect. EINPROGRESS is not an error.
func sysConnect(fd int, ap netip.AddrPort) error {
	err := unix.Connect(fd, toSockaddr(ap))
	if err != nil && err != unix.EINPROGRESS && err != unix.EINTR {
		return err
	}
	return nil
}

func sysAccept(fd int) (int, netip.AddrPort, error) {
	nfd, sa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, netip.AddrPort{}, err
	}
	ap, err := fromSockaddr(sa)
	if err != nil {
		unix.Close(nfd)
		return -1, netip.AddrPort{}, err
	}
	return nfd, ap, nil
}

func sysRead(fd int, p []byte) (int, error) {
	return unix.Read(fd, p)
}

func sysWrite(fd int, p []byte) (int, error) {
	return unix.Write(fd, p)
}

func sysShutdownWrite(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_WR)
}

func sysClose(fd int) error {
	return unix.Close(fd)
}

// sysSocketError fetches and clears SO_ERROR.
func sysSocketError(fd int) error {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if v != 0 {
		return unix.Errno(v)
	}
	return nil
}

func sysLocalAddr(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return fromSockaddr(sa)
}

func sysPeerAddr(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return fromSockaddr(sa)
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

func isInterrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}

func isNoProtoOpt(err error) bool {
	return errors.Is(err, unix.ENOPROTOOPT)
}

// isTransientAccept reports accept errors after which the listener stays
// usable and the next connection may be tried.
func isTransientAccept(err error) bool {
	return errors.Is(err, unix.ECONNABORTED) || errors.Is(err, unix.EINTR) || errors.Is(err, unix.EPROTO)
}

func toSockaddr(ap netip.AddrPort) unix.Sockaddr {
	addr := ap.Addr()
	if addr.Is4() {
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: addr.As4()}
	}
	return &unix.SockaddrInet6{Port: int(ap.Port()), Addr: addr.As16(), ZoneId: zoneIndex(addr.Zone())}
}

func fromSockaddr(sa unix.Sockaddr) (netip.AddrPort, error) {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(s.Addr), uint16(s.Port)), nil
	case *unix.SockaddrInet6:
		addr := netip.AddrFrom16(s.Addr)
		if s.ZoneId != 0 {
			addr = addr.WithZone(zoneName(s.ZoneId))
		}
		return netip.AddrPortFrom(addr, uint16(s.Port)), nil
	default:
		return netip.AddrPort{}, api.ErrUnsupportedAddr
	}
}

func zoneIndex(zone string) uint32 {
	if zone == "" {
		return 0
	}
	if ifi, err := net.InterfaceByName(zone); err == nil {
		return uint32(ifi.Index)
	}
	n, _ := strconv.ParseUint(zone, 10, 32)
	return uint32(n)
}

func zoneName(index uint32) string {
	if ifi, err := net.InterfaceByIndex(int(index)); err == nil {
		return ifi.Name
	}
	return strconv.FormatUint(uint64(index), 10)
}
