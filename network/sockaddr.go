// File: network/sockaddr.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package network

import (
	"net/netip"
	"strings"
)

// parseHostIP reports whether host is a literal IP address. Brackets around
// IPv6 literals are accepted.
func parseHostIP(host string) (netip.Addr, bool) {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}

// displayAddrPort folds IPv4-mapped IPv6 addresses, as seen on dual-stack
// sockets, back to their IPv4 form.
func displayAddrPort(ap netip.AddrPort) netip.AddrPort {
	if !ap.IsValid() {
		return ap
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

func addrString(ap netip.AddrPort) string {
	if !ap.IsValid() {
		return ""
	}
	return ap.Addr().String()
}
