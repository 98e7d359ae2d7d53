// File: network/lookup.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package network

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/momentics/hioload-net/api"
)

type hostnameLookup struct {
	hostname  string
	callbacks api.ResolveCallbacks
}

type ipLookup struct {
	ip        string
	callbacks api.ResolveCallbacks
}

// HostnameToIP resolves hostname to its addresses. OnNameResolved fires
// once per address with (hostname, ip), then OnFinished. A lookup with no
// usable address reports OnError instead. Returns false when the lookup
// could not be started.
func (n *Network) HostnameToIP(hostname string, callbacks api.ResolveCallbacks) bool {
	if callbacks == nil {
		panic("network: HostnameToIP requires callbacks")
	}
	lk := &hostnameLookup{hostname: hostname, callbacks: callbacks}
	n.addHostnameLookup(lk)
	if !n.resolver.lookupHost(hostname, func(addrs []netip.Addr, err error) { lk.complete(n, addrs, err) }) {
		n.removeHostnameLookup(lk)
		return false
	}
	return true
}

func (lk *hostnameLookup) complete(n *Network, addrs []netip.Addr, err error) {
	defer n.removeHostnameLookup(lk)
	if err != nil {
		n.metrics.Add(statLookupsFailed, 1)
		lk.callbacks.OnError(resolveError(lk.hostname, err))
		return
	}

	resolved := false
	for _, addr := range addrs {
		if !addr.Is4() && !addr.Is6() {
			continue
		}
		lk.callbacks.OnNameResolved(lk.hostname, addr.String())
		resolved = true
	}
	if !resolved {
		n.metrics.Add(statLookupsFailed, 1)
		lk.callbacks.OnError(resolveError(lk.hostname, fmt.Errorf("lookup %s: %w", lk.hostname, api.ErrNoAddressResolve)))
		return
	}
	lk.callbacks.OnFinished()
}

// IPToHostName resolves ip to a host name. OnNameResolved fires once with
// (hostname, ip), then OnFinished. Malformed input and lookups without an
// answer report OnError. Returns false when the lookup could not be
// started.
func (n *Network) IPToHostName(ip string, callbacks api.ResolveCallbacks) bool {
	if callbacks == nil {
		panic("network: IPToHostName requires callbacks")
	}
	lk := &ipLookup{ip: ip, callbacks: callbacks}
	n.addIPLookup(lk)
	if !n.resolver.lookupAddr(ip, func(names []string, err error) { lk.complete(n, names, err) }) {
		n.removeIPLookup(lk)
		return false
	}
	return true
}

func (lk *ipLookup) complete(n *Network, names []string, err error) {
	defer n.removeIPLookup(lk)
	if err != nil {
		n.metrics.Add(statLookupsFailed, 1)
		lk.callbacks.OnError(resolveError(lk.ip, err))
		return
	}
	for _, name := range names {
		name = strings.TrimSuffix(name, ".")
		if name == "" {
			continue
		}
		lk.callbacks.OnNameResolved(name, lk.ip)
		lk.callbacks.OnFinished()
		return
	}
	n.metrics.Add(statLookupsFailed, 1)
	lk.callbacks.OnError(resolveError(lk.ip, fmt.Errorf("reverse lookup %s: %w", lk.ip, api.ErrNoAddressResolve)))
}
