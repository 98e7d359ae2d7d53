// File: network/resolver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Asynchronous name resolution. Queries run on their own goroutine with a
// deadline; completions are posted to the reactor goroutine.

package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/api"
)

// LookupBackend performs blocking DNS queries.
type LookupBackend interface {
	// LookupHost returns the addresses of host in textual form.
	LookupHost(ctx context.Context, host string) ([]string, error)

	// LookupAddr returns the names mapping to addr.
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// systemBackend uses the resolver configured for the host.
type systemBackend struct {
	resolver *net.Resolver
}

func (b *systemBackend) LookupHost(ctx context.Context, host string) ([]string, error) {
	return b.resolver.LookupHost(ctx, host)
}

func (b *systemBackend) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	return b.resolver.LookupAddr(ctx, addr)
}

// dnsBackend queries a fixed list of servers directly, trying them in
// order until one answers.
type dnsBackend struct {
	servers []string
	timeout time.Duration
}

func (b *dnsBackend) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	var lastErr error
	for _, server := range b.servers {
		c := &dns.Client{Net: "udp", Timeout: b.timeout}
		in, _, err := c.ExchangeContext(ctx, m, server)
		if err == nil && in.Truncated {
			c.Net = "tcp"
			in, _, err = c.ExchangeContext(ctx, m, server)
		}
		if err != nil {
			lastErr = err
			continue
		}
		if in.Rcode != dns.RcodeSuccess && in.Rcode != dns.RcodeNameError {
			return nil, &net.DNSError{
				Err:         dns.RcodeToString[in.Rcode],
				Name:        name,
				Server:      server,
				IsTemporary: in.Rcode == dns.RcodeServerFailure,
			}
		}
		return in, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		lastErr = ctxErr
	}
	var netErr net.Error
	timeout := errors.Is(lastErr, context.DeadlineExceeded) || (errors.As(lastErr, &netErr) && netErr.Timeout())
	return nil, &net.DNSError{
		Err:         lastErr.Error(),
		Name:        name,
		Server:      strings.Join(b.servers, ","),
		IsTimeout:   timeout,
		IsTemporary: true,
	}
}

func (b *dnsBackend) LookupHost(ctx context.Context, host string) ([]string, error) {
	if addr, ok := parseHostIP(host); ok {
		return []string{addr.String()}, nil
	}
	var (
		out      []string
		notFound bool
	)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		in, err := b.exchange(ctx, host, qtype)
		if err != nil {
			return nil, err
		}
		if in.Rcode == dns.RcodeNameError {
			notFound = true
			continue
		}
		for _, rr := range in.Answer {
			switch v := rr.(type) {
			case *dns.A:
				out = append(out, v.A.String())
			case *dns.AAAA:
				out = append(out, v.AAAA.String())
			}
		}
	}
	if len(out) == 0 && notFound {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return out, nil
}

func (b *dnsBackend) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	arpa, err := dns.ReverseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", api.ErrUnsupportedAddr, addr)
	}
	in, err := b.exchange(ctx, arpa, dns.TypePTR)
	if err != nil {
		return nil, err
	}
	if in.Rcode == dns.RcodeNameError {
		return nil, &net.DNSError{Err: "no such host", Name: addr, IsNotFound: true}
	}
	var names []string
	for _, rr := range in.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			names = append(names, ptr.Ptr)
		}
	}
	return names, nil
}

// Resolver runs lookups for a Network.
type Resolver struct {
	net     *Network
	backend LookupBackend
	timeout time.Duration
	log     *zap.Logger
}

func newResolver(n *Network, logger *zap.Logger) *Resolver {
	var backend LookupBackend
	switch {
	case n.cfg.LookupBackend != nil:
		backend = n.cfg.LookupBackend
	case len(n.cfg.DNSServers) > 0:
		backend = &dnsBackend{servers: n.cfg.DNSServers, timeout: n.cfg.LookupTimeout}
	default:
		backend = &systemBackend{resolver: net.DefaultResolver}
	}
	return &Resolver{
		net:     n,
		backend: backend,
		timeout: n.cfg.LookupTimeout,
		log:     logger,
	}
}

// lookupHost resolves host off-thread and calls done on the reactor
// goroutine with the parseable addresses. Entries that are not IP
// addresses are dropped.
func (r *Resolver) lookupHost(host string, done func([]netip.Addr, error)) bool {
	if r.net.closing.Load() {
		return false
	}
	r.net.metrics.Add(statLookupsIssued, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		raw, err := r.backend.LookupHost(ctx, host)
		var addrs []netip.Addr
		for _, s := range raw {
			addr, ok := parseHostIP(s)
			if !ok {
				r.log.Debug("skipping unsupported address", zap.String("host", host), zap.String("addr", s))
				continue
			}
			addrs = append(addrs, addr)
		}
		r.complete(func() { done(addrs, err) })
	}()
	return true
}

// lookupAddr resolves ip to names off-thread and calls done on the
// reactor goroutine. Malformed input fails without a query.
func (r *Resolver) lookupAddr(ip string, done func([]string, error)) bool {
	if r.net.closing.Load() {
		return false
	}
	r.net.metrics.Add(statLookupsIssued, 1)
	addr, ok := parseHostIP(ip)
	if !ok {
		err := fmt.Errorf("%w: %q", api.ErrUnsupportedAddr, ip)
		return r.net.Post(func() { done(nil, err) })
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		names, err := r.backend.LookupAddr(ctx, addr.String())
		r.complete(func() { done(names, err) })
	}()
	return true
}

func (r *Resolver) complete(fn func()) {
	if !r.net.Post(fn) {
		r.log.Debug("lookup finished after close, dropping result")
	}
}

// resolveError maps a lookup failure to a resolution error code and
// message.
func resolveError(name string, err error) (int, string) {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, api.ErrUnsupportedAddr):
		return api.ResolveErrFamily, err.Error()
	case errors.Is(err, api.ErrNoAddressResolve):
		return api.ResolveErrNoData, err.Error()
	case errors.As(err, &dnsErr):
		switch {
		case dnsErr.IsNotFound:
			return api.ResolveErrNoName, dnsErr.Error()
		case dnsErr.IsTimeout, dnsErr.IsTemporary:
			return api.ResolveErrAgain, dnsErr.Error()
		default:
			return api.ResolveErrFail, dnsErr.Error()
		}
	case errors.Is(err, context.DeadlineExceeded):
		return api.ResolveErrAgain, fmt.Sprintf("lookup %s: timed out", name)
	default:
		return api.ResolveErrSystem, err.Error()
	}
}
