//go:build linux
// +build linux

package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-net/api"
)

type resolveEvents struct {
	names    chan [2]string
	finished chan struct{}
	errs     chan codeMsg
}

func newResolveEvents() *resolveEvents {
	return &resolveEvents{
		names:    make(chan [2]string, 16),
		finished: make(chan struct{}, 4),
		errs:     make(chan codeMsg, 4),
	}
}

func (e *resolveEvents) callbacks() *api.ResolveCallbackFuncs {
	return &api.ResolveCallbackFuncs{
		NameResolved: func(name, result string) { e.names <- [2]string{name, result} },
		Finished:     func() { e.finished <- struct{}{} },
		Error:        func(code int, msg string) { e.errs <- codeMsg{code, msg} },
	}
}

// collect returns the resolved pairs once the lookup finished.
func (e *resolveEvents) collect(t *testing.T) [][2]string {
	t.Helper()
	waitFor(t, e.finished, "lookup finished")
	var out [][2]string
	for {
		select {
		case p := <-e.names:
			out = append(out, p)
		default:
			return out
		}
	}
}

// startDNSServer serves a small zone over UDP on loopback.
func startDNSServer(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		var rr string
		switch {
		case q.Name == "game.test." && q.Qtype == dns.TypeA:
			rr = "game.test. 60 IN A 192.0.2.10"
		case q.Name == "game.test." && q.Qtype == dns.TypeAAAA:
			rr = "game.test. 60 IN AAAA 2001:db8::10"
		case q.Name == "v4only.test." && q.Qtype == dns.TypeA:
			rr = "v4only.test. 60 IN A 192.0.2.20"
		case q.Name == "v4only.test.":
		case q.Name == "10.2.0.192.in-addr.arpa." && q.Qtype == dns.TypePTR:
			rr = "10.2.0.192.in-addr.arpa. 60 IN PTR game.test."
		case q.Name == "broken.test.":
			m.Rcode = dns.RcodeServerFailure
		case q.Name == "refused.test.":
			m.Rcode = dns.RcodeRefused
		default:
			m.Rcode = dns.RcodeNameError
		}
		if rr != "" {
			answer, err := dns.NewRR(rr)
			if err == nil {
				m.Answer = append(m.Answer, answer)
			}
		}
		w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go srv.ActivateAndServe()
	waitFor(t, started, "dns server")
	t.Cleanup(func() { srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestHostnameToIP_Literal(t *testing.T) {
	n := newTestNetwork(t)
	events := newResolveEvents()
	require.True(t, n.HostnameToIP("198.51.100.7", events.callbacks()))

	got := events.collect(t)
	assert.Equal(t, [][2]string{{"198.51.100.7", "198.51.100.7"}}, got)
	expectNone(t, events.errs, "resolve error")
	assert.Eventually(t, func() bool { return n.LookupCount() == 0 }, testTimeout, 10*time.Millisecond)
}

func TestHostnameToIP_NoUsableAddress(t *testing.T) {
	backend := &fakeBackend{hosts: map[string][]string{
		"weird.test": {"not-an-ip", "300.1.1.1"},
		"empty.test": {},
	}}
	n := newTestNetwork(t, func(c *Config) { c.LookupBackend = backend })

	for _, host := range []string{"weird.test", "empty.test"} {
		events := newResolveEvents()
		require.True(t, n.HostnameToIP(host, events.callbacks()))
		got := waitFor(t, events.errs, "resolve error")
		assert.Equal(t, api.ResolveErrNoData, got.code, host)
		expectNone(t, events.names, "resolved name")
		expectNone(t, events.finished, "finished")
	}
	assert.Equal(t, 0, n.LookupCount())
	assert.Equal(t, int64(2), n.Stats()[statLookupsFailed])
}

func TestHostnameToIP_BackendErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&net.DNSError{Err: "no such host", IsNotFound: true}, api.ResolveErrNoName},
		{&net.DNSError{Err: "i/o timeout", IsTimeout: true}, api.ResolveErrAgain},
		{&net.DNSError{Err: "server misbehaving"}, api.ResolveErrFail},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), api.ResolveErrAgain},
		{errors.New("socket exhausted"), api.ResolveErrSystem},
	}
	for _, tc := range cases {
		n := newTestNetwork(t, func(c *Config) { c.LookupBackend = &fakeBackend{err: tc.err} })
		events := newResolveEvents()
		require.True(t, n.HostnameToIP("game.test", events.callbacks()))
		got := waitFor(t, events.errs, "resolve error")
		assert.Equal(t, tc.code, got.code, tc.err.Error())
		assert.NotEmpty(t, got.msg)
	}
}

func TestIPToHostName_Malformed(t *testing.T) {
	n := newTestNetwork(t)
	events := newResolveEvents()
	require.True(t, n.IPToHostName("not.an.ip", events.callbacks()))
	got := waitFor(t, events.errs, "resolve error")
	assert.Equal(t, api.ResolveErrFamily, got.code)
	expectNone(t, events.finished, "finished")
	assert.Equal(t, 0, n.LookupCount())
}

func TestIPToHostName_EmptyAnswer(t *testing.T) {
	backend := &fakeBackend{names: map[string][]string{"192.0.2.1": {}}}
	n := newTestNetwork(t, func(c *Config) { c.LookupBackend = backend })
	events := newResolveEvents()
	require.True(t, n.IPToHostName("192.0.2.1", events.callbacks()))
	got := waitFor(t, events.errs, "resolve error")
	assert.Equal(t, api.ResolveErrNoData, got.code)
}

func TestDNSBackend_Forward(t *testing.T) {
	server := startDNSServer(t)
	n := newTestNetwork(t, func(c *Config) {
		c.DNSServers = []string{server}
		c.LookupTimeout = 2 * time.Second
	})

	events := newResolveEvents()
	require.True(t, n.HostnameToIP("game.test", events.callbacks()))
	got := events.collect(t)
	sort.Slice(got, func(i, j int) bool { return got[i][1] > got[j][1] })
	assert.Equal(t, [][2]string{{"game.test", "2001:db8::10"}, {"game.test", "192.0.2.10"}}, got)

	events = newResolveEvents()
	require.True(t, n.HostnameToIP("v4only.test", events.callbacks()))
	assert.Equal(t, [][2]string{{"v4only.test", "192.0.2.20"}}, events.collect(t))

	for host, code := range map[string]int{
		"missing.test": api.ResolveErrNoName,
		"broken.test":  api.ResolveErrAgain,
		"refused.test": api.ResolveErrFail,
	} {
		events = newResolveEvents()
		require.True(t, n.HostnameToIP(host, events.callbacks()))
		assert.Equal(t, code, waitFor(t, events.errs, host).code, host)
	}
}

func TestDNSBackend_Reverse(t *testing.T) {
	server := startDNSServer(t)
	n := newTestNetwork(t, func(c *Config) { c.DNSServers = []string{server} })

	events := newResolveEvents()
	require.True(t, n.IPToHostName("192.0.2.10", events.callbacks()))
	assert.Equal(t, [][2]string{{"game.test", "192.0.2.10"}}, events.collect(t))

	events = newResolveEvents()
	require.True(t, n.IPToHostName("192.0.2.99", events.callbacks()))
	assert.Equal(t, api.ResolveErrNoName, waitFor(t, events.errs, "resolve error").code)
}

func TestDNSBackend_Unreachable(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	n := newTestNetwork(t, func(c *Config) {
		c.DNSServers = []string{pc.LocalAddr().String()}
		c.LookupTimeout = 200 * time.Millisecond
	})
	events := newResolveEvents()
	require.True(t, n.HostnameToIP("game.test", events.callbacks()))
	assert.Equal(t, api.ResolveErrAgain, waitFor(t, events.errs, "resolve error").code)
}

func TestLookups_AfterClose(t *testing.T) {
	n, err := New(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, n.Close())

	events := newResolveEvents()
	assert.False(t, n.HostnameToIP("game.test", events.callbacks()))
	assert.False(t, n.IPToHostName("192.0.2.1", events.callbacks()))
	assert.Equal(t, 0, n.LookupCount())
	assert.Panics(t, func() { n.HostnameToIP("game.test", nil) })
}
