//go:build linux
// +build linux

package network

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/momentics/hioload-net/api"
)

const testTimeout = 5 * time.Second

func newTestNetwork(t *testing.T, opts ...func(*Config)) *Network {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
	for _, opt := range opts {
		opt(&cfg)
	}
	n, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, n.Close()) })
	return n
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

// expectNone fails if ch delivers within a short grace period.
func expectNone[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected %s: %v", what, v)
	case <-time.After(100 * time.Millisecond):
	}
}

// onLoop runs fn on the reactor goroutine and waits for it.
func onLoop(t *testing.T, n *Network, fn func()) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, n.Post(func() {
		fn()
		close(done)
	}))
	waitFor(t, done, "reactor task")
}

// freePort returns a loopback port nobody listens on.
func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return uint16(port)
}

type codeMsg struct {
	code int
	msg  string
}

// linkEvents records link callbacks into channels.
type linkEvents struct {
	data   chan []byte
	closed chan api.Link
	errs   chan codeMsg
}

func newLinkEvents() *linkEvents {
	return &linkEvents{
		data:   make(chan []byte, 1024),
		closed: make(chan api.Link, 4),
		errs:   make(chan codeMsg, 4),
	}
}

func (e *linkEvents) callbacks() *api.LinkCallbackFuncs {
	return &api.LinkCallbackFuncs{
		ReceivedData: func(_ api.Link, data []byte) { e.data <- append([]byte(nil), data...) },
		RemoteClosed: func(l api.Link) { e.closed <- l },
		Error:        func(_ api.Link, code int, msg string) { e.errs <- codeMsg{code, msg} },
	}
}

// readN collects received chunks until n bytes arrived.
func (e *linkEvents) readN(t *testing.T, n int) []byte {
	t.Helper()
	var got []byte
	for len(got) < n {
		got = append(got, waitFor(t, e.data, fmt.Sprintf("%d bytes, have %d", n, len(got)))...)
	}
	return got
}

type connectEvents struct {
	ok   chan api.Link
	errs chan codeMsg
}

func newConnectEvents() *connectEvents {
	return &connectEvents{ok: make(chan api.Link, 4), errs: make(chan codeMsg, 4)}
}

func (e *connectEvents) callbacks() *api.ConnectCallbackFuncs {
	return &api.ConnectCallbackFuncs{
		Success: func(l api.Link) { e.ok <- l },
		Error:   func(code int, msg string) { e.errs <- codeMsg{code, msg} },
	}
}

// fakeBackend answers lookups from fixed tables.
type fakeBackend struct {
	hosts map[string][]string
	names map[string][]string
	err   error
}

func (f *fakeBackend) LookupHost(_ context.Context, host string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if addrs, ok := f.hosts[host]; ok {
		return addrs, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func (f *fakeBackend) LookupAddr(_ context.Context, addr string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if names, ok := f.names[addr]; ok {
		return names, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: addr, IsNotFound: true}
}
