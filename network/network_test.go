//go:build linux
// +build linux

package network

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sys/unix"
)

func TestNetwork_PostRunsInOrder(t *testing.T) {
	n := newTestNetwork(t)

	var (
		mu    sync.Mutex
		order []int
	)
	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, n.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}))
	}
	wg.Wait()
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestNetwork_TaskPanicKeepsLoop(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	n := newTestNetwork(t, func(c *Config) { c.Logger = zap.New(core) })

	require.True(t, n.Post(func() { panic("boom") }))
	ran := false
	onLoop(t, n, func() { ran = true })
	assert.True(t, ran)
	assert.Equal(t, 1, logs.FilterMessage("reactor task panicked").Len())
	assert.Equal(t, int64(1), n.Stats()[statTasksPanicked])
}

func TestNetwork_PinnedReactor(t *testing.T) {
	var allowed unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(0, &allowed))
	cpu := -1
	for i := 0; i < 1024 && cpu < 0; i++ {
		if allowed.IsSet(i) {
			cpu = i
		}
	}
	require.GreaterOrEqual(t, cpu, 0)

	n := newTestNetwork(t, func(c *Config) {
		c.PinReactor = true
		c.ReactorCPU = cpu
	})
	var got unix.CPUSet
	onLoop(t, n, func() { assert.NoError(t, unix.SchedGetaffinity(0, &got)) })
	assert.Equal(t, 1, got.Count())
	assert.True(t, got.IsSet(cpu))
}

func TestNetwork_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFormat = "xml"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNetwork_CloseReleasesEverything(t *testing.T) {
	n, err := New(DefaultConfig())
	require.NoError(t, err)

	s := n.Listen(0, newListenEvents().callbacks(), newLinkEvents().callbacks())
	require.True(t, s.IsListening())
	conn := newConnectEvents()
	events := newLinkEvents()
	l, err := n.Connect("127.0.0.1", s.Port(), events.callbacks(), conn.callbacks())
	require.NoError(t, err)
	waitFor(t, conn.ok, "connect")

	require.NoError(t, n.Close())
	assert.True(t, n.Closed())
	assert.False(t, s.IsListening())
	assert.Equal(t, 0, n.LinkCount())
	assert.Equal(t, 0, n.ServerCount())
	assert.Equal(t, LinkClosed, l.State())
	assert.False(t, l.Send([]byte("x")))
	expectNone(t, events.errs, "link error")
	expectNone(t, events.closed, "remote close")
}
