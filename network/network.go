// File: network/network.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Network is the reactor core: one goroutine, locked to an OS thread, waits
// for socket readiness and runs every link, server and lookup callback.
// Other goroutines only register state and post tasks to it.

package network

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/internal/concurrency"
	"github.com/momentics/hioload-net/pool"
	"github.com/momentics/hioload-net/reactor"
)

// Counter keys exposed by Stats.
const (
	statLinksOpened    = "links.opened"
	statLinksAccepted  = "links.accepted"
	statLinksFailed    = "links.failed"
	statBytesIn        = "bytes.received"
	statBytesOut       = "bytes.sent"
	statLookupsIssued  = "lookups.issued"
	statLookupsFailed  = "lookups.failed"
	statServersStarted = "servers.started"
	statTasksPanicked  = "tasks.panicked"
)

// Network owns the poller, the task inbox and the registries of outbound
// links, servers and pending lookups.
type Network struct {
	cfg      Config
	log      *zap.Logger
	poller   reactor.Poller
	tasks    *concurrency.TaskQueue
	resolver *Resolver
	metrics  *control.MetricsRegistry
	probes   *control.DebugProbes
	bufs     *pool.BytePool

	linksMu sync.Mutex
	links   map[*Link]struct{}

	serversMu sync.Mutex
	servers   map[uint64]*Server

	lookupsMu   sync.Mutex
	hostLookups map[*hostnameLookup]struct{}
	ipLookups   map[*ipLookup]struct{}

	// Loop-owned state.
	readBuf  []byte
	attached map[int]*Link
	stopped  bool

	nextID  atomic.Uint64
	closing atomic.Bool
	done    chan struct{}
}

// New creates a Network and starts its reactor goroutine.
func New(cfg Config) (*Network, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := cfg.buildLogger()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	poller, err := reactor.New(cfg.MaxEvents, logger.Named("reactor"))
	if err != nil {
		return nil, fmt.Errorf("create poller: %w", err)
	}

	n := &Network{
		cfg:         cfg,
		log:         logger.Named("network"),
		poller:      poller,
		metrics:     control.NewMetricsRegistry(),
		probes:      control.NewDebugProbes(),
		bufs:        pool.NewBytePool(),
		links:       make(map[*Link]struct{}),
		servers:     make(map[uint64]*Server),
		hostLookups: make(map[*hostnameLookup]struct{}),
		ipLookups:   make(map[*ipLookup]struct{}),
		readBuf:     make([]byte, cfg.ReadChunkSize),
		attached:    make(map[int]*Link),
		done:        make(chan struct{}),
	}
	n.tasks = concurrency.NewTaskQueue(n.wake, n.taskPanicked)
	n.resolver = newResolver(n, logger.Named("resolver"))
	n.registerProbes()

	go n.run()
	n.log.Debug("network started",
		zap.Int("read_chunk_size", cfg.ReadChunkSize),
		zap.Bool("separate_ipv4_listener", cfg.SeparateIPv4Listener),
		zap.Strings("dns_servers", cfg.DNSServers))
	return n, nil
}

func (n *Network) registerProbes() {
	n.probes.RegisterProbe("links", func() any { return n.LinkCount() })
	n.probes.RegisterProbe("servers", func() any { return n.ServerCount() })
	n.probes.RegisterProbe("lookups", func() any { return n.LookupCount() })
	n.probes.RegisterProbe("tasks.pending", func() any { return n.tasks.Pending() })
	n.probes.RegisterProbe("buffers", func() any { return n.bufs.Stats() })
}

func (n *Network) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(n.done)
	if n.cfg.PinReactor {
		if err := concurrency.PinCurrentThread(n.cfg.ReactorCPU); err != nil {
			n.log.Warn("reactor thread not pinned", zap.Int("cpu", n.cfg.ReactorCPU), zap.Error(err))
		}
	}

	for {
		n.tasks.Drain()
		if n.stopped {
			return
		}
		if _, err := n.poller.Poll(-1); err != nil {
			n.log.Error("poll failed", zap.Error(err))
		}
	}
}

func (n *Network) wake() {
	if err := n.poller.Wake(); err != nil && !n.closing.Load() {
		n.log.Warn("wake failed", zap.Error(err))
	}
}

func (n *Network) taskPanicked(p any) {
	n.metrics.Add(statTasksPanicked, 1)
	n.log.Error("reactor task panicked", zap.Any("panic", p), zap.Stack("stack"))
}

// Post queues fn for execution on the reactor goroutine. Tasks run in the
// order they were posted. Returns false after Close.
func (n *Network) Post(fn func()) bool {
	return n.tasks.Push(fn)
}

// Config returns the configuration the Network was created with.
func (n *Network) Config() Config {
	return n.cfg
}

// Logger returns the root logger of the Network.
func (n *Network) Logger() *zap.Logger {
	return n.log
}

func (n *Network) newID() uint64 {
	return n.nextID.Add(1)
}

// Closed reports whether Close has been called.
func (n *Network) Closed() bool {
	return n.closing.Load()
}

func (n *Network) addLink(l *Link) {
	n.linksMu.Lock()
	n.links[l] = struct{}{}
	n.linksMu.Unlock()
}

// removeLink is idempotent; it reports whether l was registered.
func (n *Network) removeLink(l *Link) bool {
	n.linksMu.Lock()
	defer n.linksMu.Unlock()
	if _, ok := n.links[l]; !ok {
		return false
	}
	delete(n.links, l)
	return true
}

func (n *Network) addServer(s *Server) {
	n.serversMu.Lock()
	n.servers[s.id] = s
	n.serversMu.Unlock()
}

func (n *Network) removeServer(s *Server) {
	n.serversMu.Lock()
	delete(n.servers, s.id)
	n.serversMu.Unlock()
}

func (n *Network) server(id uint64) *Server {
	n.serversMu.Lock()
	defer n.serversMu.Unlock()
	return n.servers[id]
}

func (n *Network) addHostnameLookup(lk *hostnameLookup) {
	n.lookupsMu.Lock()
	n.hostLookups[lk] = struct{}{}
	n.lookupsMu.Unlock()
}

func (n *Network) removeHostnameLookup(lk *hostnameLookup) {
	n.lookupsMu.Lock()
	delete(n.hostLookups, lk)
	n.lookupsMu.Unlock()
}

func (n *Network) addIPLookup(lk *ipLookup) {
	n.lookupsMu.Lock()
	n.ipLookups[lk] = struct{}{}
	n.lookupsMu.Unlock()
}

func (n *Network) removeIPLookup(lk *ipLookup) {
	n.lookupsMu.Lock()
	delete(n.ipLookups, lk)
	n.lookupsMu.Unlock()
}

// LinkCount returns the number of registered outbound links.
func (n *Network) LinkCount() int {
	n.linksMu.Lock()
	defer n.linksMu.Unlock()
	return len(n.links)
}

// ServerCount returns the number of listening servers.
func (n *Network) ServerCount() int {
	n.serversMu.Lock()
	defer n.serversMu.Unlock()
	return len(n.servers)
}

// LookupCount returns the number of lookups whose callbacks have not fired.
func (n *Network) LookupCount() int {
	n.lookupsMu.Lock()
	defer n.lookupsMu.Unlock()
	return len(n.hostLookups) + len(n.ipLookups)
}

// Stats returns the counters merged with the registry probes.
func (n *Network) Stats() map[string]any {
	return control.Merge(n.metrics, n.probes)
}

// attach registers fd with the poller on behalf of l. Loop only.
func (n *Network) attach(fd int, events reactor.EventType, l *Link) error {
	if err := n.poller.Add(fd, events, l.onReady); err != nil {
		return err
	}
	n.attached[fd] = l
	return nil
}

// detach removes fd from the poller. Loop only.
func (n *Network) detach(fd int) {
	delete(n.attached, fd)
	if err := n.poller.Remove(fd); err != nil {
		n.log.Debug("poller remove failed", zap.Int("fd", fd), zap.Error(err))
	}
}

// Close shuts down every server and outbound link, stops the reactor
// goroutine and releases the poller. Callbacks no longer fire once it
// returns. Close must not be called from a callback.
func (n *Network) Close() error {
	if !n.closing.CompareAndSwap(false, true) {
		<-n.done
		return nil
	}

	n.serversMu.Lock()
	servers := make([]*Server, 0, len(n.servers))
	for _, s := range n.servers {
		servers = append(servers, s)
	}
	n.serversMu.Unlock()
	for _, s := range servers {
		s.Close()
	}

	n.linksMu.Lock()
	links := make([]*Link, 0, len(n.links))
	for l := range n.links {
		links = append(links, l)
	}
	n.linksMu.Unlock()
	for _, l := range links {
		l.Close()
	}

	var errs error
	if !n.tasks.Push(n.stop) {
		errs = multierr.Append(errs, fmt.Errorf("post stop task: %w", api.ErrNetworkClosed))
	}
	<-n.done
	if dropped := n.tasks.Close(); dropped > 0 {
		n.log.Debug("dropped tasks posted after stop", zap.Int("count", dropped))
	}
	errs = multierr.Append(errs, n.poller.Close())

	n.lookupsMu.Lock()
	pending := len(n.hostLookups) + len(n.ipLookups)
	n.lookupsMu.Unlock()
	n.log.Debug("network stopped", zap.Int("pending_lookups", pending))
	return errs
}

// stop releases whatever is still attached, such as inbound links of
// servers that were closed earlier and are still draining.
func (n *Network) stop() {
	for fd, l := range n.attached {
		l.mu.Lock()
		l.terminal = true
		l.state = LinkClosed
		l.fd = -1
		l.attached = false
		l.mu.Unlock()
		n.detach(fd)
		if err := sysClose(fd); err != nil {
			n.log.Debug("close failed", zap.Int("fd", fd), zap.Error(err))
		}
	}
	n.stopped = true
}

// Shutdown implements api.GracefulShutdown.
func (n *Network) Shutdown() error {
	return n.Close()
}

var _ api.GracefulShutdown = (*Network)(nil)
