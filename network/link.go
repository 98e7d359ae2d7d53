// File: network/link.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Link is one TCP connection driven by the reactor goroutine. Outbound links
// are registered with the Network, inbound ones with the Server that
// accepted them.

package network

import (
	"fmt"
	"net/netip"
	"strconv"
	"sync"
	"syscall"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/reactor"
)

// LinkState is the lifecycle state of a Link.
type LinkState = api.LinkState

const (
	LinkConnecting = api.LinkConnecting
	LinkConnected  = api.LinkConnected
	LinkClosing    = api.LinkClosing
	LinkClosed     = api.LinkClosed
)

// linkEvent is the set of conditions passed to dispatchEvent.
type linkEvent uint8

const (
	eventFailed linkEvent = 1 << iota
	eventConnected
	eventEOF
)

// Link implements api.Link over a non-blocking socket.
type Link struct {
	id        uint64
	net       *Network
	serverID  uint64 // 0 for outbound links
	callbacks api.LinkCallbacks
	log       *zap.Logger

	mu               sync.Mutex
	state            LinkState
	terminal         bool // no more consumer callbacks
	connectCallbacks api.ConnectCallbacks
	fd               int
	attached         bool
	out              *queue.Queue // of []byte
	outOff           int
	flushScheduled   bool
	writeArmed       bool
	shutdown         bool
	finSent          bool
	local            netip.AddrPort
	remote           netip.AddrPort
}

var _ api.Link = (*Link)(nil)

func newLink(n *Network, serverID uint64, callbacks api.LinkCallbacks) *Link {
	id := n.newID()
	return &Link{
		id:        id,
		net:       n,
		serverID:  serverID,
		callbacks: callbacks,
		log:       n.log.Named("link").With(zap.Uint64("link", id)),
		fd:        -1,
		out:       queue.New(),
	}
}

// Connect opens an outgoing connection to host:port. host may be a literal
// IPv4 or IPv6 address, in which case the connect is issued immediately, or
// a hostname, which is resolved first and connected to its first address.
// The outcome is reported through connectCallbacks on the reactor
// goroutine. An error is returned only when the connect could not be
// started at all.
func (n *Network) Connect(host string, port uint16, linkCallbacks api.LinkCallbacks, connectCallbacks api.ConnectCallbacks) (*Link, error) {
	if linkCallbacks == nil || connectCallbacks == nil {
		panic("network: Connect requires link and connect callbacks")
	}
	if n.closing.Load() {
		return nil, api.ErrNetworkClosed
	}

	l := newLink(n, 0, linkCallbacks)
	l.state = LinkConnecting
	l.connectCallbacks = connectCallbacks
	n.addLink(l)
	n.metrics.Add(statLinksOpened, 1)

	if addr, ok := parseHostIP(host); ok {
		if err := l.connectTo(netip.AddrPortFrom(addr.Unmap(), port)); err != nil {
			n.removeLink(l)
			n.metrics.Add(statLinksFailed, 1)
			return nil, err
		}
		return l, nil
	}

	ok := n.resolver.lookupHost(host, func(addrs []netip.Addr, err error) {
		if l.isTerminal() {
			return
		}
		if err != nil {
			code, msg := resolveError(host, err)
			l.dispatchEvent(eventFailed, code, msg)
			return
		}
		if len(addrs) == 0 {
			l.dispatchEvent(eventFailed, api.ResolveErrNoData, "no address found for "+host)
			return
		}
		if err := l.connectTo(netip.AddrPortFrom(addrs[0].Unmap(), port)); err != nil {
			l.dispatchEvent(eventFailed, api.CodeOf(err), err.Error())
		}
	})
	if !ok {
		n.removeLink(l)
		return nil, api.ErrNetworkClosed
	}
	return l, nil
}

// connectTo creates the socket and starts a non-blocking connect. The fd
// is registered with the poller for writability, which signals completion.
func (l *Link) connectTo(ap netip.AddrPort) error {
	fd, err := sysSocket(ap.Addr().Is6())
	if err != nil {
		return err
	}
	if l.net.cfg.NoDelay {
		if err := sysSetNoDelay(fd); err != nil {
			l.log.Debug("TCP_NODELAY failed", zap.Error(err))
		}
	}
	if err := sysConnect(fd, ap); err != nil {
		sysClose(fd)
		return fmt.Errorf("connect %s: %w", ap, err)
	}

	l.mu.Lock()
	if l.terminal {
		l.mu.Unlock()
		sysClose(fd)
		return api.ErrLinkClosed
	}
	l.fd = fd
	l.remote = displayAddrPort(ap)
	l.writeArmed = true
	l.mu.Unlock()

	if !l.net.Post(func() { l.attach(reactor.EventWrite) }) {
		l.mu.Lock()
		l.fd = -1
		l.mu.Unlock()
		sysClose(fd)
		return api.ErrNetworkClosed
	}
	l.log.Debug("connecting", zap.Int("fd", fd), zap.Stringer("remote", ap))
	return nil
}

// attach registers the socket with the poller. Loop only.
func (l *Link) attach(events reactor.EventType) error {
	l.mu.Lock()
	fd := l.fd
	if l.terminal || fd < 0 {
		l.mu.Unlock()
		return api.ErrLinkClosed
	}
	l.mu.Unlock()

	if err := l.net.attach(fd, events, l); err != nil {
		l.dispatchEvent(eventFailed, api.CodeOf(err), err.Error())
		return err
	}
	l.mu.Lock()
	l.attached = true
	l.mu.Unlock()
	return nil
}

// onReady is the poller callback. Loop only.
func (l *Link) onReady(fd int, events reactor.EventType) {
	if l.State() == LinkConnecting {
		l.completeConnect(fd, events)
		return
	}
	if events&(reactor.EventRead|reactor.EventHangup|reactor.EventError) != 0 {
		l.readAll()
	}
	if events&reactor.EventError != 0 && !l.isTerminal() {
		if err := sysSocketError(fd); err != nil {
			l.dispatchEvent(eventFailed, api.CodeOf(err), err.Error())
			return
		}
	}
	if events&reactor.EventWrite != 0 && !l.isTerminal() {
		l.flush()
	}
}

func (l *Link) completeConnect(fd int, events reactor.EventType) {
	if err := sysSocketError(fd); err != nil {
		l.dispatchEvent(eventFailed, api.CodeOf(err), err.Error())
		return
	}
	switch {
	case events&reactor.EventWrite != 0:
		l.dispatchEvent(eventConnected, 0, "")
	case events&(reactor.EventHangup|reactor.EventError) != 0:
		// Hung up before becoming writable without a pending socket error.
		err := syscall.ECONNRESET
		l.dispatchEvent(eventFailed, api.CodeOf(err), err.Error())
	}
}

// dispatchEvent is the single entry point for link state events. Failure
// takes precedence over connection, connection over EOF. Loop only.
func (l *Link) dispatchEvent(ev linkEvent, code int, message string) {
	switch {
	case ev&eventFailed != 0:
		l.mu.Lock()
		if l.terminal {
			l.mu.Unlock()
			return
		}
		l.terminal = true
		connecting := l.state == LinkConnecting
		cc := l.connectCallbacks
		l.connectCallbacks = nil
		l.state = LinkClosing
		l.mu.Unlock()

		l.net.metrics.Add(statLinksFailed, 1)
		l.log.Debug("link failed", zap.Int("code", code), zap.String("message", message))
		if connecting && cc != nil {
			cc.OnError(code, message)
		} else {
			l.callbacks.OnError(l, code, message)
		}
		l.deregister()
		l.release()

	case ev&eventConnected != 0:
		l.mu.Lock()
		if l.terminal {
			l.mu.Unlock()
			return
		}
		cc := l.connectCallbacks
		l.connectCallbacks = nil
		wasConnecting := l.state == LinkConnecting
		if wasConnecting {
			l.state = LinkConnected
			if l.shutdown {
				l.state = LinkClosing
			}
		}
		l.mu.Unlock()

		l.updateAddresses()
		if !wasConnecting {
			return
		}
		l.syncInterest()
		if cc != nil {
			cc.OnSuccess(l)
		}
		l.flush()

	case ev&eventEOF != 0:
		l.mu.Lock()
		if l.terminal {
			l.mu.Unlock()
			return
		}
		l.terminal = true
		l.state = LinkClosing
		l.mu.Unlock()

		l.callbacks.OnRemoteClosed(l)
		l.deregister()
		l.release()

	default:
		l.log.DPanic("unexpected link event", zap.Uint8("event", uint8(ev)), zap.Stringer("state", l.State()))
	}
}

// readAll drains the socket in ReadChunkSize chunks. Loop only.
func (l *Link) readAll() {
	buf := l.net.readBuf
	for {
		l.mu.Lock()
		fd, terminal := l.fd, l.terminal
		l.mu.Unlock()
		if terminal || fd < 0 {
			return
		}

		n, err := sysRead(fd, buf)
		switch {
		case err != nil && isInterrupted(err):
			continue
		case err != nil && isWouldBlock(err):
			return
		case err != nil:
			l.dispatchEvent(eventFailed, api.CodeOf(err), err.Error())
			return
		case n == 0:
			l.dispatchEvent(eventEOF, 0, "")
			return
		}
		l.net.metrics.Add(statBytesIn, int64(n))
		l.callbacks.OnReceivedData(l, buf[:n])
	}
}

// Send queues a copy of data. It returns false once the link is shutting
// down or closed.
func (l *Link) Send(data []byte) bool {
	l.mu.Lock()
	if l.terminal || l.shutdown || l.state == LinkClosing || l.state == LinkClosed {
		l.mu.Unlock()
		return false
	}
	if len(data) == 0 {
		l.mu.Unlock()
		return true
	}
	buf := l.net.bufs.Get(len(data))
	copy(buf, data)
	l.out.Add(buf)
	kick := !l.flushScheduled
	l.flushScheduled = true
	l.mu.Unlock()

	if kick && !l.net.Post(l.flush) {
		l.mu.Lock()
		l.flushScheduled = false
		l.mu.Unlock()
		return false
	}
	return true
}

// flush writes queued data until the socket would block, then adjusts the
// write interest. Once the queue is empty after Shutdown the FIN is sent.
// Loop only.
func (l *Link) flush() {
	l.mu.Lock()
	l.flushScheduled = false
	if l.terminal || !l.attached || l.state == LinkConnecting {
		l.mu.Unlock()
		return
	}
	fd := l.fd
	var (
		failure error
		written int
	)
	for l.out.Length() > 0 {
		head := l.out.Peek().([]byte)
		n, err := sysWrite(fd, head[l.outOff:])
		if err != nil {
			if isInterrupted(err) {
				continue
			}
			if !isWouldBlock(err) {
				failure = err
			}
			break
		}
		written += n
		l.outOff += n
		if l.outOff == len(head) {
			l.out.Remove()
			l.outOff = 0
			l.net.bufs.Put(head)
		}
	}
	pending := l.out.Length() > 0
	sendFIN := failure == nil && !pending && l.shutdown && !l.finSent
	if sendFIN {
		l.finSent = true
	}
	rearm := pending != l.writeArmed
	l.writeArmed = pending
	l.mu.Unlock()

	if written > 0 {
		l.net.metrics.Add(statBytesOut, int64(written))
	}
	if failure != nil {
		l.dispatchEvent(eventFailed, api.CodeOf(failure), failure.Error())
		return
	}
	if sendFIN {
		if err := sysShutdownWrite(fd); err != nil {
			l.log.Debug("shutdown failed", zap.Int("fd", fd), zap.Error(err))
		}
	}
	if rearm {
		l.setInterest(fd, pending)
	}
}

// syncInterest sets the interest to read, plus write when data is queued.
// Loop only.
func (l *Link) syncInterest() {
	l.mu.Lock()
	fd := l.fd
	pending := l.out.Length() > 0
	l.writeArmed = pending
	l.mu.Unlock()
	if fd >= 0 {
		l.setInterest(fd, pending)
	}
}

func (l *Link) setInterest(fd int, write bool) {
	events := reactor.EventRead
	if write {
		events |= reactor.EventWrite
	}
	if err := l.net.poller.Modify(fd, events); err != nil {
		l.log.Debug("poller modify failed", zap.Int("fd", fd), zap.Error(err))
	}
}

// Shutdown half-closes the link once queued data has been written.
// Incoming data is still delivered.
func (l *Link) Shutdown() {
	l.mu.Lock()
	if l.terminal || l.shutdown {
		l.mu.Unlock()
		return
	}
	l.shutdown = true
	if l.state == LinkConnected {
		l.state = LinkClosing
	}
	kick := !l.flushScheduled
	l.flushScheduled = true
	l.mu.Unlock()

	if kick {
		l.net.Post(l.flush)
	}
}

// Close drops queued data, stops all callbacks and releases the socket.
func (l *Link) Close() {
	l.mu.Lock()
	if l.terminal {
		l.mu.Unlock()
		return
	}
	l.terminal = true
	l.connectCallbacks = nil
	if l.state != LinkClosed {
		l.state = LinkClosing
	}
	l.mu.Unlock()

	l.deregister()
	if !l.net.Post(l.release) {
		// The loop is gone and has already released attached sockets.
		l.mu.Lock()
		fd := l.fd
		attached := l.attached
		l.fd = -1
		l.state = LinkClosed
		l.mu.Unlock()
		if fd >= 0 && !attached {
			sysClose(fd)
		}
	}
}

func (l *Link) deregister() {
	if l.serverID == 0 {
		l.net.removeLink(l)
		return
	}
	if s := l.net.server(l.serverID); s != nil {
		s.removeLink(l)
	}
}

// release closes the socket. Loop only.
func (l *Link) release() {
	l.mu.Lock()
	fd := l.fd
	attached := l.attached
	l.fd = -1
	l.attached = false
	l.state = LinkClosed
	for l.out.Length() > 0 {
		l.net.bufs.Put(l.out.Remove().([]byte))
	}
	l.outOff = 0
	l.mu.Unlock()

	if fd < 0 {
		return
	}
	if attached {
		l.net.detach(fd)
	}
	if err := sysClose(fd); err != nil {
		l.log.Debug("close failed", zap.Int("fd", fd), zap.Error(err))
	}
}

func (l *Link) updateAddresses() {
	l.mu.Lock()
	fd := l.fd
	l.mu.Unlock()
	if fd < 0 {
		return
	}
	local, err := sysLocalAddr(fd)
	if err != nil {
		l.log.Debug("getsockname failed", zap.Error(err))
	}
	remote, err := sysPeerAddr(fd)
	if err != nil {
		l.log.Debug("getpeername failed", zap.Error(err))
	}
	l.mu.Lock()
	if local.IsValid() {
		l.local = displayAddrPort(local)
	}
	if remote.IsValid() {
		l.remote = displayAddrPort(remote)
	}
	l.mu.Unlock()
}

func (l *Link) isTerminal() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.terminal
}

// ID returns the identifier of the link, unique within its Network.
func (l *Link) ID() uint64 { return l.id }

// State returns the current lifecycle state.
func (l *Link) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// LocalAddr returns the local endpoint.
func (l *Link) LocalAddr() netip.AddrPort {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.local
}

// RemoteAddr returns the peer endpoint.
func (l *Link) RemoteAddr() netip.AddrPort {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remote
}

func (l *Link) LocalIP() string { return addrString(l.LocalAddr()) }
func (l *Link) LocalPort() uint16 { return l.LocalAddr().Port() }
func (l *Link) RemoteIP() string { return addrString(l.RemoteAddr()) }
func (l *Link) RemotePort() uint16 { return l.RemoteAddr().Port() }

func (l *Link) String() string {
	return "link#" + strconv.FormatUint(l.id, 10) + " " + l.RemoteAddr().String()
}
