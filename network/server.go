// File: network/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package network

import (
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/reactor"
)

// Server is a listening endpoint. It owns the links it accepted until they
// close or the server is closed.
type Server struct {
	id              uint64
	net             *Network
	listenCallbacks api.ListenCallbacks
	linkCallbacks   api.LinkCallbacks
	log             *zap.Logger

	listening atomic.Bool

	mu      sync.Mutex
	fds     []int
	addrs   []netip.AddrPort
	conns   []*Link
	errCode int
	errMsg  string
}

var _ api.ServerHandle = (*Server)(nil)

// Listen starts accepting TCP connections on port on all interfaces, IPv6
// and IPv4. Port 0 picks an ephemeral port. A Server is always returned;
// on failure listenCallbacks.OnError has been called before Listen returns
// and IsListening reports false.
func (n *Network) Listen(port uint16, listenCallbacks api.ListenCallbacks, linkCallbacks api.LinkCallbacks) *Server {
	if listenCallbacks == nil || linkCallbacks == nil {
		panic("network: Listen requires listen and link callbacks")
	}
	s := &Server{
		id:              n.newID(),
		net:             n,
		listenCallbacks: listenCallbacks,
		linkCallbacks:   linkCallbacks,
	}
	s.log = n.log.Named("server").With(zap.Uint64("server", s.id))

	if n.closing.Load() {
		s.fail(api.CodeOf(api.ErrNetworkClosed), api.ErrNetworkClosed.Error())
		return s
	}
	if err := s.open(port); err != nil {
		s.fail(api.CodeOf(err), err.Error())
		return s
	}

	s.listening.Store(true)
	n.addServer(s)
	if !n.Post(s.attach) {
		s.listening.Store(false)
		n.removeServer(s)
		s.closeSockets()
		s.fail(api.CodeOf(api.ErrNetworkClosed), api.ErrNetworkClosed.Error())
		return s
	}
	n.metrics.Add(statServersStarted, 1)
	s.log.Info("listening", zap.Any("addrs", s.LocalAddrs()))
	return s
}

func (s *Server) fail(code int, message string) {
	s.mu.Lock()
	s.errCode = code
	s.errMsg = message
	s.mu.Unlock()
	s.log.Debug("listen failed", zap.Int("code", code), zap.String("message", message))
	s.listenCallbacks.OnError(code, message)
}

// open creates the listening sockets. The preferred layout is a single
// dual-stack IPv6 socket. A v6-only socket plus an IPv4 socket on the same
// port is used when configured or when the platform cannot clear
// IPV6_V6ONLY; a lone IPv4 socket when IPv6 is unavailable.
func (s *Server) open(port uint16) error {
	separate := s.net.cfg.SeparateIPv4Listener

	fd, err := sysListenSocket(true)
	if err != nil {
		s.log.Debug("IPv6 socket unavailable, falling back to IPv4", zap.Error(err))
		fd, err = sysListenSocket(false)
		if err != nil {
			return api.NewError(api.CodeOf(err), fmt.Sprintf("cannot create socket for port %d", port), err)
		}
		if err := s.bindListen(fd, netip.AddrPortFrom(netip.IPv4Unspecified(), port)); err != nil {
			sysClose(fd)
			return err
		}
		return s.adopt(fd)
	}

	if err := sysSetV6Only(fd, separate); err != nil {
		if !isNoProtoOpt(err) {
			sysClose(fd)
			return api.NewError(api.CodeOf(err), fmt.Sprintf("cannot configure IPV6_V6ONLY on port %d", port), err)
		}
		s.log.Debug("dual-stack sockets unsupported, using a separate IPv4 socket")
		separate = true
	}
	if err := s.bindListen(fd, netip.AddrPortFrom(netip.IPv6Unspecified(), port)); err != nil {
		sysClose(fd)
		return err
	}
	if err := s.adopt(fd); err != nil {
		return err
	}
	if !separate {
		return nil
	}

	// The secondary socket shares the port the primary actually got.
	actual := s.Port()
	fd4, err := sysListenSocket(false)
	if err != nil {
		s.closeSockets()
		return api.NewError(api.CodeOf(err), fmt.Sprintf("cannot create IPv4 socket for port %d", actual), err)
	}
	if err := s.bindListen(fd4, netip.AddrPortFrom(netip.IPv4Unspecified(), actual)); err != nil {
		sysClose(fd4)
		s.closeSockets()
		return err
	}
	if err := s.adopt(fd4); err != nil {
		s.closeSockets()
		return err
	}
	return nil
}

func (s *Server) bindListen(fd int, ap netip.AddrPort) error {
	family := "IPv6"
	if ap.Addr().Is4() {
		family = "IPv4"
	}
	if err := sysSetReuseAddr(fd); err != nil {
		s.log.Debug("SO_REUSEADDR failed", zap.Error(err))
	}
	if err := sysBind(fd, ap); err != nil {
		return api.NewError(api.CodeOf(err), fmt.Sprintf("cannot bind %s socket to port %d", family, ap.Port()), err)
	}
	if err := sysSetNonblock(fd); err != nil {
		return api.NewError(api.CodeOf(err), fmt.Sprintf("cannot make %s socket on port %d non-blocking", family, ap.Port()), err)
	}
	if err := sysListen(fd, s.net.cfg.ListenBacklog); err != nil {
		return api.NewError(api.CodeOf(err), fmt.Sprintf("cannot listen on %s port %d", family, ap.Port()), err)
	}
	return nil
}

func (s *Server) adopt(fd int) error {
	ap, err := sysLocalAddr(fd)
	if err != nil {
		sysClose(fd)
		return api.NewError(api.CodeOf(err), "cannot query listening address", err)
	}
	s.mu.Lock()
	s.fds = append(s.fds, fd)
	s.addrs = append(s.addrs, ap)
	s.mu.Unlock()
	return nil
}

// attach registers the listening sockets with the poller. Loop only.
func (s *Server) attach() {
	s.mu.Lock()
	fds := append([]int(nil), s.fds...)
	s.mu.Unlock()
	for _, fd := range fds {
		if err := s.net.poller.Add(fd, reactor.EventRead, s.onAcceptable); err != nil {
			s.log.Error("cannot watch listening socket", zap.Int("fd", fd), zap.Error(err))
			s.abort(api.NewError(api.CodeOf(err), fmt.Sprintf("cannot watch listening socket on port %d", s.Port()), err))
			return
		}
	}
}

// abort stops a server that failed after Listen returned and reports err
// through OnError. Loop only.
func (s *Server) abort(err error) {
	if !s.listening.CompareAndSwap(true, false) {
		return
	}
	s.net.removeServer(s)

	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	fds := s.fds
	s.fds = nil
	s.mu.Unlock()

	s.release(fds)
	for _, l := range conns {
		l.Shutdown()
	}
	s.fail(api.CodeOf(err), err.Error())
}

// onAcceptable accepts every pending connection. Loop only.
func (s *Server) onAcceptable(fd int, _ reactor.EventType) {
	for {
		nfd, peer, err := sysAccept(fd)
		if err != nil {
			if isWouldBlock(err) {
				return
			}
			if isTransientAccept(err) {
				continue
			}
			s.log.Warn("accept failed", zap.Int("fd", fd), zap.Error(err))
			return
		}
		if !s.listening.Load() {
			sysClose(nfd)
			continue
		}
		s.accepted(nfd, peer)
	}
}

func (s *Server) accepted(fd int, peer netip.AddrPort) {
	n := s.net
	if n.cfg.NoDelay {
		if err := sysSetNoDelay(fd); err != nil {
			s.log.Debug("TCP_NODELAY failed", zap.Error(err))
		}
	}

	l := newLink(n, s.id, s.linkCallbacks)
	l.state = LinkConnected
	l.fd = fd
	l.remote = displayAddrPort(peer)
	if local, err := sysLocalAddr(fd); err == nil {
		l.local = displayAddrPort(local)
	}

	if err := n.attach(fd, reactor.EventRead, l); err != nil {
		s.log.Warn("cannot watch accepted socket", zap.Int("fd", fd), zap.Error(err))
		sysClose(fd)
		return
	}
	l.attached = true

	// Close clears listening before it swaps conns under mu.
	s.mu.Lock()
	if !s.listening.Load() {
		s.mu.Unlock()
		n.detach(fd)
		sysClose(fd)
		l.log.Debug("server closed, dropping accepted connection", zap.Stringer("remote", peer))
		return
	}
	s.conns = append(s.conns, l)
	s.mu.Unlock()
	n.metrics.Add(statLinksAccepted, 1)
	l.log.Debug("accepted", zap.Int("fd", fd), zap.Stringer("remote", peer))

	s.listenCallbacks.OnAccepted(l)
}

// removeLink forgets l. Unknown links are ignored.
func (s *Server) removeLink(l *Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.conns {
		if c == l {
			s.conns = append(s.conns[:i], s.conns[i+1:]...)
			return
		}
	}
}

// Close stops listening and shuts down every link accepted so far. Their
// queued data is still flushed.
func (s *Server) Close() {
	if !s.listening.CompareAndSwap(true, false) {
		return
	}
	s.net.removeServer(s)

	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	fds := s.fds
	s.fds = nil
	s.mu.Unlock()

	if !s.net.Post(func() { s.release(fds) }) {
		s.release(fds)
	}
	for _, l := range conns {
		l.Shutdown()
	}
	s.log.Info("closed", zap.Int("links", len(conns)))
}

func (s *Server) release(fds []int) {
	var errs error
	for _, fd := range fds {
		errs = multierr.Append(errs, s.net.poller.Remove(fd))
		errs = multierr.Append(errs, sysClose(fd))
	}
	if errs != nil {
		s.log.Debug("releasing listening sockets", zap.Error(errs))
	}
}

func (s *Server) closeSockets() {
	s.mu.Lock()
	fds := s.fds
	s.fds = nil
	s.addrs = nil
	s.mu.Unlock()
	for _, fd := range fds {
		sysClose(fd)
	}
}

// IsListening reports whether the server accepts connections.
func (s *Server) IsListening() bool {
	return s.listening.Load()
}

// ID returns the identifier of the server, unique within its Network.
func (s *Server) ID() uint64 { return s.id }

// LocalAddrs returns the bound addresses, one per listening socket.
func (s *Server) LocalAddrs() []netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]netip.AddrPort(nil), s.addrs...)
}

// Port returns the bound port, or 0 when the server never listened.
func (s *Server) Port() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.addrs) == 0 {
		return 0
	}
	return s.addrs[0].Port()
}

// ErrorCode returns the failure code reported by Listen.
func (s *Server) ErrorCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errCode
}

// ErrorMessage returns the failure message reported by Listen.
func (s *Server) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Connections returns the number of live accepted links.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
