//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll implementation.

package reactor

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/api"
)

const defaultMaxEvents = 128

// epollReactor implements Poller using level-triggered epoll.
type epollReactor struct {
	epfd      int
	wakefd    int
	events    []unix.EpollEvent
	callbacks sync.Map // map[int]Callback
	log       *zap.Logger
	closed    atomic.Bool
}

// New creates an epoll poller with an eventfd used by Wake.
func New(maxEvents int, logger *zap.Logger) (Poller, error) {
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add eventfd: %w", err)
	}
	return &epollReactor{
		epfd:   epfd,
		wakefd: wakefd,
		events: make([]unix.EpollEvent, maxEvents),
		log:    logger,
	}, nil
}

func toEpoll(events EventType) uint32 {
	var mask uint32 = unix.EPOLLRDHUP
	if events&EventRead != 0 {
		mask |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func fromEpoll(mask uint32) EventType {
	var events EventType
	if mask&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if mask&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if mask&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if mask&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		events |= EventHangup
	}
	return events
}

// Add adds a file descriptor to the epoll watch list.
func (r *epollReactor) Add(fd int, events EventType, cb Callback) error {
	if r.closed.Load() {
		return api.ErrNetworkClosed
	}
	ev := unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	r.callbacks.Store(fd, cb)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		r.callbacks.Delete(fd)
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

// Modify changes the interest set of a registered descriptor.
func (r *epollReactor) Modify(fd int, events EventType) error {
	ev := unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// Remove removes a file descriptor from the epoll watch list.
func (r *epollReactor) Remove(fd int) error {
	if _, ok := r.callbacks.LoadAndDelete(fd); !ok {
		return nil
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.ENOENT && err != unix.EBADF {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Poll blocks and waits for events on registered file descriptors.
// timeoutMs < 0 means block infinitely.
func (r *epollReactor) Poll(timeoutMs int) (int, error) {
	if timeoutMs < 0 {
		timeoutMs = -1
	}
	n, err := unix.EpollWait(r.epfd, r.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil // interrupted by signal, normal
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		ev := r.events[i]
		fd := int(ev.Fd)
		if fd == r.wakefd {
			r.drainWake()
			continue
		}
		val, ok := r.callbacks.Load(fd)
		if !ok {
			continue
		}
		r.dispatch(fd, fromEpoll(ev.Events), val.(Callback))
		dispatched++
	}
	return dispatched, nil
}

// dispatch keeps the loop alive when a callback panics.
func (r *epollReactor) dispatch(fd int, events EventType, cb Callback) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("poll callback panicked",
				zap.Int("fd", fd),
				zap.Any("panic", p),
				zap.Stack("stack"))
		}
	}()
	cb(fd, events)
}

// Wake makes a blocked Poll return.
func (r *epollReactor) Wake() error {
	if r.closed.Load() {
		return api.ErrNetworkClosed
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(r.wakefd, buf[:]); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (r *epollReactor) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(r.wakefd, buf[:]); err != nil {
			return
		}
	}
}

// Close releases the epoll and eventfd descriptors.
func (r *epollReactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return multierr.Combine(
		wrapClose("eventfd", unix.Close(r.wakefd)),
		wrapClose("epoll", unix.Close(r.epfd)),
	)
}

func wrapClose(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("close %s: %w", what, err)
}
