// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness poller driven by the network
// reactor thread. Linux uses epoll with an eventfd for cross-thread wakeups;
// other platforms get a stub that reports api.ErrNotSupported.
package reactor
