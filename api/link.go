// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package api

// Link is one TCP connection, inbound or outbound. All methods are safe for
// concurrent use; none of them block on network I/O.
type Link interface {
	// Send queues data for delivery. Data from successive calls is sent in
	// order. Returns false if the link no longer accepts data.
	Send(data []byte) bool

	// Shutdown half-closes the link: queued data is flushed, then a FIN is
	// sent. Incoming data is still delivered.
	Shutdown()

	// Close stops all notifications and releases the link. Unsent data is
	// dropped.
	Close()

	// Endpoint addresses, valid once the link is connected.
	LocalIP() string
	LocalPort() uint16
	RemoteIP() string
	RemotePort() uint16
}

// ServerHandle is a listening endpoint returned by Listen.
type ServerHandle interface {
	// Close stops listening and shuts down every connection accepted so far.
	Close()

	// IsListening reports whether the server accepts connections.
	IsListening() bool
}
