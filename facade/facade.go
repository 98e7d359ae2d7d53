// File: facade/facade.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package facade is the entry point used by game code. Every call goes to
// the process-wide network core, which is started on first use. Callbacks
// run on the core's reactor goroutine and must not block.

package facade

import (
	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/network"
)

// Config is the configuration of the network core.
type Config = network.Config

// DefaultConfig returns default configuration values.
func DefaultConfig() Config {
	return network.DefaultConfig()
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	return network.LoadConfig(path)
}

// Configure sets the configuration used when the network core starts. It
// fails once the core is running.
func Configure(cfg Config) error {
	return network.Configure(cfg)
}

// Connect opens a TCP connection to host:port. host may be a hostname or a
// literal IPv4/IPv6 address. Returns false if the connection could not be
// started; otherwise exactly one of connectCallbacks' methods fires later.
func Connect(host string, port uint16, connectCallbacks api.ConnectCallbacks, linkCallbacks api.LinkCallbacks) bool {
	n, err := network.Default()
	if err != nil {
		return false
	}
	_, err = n.Connect(host, port, linkCallbacks, connectCallbacks)
	return err == nil
}

// Listen accepts TCP connections on port, on all interfaces. On failure
// listenCallbacks.OnError is called before Listen returns and the handle
// reports IsListening() == false.
func Listen(port uint16, listenCallbacks api.ListenCallbacks, linkCallbacks api.LinkCallbacks) api.ServerHandle {
	n, err := network.Default()
	if err != nil {
		listenCallbacks.OnError(api.CodeOf(err), err.Error())
		return closedServer{}
	}
	return n.Listen(port, listenCallbacks, linkCallbacks)
}

// HostnameToIP resolves hostname to its IP addresses.
func HostnameToIP(hostname string, callbacks api.ResolveCallbacks) bool {
	n, err := network.Default()
	if err != nil {
		return false
	}
	return n.HostnameToIP(hostname, callbacks)
}

// IPToHostName resolves ip to a host name.
func IPToHostName(ip string, callbacks api.ResolveCallbacks) bool {
	n, err := network.Default()
	if err != nil {
		return false
	}
	return n.IPToHostName(ip, callbacks)
}

// Stats returns the counters of the network core, or nil if it is not
// running.
func Stats() map[string]any {
	n, err := network.Default()
	if err != nil {
		return nil
	}
	return n.Stats()
}

// Shutdown closes every server and link and stops the network core. A later
// call into the facade starts a new core.
func Shutdown() error {
	return network.CloseDefault()
}

// closedServer is returned by Listen when the core cannot start.
type closedServer struct{}

func (closedServer) Close()            {}
func (closedServer) IsListening() bool { return false }
