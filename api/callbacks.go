// File: api/callbacks.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Callback contracts implemented by the protocol layer. All callbacks are
// invoked on the reactor thread and must not block.

package api

// LinkCallbacks receive the events of an established link.
type LinkCallbacks interface {
	// OnReceivedData is called for every chunk read from the socket. The
	// slice is only valid for the duration of the call. Chunk boundaries
	// carry no meaning.
	OnReceivedData(link Link, data []byte)

	// OnRemoteClosed is called once when the peer closes its side.
	OnRemoteClosed(link Link)

	// OnError is called once on a transport failure; the link is gone
	// afterwards.
	OnError(link Link, code int, message string)
}

// ConnectCallbacks report the outcome of an outgoing connection attempt.
// Exactly one of the methods fires, once.
type ConnectCallbacks interface {
	OnSuccess(link Link)
	OnError(code int, message string)
}

// ListenCallbacks receive the events of a listening server.
type ListenCallbacks interface {
	// OnAccepted is called for each incoming connection, after the link has
	// been registered with its server.
	OnAccepted(link Link)

	// OnError is called synchronously from Listen when the server cannot be
	// started.
	OnError(code int, message string)
}

// ResolveCallbacks receive the results of a hostname or IP lookup.
type ResolveCallbacks interface {
	// OnNameResolved is called for each result. Forward lookups report
	// (hostname, ip) once per address; reverse lookups report (hostname, ip)
	// once.
	OnNameResolved(name, result string)

	// OnFinished is called after the last OnNameResolved.
	OnFinished()

	// OnError is called instead of OnFinished when the lookup failed or
	// yielded nothing usable.
	OnError(code int, message string)
}

// LinkCallbackFuncs adapts plain functions to LinkCallbacks. Nil fields are
// ignored.
type LinkCallbackFuncs struct {
	ReceivedData func(link Link, data []byte)
	RemoteClosed func(link Link)
	Error        func(link Link, code int, message string)
}

func (f *LinkCallbackFuncs) OnReceivedData(link Link, data []byte) {
	if f.ReceivedData != nil {
		f.ReceivedData(link, data)
	}
}

func (f *LinkCallbackFuncs) OnRemoteClosed(link Link) {
	if f.RemoteClosed != nil {
		f.RemoteClosed(link)
	}
}

func (f *LinkCallbackFuncs) OnError(link Link, code int, message string) {
	if f.Error != nil {
		f.Error(link, code, message)
	}
}

// ConnectCallbackFuncs adapts plain functions to ConnectCallbacks.
type ConnectCallbackFuncs struct {
	Success func(link Link)
	Error   func(code int, message string)
}

func (f *ConnectCallbackFuncs) OnSuccess(link Link) {
	if f.Success != nil {
		f.Success(link)
	}
}

func (f *ConnectCallbackFuncs) OnError(code int, message string) {
	if f.Error != nil {
		f.Error(code, message)
	}
}

// ListenCallbackFuncs adapts plain functions to ListenCallbacks.
type ListenCallbackFuncs struct {
	Accepted func(link Link)
	Error    func(code int, message string)
}

func (f *ListenCallbackFuncs) OnAccepted(link Link) {
	if f.Accepted != nil {
		f.Accepted(link)
	}
}

func (f *ListenCallbackFuncs) OnError(code int, message string) {
	if f.Error != nil {
		f.Error(code, message)
	}
}

// ResolveCallbackFuncs adapts plain functions to ResolveCallbacks.
type ResolveCallbackFuncs struct {
	NameResolved func(name, result string)
	Finished     func()
	Error        func(code int, message string)
}

func (f *ResolveCallbackFuncs) OnNameResolved(name, result string) {
	if f.NameResolved != nil {
		f.NameResolved(name, result)
	}
}

func (f *ResolveCallbackFuncs) OnFinished() {
	if f.Finished != nil {
		f.Finished()
	}
}

func (f *ResolveCallbackFuncs) OnError(code int, message string) {
	if f.Error != nil {
		f.Error(code, message)
	}
}
