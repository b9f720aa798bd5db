package server

import "net"

// Handler receives per-session events. Calls for one session happen on that
// session's goroutine, in the order lines arrive.
type Handler interface {
	// OnConnect is called once a session has been accepted, before any line is read.
	OnConnect(sess *Session)
	// OnMessage is called for every inbound line, without its line terminator.
	OnMessage(sess *Session, line string)
	// OnDisconnect is called when the session ended normally or was closed by the server.
	OnDisconnect(sess *Session)
	// OnError is called instead of OnDisconnect when the session ended on a read error.
	OnError(sess *Session, err error)
}

// LifecycleHandler is optionally implemented by a Handler to observe the
// listening endpoint.
type LifecycleHandler interface {
	OnServerStarted(addr net.Addr)
	OnServerStopped()
	OnServerClosed()
}

type noopHandler struct{}

func (noopHandler) OnConnect(*Session)         {}
func (noopHandler) OnMessage(*Session, string) {}
func (noopHandler) OnDisconnect(*Session)      {}
func (noopHandler) OnError(*Session, error)    {}
