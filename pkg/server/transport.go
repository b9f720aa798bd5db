package server

import (
	"context"
	"fmt"
	"io"
	"net"
)

// Transport names used for session bookkeeping and metrics labels.
const (
	TransportTCP       = "tcp"
	TransportSSH       = "ssh"
	TransportWebSocket = "ws"
)

// Conn is a bidirectional byte stream to one peer. net.Conn satisfies it;
// SSH channels and WebSocket connections are adapted to it.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

// Listener accepts Conns for one transport.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() net.Addr
	Transport() string
}

// tcpListener adapts a net.Listener to Listener.
type tcpListener struct {
	net.Listener
}

// listenTCP opens the plain TCP listener used for line-oriented clients.
func listenTCP(port int) (Listener, error) {
	addr := fmt.Sprintf(":%d", port)

	lc := net.ListenConfig{}
	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &tcpListener{Listener: listener}, nil
}

func (l *tcpListener) Accept() (Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	// Disable Nagle's algorithm for immediate sends
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	return conn, nil
}

func (l *tcpListener) Transport() string {
	return TransportTCP
}

// hostOf returns the host part of addr, or addr itself if it has no port.
func hostOf(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
