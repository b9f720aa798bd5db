package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsListener serves /ws and hands out each upgraded connection as a Conn.
// Every text or binary message is one chat line.
type wsListener struct {
	listener  net.Listener
	server    *http.Server
	upgrader  websocket.Upgrader
	conns     chan Conn
	done      chan struct{}
	closeOnce sync.Once
}

// listenWebSocket starts the WebSocket transport on port
func listenWebSocket(port int) (Listener, error) {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	l := &wsListener{
		listener: listener,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Chat clients are not browsers bound to one origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(chan Conn),
		done:  make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", l.handleUpgrade)
	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		if err := l.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("WebSocket server error: %v", err)
		}
	}()

	log.Printf("WebSocket transport listening on %s (/ws)", listener.Addr())
	return l, nil
}

func (l *wsListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debugLog.Printf("WebSocket upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	c := &wsConn{ws: ws}
	select {
	case l.conns <- c:
	case <-l.done:
		c.Close()
	}
}

func (l *wsListener) Accept() (Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close stops accepting upgrades. Already upgraded connections are hijacked
// and stay open.
func (l *wsListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.server.Close()
	})
	return err
}

func (l *wsListener) Addr() net.Addr {
	return l.listener.Addr()
}

func (l *wsListener) Transport() string {
	return TransportWebSocket
}

// wsConn adapts a WebSocket connection to a newline-delimited byte stream
type wsConn struct {
	ws             *websocket.Conn
	reader         io.Reader
	lastByte       byte
	pendingNewline bool
}

func (c *wsConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		if c.pendingNewline {
			c.pendingNewline = false
			c.lastByte = '\n'
			p[0] = '\n'
			return 1, nil
		}

		if c.reader == nil {
			msgType, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if n > 0 {
			c.lastByte = p[n-1]
		}
		if errors.Is(err, io.EOF) {
			c.reader = nil
			// Terminate the message unless it already ended with a newline
			c.pendingNewline = c.lastByte != '\n'
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends p as one text message without its trailing newline
func (c *wsConn) Write(p []byte) (int, error) {
	msg := p
	if len(msg) > 0 && msg[len(msg)-1] == '\n' {
		msg = msg[:len(msg)-1]
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

// isExpectedCloseError reports whether err only signals that the peer or the
// server closed the connection
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
