package server

import (
	"bufio"
	"net"
	"strings"
	"sync"
)

// SafeConn wraps a Conn with write synchronization so that lines written by
// the session's own goroutine and by broadcast senders never interleave.
type SafeConn struct {
	conn Conn
	mu   sync.Mutex // Protects writes to conn
}

// NewSafeConn wraps a Conn with write synchronization
func NewSafeConn(conn Conn) *SafeConn {
	return &SafeConn{
		conn: conn,
	}
}

// WriteLine writes a single newline-terminated line. Trailing CR/LF in line
// are dropped so that every call produces exactly one line on the wire.
func (sc *SafeConn) WriteLine(line string) error {
	line = strings.TrimRight(line, "\r\n")

	sc.mu.Lock()
	defer sc.mu.Unlock()
	_, err := sc.conn.Write([]byte(line + "\n"))
	return err
}

// NewLineScanner returns a scanner over the connection's inbound lines.
// Reads don't need write synchronization.
func (sc *SafeConn) NewLineScanner(maxLineBytes int) *bufio.Scanner {
	scanner := bufio.NewScanner(sc.conn)
	initial := 4096
	if maxLineBytes < initial {
		initial = maxLineBytes
	}
	scanner.Buffer(make([]byte, 0, initial), maxLineBytes)
	return scanner
}

// Close closes the underlying connection
func (sc *SafeConn) Close() error {
	return sc.conn.Close()
}

// RemoteAddr returns the remote network address
func (sc *SafeConn) RemoteAddr() net.Addr {
	return sc.conn.RemoteAddr()
}
