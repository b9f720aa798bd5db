// Package client connects to an echochat server over TCP, SSH or WebSocket
// and exchanges chat lines.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/aeolun/echochat/pkg/chat"
)

// ErrClosed is returned when sending on a closed client
var ErrClosed = errors.New("connection closed")

const maxLineBytes = 1024 * 1024

// Options tune how a client connects
type Options struct {
	// InsecureIgnoreHostKey skips SSH host key verification
	InsecureIgnoreHostKey bool
	// KnownHostsPath is checked before the default known_hosts files
	KnownHostsPath string
	// Logger for connection events (optional, defaults to discarding)
	Logger *log.Logger
}

// LineKind classifies a line received from the server
type LineKind int

const (
	KindChat LineKind = iota
	KindOperator
	KindError
	KindOther
)

// Line is one line received from the server
type Line struct {
	Kind    LineKind
	Sender  string // Identity of the participant, for chat lines
	Content string // Payload without sender or prefix
	Raw     string
}

// ParseLine classifies a raw server line. Chat lines are "<identity>: <payload>";
// an identity never contains whitespace, so the first separator ends it.
func ParseLine(raw string) Line {
	switch {
	case strings.HasPrefix(raw, chat.OperatorPrefix):
		return Line{Kind: KindOperator, Content: strings.TrimPrefix(raw, chat.OperatorPrefix), Raw: raw}
	case strings.HasPrefix(raw, "ERROR - "):
		return Line{Kind: KindError, Content: strings.TrimPrefix(raw, "ERROR - "), Raw: raw}
	}

	idx := strings.Index(raw, chat.Separator)
	if idx <= 0 || strings.ContainsAny(raw[:idx], " \t") {
		return Line{Kind: KindOther, Content: raw, Raw: raw}
	}
	return Line{
		Kind:    KindChat,
		Sender:  raw[:idx],
		Content: raw[idx+len(chat.Separator):],
		Raw:     raw,
	}
}

// Client is a connection to a chat server
type Client struct {
	cfg    *dialConfig
	conn   io.ReadWriteCloser
	logger *log.Logger

	sendMu sync.Mutex
	mu     sync.RWMutex
	closed bool

	incoming chan Line
	stop     chan struct{}
	done     chan struct{}
	err      error
}

// Dial connects to addr. Plain host:port means TCP; tcp://, ssh:// and ws://
// URLs select the transport.
func Dial(addr string, opts Options) (*Client, error) {
	cfg, err := parseServerAddress(addr, opts)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	logger.Printf("Connecting to %s", cfg.display)
	conn, err := cfg.dial()
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.display, err)
	}

	c := &Client{
		cfg:      cfg,
		conn:     conn,
		logger:   logger,
		incoming: make(chan Line, 256),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Address returns the server address including its scheme
func (c *Client) Address() string {
	return c.cfg.display
}

// Login declares the client's identity. It must be the first line sent.
func (c *Client) Login(identity string) error {
	if identity == "" || strings.ContainsAny(identity, " \t\r\n") {
		return fmt.Errorf("invalid identity %q: must be a single word", identity)
	}
	return c.Send(chat.LoginCommand + " " + identity)
}

// Send writes one line to the server
func (c *Client) Send(line string) error {
	if c.isClosed() {
		return ErrClosed
	}
	line = strings.TrimRight(line, "\r\n")

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

// Incoming delivers received lines. It is closed when the connection ends.
func (c *Client) Incoming() <-chan Line {
	return c.incoming
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil for a clean close
func (c *Client) Err() error {
	<-c.done
	return c.err
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stop)
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.incoming)

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		select {
		case c.incoming <- ParseLine(strings.TrimRight(scanner.Text(), "\r")):
		case <-c.stop:
			return
		}
	}

	if err := scanner.Err(); err != nil && !c.isClosed() {
		c.err = err
		c.logger.Printf("Connection to %s lost: %v", c.cfg.display, err)
		return
	}
	c.logger.Printf("Connection to %s closed", c.cfg.display)
}
