package chat

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aeolun/echochat/pkg/server"
)

// recordingConsole collects displayed lines
type recordingConsole struct {
	mu    sync.Mutex
	lines []string
}

func (c *recordingConsole) Display(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, msg)
}

func (c *recordingConsole) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func (c *recordingConsole) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) == 0 {
		return ""
	}
	return c.lines[len(c.lines)-1]
}

func (c *recordingConsole) waitFor(t *testing.T, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, line := range c.Lines() {
			if line == want {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "console never displayed %q; got %q", want, c.Lines())
}

// recordingJournal collects journal entries
type recordingJournal struct {
	mu      sync.Mutex
	entries []string
	err     error
}

func (j *recordingJournal) Record(kind, detail string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, kind+" "+detail)
	return j.err
}

func (j *recordingJournal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// memConn is an in-memory server.Conn that records written lines
type memConn struct {
	mu     sync.Mutex
	out    bytes.Buffer
	closed bool
}

func (c *memConn) Read(p []byte) (int, error) { return 0, net.ErrClosed }

func (c *memConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.out.Write(p)
}

func (c *memConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *memConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 50000}
}

func (c *memConn) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	text := strings.TrimSuffix(c.out.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func (c *memConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeEndpoint mimics server.Server, including its lifecycle notifications
type fakeEndpoint struct {
	mu        sync.Mutex
	handler   *App
	port      int
	listening bool
	closed    bool
	listenErr error
	sessions  []*server.Session
	nextID    uint64
}

func newFakeEndpoint(port int) *fakeEndpoint {
	return &fakeEndpoint{port: port}
}

func (e *fakeEndpoint) connect() (*server.Session, *memConn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	conn := &memConn{}
	sess := server.NewSession(e.nextID, server.TransportTCP, conn)
	e.sessions = append(e.sessions, sess)
	return sess, conn
}

func (e *fakeEndpoint) Listen() error {
	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return server.ErrServerClosed
	case e.listening:
		e.mu.Unlock()
		return server.ErrAlreadyListening
	case e.listenErr != nil:
		e.mu.Unlock()
		return e.listenErr
	}
	e.listening = true
	port := e.port
	e.mu.Unlock()

	e.handler.OnServerStarted(&net.TCPAddr{IP: net.IPv4zero, Port: port})
	return nil
}

func (e *fakeEndpoint) StopListening() error {
	e.mu.Lock()
	if !e.listening {
		e.mu.Unlock()
		return server.ErrNotListening
	}
	e.listening = false
	e.mu.Unlock()

	e.handler.OnServerStopped()
	return nil
}

func (e *fakeEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.listening = false
	sessions := e.sessions
	e.sessions = nil
	e.mu.Unlock()

	for _, sess := range sessions {
		_ = sess.Close()
	}
	e.handler.OnServerClosed()
	return nil
}

func (e *fakeEndpoint) SendToAll(line string, include func(*server.Session) bool) int {
	sent := 0
	for _, sess := range e.Sessions() {
		if include != nil && !include(sess) {
			continue
		}
		if err := sess.Send(line); err == nil {
			sent++
		}
	}
	return sent
}

func (e *fakeEndpoint) Port() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.port
}

func (e *fakeEndpoint) SetPort(port int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listening {
		return errors.New("listening")
	}
	e.port = port
	return nil
}

func (e *fakeEndpoint) Sessions() []*server.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*server.Session(nil), e.sessions...)
}

func (e *fakeEndpoint) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// newTestApp wires an App to a fake endpoint and a recording console
func newTestApp(t *testing.T, opts ...Option) (*App, *fakeEndpoint, *recordingConsole) {
	t.Helper()
	endpoint := newFakeEndpoint(5555)
	console := &recordingConsole{}
	app := NewApp(endpoint, console, opts...)
	endpoint.handler = app
	return app, endpoint, console
}

// loggedInSession connects a session and logs it in as identity
func loggedInSession(t *testing.T, app *App, endpoint *fakeEndpoint, identity string) (*server.Session, *memConn) {
	t.Helper()
	sess, conn := endpoint.connect()
	app.OnConnect(sess)
	app.OnMessage(sess, LoginCommand+" "+identity)
	got, ok := sess.Identity()
	require.True(t, ok)
	require.Equal(t, identity, got)
	return sess, conn
}
