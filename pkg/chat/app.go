// Package chat implements the chat application on top of the connection
// framework in pkg/server: the login gate, message routing, the operator
// command interpreter and the server lifecycle state machine.
package chat

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/aeolun/echochat/pkg/metrics"
	"github.com/aeolun/echochat/pkg/server"
)

var (
	errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
)

var (
	// ErrQuit is returned by the interpreter when the operator asked the
	// process to exit
	ErrQuit = errors.New("quit requested")
	// ErrPortChangeNotAllowed is returned by SetPort unless the server is closed
	ErrPortChangeNotAllowed = errors.New("port can only be changed while the server is closed")
	// ErrInvalidPort is returned for ports outside 1..65535
	ErrInvalidPort = errors.New("port must be a number between 1 and 65535")
)

// SetErrorOutput redirects error logging to w
func SetErrorOutput(w io.Writer) {
	errorLog = log.New(w, "ERROR: ", log.LstdFlags)
}

// EnableDebugLogging sends debug output to w
func EnableDebugLogging(w io.Writer) {
	debugLog = log.New(w, "DEBUG: ", log.LstdFlags)
}

// Endpoint is the part of the connection framework the application drives
type Endpoint interface {
	Listen() error
	StopListening() error
	Close() error
	SendToAll(line string, include func(*server.Session) bool) int
	Port() int
	SetPort(port int) error
	Sessions() []*server.Session
	SessionCount() int
}

// Console is where operator-facing notices are displayed
type Console interface {
	Display(msg string)
}

// Journal records lifecycle transitions and operator commands
type Journal interface {
	Record(kind, detail string) error
}

// Option configures an App
type Option func(*App)

// WithMetrics records application events in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) {
		a.metrics = m
	}
}

// WithJournal writes lifecycle transitions and operator commands to j
func WithJournal(j Journal) Option {
	return func(a *App) {
		a.journal = j
	}
}

// App is the chat application. It implements server.Handler and
// server.LifecycleHandler.
type App struct {
	endpoint  Endpoint
	console   Console
	lifecycle *Lifecycle
	metrics   *metrics.Metrics
	journal   Journal
	startTime time.Time

	participants atomic.Int64
}

// NewApp creates the application. The caller registers it with the endpoint
// via Handle.
func NewApp(endpoint Endpoint, console Console, opts ...Option) *App {
	a := &App{
		endpoint:  endpoint,
		console:   console,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.lifecycle = NewLifecycle(a.onTransition)
	a.metrics.RecordLifecycle(StateStopped.String(), stateNames())
	return a
}

func stateNames() []string {
	names := make([]string, len(States))
	for i, s := range States {
		names[i] = s.String()
	}
	return names
}

// Lifecycle returns the application's lifecycle state machine
func (a *App) Lifecycle() *Lifecycle {
	return a.lifecycle
}

// Participants returns the identities of logged-in sessions, sorted
func (a *App) Participants() []string {
	var names []string
	for _, sess := range a.endpoint.Sessions() {
		if identity, ok := sess.Identity(); ok && !sess.IsClosed() {
			names = append(names, identity)
		}
	}
	sort.Strings(names)
	return names
}

// Status is a point-in-time summary of the server
type Status struct {
	State        string `json:"state"`
	Port         int    `json:"port"`
	Sessions     int    `json:"sessions"`
	Participants int64  `json:"participants"`
	Uptime       string `json:"uptime"`
}

// Status returns the current server status
func (a *App) Status() Status {
	return Status{
		State:        a.lifecycle.State().String(),
		Port:         a.endpoint.Port(),
		Sessions:     a.endpoint.SessionCount(),
		Participants: a.participants.Load(),
		Uptime:       time.Since(a.startTime).Round(time.Second).String(),
	}
}

// Start begins listening. It fails when already listening or closed, and a
// bind failure leaves the state unchanged.
func (a *App) Start() error {
	if !a.lifecycle.CanTransition(StateListening) {
		if a.lifecycle.State() == StateClosed {
			return server.ErrServerClosed
		}
		return server.ErrAlreadyListening
	}
	if err := a.endpoint.Listen(); err != nil {
		return fmt.Errorf("listen on port %d: %w", a.endpoint.Port(), err)
	}
	return nil
}

// Stop stops accepting new connections; connected sessions remain
func (a *App) Stop() error {
	if !a.lifecycle.CanTransition(StateStopped) {
		return server.ErrNotListening
	}
	return a.endpoint.StopListening()
}

// Close stops listening and disconnects every session
func (a *App) Close() error {
	return a.endpoint.Close()
}

// SetPort changes the listening port. Only allowed while closed.
func (a *App) SetPort(port int) error {
	if a.lifecycle.State() != StateClosed {
		return ErrPortChangeNotAllowed
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	return a.endpoint.SetPort(port)
}

// OnConnect implements server.Handler
func (a *App) OnConnect(sess *server.Session) {
	log.Printf("Client %s has connected to the server", sess.DisplayName())
}

// OnMessage implements server.Handler. Lines from sessions without an
// identity go through the login gate, everything else is routed.
func (a *App) OnMessage(sess *server.Session, line string) {
	if sess.IsClosed() {
		return
	}
	debugLog.Printf("Message received: %s from %s", line, sess.DisplayName())

	identity, ok := sess.Identity()
	if !ok {
		a.login(sess, line)
		return
	}
	if IsLoginAttempt(line) {
		a.reject(sess, "already logged in", rejectDuplicate)
		return
	}
	a.route(identity, line)
}

// OnDisconnect implements server.Handler
func (a *App) OnDisconnect(sess *server.Session) {
	log.Printf("Client %s has disconnected from the server", a.nameOf(sess))
	a.leave(sess)
}

// OnError implements server.Handler
func (a *App) OnError(sess *server.Session, err error) {
	log.Printf("Client %s has disconnected from the server: %v", a.nameOf(sess), err)
	a.leave(sess)
}

func (a *App) nameOf(sess *server.Session) string {
	if identity, ok := sess.Identity(); ok {
		return identity
	}
	return sess.DisplayName()
}

func (a *App) leave(sess *server.Session) {
	if _, ok := sess.Identity(); !ok {
		return
	}
	count := a.participants.Add(-1)
	a.metrics.RecordParticipants(count)
}

// OnServerStarted implements server.LifecycleHandler
func (a *App) OnServerStarted(addr net.Addr) {
	a.transition(StateListening)
	port := a.endpoint.Port()
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = tcp.Port
	}
	a.console.Display(fmt.Sprintf("Server listening for connections on port %d", port))
}

// OnServerStopped implements server.LifecycleHandler
func (a *App) OnServerStopped() {
	a.transition(StateStopped)
	a.console.Display("Server has stopped listening for connections.")
}

// OnServerClosed implements server.LifecycleHandler
func (a *App) OnServerClosed() {
	a.transition(StateClosed)
	a.console.Display("Server closed")
}

func (a *App) transition(to State) {
	if err := a.lifecycle.Transition(to); err != nil {
		errorLog.Printf("Lifecycle: %v", err)
	}
}

func (a *App) onTransition(from, to State) {
	log.Printf("Server state changed: %s -> %s", from, to)
	a.metrics.RecordLifecycle(to.String(), stateNames())
	a.record("lifecycle", from.String()+" -> "+to.String())
}

func (a *App) record(kind, detail string) {
	if a.journal == nil {
		return
	}
	if err := a.journal.Record(kind, detail); err != nil {
		errorLog.Printf("Journal: failed to record %s %q: %v", kind, detail, err)
	}
}
