// Package server is the connection framework underneath the chat core: it
// owns the listeners, one goroutine per session, line reading and writing,
// and the per-session record. Application logic plugs in through Handler.
package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aeolun/echochat/pkg/metrics"
)

var (
	errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
)

var (
	// ErrAlreadyListening is returned by Listen while the endpoint is accepting connections
	ErrAlreadyListening = errors.New("server is already listening")
	// ErrNotListening is returned by StopListening when nothing is listening
	ErrNotListening = errors.New("server is not listening")
	// ErrServerClosed is returned once Close has been called
	ErrServerClosed = errors.New("server is closed")
)

const (
	defaultPort         = 5555
	defaultMaxLineBytes = 1024 * 1024
	sessionDrainTimeout = 5 * time.Second
)

// SetErrorOutput redirects error logging to w
func SetErrorOutput(w io.Writer) {
	errorLog = log.New(w, "ERROR: ", log.LstdFlags)
}

// EnableDebugLogging sends debug output to w
func EnableDebugLogging(w io.Writer) {
	debugLog = log.New(w, "DEBUG: ", log.LstdFlags)
	debugLog.Println("Debug logging enabled")
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int    // TCP port for line clients (0 picks a free port)
	SSHPort        int    // SSH transport port (0 = disabled)
	SSHHostKeyPath string // Host key, generated on first use
	WebSocketPort  int    // WebSocket transport port (0 = disabled)
	MaxLineBytes   int    // Longest accepted inbound line
}

// DefaultConfig returns default server configuration
func DefaultConfig() ServerConfig {
	return ServerConfig{
		Port:           defaultPort,
		SSHHostKeyPath: "~/.echochat/ssh_host_key",
		MaxLineBytes:   defaultMaxLineBytes,
	}
}

// Server accepts connections on one or more transports and dispatches their
// lines to a Handler.
type Server struct {
	sessions *SessionManager
	metrics  *metrics.Metrics
	handler  Handler

	mu        sync.Mutex // Protects config, listeners, stop, listening and closed
	config    ServerConfig
	listeners []Listener
	stop      chan struct{}
	listening bool
	closed    bool

	acceptWG  sync.WaitGroup
	sessionWG sync.WaitGroup
}

// NewServer creates a server that is neither listening nor closed
func NewServer(config ServerConfig, m *metrics.Metrics) *Server {
	if config.MaxLineBytes <= 0 {
		config.MaxLineBytes = defaultMaxLineBytes
	}

	sessions := NewSessionManager()
	sessions.SetMetrics(m)

	return &Server{
		sessions: sessions,
		metrics:  m,
		handler:  noopHandler{},
		config:   config,
	}
}

// Handle installs the event handler. It must be called before Listen.
func (s *Server) Handle(h Handler) {
	if h == nil {
		h = noopHandler{}
	}
	s.handler = h
}

// Listen opens every configured transport and starts accepting connections
func (s *Server) Listen() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	if s.listening {
		s.mu.Unlock()
		return ErrAlreadyListening
	}

	listeners, err := s.openListeners()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.listeners = listeners
	s.stop = make(chan struct{})
	s.listening = true
	stop := s.stop
	for _, l := range listeners {
		s.acceptWG.Add(1)
		go s.acceptLoop(l, stop)
	}
	addr := listeners[0].Addr()
	s.mu.Unlock()

	if lh, ok := s.handler.(LifecycleHandler); ok {
		lh.OnServerStarted(addr)
	}
	return nil
}

// openListeners opens the TCP listener and any enabled optional transports.
// On failure every listener opened so far is closed again.
func (s *Server) openListeners() ([]Listener, error) {
	tcp, err := listenTCP(s.config.Port)
	if err != nil {
		return nil, err
	}
	listeners := []Listener{tcp}

	closeAll := func() {
		for _, l := range listeners {
			l.Close()
		}
	}

	if s.config.SSHPort > 0 {
		l, err := listenSSH(s.config.SSHPort, s.config.SSHHostKeyPath)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to start SSH transport: %w", err)
		}
		listeners = append(listeners, l)
	}

	if s.config.WebSocketPort > 0 {
		l, err := listenWebSocket(s.config.WebSocketPort)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to start WebSocket transport: %w", err)
		}
		listeners = append(listeners, l)
	}

	return listeners, nil
}

// StopListening stops accepting new connections. Connected sessions stay open.
func (s *Server) StopListening() error {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return ErrNotListening
	}
	err := s.closeListenersLocked()
	s.mu.Unlock()

	s.acceptWG.Wait()

	if lh, ok := s.handler.(LifecycleHandler); ok {
		lh.OnServerStopped()
	}
	return err
}

func (s *Server) closeListenersLocked() error {
	close(s.stop)

	var errs []error
	for _, l := range s.listeners {
		if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close %s listener: %w", l.Transport(), err))
		}
	}
	s.listeners = nil
	s.listening = false
	return errors.Join(errs...)
}

// Close stops listening and disconnects every session. The server cannot
// listen again afterwards.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	var err error
	if s.listening {
		err = s.closeListenersLocked()
	}
	s.closed = true
	s.mu.Unlock()

	s.acceptWG.Wait()

	count := s.sessions.CloseAll()
	if !s.waitForSessions(sessionDrainTimeout) {
		errorLog.Printf("Timed out waiting for %d sessions to finish", s.sessions.Count())
	}
	log.Printf("Closed %d client connections", count)

	if lh, ok := s.handler.(LifecycleHandler); ok {
		lh.OnServerClosed()
	}
	return err
}

func (s *Server) waitForSessions(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.sessionWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// acceptLoop accepts incoming connections until stop is closed
func (s *Server) acceptLoop(l Listener, stop <-chan struct{}) {
	defer s.acceptWG.Done()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Accept error (%s): %v", l.Transport(), err)
			continue
		}

		s.sessionWG.Add(1)
		go s.handleConnection(l.Transport(), conn)
	}
}

// handleConnection registers the session and runs its message loop
func (s *Server) handleConnection(transport string, conn Conn) {
	defer s.sessionWG.Done()

	sess := s.sessions.CreateSession(transport, conn)
	debugLog.Printf("New %s connection from %s (session %d)", transport, sess.RemoteAddr, sess.ID)

	// Close may have already swept the session table
	if s.IsClosed() {
		debugLog.Printf("Session %d: server closed during accept", sess.ID)
		s.sessions.RemoveSession(sess.ID)
		return
	}

	s.handler.OnConnect(sess)
	s.messageLoop(sess)
}

// messageLoop reads lines for an established session until it ends
func (s *Server) messageLoop(sess *Session) {
	scanner := sess.Conn.NewLineScanner(s.config.MaxLineBytes)
	for scanner.Scan() {
		// Lines buffered behind a rejection must not be dispatched
		if sess.IsClosed() {
			break
		}
		line := strings.TrimSuffix(scanner.Text(), "\r")
		debugLog.Printf("Session %d ← RECV: %q", sess.ID, line)
		s.metrics.RecordMessageReceived(sess.Transport)

		s.handler.OnMessage(sess, line)
	}

	err := scanner.Err()
	closedByServer := sess.IsClosed()

	// Remove before notifying so no broadcast reaches a finished session
	s.sessions.RemoveSession(sess.ID)

	if closedByServer || isExpectedCloseError(err) {
		debugLog.Printf("Session %d: disconnected", sess.ID)
		s.handler.OnDisconnect(sess)
		return
	}

	debugLog.Printf("Session %d: read error: %v", sess.ID, err)
	s.handler.OnError(sess, err)
}

// SendToAll writes line to every session accepted by include (all sessions
// when include is nil) and returns how many writes succeeded. Sessions that
// fail the write are closed.
func (s *Server) SendToAll(line string, include func(*Session) bool) int {
	all := s.sessions.GetAllSessions()
	targets := make([]*Session, 0, len(all))
	for _, sess := range all {
		if include == nil || include(sess) {
			targets = append(targets, sess)
		}
	}

	deadSessions := s.broadcastToSessionsParallel(targets, line)
	for _, sessID := range deadSessions {
		s.sessions.RemoveSession(sessID)
	}

	delivered := len(targets) - len(deadSessions)
	for i := 0; i < delivered; i++ {
		s.metrics.RecordMessageSent("broadcast")
	}
	return delivered
}

// broadcastToSessionsParallel writes line to sessions using a worker pool.
// Returns list of session IDs that had write errors.
func (s *Server) broadcastToSessionsParallel(sessions []*Session, line string) []uint64 {
	const maxWorkers = 40
	const sessionsPerWorker = 50

	if len(sessions) == 0 {
		return nil
	}

	numWorkers := (len(sessions) + sessionsPerWorker - 1) / sessionsPerWorker
	if numWorkers > maxWorkers {
		numWorkers = maxWorkers
	}
	chunkSize := (len(sessions) + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	var deadSessionsMu sync.Mutex
	deadSessions := make([]uint64, 0)

	for start := 0; start < len(sessions); start += chunkSize {
		end := start + chunkSize
		if end > len(sessions) {
			end = len(sessions)
		}

		wg.Add(1)
		go func(sessionChunk []*Session) {
			defer wg.Done()
			for _, sess := range sessionChunk {
				if err := sess.Send(line); err != nil {
					debugLog.Printf("Session %d: broadcast write failed: %v", sess.ID, err)
					deadSessionsMu.Lock()
					deadSessions = append(deadSessions, sess.ID)
					deadSessionsMu.Unlock()
				}
			}
		}(sessions[start:end])
	}

	wg.Wait()
	return deadSessions
}

// Port returns the configured TCP port
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Port
}

// SetPort changes the TCP port used by the next Listen
func (s *Server) SetPort(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listening {
		return fmt.Errorf("cannot change port: %w", ErrAlreadyListening)
	}
	s.config.Port = port
	return nil
}

// Addr returns the bound TCP address, or nil when not listening
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.listening || len(s.listeners) == 0 {
		return nil
	}
	return s.listeners[0].Addr()
}

// IsListening reports whether the server accepts new connections
func (s *Server) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// IsClosed reports whether Close has been called
func (s *Server) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Sessions returns a snapshot of the connected sessions
func (s *Server) Sessions() []*Session {
	return s.sessions.GetAllSessions()
}

// SessionCount returns the number of connected sessions
func (s *Server) SessionCount() int {
	return s.sessions.Count()
}
