package server

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/aeolun/echochat/pkg/metrics"
)

// ErrIdentityAlreadySet is returned when a session tries to declare a second identity.
var ErrIdentityAlreadySet = errors.New("identity already set")

// Session represents an active client connection
type Session struct {
	ID          uint64
	Conn        *SafeConn // Connection with automatic write synchronization
	RemoteAddr  string    // Remote address as reported by the transport
	Transport   string    // tcp, ssh or ws
	displayName string    // Originating host, captured at accept time
	identity    *string   // Declared identity (nil until login)
	closed      atomic.Bool
	mu          sync.RWMutex // Protects identity
}

// NewSession wraps conn in a session record. The display name is the peer's host.
func NewSession(id uint64, transport string, conn Conn) *Session {
	return &Session{
		ID:          id,
		Conn:        NewSafeConn(conn),
		RemoteAddr:  addrString(conn),
		Transport:   transport,
		displayName: hostOf(conn.RemoteAddr()),
	}
}

func addrString(conn Conn) string {
	if conn.RemoteAddr() == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}

// DisplayName returns the host the session connected from.
func (s *Session) DisplayName() string {
	return s.displayName
}

// Identity returns the declared identity and whether one has been set.
func (s *Session) Identity() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.identity == nil {
		return "", false
	}
	return *s.identity, true
}

// SetIdentity records the session's identity. It can only be set once.
func (s *Session) SetIdentity(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity != nil {
		return ErrIdentityAlreadySet
	}
	s.identity = &identity
	return nil
}

// Send writes one line to this session.
func (s *Session) Send(line string) error {
	return s.Conn.WriteLine(line)
}

// Close closes the session's connection. The message loop observes the
// closed connection and removes the session.
func (s *Session) Close() error {
	s.closed.Store(true)
	return s.Conn.Close()
}

// IsClosed reports whether Close has been called on the session.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// SessionManager manages all active sessions
type SessionManager struct {
	sessions map[uint64]*Session
	nextID   uint64
	mu       sync.RWMutex
	metrics  *metrics.Metrics
}

// NewSessionManager creates a new session manager
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[uint64]*Session),
		nextID:   1,
	}
}

// SetMetrics attaches metrics to the session manager
func (sm *SessionManager) SetMetrics(m *metrics.Metrics) {
	sm.metrics = m
}

// CreateSession registers a new session for conn
func (sm *SessionManager) CreateSession(transport string, conn Conn) *Session {
	// Allocate session ID atomically (no lock needed)
	sessionID := atomic.AddUint64(&sm.nextID, 1) - 1

	sess := NewSession(sessionID, transport, conn)

	sm.mu.Lock()
	sm.sessions[sessionID] = sess
	sessionCount := len(sm.sessions)
	sm.mu.Unlock()

	sm.metrics.RecordActiveSessions(sessionCount)
	sm.metrics.RecordSessionCreated()

	return sess
}

// GetAllSessions returns all active sessions
func (sm *SessionManager) GetAllSessions() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*Session, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// RemoveSession removes a session and closes the connection. It reports
// whether the session was still registered.
func (sm *SessionManager) RemoveSession(sessionID uint64) bool {
	sm.mu.Lock()
	sess, ok := sm.sessions[sessionID]
	if !ok {
		sm.mu.Unlock()
		return false
	}
	delete(sm.sessions, sessionID)
	sessionCount := len(sm.sessions)
	sm.mu.Unlock()

	sm.metrics.RecordActiveSessions(sessionCount)
	sm.metrics.RecordSessionDisconnected()

	sess.Close()
	return true
}

// Count returns the number of connected sessions
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return len(sm.sessions)
}

// CloseAll closes every session connection. Sessions are removed by their
// message loops once the read side fails.
func (sm *SessionManager) CloseAll() int {
	sessions := sm.GetAllSessions()
	for _, sess := range sessions {
		if err := sess.Close(); err != nil {
			debugLog.Printf("Session %d: close failed: %v", sess.ID, err)
		}
	}
	return len(sessions)
}
