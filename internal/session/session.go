// Package session owns the process-wide trading session state: which broker
// is active, its auth session, and whether the gateway is in analyze
// (paper-trading) mode.
//
// Locking discipline: the RWMutex guards only in-memory reads and swaps.
// Login network calls happen before Activate is called; the lock is never
// held across network I/O.
package session

import (
	"sync"

	"tradegate/internal/broker"
)

// Mode is the routing mode of the gateway.
type Mode string

const (
	ModeLive    Mode = "live"
	ModeAnalyze Mode = "analyze"
)

// Session is the lock-guarded singleton passed by reference into every
// operation. Zero value: no broker, live mode.
type Session struct {
	mu       sync.RWMutex
	brokerID string
	auth     *broker.AuthSession
	analyze  bool
}

// New returns an empty session.
func New() *Session { return &Session{} }

// Activate swaps in a freshly authenticated broker session. Called after
// the login round-trip has completed.
func (s *Session) Activate(brokerID string, auth *broker.AuthSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brokerID = brokerID
	s.auth = auth
}

// Clear drops the active session (logout).
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brokerID = ""
	s.auth = nil
}

// Broker returns the active broker id, or "" when logged out.
func (s *Session) Broker() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.brokerID
}

// Auth returns the active auth session, or nil when logged out.
func (s *Session) Auth() *broker.AuthSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auth
}

// Authenticated reports whether a broker session is active.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auth != nil && s.brokerID != ""
}

// SetAnalyze toggles analyze mode. The flag is re-read on every routing
// operation, so a flip takes effect on the next call.
func (s *Session) SetAnalyze(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyze = on
}

// Mode returns the current routing mode.
func (s *Session) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.analyze {
		return ModeAnalyze
	}
	return ModeLive
}
