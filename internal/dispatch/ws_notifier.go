package dispatch

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ride-hail-core/internal/models"
)

// WSSession is one connected user device.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(n models.PenaltyNotice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(n)
}

// WSRegistry holds per-user notice sessions.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

// Add registers the user's current session, replacing any previous one.
func (r *WSRegistry) Add(userID string, conn *websocket.Conn) *WSSession {
	s := &WSSession{conn: conn}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID] = s
	return s
}

// Remove drops the session only while it is still the registered one. On a
// reconnect the replaced session's reader exits late; it must not evict the
// session that replaced it.
func (r *WSRegistry) Remove(userID string, s *WSSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[userID] == s {
		delete(r.sessions, userID)
	}
}

func (r *WSRegistry) PenaltyApplied(userID string, n models.PenaltyNotice) error {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.Send(n); err != nil {
		log.Printf("ws send error: %v", err)
		return err
	}
	return nil
}

var ErrNoSession = &NoSessionError{}

type NoSessionError struct{}

func (n *NoSessionError) Error() string { return "no ws session" }

// Fanout tries the live WS session first and falls back to the HTTP
// notifier when the user has no connected device.
type Fanout struct {
	WS       *WSRegistry
	Fallback Notifier
}

func (f *Fanout) PenaltyApplied(userID string, n models.PenaltyNotice) error {
	if f.WS != nil {
		if err := f.WS.PenaltyApplied(userID, n); err == nil {
			return nil
		}
	}
	if f.Fallback != nil {
		return f.Fallback.PenaltyApplied(userID, n)
	}
	return ErrNoSession
}
