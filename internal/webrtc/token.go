// Package webrtc implements token issuance and the SDP/ICE broker to
// go2rtc, the local media server.
package webrtc

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/smartly/bridge/internal/metrics"
)

const (
	tokenTTL          = 300 * time.Second
	sessionIdleTimeout = 600 * time.Second
	sweepInterval      = 60 * time.Second
	tokenBytes         = 32 // 256 bits
)

// Token is a single-use credential scoped to one entity and client.
type Token struct {
	Value     string
	EntityID  string
	ClientID  string
	CreatedAt time.Time
	ExpiresAt time.Time
	Consumed  bool
}

// Session tracks one active WebRTC peer connection.
type Session struct {
	SessionID    string
	EntityID     string
	LastActivity time.Time
}

// Tables holds the token and session maps. Process-local —
// never made process-static.
type Tables struct {
	mu       sync.Mutex
	tokens   map[string]*Token
	sessions map[string]*Session

	Metrics *metrics.Collector
}

func NewTables() *Tables {
	return &Tables{tokens: map[string]*Token{}, sessions: map[string]*Session{}}
}

func newOpaqueID() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// IssueToken allocates a fresh token for (entityID, clientID).
func (t *Tables) IssueToken(entityID, clientID string) (Token, error) {
	val, err := newOpaqueID()
	if err != nil {
		return Token{}, err
	}
	now := time.Now()
	tok := &Token{
		Value: val, EntityID: entityID, ClientID: clientID,
		CreatedAt: now, ExpiresAt: now.Add(tokenTTL),
	}
	t.mu.Lock()
	t.tokens[val] = tok
	t.mu.Unlock()
	return *tok, nil
}

// ConsumeToken validates token against entityID and clientID, marks it
// consumed, and returns it. A token is usable at most once.
func (t *Tables) ConsumeToken(value, entityID, clientID string) (Token, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tok, ok := t.tokens[value]
	if !ok {
		return Token{}, false
	}
	if tok.Consumed || time.Now().After(tok.ExpiresAt) {
		return Token{}, false
	}
	if tok.EntityID != entityID || tok.ClientID != clientID {
		return Token{}, false
	}
	tok.Consumed = true
	return *tok, true
}

// CreateSession stores a new session tied to entityID.
func (t *Tables) CreateSession(entityID string) (Session, error) {
	id, err := newOpaqueID()
	if err != nil {
		return Session{}, err
	}
	s := &Session{SessionID: id, EntityID: entityID, LastActivity: time.Now()}
	t.mu.Lock()
	t.sessions[id] = s
	count := len(t.sessions)
	t.mu.Unlock()
	if t.Metrics != nil {
		t.Metrics.WebRTCActiveSessions.Set(float64(count))
	}
	return *s, nil
}

// TouchSession refreshes last_activity and returns the session.
func (t *Tables) TouchSession(sessionID string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	s.LastActivity = time.Now()
	return *s, true
}

func (t *Tables) GetSession(sessionID string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (t *Tables) RemoveSession(sessionID string) bool {
	t.mu.Lock()
	if _, ok := t.sessions[sessionID]; !ok {
		t.mu.Unlock()
		return false
	}
	delete(t.sessions, sessionID)
	count := len(t.sessions)
	t.mu.Unlock()
	if t.Metrics != nil {
		t.Metrics.WebRTCActiveSessions.Set(float64(count))
	}
	return true
}

// Sweep drops tokens past expiry and sessions idle > 600s.
func (t *Tables) Sweep(now time.Time) (droppedTokens, droppedSessions int) {
	t.mu.Lock()
	for k, tok := range t.tokens {
		if now.After(tok.ExpiresAt) {
			delete(t.tokens, k)
			droppedTokens++
		}
	}
	for k, s := range t.sessions {
		if now.Sub(s.LastActivity) > sessionIdleTimeout {
			delete(t.sessions, k)
			droppedSessions++
		}
	}
	count := len(t.sessions)
	t.mu.Unlock()
	if t.Metrics != nil && droppedSessions > 0 {
		t.Metrics.WebRTCActiveSessions.Set(float64(count))
	}
	return
}

// StartSweeper runs Sweep every 60s until stopped.
func (t *Tables) StartSweeper() (stop func()) {
	ticker := time.NewTicker(sweepInterval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				t.Sweep(time.Now())
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
