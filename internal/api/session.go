package api

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/optimnow-labs/finops-assistant/internal/domain"
)

var (
	// ErrSessionNotFound reports an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRunInProgress reports that the session already has an active run.
	// Runs within a session execute one at a time so history stays ordered.
	ErrRunInProgress = errors.New("a run is already in progress for this session")
)

// Session is one conversation. History is append-only; concurrent runs on
// the same session are rejected rather than interleaved.
type Session struct {
	ID        string
	CreatedAt string

	mu      sync.Mutex
	running bool
	history []domain.ChatMessage
}

// History returns a copy of the conversation so far.
func (s *Session) History() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

// Append adds messages to the conversation.
func (s *Session) Append(msgs ...domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
}

// beginRun marks the session busy. It fails if a run is already active.
func (s *Session) beginRun() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunInProgress
	}
	s.running = true
	return nil
}

func (s *Session) endRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// SessionStore holds sessions in memory. Conversations do not survive a
// process restart.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Create registers a new session with a generated ID.
func (st *SessionStore) Create() *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get looks up a session by ID.
func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}
