package app

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrQueryEmpty      = errors.New("query is empty")
	ErrUnknownModel    = errors.New("unknown model")
	ErrSessionNotFound = errors.New("session not found")
	ErrDuplicateSource = errors.New("file already ingested in this session")
)

// Turn is one message of a conversation. Content is what the model sees;
// for user turns it may carry appended retrieval context. Display is what
// the user typed or read.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Display string `json:"display"`
}

// SourceRecord is a file ingested during a session.
type SourceRecord struct {
	Name       string    `json:"name"`
	Digest     string    `json:"digest"`
	Chunks     int       `json:"chunks"`
	JobID      string    `json:"job_id,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// SessionState is everything one conversation carries between requests.
// Handlers take a state and return the next one; nothing is shared.
type SessionState struct {
	ID        string         `json:"id"`
	Model     string         `json:"model"`
	TopK      int            `json:"top_k"`
	Sources   []SourceRecord `json:"sources"`
	History   []Turn         `json:"history"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type SessionDefaults struct {
	Model string
	TopK  int
}

func NewSessionState(d SessionDefaults) SessionState {
	now := time.Now()
	return SessionState{
		ID:        uuid.NewString(),
		Model:     d.Model,
		TopK:      d.TopK,
		Sources:   []SourceRecord{},
		History:   []Turn{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy whose slices can be appended to without touching s.
func (s SessionState) Clone() SessionState {
	out := s
	out.Sources = append([]SourceRecord(nil), s.Sources...)
	out.History = append([]Turn(nil), s.History...)
	return out
}

func (s SessionState) HasDigest(digest string) bool {
	for _, src := range s.Sources {
		if src.Digest == digest {
			return true
		}
	}
	return false
}

// LastTurns returns at most n trailing turns.
func (s SessionState) LastTurns(n int) []Turn {
	if n <= 0 {
		return nil
	}
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// Transcript renders the history as the user saw it.
func (s SessionState) Transcript() []Turn {
	out := make([]Turn, len(s.History))
	for i, t := range s.History {
		out[i] = Turn{Role: t.Role, Content: t.Display, Display: t.Display}
	}
	return out
}

// SessionLocks hands out one mutex per session id so a session handles one
// request at a time.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewSessionLocks() *SessionLocks {
	return &SessionLocks{locks: map[string]*sessionLock{}}
}

// Lock blocks until id is free and returns the matching unlock func.
func (l *SessionLocks) Lock(id string) func() {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func normalizeQuery(q string) string {
	return strings.TrimSpace(q)
}
