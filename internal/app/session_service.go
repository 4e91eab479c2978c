package app

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SessionStore keeps session state between requests.
type SessionStore interface {
	// Get returns nil, nil when the session does not exist or has expired.
	Get(ctx context.Context, id string) (*SessionState, error)
	Save(ctx context.Context, state SessionState) error
	Delete(ctx context.Context, id string) error
}

type SessionService struct {
	store    SessionStore
	defaults SessionDefaults
	models   []string
	maxTopK  int
	locks    *SessionLocks
}

func NewSessionService(store SessionStore, defaults SessionDefaults, models []string, maxTopK int) *SessionService {
	if maxTopK <= 0 {
		maxTopK = 5
	}
	if defaults.TopK <= 0 || defaults.TopK > maxTopK {
		defaults.TopK = 3
	}
	return &SessionService{
		store:    store,
		defaults: defaults,
		models:   models,
		maxTopK:  maxTopK,
		locks:    NewSessionLocks(),
	}
}

func (s *SessionService) Create(ctx context.Context) (SessionState, error) {
	state := NewSessionState(s.defaults)
	if err := s.store.Save(ctx, state); err != nil {
		return SessionState{}, fmt.Errorf("save new session: %w", err)
	}
	return state, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (SessionState, error) {
	if strings.TrimSpace(id) == "" {
		return SessionState{}, ErrSessionNotFound
	}
	state, err := s.store.Get(ctx, id)
	if err != nil {
		return SessionState{}, fmt.Errorf("load session: %w", err)
	}
	if state == nil {
		return SessionState{}, ErrSessionNotFound
	}
	return *state, nil
}

func (s *SessionService) Save(ctx context.Context, state SessionState) error {
	if err := s.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionService) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Lock serialises requests on one session.
func (s *SessionService) Lock(id string) func() {
	return s.locks.Lock(id)
}

func (s *SessionService) Models() []string {
	return append([]string(nil), s.models...)
}

func (s *SessionService) MaxTopK() int { return s.maxTopK }

// UpdateSettings changes the model and top-k of state. Empty model and zero
// topK leave the current value.
func (s *SessionService) UpdateSettings(state SessionState, model string, topK int) (SessionState, error) {
	next := state.Clone()
	if model = strings.TrimSpace(model); model != "" {
		if !s.knownModel(model) {
			return state, fmt.Errorf("%w: %s", ErrUnknownModel, model)
		}
		next.Model = model
	}
	if topK != 0 {
		if topK < 1 || topK > s.maxTopK {
			return state, fmt.Errorf("%w: top_k must be between 1 and %d", ErrInvalidInput, s.maxTopK)
		}
		next.TopK = topK
	}
	next.UpdatedAt = time.Now()
	return next, nil
}

func (s *SessionService) knownModel(name string) bool {
	for _, m := range s.models {
		if m == name {
			return true
		}
	}
	return false
}
