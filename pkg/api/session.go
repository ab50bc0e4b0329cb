package api

import (
	"context"
	"sync"
)

// Identity is the authenticated principal of a session.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// Snapshot denormalizes the identity for embedding in a conversation.
func (i Identity) Snapshot() ParticipantSnapshot {
	return ParticipantSnapshot{
		Id:          i.UID,
		Email:       i.Email,
		DisplayName: i.DisplayName,
		PhotoURL:    i.PhotoURL,
	}
}

// Session holds the sign-in state of one client. It moves between
// unauthenticated and authenticated only through OnAuthStateChanged.
type Session struct {
	mu       sync.RWMutex
	identity *Identity
	watchers map[int]func(*Identity)
	next     int
}

func NewSession() *Session {
	return &Session{watchers: make(map[int]func(*Identity))}
}

// AuthenticatedSession returns a session already signed in as identity.
func AuthenticatedSession(identity Identity) *Session {
	s := NewSession()
	s.OnAuthStateChanged(&identity)
	return s
}

// OnAuthStateChanged is the auth change-notification callback. A nil identity
// signs the session out.
func (s *Session) OnAuthStateChanged(identity *Identity) {
	s.mu.Lock()
	if identity != nil {
		copied := *identity
		s.identity = &copied
	} else {
		s.identity = nil
	}
	watchers := make([]func(*Identity), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	current := s.identity
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(current)
	}
}

func (s *Session) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// Require returns the current identity or ErrNotAuthenticated.
func (s *Session) Require() (Identity, error) {
	if s == nil {
		return Identity{}, ErrNotAuthenticated
	}
	identity, ok := s.Identity()
	if !ok {
		return Identity{}, ErrNotAuthenticated
	}
	return identity, nil
}

// Watch registers fn for every later state change and returns its
// unsubscribe handle.
func (s *Session) Watch(fn func(*Identity)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

type sessionKey struct{}

func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the request session, or an unauthenticated one.
func SessionFromContext(ctx context.Context) *Session {
	if session, ok := ctx.Value(sessionKey{}).(*Session); ok {
		return session
	}
	return NewSession()
}
