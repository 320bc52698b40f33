package loginsession

import (
	"fmt"
	"sync"
)

// InMemoryLoginSessionRepo is an in-memory implementation of Repo
type InMemoryLoginSessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]map[string]Session // tenantID -> refresh token -> session
}

func NewInMemoryLoginSessionRepo() *InMemoryLoginSessionRepo {
	return &InMemoryLoginSessionRepo{
		sessions: make(map[string]map[string]Session),
	}
}

func (r *InMemoryLoginSessionRepo) Upsert(tenantID, refreshToken string, session Session) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	if refreshToken == "" {
		return fmt.Errorf("refreshToken is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[tenantID]; !ok {
		r.sessions[tenantID] = make(map[string]Session)
	}
	session.RefreshToken = refreshToken
	r.sessions[tenantID][refreshToken] = session
	return nil
}

func (r *InMemoryLoginSessionRepo) Get(tenantID, refreshToken string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[tenantID][refreshToken]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (r *InMemoryLoginSessionRepo) Delete(tenantID, refreshToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tenantSessions, ok := r.sessions[tenantID]
	if !ok {
		return nil
	}
	delete(tenantSessions, refreshToken)

	if len(tenantSessions) == 0 {
		delete(r.sessions, tenantID)
	}
	return nil
}

// DeleteAll drops every session and reports how many there were
func (r *InMemoryLoginSessionRepo) DeleteAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, tenantSessions := range r.sessions {
		n += len(tenantSessions)
	}
	r.sessions = make(map[string]map[string]Session)
	return n
}
