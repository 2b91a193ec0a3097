// Package session manages login sessions and API keys for the gateway's
// auth providers.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/blackroad-os/edge-router/pkg/models"
)

// MemoryStore is a thread-safe in-memory SessionStore. Sessions are
// deleted on explicit logout or lazily at first access after expiry
// (spec.md §3 — Session).
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	byRefresh map[string]string // refresh token hash -> session id
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*models.Session),
		byRefresh: make(map[string]string),
	}
}

// Create stores a new session.
func (s *MemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	s.sessions[session.ID] = session
	if session.RefreshTokenHash != "" {
		s.byRefresh[session.RefreshTokenHash] = session.ID
	}
	return nil
}

// Get retrieves a session by ID, applying lazy expiry: an expired session
// is deleted and reported as not found rather than returned stale.
func (s *MemoryStore) Get(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}

	if time.Now().UnixMilli() >= sess.ExpiresMs {
		s.mu.Lock()
		delete(s.sessions, id)
		delete(s.byRefresh, sess.RefreshTokenHash)
		s.mu.Unlock()
		return nil, fmt.Errorf("session %s not found", id)
	}
	return sess, nil
}

// Delete removes a session explicitly (logout).
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return fmt.Errorf("session %s not found", id)
	}
	delete(s.sessions, id)
	delete(s.byRefresh, sess.RefreshTokenHash)
	return nil
}

// DeleteByRefreshHash removes the session whose refresh token hashes to
// refreshHash, used by /v1/auth/refresh token rotation.
func (s *MemoryStore) DeleteByRefreshHash(_ context.Context, refreshHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRefresh[refreshHash]
	if !ok {
		return fmt.Errorf("no session for refresh token")
	}
	delete(s.sessions, id)
	delete(s.byRefresh, refreshHash)
	return nil
}

// FindByRefreshHash looks up a session by its refresh token hash without
// deleting it, used to validate a refresh request before rotation.
func (s *MemoryStore) FindByRefreshHash(_ context.Context, refreshHash string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRefresh[refreshHash]
	if !ok {
		return nil, fmt.Errorf("no session for refresh token")
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no session for refresh token")
	}
	if time.Now().UnixMilli() >= sess.ExpiresMs {
		return nil, fmt.Errorf("session expired")
	}
	return sess, nil
}

// HashRefreshToken returns the SHA-256 hex digest used to key a refresh
// token server-side (spec.md §4.1 — "long-lived opaque refresh token
// stored server-side keyed by its hash").
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// APIKeyStore looks up API keys by the SHA-256 of the presented key
// (spec.md §3 — "Lookup is by SHA-256 of the presented key").
type APIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*models.APIKey // keyed by key_hash
}

// NewAPIKeyStore constructs an empty APIKeyStore.
func NewAPIKeyStore() *APIKeyStore {
	return &APIKeyStore{keys: make(map[string]*models.APIKey)}
}

// HashKey returns the SHA-256 hex digest of a presented API key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Put registers an API key, keyed by its own KeyHash field.
func (s *APIKeyStore) Put(k *models.APIKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[k.KeyHash] = k
}

// Lookup returns the API key matching the SHA-256 of the presented key,
// or ok=false if absent or expired.
func (s *APIKeyStore) Lookup(presentedKey string) (*models.APIKey, bool) {
	hash := HashKey(presentedKey)

	s.mu.RLock()
	k, ok := s.keys[hash]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if k.ExpiresMs != 0 && time.Now().UnixMilli() >= k.ExpiresMs {
		return nil, false
	}
	return k, true
}

// ── User store ──────────────────────────────────────────────────

// UserStore holds accounts capable of authenticating against
// /v1/auth/login and /v1/auth/register, keyed by email.
type UserStore struct {
	mu    sync.RWMutex
	byID  map[string]*models.User
	email map[string]string // email -> user id
}

// NewUserStore constructs an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{byID: make(map[string]*models.User), email: make(map[string]string)}
}

// Create registers a new user. Returns an error if the email is already
// taken (spec.md §6 — 409 email_exists).
func (s *UserStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.email[u.Email]; exists {
		return fmt.Errorf("email %s already registered", u.Email)
	}
	s.byID[u.ID] = u
	s.email[u.Email] = u.ID
	return nil
}

// ByEmail looks up a user by email.
func (s *UserStore) ByEmail(_ context.Context, email string) (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.email[email]
	if !ok {
		return nil, false
	}
	u, ok := s.byID[id]
	return u, ok
}

// ByID looks up a user by ID.
func (s *UserStore) ByID(_ context.Context, id string) (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	return u, ok
}

// Update persists changes to an existing user (used to upgrade a legacy
// password hash transparently on login, per spec.md §9).
func (s *UserStore) Update(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[u.ID]; !exists {
		return fmt.Errorf("user %s not found", u.ID)
	}
	s.byID[u.ID] = u
	return nil
}
