// Package contracts — authentication interfaces for the gateway's pluggable
// auth layer.
//
// These types form the boundary between the three credential checks the
// gateway supports (bearer JWT, API key, session cookie) and the rest of
// the request pipeline: no handler ever knows which one produced the
// Identity in its context.
package contracts

import (
	"context"
	"net/http"
	"time"
)

// ── Identity ────────────────────────────────────────────────

// Identity represents an authenticated caller.
// Produced by an AuthProvider, consumed by rate-limiting and handlers.
type Identity struct {
	// Subject is the unique identifier (user ID, service-account name, API key hash).
	Subject string `json:"subject"`

	// Email is the user's email address (empty for service accounts / API keys).
	Email string `json:"email,omitempty"`

	// DisplayName is a human-readable name.
	DisplayName string `json:"display_name,omitempty"`

	// Provider identifies which auth provider authenticated this identity.
	// Values: "jwt", "apikey", "session".
	Provider string `json:"provider"`

	// Role is the caller's role ("admin", "service", "user").
	Role string `json:"role"`

	// Scopes carries the caller's granted API scopes (from an API key or JWT claim).
	Scopes []string `json:"scopes,omitempty"`

	// Claims holds raw claims from the token (for custom policy checks).
	Claims map[string]string `json:"claims,omitempty"`

	// ExpiresAt is when this identity's credential expires.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// RateLimitIdentity returns the key used to bucket this identity for rate
// limiting: the subject is always present once authenticated.
func (id *Identity) RateLimitIdentity() string {
	if id == nil {
		return ""
	}
	return id.Subject
}

// ── AuthProvider ────────────────────────────────────────────

// AuthProvider authenticates an HTTP request and returns an Identity.
// Each provider implements one credential check (JWT, API key, session).
//
// The chain pattern:
//   - Return (*Identity, nil) → authenticated, stop the chain
//   - Return (nil, nil)       → this provider found no matching credential, try next
//   - Return (nil, error)     → a credential was present but invalid, reject
type AuthProvider interface {
	// Name returns the provider identifier (e.g. "jwt", "apikey", "session").
	Name() string

	// Authenticate inspects the request and returns an Identity.
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)

	// Enabled returns whether this provider is configured and active.
	Enabled() bool
}

// ── AuthProviderChain ───────────────────────────────────────

// AuthProviderChain tries providers in order until one returns an Identity.
// The gateway walks Bearer JWT, then X-API-Key, then session cookie, per
// spec.md §4.1.
type AuthProviderChain interface {
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)
	RegisterProvider(provider AuthProvider)
	ListProviders() []string
}
