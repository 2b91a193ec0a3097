package auth

import (
	"context"
	"net/http"

	"github.com/blackroad-os/edge-router/pkg/contracts"
)

// SessionProvider authenticates requests carrying the browser session
// cookie set by /v1/auth/login (spec.md §4.1). It is the last provider
// in the chain: anything not wearing a JWT or API key falls through here.
type SessionProvider struct {
	store      contracts.SessionStore
	cookieName string
	enabled    bool
}

// NewSessionProvider constructs a provider backed by store, reading the
// session ID from the cookie named cookieName.
func NewSessionProvider(store contracts.SessionStore, cookieName string) *SessionProvider {
	if cookieName == "" {
		cookieName = "er_session"
	}
	return &SessionProvider{store: store, cookieName: cookieName, enabled: true}
}

func (p *SessionProvider) Name() string { return "session" }

func (p *SessionProvider) Enabled() bool { return p.enabled }

// Authenticate implements contracts.AuthProvider.
func (p *SessionProvider) Authenticate(ctx context.Context, r *http.Request) (*contracts.Identity, error) {
	cookie, err := r.Cookie(p.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	sess, err := p.store.Get(ctx, cookie.Value)
	if err != nil {
		return nil, nil
	}

	return &contracts.Identity{
		Subject:  sess.UserID,
		Provider: p.Name(),
		Role:     "user",
	}, nil
}
