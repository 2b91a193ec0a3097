package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackroad-os/edge-router/pkg/contracts"
)

type stubChain struct {
	identity *contracts.Identity
	err      error
}

func (s *stubChain) Authenticate(context.Context, *http.Request) (*contracts.Identity, error) {
	return s.identity, s.err
}
func (s *stubChain) RegisterProvider(contracts.AuthProvider) {}
func (s *stubChain) ListProviders() []string                 { return nil }

func TestAuthMiddlewareBypassesPublicPaths(t *testing.T) {
	mw := NewAuthMiddleware(&stubChain{err: assert.AnError})
	called := false
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareRejectsOnChainError(t *testing.T) {
	mw := NewAuthMiddleware(&stubChain{err: assert.AnError})
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run when the auth chain errors")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/route", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareRejectsWhenNoIdentity(t *testing.T) {
	mw := NewAuthMiddleware(&stubChain{})
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for an anonymous request to a protected path")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/route", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestAuthMiddlewareStoresIdentityInContext(t *testing.T) {
	identity := &contracts.Identity{Subject: "u1"}
	mw := NewAuthMiddleware(&stubChain{identity: identity})

	var gotIdentity *contracts.Identity
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = GetIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/route", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.NotNil(t, gotIdentity)
	assert.Equal(t, "u1", gotIdentity.Subject)
}

func TestIsAuthPublicPath(t *testing.T) {
	cases := map[string]bool{
		"/health":                true,
		"/v1/status":             true,
		"/v1/ws":                 true,
		"/v1/auth/login":         true,
		"/v1/webhooks/github":    true,
		"/v1/route":              false,
		"/v1/signals":            false,
	}
	for path, want := range cases {
		assert.Equal(t, want, isAuthPublicPath(path), "path=%s", path)
	}
}
