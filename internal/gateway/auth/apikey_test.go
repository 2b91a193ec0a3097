package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackroad-os/edge-router/internal/session"
	"github.com/blackroad-os/edge-router/pkg/models"
)

func newProvisionedAPIKeyProvider(t *testing.T, rawKey string) *APIKeyProvider {
	t.Helper()
	store := session.NewAPIKeyStore()
	store.Put(&models.APIKey{
		KeyHash: session.HashKey(rawKey),
		UserID:  "user-1",
		Scopes:  []string{"route:write"},
	})
	return NewAPIKeyProvider(store, "X-API-Key", true)
}

func TestAPIKeyProviderAuthenticatesViaHeader(t *testing.T) {
	provider := newProvisionedAPIKeyProvider(t, "secret-key-123")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "secret-key-123")

	identity, err := provider.Authenticate(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "apikey", identity.Provider)
	assert.Equal(t, []string{"route:write"}, identity.Scopes)
}

func TestAPIKeyProviderAuthenticatesViaBearer(t *testing.T) {
	provider := newProvisionedAPIKeyProvider(t, "secret-key-123")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret-key-123")

	identity, err := provider.Authenticate(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, identity)
}

func TestAPIKeyProviderAuthenticatesViaQueryParam(t *testing.T) {
	provider := newProvisionedAPIKeyProvider(t, "secret-key-123")

	req := httptest.NewRequest(http.MethodGet, "/?api_key=secret-key-123", nil)

	identity, err := provider.Authenticate(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, identity)
}

func TestAPIKeyProviderReturnsNilForUnknownKey(t *testing.T) {
	provider := newProvisionedAPIKeyProvider(t, "secret-key-123")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "wrong-key")

	identity, err := provider.Authenticate(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, identity)
}

func TestAPIKeyProviderReturnsNilWithNoCredential(t *testing.T) {
	provider := newProvisionedAPIKeyProvider(t, "secret-key-123")

	req := httptest.NewRequest(http.MethodGet, "/", nil)

	identity, err := provider.Authenticate(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, identity)
}
