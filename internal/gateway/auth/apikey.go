package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/blackroad-os/edge-router/internal/session"
	"github.com/blackroad-os/edge-router/pkg/contracts"
)

// APIKeyProvider authenticates requests carrying a long-lived API key,
// presented via the Authorization header, the X-API-Key header, or an
// "api_key" query parameter (spec.md §3, §4.1). Keys are looked up by
// the SHA-256 hash of the presented value so the raw key is never held
// in memory past the lookup.
type APIKeyProvider struct {
	store      *session.APIKeyStore
	headerName string
	enabled    bool
}

// NewAPIKeyProvider constructs a provider backed by store. headerName is
// the custom header to check in addition to "Authorization: Bearer".
func NewAPIKeyProvider(store *session.APIKeyStore, headerName string, enabled bool) *APIKeyProvider {
	if headerName == "" {
		headerName = "X-API-Key"
	}
	return &APIKeyProvider{store: store, headerName: headerName, enabled: enabled}
}

func (p *APIKeyProvider) Name() string { return "apikey" }

func (p *APIKeyProvider) Enabled() bool { return p.enabled }

// Authenticate implements contracts.AuthProvider.
func (p *APIKeyProvider) Authenticate(_ context.Context, r *http.Request) (*contracts.Identity, error) {
	key := extractAPIKey(r, p.headerName)
	if key == "" {
		return nil, nil
	}

	record, ok := p.store.Lookup(key)
	if !ok {
		return nil, nil
	}

	return &contracts.Identity{
		Subject:  "apikey:" + record.KeyHash[:16],
		Provider: p.Name(),
		Role:     "service",
		Scopes:   record.Scopes,
		Claims: map[string]string{
			"user_id": record.UserID,
		},
	}, nil
}

// extractAPIKey pulls a candidate API key from, in order: the Bearer
// authorization header, the configured custom header, and the api_key
// query parameter.
func extractAPIKey(r *http.Request, headerName string) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if v := r.Header.Get(headerName); v != "" {
		return v
	}
	return r.URL.Query().Get("api_key")
}
