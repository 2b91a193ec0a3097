package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackroad-os/edge-router/internal/config"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRegistryYAML), 0o644))

	return &config.Config{
		Registry: config.RegistryConfig{Path: path},
		Auth: config.AuthConfig{
			JWTSecret:        "test-secret",
			JWTIssuer:        "edge-router-test",
			APIKeyHeader:     "X-API-Key",
			SessionCookie:    "edge_session",
			PBKDF2Iterations: 10000,
		},
		Gateway: config.GatewayConfig{
			MaxBodyBytes:       1 << 20,
			RateLimitPerMin:    1000,
			AuditRetentionDays: 30,
		},
		Webhook: config.WebhookConfig{
			QueueCapacity: 16,
			Secrets:       map[string]string{},
		},
	}
}

func TestNewAssemblesAWorkingServer(t *testing.T) {
	cfg := newTestConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := New(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, srv)
	defer srv.Shutdown(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewUsesInMemoryBackendsWhenNoExternalStoresConfigured(t *testing.T) {
	cfg := newTestConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := New(ctx, cfg)
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	assert.NotNil(t, srv.Janitor, "in-memory audit store is Expirable, so the retention janitor should start")
}

func TestShutdownStopsRateActorAndClosesAuditStore(t *testing.T) {
	cfg := newTestConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := New(ctx, cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Shutdown(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return in time")
	}
}
