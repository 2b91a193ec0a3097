package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackroad-os/edge-router/internal/gateway/ratelimit"
	"github.com/blackroad-os/edge-router/internal/signalbus"
)

func newTestActor(t *testing.T) (*ratelimit.Actor, context.CancelFunc) {
	t.Helper()
	store := ratelimit.NewMemoryBucketStore()
	actor := ratelimit.NewActor(store)
	ctx, cancel := context.WithCancel(context.Background())
	go actor.Run(ctx)
	return actor, cancel
}

func TestRateLimitMiddlewareAllowsWithinLimit(t *testing.T) {
	actor, cancel := newTestActor(t)
	defer cancel()

	bus := signalbus.NewBus("")
	mw := NewRateLimitMiddleware(actor, bus, 5, time.Minute)

	called := 0
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/route", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, 1, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddlewareRejectsOnceLimitExceeded(t *testing.T) {
	actor, cancel := newTestActor(t)
	defer cancel()

	bus := signalbus.NewBus("")
	mw := NewRateLimitMiddleware(actor, bus, 2, time.Minute)

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/route", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec
	}

	require.NotNil(t, last)
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
}

func TestRateLimitIdentityFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:4321"
	assert.Equal(t, "203.0.113.5:4321", rateLimitIdentity(req))
}
