package webhook

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackroad-os/edge-router/internal/signalbus"
)

func newTestHandler(secrets map[string]string) (*Handler, *Registry, *Queue) {
	reg := NewRegistry()
	reg.Register(NewGitHubProvider())
	reg.Register(NewStripeProvider())
	reg.Register(NewSlackProvider())
	q := NewQueue(4)
	bus := signalbus.NewBus("")
	return NewHandler(reg, q, bus, secrets), reg, q
}

func mountHandler(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/v1/webhooks/{provider}", h.ServeHTTP)
	return r
}

func TestHandlerAcceptsUnverifiedWhenNoSecretConfigured(t *testing.T) {
	h, _, q := newTestHandler(nil)
	mux := mountHandler(h)

	body := `{"action":"opened","repository":{"full_name":"BlackRoad-AI/edge-router"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/github", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", "pull_request")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"source":"github","queued":true}`, rec.Body.String())

	select {
	case sig := <-q.ch:
		assert.Equal(t, false, sig.Data["verified"])
	default:
		t.Fatal("expected a signal on the queue")
	}
}

func TestHandlerVerifiesWhenSecretConfigured(t *testing.T) {
	h, _, q := newTestHandler(map[string]string{"github": "s3cr3t"})
	mux := mountHandler(h)

	body := `{"action":"opened","repository":{"full_name":"BlackRoad-AI/edge-router"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/github", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", "pull_request")
	req.Header.Set("X-Hub-Signature-256", sign("s3cr3t", []byte(body)))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	select {
	case sig := <-q.ch:
		assert.Equal(t, true, sig.Data["verified"])
	default:
		t.Fatal("expected a signal on the queue")
	}
}

func TestHandlerRejectsInvalidSignature(t *testing.T) {
	h, _, _ := newTestHandler(map[string]string{"github": "s3cr3t"})
	mux := mountHandler(h)

	body := `{"action":"opened"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/github", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", "pull_request")
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_signature")
}

func TestHandlerRejectsExpiredStripeTimestamp(t *testing.T) {
	h, _, _ := newTestHandler(map[string]string{"stripe": "whsec"})
	mux := mountHandler(h)

	body := `{"type":"payment_intent.succeeded"}`
	ts := time.Now().Add(-10 * time.Minute).Unix()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", stripeSignatureHeader("whsec", ts, []byte(body)))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "timestamp_expired")
}

func TestHandlerReturnsNoHandlerForUnknownProvider(t *testing.T) {
	h, _, _ := newTestHandler(nil)
	mux := mountHandler(h)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/unknown", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no_handler")
}

func TestHandlerReturnsQueueFullWhenQueueSaturated(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewGitHubProvider())
	q := NewQueue(1)
	bus := signalbus.NewBus("")
	h := NewHandler(reg, q, bus, nil)
	mux := mountHandler(h)

	body := `{"action":"opened","repository":{"full_name":"someone/repo"}}`
	req1 := httptest.NewRequest(http.MethodPost, "/v1/webhooks/github", strings.NewReader(body))
	req1.Header.Set("X-GitHub-Event", "issues")
	rec1 := httptest.NewRecorder()
	mux.ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/v1/webhooks/github", strings.NewReader(body))
	req2.Header.Set("X-GitHub-Event", "issues")
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)

	assert.Equal(t, http.StatusServiceUnavailable, rec2.Code)
	assert.Contains(t, rec2.Body.String(), "queue_full")
}

func TestHandlerRejectsOversizeBody(t *testing.T) {
	h, _, _ := newTestHandler(nil)
	mux := mountHandler(h)

	oversize := strings.Repeat("a", maxWebhookBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/github", strings.NewReader(oversize))
	req.Header.Set("X-GitHub-Event", "issues")
	req.ContentLength = int64(len(oversize))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_body")
}
