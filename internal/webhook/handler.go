package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/blackroad-os/edge-router/internal/signalbus"
	"github.com/blackroad-os/edge-router/pkg/models"
)

// maxWebhookBodyBytes bounds the body read for any single webhook
// delivery, independent of the gateway's general ingress cap.
const maxWebhookBodyBytes = 5 << 20

// Handler serves POST /v1/webhooks/{provider}: verify, parse, enqueue,
// reply — never blocking the response on downstream signal processing
// (spec.md §4.4).
type Handler struct {
	registry *Registry
	queue    *Queue
	bus      *signalbus.Bus
	secrets  map[string]string
}

// NewHandler constructs a webhook Handler. secrets maps provider name to
// its configured shared secret; an absent or empty secret means
// verification is skipped and the resulting signal is marked
// verified=false (spec.md §4.4 — development-only path).
func NewHandler(registry *Registry, queue *Queue, bus *signalbus.Bus, secrets map[string]string) *Handler {
	return &Handler{registry: registry, queue: queue, bus: bus, secrets: secrets}
}

// ServeHTTP implements the provider-webhook endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	hint := r.URL.Query().Get("provider_hint")
	if hint == "" {
		hint = providerName
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if int64(len(body)) > maxWebhookBodyBytes {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	provider, ok := h.registry.Resolve(hint, r.Header)
	if !ok {
		writeError(w, http.StatusBadRequest, "no_handler")
		return
	}

	secret := h.secrets[provider.Name()]
	verified := true
	if secret == "" {
		verified = false
	} else {
		ok, err := provider.Verify(body, r.Header, secret)
		if errors.Is(err, ErrTimestampExpired) {
			writeError(w, http.StatusForbidden, "timestamp_expired")
			h.rejectSignal(r, provider.Name(), "timestamp_expired")
			return
		}
		if err != nil || !ok {
			writeError(w, http.StatusForbidden, "invalid_signature")
			h.rejectSignal(r, provider.Name(), "invalid_signature")
			return
		}
	}

	signal, err := provider.Parse(body, r.Header)
	if err != nil {
		log.Error().Err(err).Str("provider", provider.Name()).Msg("webhook: parse failed")
		writeError(w, http.StatusInternalServerError, "parse_error")
		return
	}
	if signal.Data == nil {
		signal.Data = map[string]interface{}{}
	}
	signal.Data["verified"] = verified

	if !h.queue.TryEnqueue(signal) {
		writeError(w, http.StatusServiceUnavailable, "queue_full")
		h.rejectSignal(r, provider.Name(), "queue_full")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"received": true,
		"source":   provider.Name(),
		"queued":   true,
	})
}

func (h *Handler) rejectSignal(r *http.Request, provider, reason string) {
	s := signalbus.New(models.SignalWebhookRejected, provider, "OS", time.Now().UnixMilli(), map[string]interface{}{
		"reason": reason,
	})
	h.bus.Publish(r.Context(), "signals", s)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
