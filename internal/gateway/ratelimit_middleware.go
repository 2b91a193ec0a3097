package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blackroad-os/edge-router/internal/gateway/ratelimit"
	"github.com/blackroad-os/edge-router/internal/signalbus"
	"github.com/blackroad-os/edge-router/pkg/models"
)

// RateLimitMiddleware consults the single-writer rate-limit actor for every
// request and rejects with 429 on a hard limit breach. A best-effort-only
// guarantee: when the actor is unreachable it fails open (spec.md §4.1,
// §5) rather than blocking traffic.
type RateLimitMiddleware struct {
	actor     *ratelimit.Actor
	bus       *signalbus.Bus
	limit     int
	window    time.Duration
	actorWait time.Duration
}

// NewRateLimitMiddleware constructs the middleware. limit and window apply
// to every identity; an API key's own rate_limit_per_minute is not
// consulted.
func NewRateLimitMiddleware(actor *ratelimit.Actor, bus *signalbus.Bus, limit int, window time.Duration) *RateLimitMiddleware {
	return &RateLimitMiddleware{actor: actor, bus: bus, limit: limit, window: window, actorWait: 5 * time.Second}
}

// Handler returns the HTTP middleware.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := rateLimitIdentity(r)

		ctx, cancel := context.WithTimeout(r.Context(), m.actorWait)
		defer cancel()

		result, err := m.actor.Allow(ctx, identity, m.limit, m.window)
		if err != nil {
			log.Warn().Err(err).Str("identity", identity).Msg("gateway: rate limiter unavailable, failing open")
			m.emit(r, models.SignalRateLimitUnavail, map[string]interface{}{"identity": identity})
			next.ServeHTTP(w, r)
			return
		}

		if !result.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			m.emit(r, models.SignalRateLimited, map[string]interface{}{"identity": identity})
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate_limited"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) emit(r *http.Request, typ models.SignalType, data map[string]interface{}) {
	if m.bus == nil {
		return
	}
	s := signalbus.New(typ, "gateway", "ALL", time.Now().UnixMilli(), data)
	m.bus.Publish(r.Context(), "signals", s)
}

// rateLimitIdentity resolves the glossary's rate-limit identity: the
// authenticated identity's subject if present, else the source IP.
func rateLimitIdentity(r *http.Request) string {
	if id := GetIdentity(r.Context()); id != nil {
		if rl := id.RateLimitIdentity(); rl != "" {
			return rl
		}
	}
	return r.RemoteAddr
}
