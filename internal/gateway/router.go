package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/blackroad-os/edge-router/internal/config"
	"github.com/blackroad-os/edge-router/internal/webhook"
	"github.com/blackroad-os/edge-router/pkg/contracts"
)

// NewRouter assembles the full chi route tree: global middleware, the
// gateway-local endpoints, webhook ingestion, the WebSocket hub, and the
// catch-all reverse proxy to the three origin pools (spec.md §4.1, §6).
func NewRouter(cfg *config.Config, h *Handlers, authChain contracts.AuthProviderChain, rateLimit *RateLimitMiddleware, webhookHandler *webhook.Handler, hub *Hub, proxy *Proxy) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(Logger)
	r.Use(Telemetry)
	r.Use(SecurityHeaders)
	r.Use(BodyLimit(cfg.Gateway.MaxBodyBytes))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsAllowOrigins(cfg.Gateway.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !isWildcardOrigin(cfg.Gateway.CORSAllowOrigins),
		MaxAge:           300,
	}))

	if authChain != nil {
		r.Use(NewAuthMiddleware(authChain).Handler)
	}
	if rateLimit != nil {
		r.Use(rateLimit.Handler)
	}

	r.Get("/health", h.Health)
	r.Get("/v1/status", h.Status)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/register", h.Register)
		r.Post("/refresh", h.Refresh)
	})

	r.Post("/v1/route", h.Route)

	r.Route("/v1/signals", func(r chi.Router) {
		r.Get("/", h.ListSignals)
		r.Post("/", h.EmitSignal)
	})

	if webhookHandler != nil {
		r.Post("/v1/webhooks/{provider}", webhookHandler.ServeHTTP)
	}
	if hub != nil {
		r.Get("/v1/ws", hub.ServeHTTP)
	}

	if proxy != nil {
		r.NotFound(proxy.ServeHTTP)
	}

	return r
}

// corsAllowOrigins defaults to a permissive wildcard when the operator has
// not configured an explicit allow-list, matching the teacher's
// fail-permissive-in-dev posture.
func corsAllowOrigins(configured []string) []string {
	if len(configured) == 0 {
		return []string{"*"}
	}
	return configured
}

func isWildcardOrigin(configured []string) bool {
	return len(configured) == 1 && configured[0] == "*"
}
