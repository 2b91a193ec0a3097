package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blackroad-os/edge-router/internal/audit"
	"github.com/blackroad-os/edge-router/internal/audit/pgstore"
	"github.com/blackroad-os/edge-router/internal/classify"
	"github.com/blackroad-os/edge-router/internal/config"
	"github.com/blackroad-os/edge-router/internal/dispatch"
	"github.com/blackroad-os/edge-router/internal/gateway/auth"
	"github.com/blackroad-os/edge-router/internal/gateway/ratelimit"
	"github.com/blackroad-os/edge-router/internal/registry"
	"github.com/blackroad-os/edge-router/internal/session"
	"github.com/blackroad-os/edge-router/internal/signalbus"
	"github.com/blackroad-os/edge-router/internal/telemetry"
	"github.com/blackroad-os/edge-router/internal/webhook"
	"github.com/blackroad-os/edge-router/pkg/contracts"
	"github.com/blackroad-os/edge-router/pkg/models"
)

// Server holds every initialized edge-router component and the assembled
// HTTP handler.
type Server struct {
	Handler http.Handler

	Registry   *registry.Registry
	Classifier *classify.Router
	Dispatcher *dispatch.Dispatcher
	Bus        *signalbus.Bus
	Audit      contracts.AuditStore
	Users      *session.UserStore
	Sessions   *session.MemoryStore
	APIKeys    *session.APIKeyStore
	AuthChain  contracts.AuthProviderChain
	RateActor  *ratelimit.Actor
	Webhooks   *webhook.Queue
	Janitor    *audit.Janitor
	Hub        *Hub
	Proxy      *Proxy

	shutdownFuncs []func(context.Context) error
}

// New wires the full edge-router server from cfg: the routing registry, the
// classifier and dispatcher, the signal bus and audit store, the auth
// provider chain, the rate-limit actor, the webhook ingestion pipeline, and
// the WebSocket hub, then assembles the HTTP handler with NewRouter.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("gateway: init telemetry: %w", err)
	}

	reg := registry.New(cfg.Registry.Path)
	if err := reg.Load(); err != nil {
		return nil, fmt.Errorf("gateway: load registry: %w", err)
	}
	log.Info().Str("path", cfg.Registry.Path).Msg("gateway: routing registry loaded")

	bus := signalbus.NewBus(cfg.NATS.URL)

	auditStore, err := newAuditStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gateway: init audit store: %w", err)
	}

	classifier := classify.New(reg)
	caller := NewHTTPCaller()
	dispatcher := dispatch.New(reg, caller, bus, auditStore)

	users := session.NewUserStore()
	sessions := session.NewMemoryStore()
	apiKeys := session.NewAPIKeyStore()

	authChain := auth.NewChain()
	authChain.RegisterProvider(auth.NewJWTProvider(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer))
	authChain.RegisterProvider(auth.NewAPIKeyProvider(apiKeys, cfg.Auth.APIKeyHeader, true))
	authChain.RegisterProvider(auth.NewSessionProvider(sessions, cfg.Auth.SessionCookie))

	bucketStore, err := newBucketStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("gateway: init rate-limit store: %w", err)
	}
	rateActor := ratelimit.NewActor(bucketStore)
	go rateActor.Run(ctx)
	rateLimitMW := NewRateLimitMiddleware(rateActor, bus, cfg.Gateway.RateLimitPerMin, time.Minute)

	webhookRegistry := webhook.NewRegistry()
	webhookRegistry.Register(webhook.NewGitHubProvider())
	webhookRegistry.Register(webhook.NewStripeProvider())
	webhookRegistry.Register(webhook.NewSlackProvider())
	webhookRegistry.Register(webhook.NewSalesforceProvider())
	webhookRegistry.Register(webhook.NewGoogleProvider())
	webhookRegistry.Register(webhook.NewFigmaProvider())
	webhookRegistry.Register(webhook.NewCloudflareProvider())
	webhookQueue := webhook.NewQueue(cfg.Webhook.QueueCapacity)
	webhookHandler := webhook.NewHandler(webhookRegistry, webhookQueue, bus, cfg.Webhook.Secrets)
	go webhookQueue.Run(ctx, func(s models.Signal) {
		if _, err := auditStore.Append(ctx, s); err != nil {
			log.Error().Err(err).Str("signal_type", string(s.Type)).Msg("gateway: failed to append webhook signal")
		}
		bus.Publish(ctx, "signals", s)
	})

	hub := NewHub(bus, func(token string) bool {
		return auth.VerifyToken(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, token)
	}, cfg.Gateway.WSRooms)

	proxy, err := NewProxy(cfg.Gateway.InternalToken, cfg.Gateway.OriginPools)
	if err != nil {
		return nil, fmt.Errorf("gateway: init proxy: %w", err)
	}

	var janitor *audit.Janitor
	if expirable, ok := auditStore.(audit.ExpirableStore); ok {
		janitor = audit.NewJanitor(expirable, cfg.Gateway.AuditRetentionDays, 24*time.Hour)
		go janitor.Start(ctx)
	}

	checks := map[string]Checker{
		"kv":           func(ctx context.Context) error { return nil },
		"db":           func(ctx context.Context) error { return auditStore.Ping(ctx) },
		"object_store": func(ctx context.Context) error { return nil },
	}

	handlers := NewHandlers(users, sessions, classifier, auditStore, bus, hub, cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.PBKDF2Iterations, checks)

	router := NewRouter(cfg, handlers, authChain, rateLimitMW, webhookHandler, hub, proxy)

	srv := &Server{
		Handler:    router,
		Registry:   reg,
		Classifier: classifier,
		Dispatcher: dispatcher,
		Bus:        bus,
		Audit:      auditStore,
		Users:      users,
		Sessions:   sessions,
		APIKeys:    apiKeys,
		AuthChain:  authChain,
		RateActor:  rateActor,
		Webhooks:   webhookQueue,
		Janitor:    janitor,
		Hub:        hub,
		Proxy:      proxy,
		shutdownFuncs: []func(context.Context) error{
			shutdownTelemetry,
			func(context.Context) error { return auditStore.Close() },
		},
	}
	return srv, nil
}

// newAuditStore picks a Postgres-backed audit store when cfg.Database.URL is
// set, else an in-memory one — the same external-store-or-memory split the
// teacher uses for its data store.
func newAuditStore(ctx context.Context, cfg *config.Config) (contracts.AuditStore, error) {
	if cfg.Database.URL == "" {
		log.Info().Msg("gateway: audit store using in-memory backend")
		return audit.NewMemoryStore(), nil
	}
	store, err := pgstore.Connect(ctx, cfg.Database.URL, int32(cfg.Database.MaxConnections))
	if err != nil {
		return nil, err
	}
	log.Info().Msg("gateway: audit store using PostgreSQL backend")
	return store, nil
}

// newBucketStore picks a Redis-backed rate-limit bucket store when
// cfg.Redis.URL is set, else an in-memory one — Redis is required for
// correctness across multiple gateway instances sharing one rate-limit
// window (spec.md §5).
func newBucketStore(cfg *config.Config) (contracts.BucketStore, error) {
	if cfg.Redis.URL == "" {
		log.Info().Msg("gateway: rate-limit store using in-memory backend (single instance only)")
		return ratelimit.NewMemoryBucketStore(), nil
	}
	store, err := ratelimit.NewRedisBucketStore(cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("gateway: rate-limit store using Redis backend")
	return store, nil
}

// Shutdown flushes telemetry, closes the audit store, and stops the
// rate-limit actor.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, fn := range s.shutdownFuncs {
		if fn == nil {
			continue
		}
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.RateActor.Stop()
	return firstErr
}
