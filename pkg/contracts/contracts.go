// Package contracts defines the service boundaries of the edge router.
//
// Each interface here is a narrow capability a concrete package implements
// and another package consumes without importing it directly — this keeps
// the dispatcher, webhook registry, and audit retention job swappable and
// independently testable, the way the teacher's ProviderDriver/ArchiveDriver
// pattern keeps the model router and retention janitor swappable.
package contracts

import (
	"context"
	"net/http"
	"time"

	"github.com/blackroad-os/edge-router/pkg/models"
)

// ── Origin caller ────────────────────────────────────────────

// OriginCaller is the dispatcher's narrow client capability: invoke a
// resolved endpoint and report status/body/error. Tests substitute a mock
// implementation; production uses an HTTP-backed caller.
type OriginCaller interface {
	Call(ctx context.Context, endpoint string, payload []byte) (status int, body []byte, err error)
}

// ── Webhook provider ─────────────────────────────────────────

// WebhookProvider verifies and parses one provider's webhook deliveries.
// OSS ships github, stripe, salesforce, slack, cloudflare, google, figma.
type WebhookProvider interface {
	// Name returns the provider identifier used in provider_hint and routes.
	Name() string

	// CanHandle inspects headers to decide whether this provider recognizes
	// the delivery (used when no provider_hint query parameter is given).
	CanHandle(headers http.Header) bool

	// Verify checks the request signature against the configured secret.
	// Returns false if the signature is invalid; the secret is empty only
	// in development, in which case verification is skipped by the caller.
	Verify(body []byte, headers http.Header, secret string) (bool, error)

	// Parse converts a verified payload into a canonical Signal.
	Parse(body []byte, headers http.Header) (models.Signal, error)
}

// ── Archive driver ───────────────────────────────────────────

// ArchiveDriver writes expired audit records to a durable backend before
// the retention janitor purges them from the hot store.
type ArchiveDriver interface {
	Kind() string
	ArchiveAuditRecords(ctx context.Context, records []models.AuditRecord) (uri string, err error)
}

// ── Bucket store ─────────────────────────────────────────────

// BucketStore persists rate-limit counters for one identity/window pair.
// The in-process implementation backs the single-writer actor directly;
// the Redis implementation lets the actor serialize counters across
// multiple gateway processes sharing one Redis instance.
type BucketStore interface {
	// Increment adds 1 to the counter for (identity, windowStart) and
	// returns the new count. windowLen is used to set the bucket's expiry.
	Increment(ctx context.Context, identity string, windowStart time.Time, windowLen time.Duration) (int, error)
}

// ── Session store ────────────────────────────────────────────

// SessionStore manages login sessions keyed by session ID.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteByRefreshHash(ctx context.Context, refreshHash string) error
}

// ── Audit store ──────────────────────────────────────────────

// AuditStore is the append-only, indexed log of every Signal emitted by
// the system.
type AuditStore interface {
	Append(ctx context.Context, signal models.Signal) (string, error)
	Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, error)
	Count(ctx context.Context, filter models.AuditFilter) (int64, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}
