// Package models holds the wire- and storage-level data types shared across
// the edge gateway, classifier, dispatcher, webhook, and audit packages.
package models

import "time"

// ── Organization ───────────────────────────────────────────────

type OrgStatus string

const (
	OrgActive     OrgStatus = "active"
	OrgPlanned    OrgStatus = "planned"
	OrgDeprecated OrgStatus = "deprecated"
)

// Organization is a namespace for services, identified by a 2-3 letter code.
type Organization struct {
	Code     string             `json:"code" yaml:"code"`
	Name     string             `json:"name" yaml:"name"`
	Status   OrgStatus          `json:"status" yaml:"status"`
	Services map[string]Service `json:"services" yaml:"services"`
}

// ── Service ────────────────────────────────────────────────────

type ServiceType string

const (
	ServiceREST       ServiceType = "rest"
	ServiceRPC        ServiceType = "rpc"
	ServiceGRPC       ServiceType = "grpc"
	ServiceWebSocket  ServiceType = "websocket"
)

// Service is a concrete endpoint within an organization.
type Service struct {
	Name        string      `json:"name" yaml:"name"`
	Endpoint    string      `json:"endpoint" yaml:"endpoint"`
	HealthPath  string      `json:"health_path,omitempty" yaml:"health_path,omitempty"`
	Type        ServiceType `json:"type" yaml:"type"`
	Provider    string      `json:"provider,omitempty" yaml:"provider,omitempty"`
	Nodes       []string    `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Default     bool        `json:"default,omitempty" yaml:"default,omitempty"`
}

// ── Routing rule ───────────────────────────────────────────────

// RoutingRule is a priority-ordered regex that maps matching text to a target.
type RoutingRule struct {
	Name     string `json:"name" yaml:"name"`
	Pattern  string `json:"pattern" yaml:"pattern"`
	Org      string `json:"org" yaml:"org"`
	Service  string `json:"service" yaml:"service"`
	Priority int    `json:"priority" yaml:"priority"`
}

// ── Category ───────────────────────────────────────────────────

// Category is a bag of keywords that votes for a target (org, service)
// during keyword-scoring classification. Declaration order is the
// tie-break order when two categories score equally (spec.md §4.2, §9).
type Category struct {
	Name     string   `json:"name" yaml:"name"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	Org      string   `json:"org" yaml:"org"`
	Service  string   `json:"service" yaml:"service"`
}

// ── Request ────────────────────────────────────────────────────

type RequestKind string

const (
	RequestText    RequestKind = "TEXT"
	RequestHTTP    RequestKind = "HTTP"
	RequestWebhook RequestKind = "WEBHOOK"
	RequestSignal  RequestKind = "SIGNAL"
	RequestCLI     RequestKind = "CLI"
)

// RequestContext carries who/when/where for a Request.
type RequestContext struct {
	Actor     string    `json:"actor,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Request is an immutable unit of work entering the router.
type Request struct {
	ID       string                 `json:"id"`
	Kind     RequestKind            `json:"kind"`
	Body     string                 `json:"body"`
	Headers  map[string]string      `json:"headers,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Context  RequestContext         `json:"context"`
}

// ── Classification ─────────────────────────────────────────────

// ClassificationBasis records which branch of the classifier fired.
type ClassificationBasis string

const (
	BasisRule     ClassificationBasis = "rule"
	BasisScore    ClassificationBasis = "score"
	BasisFallback ClassificationBasis = "fallback"
)

// Classification is the result of classifying a Request into (org, service).
type Classification struct {
	Org        string              `json:"org"`
	Service    string              `json:"service"`
	Confidence float64             `json:"confidence"`
	Basis      ClassificationBasis `json:"basis"`
	Patterns   []string            `json:"patterns,omitempty"`
	Scores     map[string]float64  `json:"scores,omitempty"`
}

// ── Dispatch result ─────────────────────────────────────────────

type DispatchOutcome string

const (
	DispatchSuccess DispatchOutcome = "success"
	DispatchFailure DispatchOutcome = "failure"
)

// DispatchResult is the outcome of invoking a resolved backend endpoint.
type DispatchResult struct {
	RequestID      string          `json:"request_id"`
	Classification Classification  `json:"classification"`
	Outcome        DispatchOutcome `json:"outcome"`
	Status         int             `json:"status"`
	LatencyMs      int64           `json:"latency_ms"`
	Body           string          `json:"body,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Signal         Signal          `json:"signal"`
}

// ── Signal ──────────────────────────────────────────────────────

type SignalType string

const (
	SignalRouteRequest       SignalType = "route.request"
	SignalRouteClassified    SignalType = "route.classified"
	SignalRouteComplete      SignalType = "route.complete"
	SignalRouteFailed        SignalType = "route.failed"
	SignalWebhookReceived    SignalType = "webhook.received"
	SignalWebhookVerified    SignalType = "webhook.verified"
	SignalWebhookRejected    SignalType = "webhook.rejected"
	SignalAuthLogin          SignalType = "auth.login"
	SignalAuthFailed         SignalType = "auth.failed"
	SignalConfigChanged      SignalType = "config.changed"
	SignalNodeOnline         SignalType = "node.online"
	SignalNodeOffline        SignalType = "node.offline"
	SignalBudgetAlert        SignalType = "budget.alert"
	SignalRateLimitUnavail   SignalType = "rate_limit.unavailable"
	SignalRateLimited        SignalType = "rate_limited"
	SignalError              SignalType = "signal.error"
	SignalPROpened           SignalType = "pr.opened"
	SignalIssueOpened        SignalType = "issue.opened"
	SignalPaymentReceived    SignalType = "payment.received"
	SignalDeployStarted      SignalType = "deploy.started"
)

// Signal is a typed, immutable event describing something that happened.
type Signal struct {
	ID        string                 `json:"id" db:"id"`
	Type      SignalType             `json:"type" db:"type"`
	Source    string                 `json:"source" db:"source"`
	Target    string                 `json:"target" db:"target"`
	Timestamp int64                  `json:"timestamp_ms" db:"timestamp_ms"`
	Data      map[string]interface{} `json:"data,omitempty" db:"data"`
	Formatted string                 `json:"formatted" db:"formatted"`
}

// ── Session ────────────────────────────────────────────────────

// Session is a server-side login session keyed by an opaque session ID.
type Session struct {
	ID               string `json:"session_id" db:"id"`
	UserID           string `json:"user_id" db:"user_id"`
	CreatedMs        int64  `json:"created_ms" db:"created_ms"`
	ExpiresMs        int64  `json:"expires_ms" db:"expires_ms"`
	RefreshTokenHash string `json:"-" db:"refresh_token_hash"`
}

// ── User ──────────────────────────────────────────────────────

// User is an account capable of authenticating against the gateway.
type User struct {
	ID           string `json:"id" db:"id"`
	Email        string `json:"email" db:"email"`
	Name         string `json:"name" db:"name"`
	Role         string `json:"role" db:"role"`
	PasswordHash string `json:"-" db:"password_hash"`
	CreatedMs    int64  `json:"created_ms" db:"created_ms"`
}

// ── API key ─────────────────────────────────────────────────────

// APIKey is a long-lived credential looked up by the SHA-256 of the presented key.
type APIKey struct {
	KeyHash            string   `json:"-" db:"key_hash"`
	UserID             string   `json:"user_id" db:"user_id"`
	Scopes             []string `json:"scopes,omitempty" db:"scopes"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute" db:"rate_limit_per_minute"`
	ExpiresMs          int64    `json:"expires_ms,omitempty" db:"expires_ms"`
}

// ── Rate-limit bucket ────────────────────────────────────────────

// RateLimitBucket is the counter for one identity within one time window.
type RateLimitBucket struct {
	Identity    string `json:"identity"`
	WindowStart int64  `json:"window_start_ms"`
	Count       int    `json:"count"`
}

// ── Audit record ──────────────────────────────────────────────────

// AuditRecord pairs a Signal with its indexable fields.
type AuditRecord struct {
	ID        string     `json:"id" db:"id"`
	Signal    Signal     `json:"signal" db:"-"`
	Actor     string     `json:"actor" db:"actor"`
	Action    string     `json:"action" db:"action"`
	Resource  string     `json:"resource" db:"resource"`
	Outcome   string     `json:"outcome" db:"outcome"`
	Timestamp int64      `json:"timestamp_ms" db:"timestamp_ms"`
}

// AuditFilter restricts a Query to matching records.
type AuditFilter struct {
	Actor    string
	Action   string
	Resource string
	Type     SignalType
	Source   string
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}
