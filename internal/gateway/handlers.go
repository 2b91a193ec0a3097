package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/blackroad-os/edge-router/internal/classify"
	"github.com/blackroad-os/edge-router/internal/gateway/auth"
	"github.com/blackroad-os/edge-router/internal/session"
	"github.com/blackroad-os/edge-router/internal/signalbus"
	"github.com/blackroad-os/edge-router/pkg/contracts"
	"github.com/blackroad-os/edge-router/pkg/models"
)

// Checker reports the health of one dependency the gateway relies on.
type Checker func(ctx context.Context) error

// Handlers implements every gateway-local HTTP endpoint (spec.md §6): the
// auth surface, classification, signal read/write, status, and health.
type Handlers struct {
	Users       *session.UserStore
	Sessions    *session.MemoryStore
	Classifier  *classify.Router
	Audit       contracts.AuditStore
	Bus         *signalbus.Bus
	Hub         *Hub
	JWTSecret   string
	JWTIssuer   string
	PBKDF2Iters int
	Checks      map[string]Checker

	started time.Time
}

// NewHandlers constructs the handler set.
func NewHandlers(users *session.UserStore, sessions *session.MemoryStore, classifier *classify.Router, auditStore contracts.AuditStore, bus *signalbus.Bus, hub *Hub, jwtSecret, jwtIssuer string, pbkdf2Iters int, checks map[string]Checker) *Handlers {
	return &Handlers{
		Users:       users,
		Sessions:    sessions,
		Classifier:  classifier,
		Audit:       auditStore,
		Bus:         bus,
		Hub:         hub,
		JWTSecret:   jwtSecret,
		JWTIssuer:   jwtIssuer,
		PBKDF2Iters: pbkdf2Iters,
		Checks:      checks,
		started:     time.Now(),
	}
}

// ── GET /health ──────────────────────────────────────────────────

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.Checks))
	allOK := true
	for name, check := range h.Checks {
		if err := check(r.Context()); err != nil {
			checks[name] = "fail: " + err.Error()
			allOK = false
			continue
		}
		checks[name] = "ok"
	}

	status := "ok"
	code := http.StatusOK
	if !allOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{"status": status, "checks": checks})
}

// ── GET /v1/status ───────────────────────────────────────────────

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	connections := 0
	if h.Hub != nil {
		connections = h.Hub.ConnectionCount()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"ws_connections": connections,
	})
}

// ── Auth endpoints ───────────────────────────────────────────────

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login implements POST /v1/auth/login (spec.md §6, §4.1).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	ctx := r.Context()
	user, ok := h.Users.ByEmail(ctx, req.Email)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_credentials"})
		return
	}

	matched, needsUpgrade := auth.VerifyPassword(req.Password, user.PasswordHash)
	if !matched {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_credentials"})
		return
	}
	if needsUpgrade {
		if upgraded, err := auth.HashPassword(req.Password, h.PBKDF2Iters); err == nil {
			user.PasswordHash = upgraded
			_ = h.Users.Update(ctx, user)
		}
	}

	token, _, err := auth.IssueAccessToken(h.JWTSecret, h.JWTIssuer, user.ID, user.Email, user.Role, nil, time.Hour)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}

	refreshToken := uuid.NewString()
	now := time.Now()
	sess := &models.Session{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		CreatedMs:        now.UnixMilli(),
		ExpiresMs:        now.Add(30 * 24 * time.Hour).UnixMilli(),
		RefreshTokenHash: session.HashRefreshToken(refreshToken),
	}
	if err := h.Sessions.Create(ctx, sess); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}

	h.emit(r, models.SignalAuthLogin, "auth", user.ID, map[string]interface{}{"email": user.Email})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":         token,
		"refresh_token": refreshToken,
		"user":          map[string]string{"id": user.ID, "email": user.Email, "role": user.Role},
	})
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Register implements POST /v1/auth/register (spec.md §6).
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_email"})
		return
	}
	if len(req.Password) < 8 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "weak_password"})
		return
	}
	if len(req.Name) > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_name"})
		return
	}

	hash, err := auth.HashPassword(req.Password, h.PBKDF2Iters)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		Role:         "user",
		PasswordHash: hash,
		CreatedMs:    time.Now().UnixMilli(),
	}
	ctx := r.Context()
	if err := h.Users.Create(ctx, user); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "email_exists"})
		return
	}

	token, _, err := auth.IssueAccessToken(h.JWTSecret, h.JWTIssuer, user.ID, user.Email, user.Role, nil, time.Hour)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token": token,
		"user":  map[string]string{"id": user.ID, "email": user.Email, "role": user.Role},
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh implements POST /v1/auth/refresh (spec.md §6).
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_refresh_token"})
		return
	}

	ctx := r.Context()
	hash := session.HashRefreshToken(req.RefreshToken)
	sess, err := h.Sessions.FindByRefreshHash(ctx, hash)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_refresh_token"})
		return
	}

	user, ok := h.Users.ByID(ctx, sess.UserID)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_refresh_token"})
		return
	}

	token, _, err := auth.IssueAccessToken(h.JWTSecret, h.JWTIssuer, user.ID, user.Email, user.Role, nil, time.Hour)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": token})
}

// ── POST /v1/route ───────────────────────────────────────────────

type routeRequest struct {
	Query   string                 `json:"query"`
	Context map[string]interface{} `json:"context"`
}

// Route implements POST /v1/route: classify a free-text query into
// (org, service) without dispatching it (spec.md §6, §8 Scenario 1/2).
func (h *Handlers) Route(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := decodeJSON(r, &req); err != nil || req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	requestID := uuid.NewString()
	modelReq := models.Request{
		ID:       requestID,
		Kind:     models.RequestText,
		Body:     req.Query,
		Metadata: req.Context,
		Context: models.RequestContext{
			Actor:     requestActor(r),
			Source:    "gateway",
			Timestamp: time.Now(),
		},
	}

	classification := h.Classifier.Classify(modelReq)

	h.emit(r, models.SignalRouteRequest, "OS", classification.Org, map[string]interface{}{"request_id": requestID})

	h.emit(r, models.SignalRouteClassified, "OS", classification.Org, map[string]interface{}{
		"request_id": requestID,
		"service":    classification.Service,
		"confidence": classification.Confidence,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"org":        classification.Org,
		"service":    classification.Service,
		"confidence": classification.Confidence,
		"request_id": requestID,
	})
}

// ── Signals ──────────────────────────────────────────────────────

// ListSignals implements GET /v1/signals?type=&source=&since=&limit=.
func (h *Handlers) ListSignals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.AuditFilter{
		Type:   models.SignalType(q.Get("type")),
		Source: q.Get("source"),
		Limit:  100,
	}
	if since := q.Get("since"); since != "" {
		if ms, err := strconv.ParseInt(since, 10, 64); err == nil {
			filter.Since = time.UnixMilli(ms)
		}
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	records, err := h.Audit.Query(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}

	signals := make([]models.Signal, len(records))
	for i, rec := range records {
		signals[i] = rec.Signal
	}
	writeJSON(w, http.StatusOK, signals)
}

type emitSignalRequest struct {
	Type   models.SignalType      `json:"type"`
	Source string                 `json:"source"`
	Target string                 `json:"target"`
	Data   map[string]interface{} `json:"data"`
}

// EmitSignal implements POST /v1/signals: publishes a caller-supplied
// signal, gated behind the "signals:write" scope (spec.md §6 — "requires
// auth + scope").
func (h *Handlers) EmitSignal(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentity(r.Context())
	if identity == nil || !hasScope(identity, "signals:write") {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient_scope"})
		return
	}

	var req emitSignalRequest
	if err := decodeJSON(r, &req); err != nil || req.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	if req.Source == "" {
		req.Source = identity.Subject
	}

	sig := signalbus.New(req.Type, req.Source, req.Target, time.Now().UnixMilli(), req.Data)
	if _, err := h.Audit.Append(r.Context(), sig); err != nil {
		log.Error().Err(err).Msg("gateway: failed to append emitted signal")
	}
	h.Bus.Publish(r.Context(), "signals", sig)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"id": sig.ID, "type": sig.Type})
}

// ── helpers ──────────────────────────────────────────────────────

func (h *Handlers) emit(r *http.Request, typ models.SignalType, source, target string, data map[string]interface{}) {
	sig := signalbus.New(typ, source, target, time.Now().UnixMilli(), data)
	if h.Audit != nil {
		if _, err := h.Audit.Append(r.Context(), sig); err != nil {
			log.Error().Err(err).Str("signal_type", string(typ)).Msg("gateway: failed to append signal")
		}
	}
	if h.Bus != nil {
		h.Bus.Publish(r.Context(), "signals", sig)
	}
}

func requestActor(r *http.Request) string {
	if id := GetIdentity(r.Context()); id != nil {
		return id.Subject
	}
	return r.RemoteAddr
}

func hasScope(identity *contracts.Identity, scope string) bool {
	for _, s := range identity.Scopes {
		if s == scope {
			return true
		}
	}
	return identity.Role == "admin"
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
