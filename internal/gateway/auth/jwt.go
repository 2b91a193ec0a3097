package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/blackroad-os/edge-router/pkg/contracts"
)

// JWTProvider authenticates requests carrying a bearer access token signed
// with HMAC-SHA256 (spec.md §4.1 — short-lived signed access token).
type JWTProvider struct {
	secret  []byte
	issuer  string
	enabled bool
}

// NewJWTProvider constructs a provider that verifies tokens signed with
// secret and issued by issuer.
func NewJWTProvider(secret, issuer string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret), issuer: issuer, enabled: secret != ""}
}

func (p *JWTProvider) Name() string { return "jwt" }

func (p *JWTProvider) Enabled() bool { return p.enabled }

// Authenticate implements contracts.AuthProvider. A Bearer header that does
// not look like a JWT (three dot-separated segments) is left for the next
// provider (the API key check) rather than rejected outright.
func (p *JWTProvider) Authenticate(_ context.Context, r *http.Request) (*contracts.Identity, error) {
	raw := r.Header.Get("Authorization")
	if !strings.HasPrefix(raw, "Bearer ") {
		return nil, nil
	}
	token := strings.TrimPrefix(raw, "Bearer ")
	if strings.Count(token, ".") != 2 {
		return nil, nil
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithIssuer(p.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("jwt: token not valid")
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		return nil, fmt.Errorf("jwt: missing subject claim")
	}

	identity := &contracts.Identity{
		Subject:  subject,
		Provider: p.Name(),
		Role:     stringClaim(claims, "role", "user"),
		Claims:   map[string]string{},
	}
	if email := stringClaim(claims, "email", ""); email != "" {
		identity.Email = email
	}
	if scopes, ok := claims["scopes"].([]interface{}); ok {
		for _, s := range scopes {
			if str, ok := s.(string); ok {
				identity.Scopes = append(identity.Scopes, str)
			}
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		identity.ExpiresAt = exp.Time
	} else {
		identity.ExpiresAt = time.Time{}
	}
	return identity, nil
}

func stringClaim(claims jwt.MapClaims, key, fallback string) string {
	if v, ok := claims[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// IssueAccessToken mints a short-lived HMAC-SHA256 access token for subject,
// used by /v1/auth/login and /v1/auth/register (spec.md §4.1 — "short-lived
// signed access token", capped at one hour). ttl longer than one hour is
// clamped.
func IssueAccessToken(secret, issuer, subject, email, role string, scopes []string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 || ttl > time.Hour {
		ttl = time.Hour
	}
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := jwt.MapClaims{
		"sub": subject,
		"iss": issuer,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
		"role": role,
	}
	if email != "" {
		claims["email"] = email
	}
	if len(scopes) > 0 {
		claims["scopes"] = scopes
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyToken reports whether raw is a valid, unexpired access token signed
// with secret and issued by issuer. Used by the WebSocket upgrade path
// (spec.md §4.1), which authenticates outside the ordinary provider chain.
func VerifyToken(secret, issuer, raw string) bool {
	if raw == "" {
		return false
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	return err == nil && parsed.Valid
}
