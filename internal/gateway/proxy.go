package gateway

import (
	"context"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// origin names the backend pools the gateway fronts (spec.md §6). Three
// are defined: primary, storage and agents. There is no separate compute
// pool; the job and agent prefixes below all resolve to agents.
type origin string

const (
	originPrimary origin = "primary"
	originStorage origin = "storage"
	originAgents  origin = "agents"
)

// pathPrefixOrigins is the declarative path-to-origin map from spec.md §6.
// Prefixes are tried in table order and the first match wins.
var pathPrefixOrigins = []struct {
	prefix string
	origin origin
}{
	{"/v1/route", originPrimary},
	{"/v1/bridge", originPrimary},
	{"/v1/signals", originPrimary},
	{"/v1/metrics", originPrimary},
	{"/v1/storage", originStorage},
	{"/v1/db", originStorage},
	{"/v1/edu/", originStorage},
	{"/v1/arc/", originStorage},
	{"/v1/ai/agents", originAgents},
	{"/v1/int/", originAgents},
	{"/v1/med/", originAgents},
	{"/v1/stu/", originAgents},
	{"/v1/lab/", originAgents},
	{"/v1/jobs", originAgents},
}

// originForPath resolves a request path to its backend pool, or ok=false if
// no prefix matches (ServeHTTP then answers 404 no_origin).
func originForPath(path string) (origin, bool) {
	for _, p := range pathPrefixOrigins {
		if strings.HasPrefix(path, p.prefix) {
			return p.origin, true
		}
	}
	return "", false
}

// Proxy dispatches requests to one of the three origin pools by path prefix,
// stripping the caller's Authorization header and replacing it with an
// internal service token, per spec.md §4.1.
type Proxy struct {
	internalToken string
	pools         map[origin]*httputil.ReverseProxy
}

// NewProxy constructs a Proxy. poolTargets maps each origin name to its
// upstream base URL.
func NewProxy(internalToken string, poolTargets map[string]string) (*Proxy, error) {
	pools := make(map[origin]*httputil.ReverseProxy, len(poolTargets))
	for name, target := range poolTargets {
		u, err := url.Parse(target)
		if err != nil {
			return nil, err
		}
		rp := httputil.NewSingleHostReverseProxy(u)
		dialer := &net.Dialer{Timeout: 15 * time.Second}
		rp.Transport = &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 15 * time.Second,
		}
		pools[origin(name)] = rp
	}
	return &Proxy{internalToken: internalToken, pools: pools}, nil
}

// ServeHTTP resolves the request's origin pool and forwards it. It replies
// 404 no_origin when no prefix matches the path, and 502
// origin_unreachable when the resolved origin has no pool configured.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	dest, ok := originForPath(r.URL.Path)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no_origin"})
		return
	}
	rp, ok := p.pools[dest]
	if !ok {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "origin_unreachable"})
		return
	}

	r.Header.Del("Authorization")
	if p.internalToken != "" {
		r.Header.Set("Authorization", "Bearer "+p.internalToken)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	log.Debug().Str("origin", string(dest)).Str("path", r.URL.Path).Msg("gateway: proxying request")
	rp.ServeHTTP(w, r.WithContext(ctx))
}
