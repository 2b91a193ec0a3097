// Package webhook implements the provider registry that verifies and
// parses inbound webhook deliveries into canonical signals (spec.md §4.4).
package webhook

import (
	"errors"
	"net/http"
	"sync"

	"github.com/blackroad-os/edge-router/pkg/contracts"
)

// ErrTimestampExpired is returned by a provider's Verify when the
// webhook's claimed timestamp is outside the 300s replay window. The
// handler maps it to 403 timestamp_expired instead of the generic
// invalid_signature response.
var ErrTimestampExpired = errors.New("webhook: timestamp outside replay window")

// Registry holds the set of named webhook providers (spec.md §4.4:
// github, stripe, salesforce, slack, cloudflare, google, figma).
type Registry struct {
	mu        sync.RWMutex
	providers map[string]contracts.WebhookProvider
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]contracts.WebhookProvider)}
}

// Register adds a provider under its own Name().
func (r *Registry) Register(p contracts.WebhookProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Resolve picks a provider. If hint is non-empty it bypasses CanHandle and
// selects that provider directly (spec.md §4.4 — provider_hint query
// parameter); otherwise the first provider whose CanHandle matches wins.
func (r *Registry) Resolve(hint string, headers http.Header) (contracts.WebhookProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if hint != "" {
		p, ok := r.providers[hint]
		return p, ok
	}
	for _, p := range r.providers {
		if p.CanHandle(headers) {
			return p, true
		}
	}
	return nil, false
}

// ByName looks up a provider by its exact name, without CanHandle
// sniffing. The webhook Handler routes through Resolve, not ByName.
func (r *Registry) ByName(name string) (contracts.WebhookProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}
