// Package auth implements the gateway's pluggable authentication chain:
// bearer JWT, API key, then session cookie, tried in that order
// (spec.md §4.1).
package auth

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/blackroad-os/edge-router/pkg/contracts"
)

// Chain implements contracts.AuthProviderChain, walking registered
// providers in order until one returns an Identity.
type Chain struct {
	mu        sync.RWMutex
	providers []contracts.AuthProvider
}

// NewChain creates an empty auth provider chain.
func NewChain() *Chain {
	return &Chain{providers: make([]contracts.AuthProvider, 0)}
}

// RegisterProvider adds a provider to the end of the chain. Providers are
// tried in registration order (JWT, then API key, then session cookie).
func (c *Chain) RegisterProvider(provider contracts.AuthProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers = append(c.providers, provider)
	log.Info().Str("provider", provider.Name()).Bool("enabled", provider.Enabled()).Msg("auth provider registered")
}

// Authenticate walks the chain. Contract: (*Identity, nil) stops and
// authenticates; (nil, nil) tries the next provider; (nil, error) rejects
// immediately (spec.md §4.1 — invalid credential fails fast).
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) (*contracts.Identity, error) {
	c.mu.RLock()
	providers := make([]contracts.AuthProvider, len(c.providers))
	copy(providers, c.providers)
	c.mu.RUnlock()

	for _, p := range providers {
		if !p.Enabled() {
			continue
		}
		identity, err := p.Authenticate(ctx, r)
		if err != nil {
			log.Debug().Str("provider", p.Name()).Err(err).Msg("auth provider rejected request")
			return nil, err
		}
		if identity != nil {
			log.Debug().Str("provider", p.Name()).Str("subject", identity.Subject).Msg("request authenticated")
			return identity, nil
		}
	}
	return nil, nil
}

// ListProviders returns the names of all registered providers.
func (c *Chain) ListProviders() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}
