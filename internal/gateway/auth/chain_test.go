package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackroad-os/edge-router/pkg/contracts"
)

type stubProvider struct {
	name     string
	enabled  bool
	identity *contracts.Identity
	err      error
}

func (s *stubProvider) Name() string  { return s.name }
func (s *stubProvider) Enabled() bool { return s.enabled }
func (s *stubProvider) Authenticate(context.Context, *http.Request) (*contracts.Identity, error) {
	return s.identity, s.err
}

func TestChainStopsAtFirstIdentity(t *testing.T) {
	chain := NewChain()
	chain.RegisterProvider(&stubProvider{name: "first", enabled: true, identity: nil})
	chain.RegisterProvider(&stubProvider{name: "second", enabled: true, identity: &contracts.Identity{Subject: "u1"}})
	chain.RegisterProvider(&stubProvider{name: "third", enabled: true, identity: &contracts.Identity{Subject: "u2"}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	identity, err := chain.Authenticate(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "u1", identity.Subject)
}

func TestChainSkipsDisabledProviders(t *testing.T) {
	chain := NewChain()
	chain.RegisterProvider(&stubProvider{name: "disabled", enabled: false, identity: &contracts.Identity{Subject: "should-not-fire"}})
	chain.RegisterProvider(&stubProvider{name: "enabled", enabled: true, identity: &contracts.Identity{Subject: "u1"}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	identity, err := chain.Authenticate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.Subject)
}

func TestChainRejectsImmediatelyOnError(t *testing.T) {
	chain := NewChain()
	chain.RegisterProvider(&stubProvider{name: "bad", enabled: true, err: assert.AnError})
	chain.RegisterProvider(&stubProvider{name: "good", enabled: true, identity: &contracts.Identity{Subject: "u1"}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	identity, err := chain.Authenticate(context.Background(), req)
	assert.Error(t, err)
	assert.Nil(t, identity)
}

func TestChainReturnsNilWhenNoProviderMatches(t *testing.T) {
	chain := NewChain()
	chain.RegisterProvider(&stubProvider{name: "a", enabled: true})
	chain.RegisterProvider(&stubProvider{name: "b", enabled: true})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	identity, err := chain.Authenticate(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, identity)
}

func TestChainListProviders(t *testing.T) {
	chain := NewChain()
	chain.RegisterProvider(&stubProvider{name: "jwt", enabled: true})
	chain.RegisterProvider(&stubProvider{name: "apikey", enabled: true})
	chain.RegisterProvider(&stubProvider{name: "session", enabled: false})

	assert.Equal(t, []string{"jwt", "apikey", "session"}, chain.ListProviders())
}
