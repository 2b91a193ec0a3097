package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedSecretProvidersVerifyValidSignature(t *testing.T) {
	cases := []struct {
		name     string
		provider interface {
			Name() string
			CanHandle(http.Header) bool
			Verify([]byte, http.Header, string) (bool, error)
		}
		header string
	}{
		{"salesforce", NewSalesforceProvider(), "X-Salesforce-Signature"},
		{"google", NewGoogleProvider(), "X-Goog-Signature"},
		{"figma", NewFigmaProvider(), "X-Figma-Signature"},
		{"cloudflare", NewCloudflareProvider(), "X-Cloudflare-Signature"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := []byte(`{"ok":true}`)
			mac := hmac.New(sha256.New, []byte("s3cr3t"))
			mac.Write(body)
			sig := hex.EncodeToString(mac.Sum(nil))

			headers := http.Header{}
			headers.Set(tc.header, sig)

			assert.True(t, tc.provider.CanHandle(headers))
			assert.Equal(t, tc.name, tc.provider.Name())

			ok, err := tc.provider.Verify(body, headers, "s3cr3t")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestSharedSecretProviderRejectsMissingSignature(t *testing.T) {
	p := NewGoogleProvider()
	_, err := p.Verify([]byte(`{}`), http.Header{}, "s3cr3t")
	assert.Error(t, err)
}

func TestSharedSecretProviderRejectsBadSignature(t *testing.T) {
	p := NewFigmaProvider()
	headers := http.Header{}
	headers.Set("X-Figma-Signature", "deadbeef")

	ok, err := p.Verify([]byte(`{}`), headers, "s3cr3t")
	require.NoError(t, err)
	assert.False(t, ok)
}
