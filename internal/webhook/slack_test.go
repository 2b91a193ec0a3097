package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackroad-os/edge-router/pkg/models"
)

func slackSignatureHeader(secret string, ts int64, body []byte) string {
	basestring := fmt.Sprintf("v0:%d:%s", ts, body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(basestring))
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestSlackProviderVerifyAcceptsFreshSignature(t *testing.T) {
	p := NewSlackProvider()
	body := []byte(`{"type":"event_callback"}`)
	ts := time.Now().Unix()
	headers := http.Header{}
	headers.Set("X-Slack-Request-Timestamp", strconv.FormatInt(ts, 10))
	headers.Set("X-Slack-Signature", slackSignatureHeader("s3cr3t", ts, body))

	ok, err := p.Verify(body, headers, "s3cr3t")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSlackProviderVerifyRejectsReplayedTimestamp(t *testing.T) {
	p := NewSlackProvider()
	body := []byte(`{"type":"event_callback"}`)
	ts := time.Now().Add(-10 * time.Minute).Unix()
	headers := http.Header{}
	headers.Set("X-Slack-Request-Timestamp", strconv.FormatInt(ts, 10))
	headers.Set("X-Slack-Signature", slackSignatureHeader("s3cr3t", ts, body))

	_, err := p.Verify(body, headers, "s3cr3t")
	assert.ErrorIs(t, err, ErrTimestampExpired)
}

func TestSlackProviderParseEmitsGenericWebhookSignal(t *testing.T) {
	p := NewSlackProvider()
	body := []byte(`{"type":"event_callback"}`)

	sig, err := p.Parse(body, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, models.SignalWebhookReceived, sig.Type)
	assert.Equal(t, "OS", sig.Target)
}
