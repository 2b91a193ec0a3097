package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackroad-os/edge-router/internal/signalbus"
	"github.com/blackroad-os/edge-router/pkg/models"
)

func TestHubRejectsUnknownRoom(t *testing.T) {
	bus := signalbus.NewBus("")
	hub := NewHub(bus, func(string) bool { return true }, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/ws?room=bogus&token=t", nil)
	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHubRejectsInvalidToken(t *testing.T) {
	bus := signalbus.NewBus("")
	hub := NewHub(bus, func(string) bool { return false }, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/ws?room=signals&token=bad", nil)
	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHubStreamsPublishedSignalToSubscriber(t *testing.T) {
	bus := signalbus.NewBus("")
	hub := NewHub(bus, func(token string) bool { return token == "good" }, nil)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):] + "/v1/ws?room=signals&token=good"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		return hub.ConnectionCount() == 1
	}, time.Second, 10*time.Millisecond)

	bus.Publish(context.Background(), "signals", signalFixture())

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), "custom.test")
}

func signalFixture() models.Signal {
	return models.Signal{ID: "sig-1", Type: "custom.test", Source: "test", Timestamp: 0}
}

func TestWSTokenPrefersSubprotocolOverQueryParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/ws?"+url.Values{"token": {"query-token"}}.Encode(), nil)
	req.Header.Set("Sec-WebSocket-Protocol", "subproto-token, other")
	assert.Equal(t, "subproto-token", wsToken(req))
}

func TestWSTokenFallsBackToQueryParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/ws?token=query-token", nil)
	assert.Equal(t, "query-token", wsToken(req))
}
