package gateway

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"time"
)

// HTTPCaller is the HTTP-backed implementation of contracts.OriginCaller,
// used by the dispatcher to invoke a resolved service endpoint.
type HTTPCaller struct {
	client *http.Client
}

// NewHTTPCaller constructs a caller with spec.md §4.3's dispatch budgets: a
// 5s connect timeout and a 30s total-request timeout.
func NewHTTPCaller() *HTTPCaller {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	return &HTTPCaller{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   5 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
}

// Call invokes endpoint with payload as the request body and returns the
// response status and body.
func (c *HTTPCaller) Call(ctx context.Context, endpoint string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, newReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func newReader(payload []byte) io.Reader {
	if payload == nil {
		return http.NoBody
	}
	return bytes.NewReader(payload)
}
