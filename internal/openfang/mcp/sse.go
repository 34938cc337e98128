package mcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openfang/openfang/internal/openfang/guard"
)

// sseTransport posts each JSON-RPC frame to an HTTP endpoint and reads the
// matching response from the body of the same request, mirroring the
// stdio transport's one-frame-in, one-frame-out contract over net/http.
// Every request is routed through guard.CheckSSRF so a malicious or
// compromised server registration can't be used to probe internal
// infrastructure.
type sseTransport struct {
	endpoint string
	client   *http.Client
	ssrf     guard.SSRFOptions
}

// SSEServerConfig describes a remote MCP server reachable over HTTP(S).
type SSEServerConfig struct {
	Name     string
	Endpoint string
	Timeout  time.Duration
	SSRF     guard.SSRFOptions
}

// NewSSEClient performs the MCP handshake against a remote HTTP endpoint.
func NewSSEClient(ctx context.Context, cfg SSEServerConfig) (*Client, error) {
	if err := guard.CheckSSRF(cfg.Endpoint, cfg.SSRF); err != nil {
		return nil, fmt.Errorf("mcp: sse server %q: %w", cfg.Name, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	tr := &sseTransport{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
		ssrf:     cfg.SSRF,
	}
	return connect(ctx, cfg.Name, tr)
}

func (t *sseTransport) RoundTrip(ctx context.Context, reqLine []byte) ([]byte, error) {
	if err := guard.CheckSSRF(t.endpoint, t.ssrf); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(reqLine))
	if err != nil {
		return nil, fmt.Errorf("mcp: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mcp: sse round trip: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mcp: read sse response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mcp: sse server returned %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return body, nil
}

func (t *sseTransport) SendNotification(ctx context.Context, line []byte) error {
	_, err := t.RoundTrip(ctx, line)
	return err
}

func (t *sseTransport) Close() error { return nil }
