package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/openfang/openfang/internal/openfang/guard"
)

// Client talks to one remote A2A peer's JSON-RPC endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	ssrf    guard.SSRFOptions
	nextID  atomic.Int64
}

// NewClient builds a Client for the peer whose agent.json / JSON-RPC
// endpoint lives under baseURL (e.g. "https://peer.example.com").
func NewClient(baseURL string, ssrf guard.SSRFOptions) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		ssrf:    ssrf,
	}
}

// FetchAgentCard retrieves the peer's /.well-known/agent.json.
func (c *Client) FetchAgentCard(ctx context.Context) (*AgentCard, error) {
	url := c.baseURL + "/.well-known/agent.json"
	if err := guard.CheckSSRF(url, c.ssrf); err != nil {
		return nil, fmt.Errorf("a2a: agent card url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("a2a: build agent card request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("a2a: fetch agent card: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("a2a: agent card fetch returned %s", resp.Status)
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("a2a: decode agent card: %w", err)
	}
	return &card, nil
}

// SendTask creates a new remote task carrying msg, optionally inside
// sessionID, and returns the task as the peer initially reports it.
func (c *Client) SendTask(ctx context.Context, sessionID string, msg Message) (*Task, error) {
	var task Task
	if err := c.call(ctx, "tasks/send", tasksSendParams{SessionID: sessionID, Message: msg}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask polls the remote task's current status.
func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	var task Task
	if err := c.call(ctx, "tasks/get", taskIDParams{ID: id}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CancelTask requests cancellation of the remote task.
func (c *Client) CancelTask(ctx context.Context, id string) (*Task, error) {
	var task Task
	if err := c.call(ctx, "tasks/cancel", taskIDParams{ID: id}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) (err error) {
	ctx, span := startClientSpan(ctx, method)
	defer func() { endSpan(span, err) }()

	url := c.baseURL + "/a2a"
	if err := guard.CheckSSRF(url, c.ssrf); err != nil {
		return fmt.Errorf("a2a: rpc url: %w", err)
	}

	paramBytes, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("a2a: marshal params: %w", err)
	}
	id := c.nextID.Add(1)
	idBytes, _ := json.Marshal(id)

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      idBytes,
		Method:  method,
		Params:  paramBytes,
	})
	if err != nil {
		return fmt.Errorf("a2a: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("a2a: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	injectTraceHeaders(ctx, httpReq.Header)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("a2a: %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("a2a: read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("a2a: unmarshal response to %s: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("a2a: %s: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if result == nil {
		return nil
	}
	b, err := json.Marshal(rpcResp.Result)
	if err != nil {
		return fmt.Errorf("a2a: re-marshal result: %w", err)
	}
	return json.Unmarshal(b, result)
}
