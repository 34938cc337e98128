package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// transport performs one JSON-RPC round trip: write reqLine, return the
// matching response bytes. A connection serialises requests to one in
// flight at a time; callers that need parallelism open multiple
// connections instead. Notifications (no reply expected) go through
// SendNotification instead.
type transport interface {
	RoundTrip(ctx context.Context, reqLine []byte) ([]byte, error)
	SendNotification(ctx context.Context, line []byte) error
	Close() error
}

// Client is a single MCP server connection, namespaced under ServerName for
// tool discovery.
type Client struct {
	ServerName string

	tr     transport
	nextID atomic.Int64
	mu     sync.Mutex // serialises the one-in-flight-at-a-time rule

	discovered []Tool
}

// connect performs the initialize/initialized handshake shared by both
// transports.
func connect(ctx context.Context, serverName string, tr transport) (*Client, error) {
	c := &Client{ServerName: serverName, tr: tr}

	var initResult InitializeResult
	if err := c.call(ctx, "initialize", InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCaps{},
		ClientInfo:      ClientInfo{Name: "openfang", Version: "1"},
	}, &initResult); err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp: initialize %q: %w", serverName, err)
	}

	notif, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "notifications/initialized",
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp: marshal initialized notification: %w", err)
	}
	if err := tr.SendNotification(ctx, notif); err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp: send initialized notification: %w", err)
	}

	slog.Info("mcp server ready", "server", serverName,
		"remote_name", initResult.ServerInfo.Name, "remote_version", initResult.ServerInfo.Version)
	return c, nil
}

// DiscoverTools calls tools/list and caches the result.
func (c *Client) DiscoverTools(ctx context.Context) ([]Tool, error) {
	var result ListToolsResult
	if err := c.call(ctx, "tools/list", nil, &result); err != nil {
		return nil, err
	}
	c.discovered = result.Tools
	return result.Tools, nil
}

// NamespacedTools returns the discovered tools' local names
// (mcp_{server}_{tool}, both parts lower-cased with "-" -> "_") mapped to
// their raw server-side tool name.
func (c *Client) NamespacedTools() map[string]string {
	out := make(map[string]string, len(c.discovered))
	for _, t := range c.discovered {
		out[NamespacedToolName(c.ServerName, t.Name)] = t.Name
	}
	return out
}

// NamespacedToolName builds the mcp_{server}_{tool} local tool name.
func NamespacedToolName(server, tool string) string {
	return "mcp_" + normalise(server) + "_" + normalise(tool)
}

func normalise(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "-", "_")
}

// CallNamespacedTool strips the mcp_{server}_ prefix and invokes tools/call
// with the raw tool name, returning the concatenation of all text-typed
// content items.
func (c *Client) CallNamespacedTool(ctx context.Context, namespacedName string, args map[string]interface{}) (string, error) {
	prefix := "mcp_" + normalise(c.ServerName) + "_"
	if !strings.HasPrefix(namespacedName, prefix) {
		return "", fmt.Errorf("mcp: %q is not namespaced under server %q", namespacedName, c.ServerName)
	}
	rawName, ok := c.NamespacedTools()[namespacedName]
	if !ok {
		rawName = strings.TrimPrefix(namespacedName, prefix)
	}

	for _, t := range c.discovered {
		if t.Name == rawName {
			if err := ValidateArguments(t, args); err != nil {
				return "", err
			}
			break
		}
	}

	var result CallToolResult
	if err := c.call(ctx, "tools/call", CallToolParams{Name: rawName, Arguments: args}, &result); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, item := range result.Content {
		if item.Type == "text" {
			sb.WriteString(item.Text)
		}
	}
	return sb.String(), nil
}

// Close shuts down the underlying transport (subprocess for stdio, HTTP
// client for SSE — a no-op Close, since the SSE transport holds no
// persistent connection).
func (c *Client) Close() error {
	return c.tr.Close()
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID.Add(1)
	req := Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("mcp: marshal request: %w", err)
	}

	respBytes, err := c.tr.RoundTrip(ctx, data)
	if err != nil {
		return fmt.Errorf("mcp: %s: %w", method, err)
	}

	var resp Response
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return fmt.Errorf("mcp: unmarshal response to %s: %w", method, err)
	}
	if resp.ID != id {
		return fmt.Errorf("mcp: response id %d does not match request id %d", resp.ID, id)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	b, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("mcp: re-marshal result: %w", err)
	}
	return json.Unmarshal(b, result)
}
