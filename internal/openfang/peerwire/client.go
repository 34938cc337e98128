package peerwire

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

// Client is a peer wire connection to a remote OpenFang node. Requests are
// correlated to responses by id via a pending-request map, mirroring the
// read-loop pattern every request/response transport in this module uses.
type Client struct {
	conn net.Conn

	nextID atomic.Uint64

	pendMu  sync.Mutex
	pending map[uint64]chan *Response

	writeMu sync.Mutex
}

// Dial connects to a peer wire server at addr and performs the hello
// handshake with token.
func Dial(ctx context.Context, addr, token string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("peerwire dial %s: %w", addr, err)
	}

	c := &Client{conn: conn, pending: make(map[uint64]chan *Response)}
	go c.readLoop()

	var hello HelloResult
	if err := c.call(ctx, MethodHello, HelloParams{Token: token}, &hello); err != nil {
		c.Close()
		return nil, fmt.Errorf("peerwire hello: %w", err)
	}
	if !hello.OK {
		c.Close()
		return nil, fmt.Errorf("peerwire hello: rejected by %s", addr)
	}
	return c, nil
}

// Close shuts down the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// ListAgents asks the peer for the agents it currently offers.
func (c *Client) ListAgents(ctx context.Context) ([]RemoteAgent, error) {
	var result AgentsListResult
	if err := c.call(ctx, MethodAgentsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Agents, nil
}

// SendMessage relays text to a named agent on the peer.
func (c *Client) SendMessage(ctx context.Context, params MessageSendParams) error {
	return c.call(ctx, MethodMessageSend, params, nil)
}

// Ack acknowledges receipt of a message by id.
func (c *Client) Ack(ctx context.Context, msgID string) error {
	return c.call(ctx, MethodMessageAck, MessageAckParams{MsgID: msgID}, nil)
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	id := c.nextID.Add(1)

	var raw json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("peerwire: marshal params: %w", err)
		}
		raw = encoded
	}

	ch := make(chan *Response, 1)
	c.pendMu.Lock()
	c.pending[id] = ch
	c.pendMu.Unlock()

	c.writeMu.Lock()
	err := WriteFrame(c.conn, &Request{ID: id, Method: method, Params: raw})
	c.writeMu.Unlock()
	if err != nil {
		c.pendMu.Lock()
		delete(c.pending, id)
		c.pendMu.Unlock()
		return fmt.Errorf("peerwire: write request: %w", err)
	}

	select {
	case <-ctx.Done():
		c.pendMu.Lock()
		delete(c.pending, id)
		c.pendMu.Unlock()
		return ctx.Err()
	case resp := <-ch:
		if resp.Error != "" {
			return fmt.Errorf("peerwire: %s", resp.Error)
		}
		if result == nil || len(resp.Result) == 0 {
			return nil
		}
		return json.Unmarshal(resp.Result, result)
	}
}

func (c *Client) readLoop() {
	for {
		_, resp, err := ReadFrame(c.conn)
		if err != nil {
			c.drainPending(err)
			return
		}
		if resp == nil {
			continue // a well-behaved peer never sends us a Request
		}

		c.pendMu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.pendMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Client) drainPending(cause error) {
	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	for id, ch := range c.pending {
		ch <- &Response{ID: id, Error: fmt.Sprintf("peerwire: connection closed: %v", cause)}
	}
	c.pending = make(map[uint64]chan *Response)
	slog.Debug("peerwire: client read loop ended", "error", cause)
}
