// Package peerwire implements OFP, the local peer-to-peer wire protocol
// OpenFang nodes use to discover each other's agents and relay messages
// between them. Frames are a 4-byte big-endian length prefix followed by a
// UTF-8 JSON body; the body is a discriminated union over request and
// response messages.
package peerwire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameBytes caps a single frame's body size to guard against a
// misbehaving or malicious peer claiming an unbounded length prefix.
const MaxFrameBytes = 16 * 1024 * 1024

// Method names recognised by the peer wire server.
const (
	MethodHello       = "peer/hello"
	MethodAgentsList  = "peer/agents/list"
	MethodMessageSend = "agent/message/send"
	MethodMessageAck  = "agent/message/ack"
)

// Request is the request half of a wire frame.
type Request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the response half of a wire frame, correlated to a Request by ID.
type Response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// wireEnvelope is the wire-level shape: exactly one of Request/Response is
// present, distinguished by the "kind" tag.
type wireEnvelope struct {
	Kind     string    `json:"kind"`
	Request  *Request  `json:"request,omitempty"`
	Response *Response `json:"response,omitempty"`
}

// WriteFrame encodes v (a *Request or *Response) and writes it as one
// length-prefixed frame.
func WriteFrame(w io.Writer, v interface{}) error {
	var env wireEnvelope
	switch m := v.(type) {
	case *Request:
		env = wireEnvelope{Kind: "request", Request: m}
	case *Response:
		env = wireEnvelope{Kind: "response", Response: m}
	default:
		return fmt.Errorf("peerwire: unsupported frame type %T", v)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("peerwire: marshal frame: %w", err)
	}
	if len(body) > MaxFrameBytes {
		return fmt.Errorf("peerwire: frame too large (%d bytes)", len(body))
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFrame reads one length-prefixed frame and returns the Request or
// Response it carried (exactly one will be non-nil).
func ReadFrame(r io.Reader) (*Request, *Response, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameBytes {
		return nil, nil, fmt.Errorf("peerwire: frame too large (%d bytes)", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	var env wireEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, fmt.Errorf("peerwire: unmarshal frame: %w", err)
	}
	switch env.Kind {
	case "request":
		if env.Request == nil {
			return nil, nil, fmt.Errorf("peerwire: request envelope missing body")
		}
		return env.Request, nil, nil
	case "response":
		if env.Response == nil {
			return nil, nil, fmt.Errorf("peerwire: response envelope missing body")
		}
		return nil, env.Response, nil
	default:
		return nil, nil, fmt.Errorf("peerwire: unknown frame kind %q", env.Kind)
	}
}

// HelloParams is the payload of a peer/hello request: the caller's token and
// self-description.
type HelloParams struct {
	Token       string `json:"token"`
	PeerAddress string `json:"peer_address"`
}

// HelloResult acknowledges a successful handshake.
type HelloResult struct {
	OK     bool   `json:"ok"`
	PeerID string `json:"peer_id"`
}

// RemoteAgent describes one agent a peer is offering to relay messages to.
type RemoteAgent struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AgentsListResult is the response to peer/agents/list.
type AgentsListResult struct {
	Agents []RemoteAgent `json:"agents"`
}

// MessageSendParams is the payload of agent/message/send.
type MessageSendParams struct {
	Agent string `json:"agent"`
	From  string `json:"from"`
	Text  string `json:"text"`
	MsgID string `json:"msg_id"`
}

// MessageAckParams is the payload of agent/message/ack.
type MessageAckParams struct {
	MsgID string `json:"msg_id"`
}
