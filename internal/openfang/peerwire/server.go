package peerwire

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/openfang/openfang/internal/openfang/channel/transport"
)

// Handlers bundles the callbacks the peer wire server delegates to.
type Handlers struct {
	// Token is the shared secret incoming peers must present on hello.
	Token string
	// LocalAgents returns the agents this node currently offers.
	LocalAgents func() []RemoteAgent
	// DeliverMessage is invoked for agent/message/send; the returned error,
	// if any, is surfaced to the sender as the response's Error field.
	DeliverMessage func(params MessageSendParams) error
	// Acknowledge is invoked for agent/message/ack.
	Acknowledge func(params MessageAckParams)
}

// Server accepts peer wire connections on a TCP port.
type Server struct {
	addr     string
	handlers Handlers
	registry *Registry

	listener net.Listener
}

// NewServer returns a Server that will listen on addr once Start is called.
// ttl configures how long a peer may go silent before Registry.Sweep evicts
// it.
func NewServer(addr string, h Handlers, ttl time.Duration) *Server {
	return &Server{addr: addr, handlers: h, registry: NewRegistry(ttl)}
}

// Registry exposes the peer registry so callers can query or sweep it.
func (s *Server) Registry() *Registry { return s.registry }

// Start binds the listener and begins accepting connections in the
// background. It returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("peerwire listen %s: %w", s.addr, err)
	}
	s.listener = ln
	slog.Info("peerwire server listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				slog.Warn("peerwire: accept error", "error", err)
				return
			}
			go s.handleConn(ctx, conn)
		}
	}()
	return nil
}

// Stop closes the listener.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	address := conn.RemoteAddr().String()
	helloed := false

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req, _, err := ReadFrame(conn)
		if err != nil {
			return
		}

		resp := s.dispatch(address, req, &helloed)
		if err := WriteFrame(conn, resp); err != nil {
			slog.Warn("peerwire: write response failed", "peer", address, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(address string, req *Request, helloed *bool) *Response {
	if req.Method != MethodHello && !*helloed {
		return errorResponse(req.ID, "peerwire: hello required before any other call")
	}

	switch req.Method {
	case MethodHello:
		var params HelloParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, "peerwire: malformed hello params")
		}
		if !transport.VerifyToken(params.Token, s.handlers.Token) {
			return errorResponse(req.ID, "auth failed")
		}
		*helloed = true
		s.registry.Touch(address, HashToken(params.Token))
		return resultResponse(req.ID, HelloResult{OK: true, PeerID: address})

	case MethodAgentsList:
		var agents []RemoteAgent
		if s.handlers.LocalAgents != nil {
			agents = s.handlers.LocalAgents()
		}
		return resultResponse(req.ID, AgentsListResult{Agents: agents})

	case MethodMessageSend:
		var params MessageSendParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, "peerwire: malformed message/send params")
		}
		if s.handlers.DeliverMessage != nil {
			if err := s.handlers.DeliverMessage(params); err != nil {
				return errorResponse(req.ID, err.Error())
			}
		}
		return resultResponse(req.ID, struct{}{})

	case MethodMessageAck:
		var params MessageAckParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, "peerwire: malformed message/ack params")
		}
		if s.handlers.Acknowledge != nil {
			s.handlers.Acknowledge(params)
		}
		return resultResponse(req.ID, struct{}{})

	default:
		return errorResponse(req.ID, fmt.Sprintf("peerwire: unknown method %q", req.Method))
	}
}

func resultResponse(id uint64, v interface{}) *Response {
	raw, err := json.Marshal(v)
	if err != nil {
		return errorResponse(id, "peerwire: marshal result: "+err.Error())
	}
	return &Response{ID: id, Result: raw}
}

func errorResponse(id uint64, msg string) *Response {
	return &Response{ID: id, Error: msg}
}
