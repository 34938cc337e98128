package a2a

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// rpcRequest/rpcResponse mirror the JSON-RPC 2.0 envelope used by the MCP
// client, since both protocols share the same wire shape.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RouteRegistrar is satisfied by *http.ServeMux, allowing Server to mount
// its routes without the caller handing over a whole http.Server.
type RouteRegistrar interface {
	Handle(pattern string, handler http.Handler)
}

// Server exposes a local agent's Agent Card and task store over HTTP:
// GET /.well-known/agent.json and POST /a2a (JSON-RPC 2.0: tasks/send,
// tasks/get, tasks/cancel).
type Server struct {
	Card  AgentCard
	Store *Store
}

// NewServer constructs a Server backed by store, serving card at
// /.well-known/agent.json. Returns an error if card.Skills fails the Agent
// Card skill schema.
func NewServer(card AgentCard, store *Store) (*Server, error) {
	if err := ValidateSkills(card.Skills); err != nil {
		return nil, fmt.Errorf("a2a: invalid agent card: %w", err)
	}
	return &Server{Card: card, Store: store}, nil
}

// RegisterRoutes mounts the Agent Card and JSON-RPC endpoints on r.
func (s *Server) RegisterRoutes(r RouteRegistrar) {
	r.Handle("/.well-known/agent.json", http.HandlerFunc(s.handleAgentCard))
	r.Handle("/a2a", http.HandlerFunc(s.handleRPC))
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Card); err != nil {
		slog.Error("a2a: encode agent card", "error", err)
	}
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, nil, -32700, "parse error")
		return
	}

	ctx := extractTraceContext(r.Context(), r.Header)
	_, span := startServerSpan(ctx, req.Method)

	result, rpcErr := s.dispatch(req.Method, req.Params)
	if rpcErr != nil {
		endSpan(span, fmt.Errorf("%s (code %d)", rpcErr.Message, rpcErr.Code))
		writeRPCError(w, req.ID, rpcErr.Code, rpcErr.Message)
		return
	}
	endSpan(span, nil)
	writeRPCResult(w, req.ID, result)
}

func (s *Server) dispatch(method string, params json.RawMessage) (interface{}, *rpcError) {
	switch method {
	case "tasks/send":
		return s.handleTasksSend(params)
	case "tasks/get":
		return s.handleTasksGet(params)
	case "tasks/cancel":
		return s.handleTasksCancel(params)
	default:
		return nil, &rpcError{Code: -32601, Message: "method not found: " + method}
	}
}

type tasksSendParams struct {
	SessionID string  `json:"sessionId,omitempty"`
	Message   Message `json:"message"`
}

func (s *Server) handleTasksSend(raw json.RawMessage) (interface{}, *rpcError) {
	var params tasksSendParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &rpcError{Code: -32602, Message: "invalid params: " + err.Error()}
	}

	t := &Task{
		ID:        uuid.NewString(),
		SessionID: params.SessionID,
		Status:    StatusSubmitted,
		Messages:  []Message{params.Message},
	}
	s.Store.Put(t)
	return t, nil
}

type taskIDParams struct {
	ID string `json:"id"`
}

func (s *Server) handleTasksGet(raw json.RawMessage) (interface{}, *rpcError) {
	var params taskIDParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &rpcError{Code: -32602, Message: "invalid params: " + err.Error()}
	}
	t, err := s.Store.Get(params.ID)
	if err != nil {
		return nil, &rpcError{Code: -32001, Message: err.Error()}
	}
	return t, nil
}

func (s *Server) handleTasksCancel(raw json.RawMessage) (interface{}, *rpcError) {
	var params taskIDParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &rpcError{Code: -32602, Message: "invalid params: " + err.Error()}
	}
	t, err := s.Store.Cancel(params.ID)
	if err != nil {
		return nil, &rpcError{Code: -32002, Message: err.Error()}
	}
	return t, nil
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}
