// Package a2a implements the Agent-to-Agent task protocol: an Agent Card
// publication endpoint, a bounded local task store, a JSON-RPC 2.0 inbound
// server, and an outbound client for talking to remote A2A peers.
package a2a

import "time"

// TaskStatus is the lifecycle state of an A2A task.
type TaskStatus string

const (
	StatusSubmitted     TaskStatus = "Submitted"
	StatusWorking       TaskStatus = "Working"
	StatusInputRequired TaskStatus = "InputRequired"
	StatusCompleted     TaskStatus = "Completed"
	StatusCancelled     TaskStatus = "Cancelled"
	StatusFailed        TaskStatus = "Failed"
)

// Terminal reports whether status is one no further transition leaves.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// Message is one turn of an A2A task's conversation.
type Message struct {
	Role  string `json:"role"` // "user" or "agent"
	Parts []Part `json:"parts"`
}

// Part is a single content fragment of a Message.
type Part struct {
	Type string `json:"type"` // "text" for now
	Text string `json:"text,omitempty"`
}

// Artifact is a named output a task produced.
type Artifact struct {
	Name  string `json:"name"`
	Parts []Part `json:"parts"`
}

// Task is the full A2A task record.
type Task struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId,omitempty"`
	Status    TaskStatus `json:"status"`
	Messages  []Message  `json:"messages,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Capabilities advertises the optional A2A features this agent supports.
// OpenFang never implements streaming or push notifications, so both are
// always false; state-transition history is available since the task store
// keeps each task's Messages.
type Capabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

// Skill describes one callable capability exposed through this agent's
// Agent Card. Distinct from a WASM plugin's own "skill" concept — an A2A
// Skill is a description for a remote peer, not an executable unit.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// AgentCard is served as JSON at /.well-known/agent.json.
type AgentCard struct {
	Name               string       `json:"name"`
	Description        string       `json:"description,omitempty"`
	URL                string       `json:"url"`
	Version            string       `json:"version"`
	Capabilities       Capabilities `json:"capabilities"`
	Skills             []Skill      `json:"skills"`
	DefaultInputModes  []string     `json:"defaultInputModes"`
	DefaultOutputModes []string     `json:"defaultOutputModes"`
}
