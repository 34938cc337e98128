package wasmsandbox

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeDispatcher struct {
	called bool
}

func (f *fakeDispatcher) RequiredCapability(method string, params json.RawMessage) (CapabilityKind, string) {
	if method == "fs_read" {
		return CapFSRead, "/workspace"
	}
	return CapLogging, ""
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, agentID, method string, params json.RawMessage) (json.RawMessage, error) {
	f.called = true
	return json.RawMessage(`{"data":"ok"}`), nil
}

func TestDispatchHostCallDeniesWithoutCapability(t *testing.T) {
	disp := &fakeDispatcher{}
	inst := &Instance{AgentID: "agent-1", Capabilities: nil, Dispatcher: disp}

	req, _ := json.Marshal(hostCallRequest{Method: "fs_read", Params: json.RawMessage(`{"path":"/workspace/x"}`)})
	resp := dispatchHostCall(context.Background(), inst, req)

	var out map[string]string
	if err := json.Unmarshal(resp, &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if out["error"] != "fs_read denied" {
		t.Fatalf("got %v, want fs_read denied", out)
	}
	if disp.called {
		t.Fatal("Dispatch must not be called on capability denial (no side effects)")
	}
}

func TestDispatchHostCallAllowsWithCapability(t *testing.T) {
	disp := &fakeDispatcher{}
	inst := &Instance{
		AgentID:      "agent-1",
		Capabilities: Set{{Kind: CapFSRead, Scope: "/workspace"}},
		Dispatcher:   disp,
	}

	req, _ := json.Marshal(hostCallRequest{Method: "fs_read", Params: json.RawMessage(`{"path":"/workspace/x"}`)})
	resp := dispatchHostCall(context.Background(), inst, req)

	var out map[string]json.RawMessage
	if err := json.Unmarshal(resp, &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if _, ok := out["ok"]; !ok {
		t.Fatalf("expected ok field in response, got %s", resp)
	}
	if !disp.called {
		t.Fatal("expected Dispatch to be called")
	}
}
