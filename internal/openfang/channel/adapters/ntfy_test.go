package adapters

import "testing"

func TestNewNtfyDefaultServerURL(t *testing.T) {
	a := NewNtfy(NtfyConfig{Topic: "alerts"})
	if a.cfg.ServerURL != ntfyDefaultServer {
		t.Fatalf("ServerURL = %q, want %q", a.cfg.ServerURL, ntfyDefaultServer)
	}
}

func TestNewNtfyCustomServerURLTrimsTrailingSlash(t *testing.T) {
	a := NewNtfy(NtfyConfig{ServerURL: "https://ntfy.example.com/", Topic: "alerts"})
	if a.cfg.ServerURL != "https://ntfy.example.com" {
		t.Fatalf("ServerURL = %q, want trailing slash trimmed", a.cfg.ServerURL)
	}
}

func TestParseNtfySSEDataMessageEvent(t *testing.T) {
	data := `{"id":"abc123","time":1700000000,"event":"message","topic":"alerts","message":"hello there","title":"Agent"}`
	msg, ok := parseNtfySSEData(data, "alerts")
	if !ok {
		t.Fatal("expected message event to parse")
	}
	if msg.Content.Text != "hello there" {
		t.Fatalf("Content.Text = %q", msg.Content.Text)
	}
	if msg.Sender.DisplayName != "Agent" {
		t.Fatalf("DisplayName = %q", msg.Sender.DisplayName)
	}
	if msg.PlatformMessageID != "abc123" {
		t.Fatalf("PlatformMessageID = %q", msg.PlatformMessageID)
	}
}

func TestParseNtfySSEDataNoTitleDefaultsSenderName(t *testing.T) {
	data := `{"id":"abc124","time":1700000000,"event":"message","topic":"alerts","message":"hi"}`
	msg, ok := parseNtfySSEData(data, "alerts")
	if !ok {
		t.Fatal("expected message event to parse")
	}
	if msg.Sender.DisplayName != "ntfy-user" {
		t.Fatalf("DisplayName = %q, want default", msg.Sender.DisplayName)
	}
}

func TestParseNtfySSEDataKeepaliveEventFiltered(t *testing.T) {
	data := `{"id":"abc125","time":1700000000,"event":"keepalive","topic":"alerts"}`
	if _, ok := parseNtfySSEData(data, "alerts"); ok {
		t.Fatal("expected keepalive event to be filtered")
	}
}

func TestParseNtfySSEDataOpenEventFiltered(t *testing.T) {
	data := `{"id":"abc126","time":1700000000,"event":"open","topic":"alerts"}`
	if _, ok := parseNtfySSEData(data, "alerts"); ok {
		t.Fatal("expected open event to be filtered")
	}
}

func TestParseNtfySSEDataEmptyMessageFiltered(t *testing.T) {
	data := `{"id":"abc127","time":1700000000,"event":"message","topic":"alerts","message":""}`
	if _, ok := parseNtfySSEData(data, "alerts"); ok {
		t.Fatal("expected empty message to be filtered")
	}
}

func TestParseNtfySSEDataInvalidJSON(t *testing.T) {
	if _, ok := parseNtfySSEData("not json", "alerts"); ok {
		t.Fatal("expected invalid JSON to be rejected")
	}
}

func TestParseNtfySSEDataCommand(t *testing.T) {
	data := `{"id":"abc128","time":1700000000,"event":"message","topic":"alerts","message":"/agent hello-world"}`
	msg, ok := parseNtfySSEData(data, "alerts")
	if !ok {
		t.Fatal("expected message event to parse")
	}
	if msg.Content.CommandName != "agent" {
		t.Fatalf("CommandName = %q", msg.Content.CommandName)
	}
	if len(msg.Content.CommandArgs) != 1 || msg.Content.CommandArgs[0] != "hello-world" {
		t.Fatalf("CommandArgs = %v", msg.Content.CommandArgs)
	}
}
