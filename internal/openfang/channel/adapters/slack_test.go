package adapters

import (
	"encoding/json"
	"testing"
)

func newTestSlack(botUserID string, allowed []string) *Slack {
	return &Slack{
		cfg:       SlackConfig{AllowedChannels: allowed},
		botUserID: botUserID,
	}
}

func TestParseSlackEventBasic(t *testing.T) {
	a := newTestSlack("B123", nil)
	raw, _ := json.Marshal(map[string]interface{}{
		"type": "message", "user": "U456", "channel": "C789",
		"text": "Hello agent!", "ts": "1700000000.000100",
	})
	msg, ok := a.parseSlackEvent(raw)
	if !ok {
		t.Fatal("expected message to parse")
	}
	if msg.Sender.PlatformID != "C789" {
		t.Fatalf("PlatformID = %q", msg.Sender.PlatformID)
	}
	if msg.Content.Text != "Hello agent!" {
		t.Fatalf("Content.Text = %q", msg.Content.Text)
	}
}

func TestParseSlackEventFiltersBot(t *testing.T) {
	a := newTestSlack("B123", nil)
	raw, _ := json.Marshal(map[string]interface{}{
		"type": "message", "user": "U456", "channel": "C789",
		"text": "bot message", "ts": "1700000000.000100", "bot_id": "B999",
	})
	if _, ok := a.parseSlackEvent(raw); ok {
		t.Fatal("expected bot message to be filtered")
	}
}

func TestParseSlackEventFiltersOwnUser(t *testing.T) {
	a := newTestSlack("U456", nil)
	raw, _ := json.Marshal(map[string]interface{}{
		"type": "message", "user": "U456", "channel": "C789",
		"text": "my message", "ts": "1700000000.000100",
	})
	if _, ok := a.parseSlackEvent(raw); ok {
		t.Fatal("expected own message to be filtered")
	}
}

func TestParseSlackEventChannelFilter(t *testing.T) {
	raw, _ := json.Marshal(map[string]interface{}{
		"type": "message", "user": "U456", "channel": "C789",
		"text": "hello", "ts": "1700000000.000100",
	})

	a := newTestSlack("", []string{"C111", "C222"})
	if _, ok := a.parseSlackEvent(raw); ok {
		t.Fatal("expected message outside allow-list to be filtered")
	}

	a2 := newTestSlack("", []string{"C789"})
	if _, ok := a2.parseSlackEvent(raw); !ok {
		t.Fatal("expected message inside allow-list to pass")
	}
}

func TestParseSlackEventSkipsOtherSubtypes(t *testing.T) {
	a := newTestSlack("", nil)
	raw, _ := json.Marshal(map[string]interface{}{
		"type": "message", "subtype": "channel_join", "user": "U456",
		"channel": "C789", "text": "joined", "ts": "1700000000.000100",
	})
	if _, ok := a.parseSlackEvent(raw); ok {
		t.Fatal("expected non-message_changed subtype to be filtered")
	}
}

func TestParseSlackCommand(t *testing.T) {
	a := newTestSlack("", nil)
	raw, _ := json.Marshal(map[string]interface{}{
		"type": "message", "user": "U456", "channel": "C789",
		"text": "/agent hello-world", "ts": "1700000000.000100",
	})
	msg, ok := a.parseSlackEvent(raw)
	if !ok {
		t.Fatal("expected message to parse")
	}
	if msg.Content.CommandName != "agent" {
		t.Fatalf("CommandName = %q", msg.Content.CommandName)
	}
	if len(msg.Content.CommandArgs) != 1 || msg.Content.CommandArgs[0] != "hello-world" {
		t.Fatalf("CommandArgs = %v", msg.Content.CommandArgs)
	}
}

func TestParseSlackEventMessageChanged(t *testing.T) {
	a := newTestSlack("B123", nil)
	raw, _ := json.Marshal(map[string]interface{}{
		"type": "message", "subtype": "message_changed", "channel": "C789",
		"message": map[string]interface{}{
			"user": "U456", "text": "edited message text", "ts": "1700000000.000100",
		},
		"ts": "1700000001.000200",
	})
	msg, ok := a.parseSlackEvent(raw)
	if !ok {
		t.Fatal("expected message to parse")
	}
	if msg.Content.Text != "edited message text" {
		t.Fatalf("Content.Text = %q", msg.Content.Text)
	}
}
