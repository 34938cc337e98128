package adapters

import "testing"

func TestNewViberTrimsWebhookURL(t *testing.T) {
	a := NewViber(ViberConfig{AuthToken: "tok", WebhookURL: "https://example.com/viber/webhook/", WebhookPort: 8443})
	if a.cfg.WebhookURL != "https://example.com/viber/webhook" {
		t.Fatalf("WebhookURL = %q", a.cfg.WebhookURL)
	}
}

func TestNewViberDefaultSenderName(t *testing.T) {
	a := NewViber(ViberConfig{AuthToken: "tok", WebhookURL: "https://example.com", WebhookPort: 8443})
	if a.cfg.SenderName != viberDefaultSender {
		t.Fatalf("SenderName = %q, want %q", a.cfg.SenderName, viberDefaultSender)
	}
}

func TestNewViberCustomSender(t *testing.T) {
	a := NewViber(ViberConfig{
		AuthToken: "tok", WebhookURL: "https://example.com", WebhookPort: 8443,
		SenderName: "MyBot", SenderAvatar: "https://example.com/avatar.png",
	})
	if a.cfg.SenderName != "MyBot" {
		t.Fatalf("SenderName = %q", a.cfg.SenderName)
	}
	if a.cfg.SenderAvatar != "https://example.com/avatar.png" {
		t.Fatalf("SenderAvatar = %q", a.cfg.SenderAvatar)
	}
}

func TestParseViberEventTextMessage(t *testing.T) {
	event := map[string]interface{}{
		"event":         "message",
		"message_token": float64(4912661846655238145),
		"sender": map[string]interface{}{
			"id":     "01234567890A=",
			"name":   "Alice",
			"avatar": "https://example.com/avatar.jpg",
		},
		"message": map[string]interface{}{
			"type": "text",
			"text": "Hello from Viber!",
		},
	}

	msg, ok := parseViberEvent(event)
	if !ok {
		t.Fatal("expected message to parse")
	}
	if msg.Sender.DisplayName != "Alice" {
		t.Fatalf("DisplayName = %q", msg.Sender.DisplayName)
	}
	if msg.Sender.PlatformID != "01234567890A=" {
		t.Fatalf("PlatformID = %q", msg.Sender.PlatformID)
	}
	if msg.IsGroup {
		t.Fatal("expected IsGroup = false")
	}
	if msg.Content.Text != "Hello from Viber!" {
		t.Fatalf("Content.Text = %q", msg.Content.Text)
	}
}

func TestParseViberEventCommand(t *testing.T) {
	event := map[string]interface{}{
		"event":         "message",
		"message_token": float64(123),
		"sender": map[string]interface{}{
			"id":   "sender-1",
			"name": "Bob",
		},
		"message": map[string]interface{}{
			"type": "text",
			"text": "/help agents",
		},
	}

	msg, ok := parseViberEvent(event)
	if !ok {
		t.Fatal("expected message to parse")
	}
	if msg.Content.CommandName != "help" {
		t.Fatalf("CommandName = %q", msg.Content.CommandName)
	}
	if len(msg.Content.CommandArgs) != 1 || msg.Content.CommandArgs[0] != "agents" {
		t.Fatalf("CommandArgs = %v", msg.Content.CommandArgs)
	}
}

func TestParseViberEventNonMessage(t *testing.T) {
	event := map[string]interface{}{
		"event":         "delivered",
		"message_token": float64(123),
		"user_id":       "user-1",
	}
	if _, ok := parseViberEvent(event); ok {
		t.Fatal("expected non-message event to be filtered")
	}
}

func TestParseViberEventNonText(t *testing.T) {
	event := map[string]interface{}{
		"event":         "message",
		"message_token": float64(123),
		"sender": map[string]interface{}{
			"id":   "sender-1",
			"name": "Bob",
		},
		"message": map[string]interface{}{
			"type":  "picture",
			"media": "https://example.com/image.jpg",
		},
	}
	if _, ok := parseViberEvent(event); ok {
		t.Fatal("expected non-text message to be filtered")
	}
}

func TestParseViberEventEmptyText(t *testing.T) {
	event := map[string]interface{}{
		"event":         "message",
		"message_token": float64(123),
		"sender": map[string]interface{}{
			"id":   "sender-1",
			"name": "Bob",
		},
		"message": map[string]interface{}{
			"type": "text",
			"text": "",
		},
	}
	if _, ok := parseViberEvent(event); ok {
		t.Fatal("expected empty text to be filtered")
	}
}
