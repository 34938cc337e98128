package adapters

import "testing"

func TestParseTelegramUpdateText(t *testing.T) {
	update := telegramUpdate{
		UpdateID: 123456,
		Message: &telegramMessage{
			MessageID: 42,
			Date:      1700000000,
			Text:      "Hello, agent!",
		},
	}
	update.Message.From.ID = 111222333
	update.Message.From.FirstName = "Alice"
	update.Message.From.LastName = "Smith"
	update.Message.Chat.ID = 111222333
	update.Message.Chat.Type = "private"

	msg, ok := parseTelegramUpdate(update, nil)
	if !ok {
		t.Fatal("expected message to parse")
	}
	if msg.Sender.DisplayName != "Alice Smith" {
		t.Fatalf("DisplayName = %q", msg.Sender.DisplayName)
	}
	if msg.Sender.PlatformID != "111222333" {
		t.Fatalf("PlatformID = %q", msg.Sender.PlatformID)
	}
	if msg.Content.Text != "Hello, agent!" {
		t.Fatalf("Content.Text = %q", msg.Content.Text)
	}
}

func TestParseTelegramUpdateCommand(t *testing.T) {
	update := telegramUpdate{
		UpdateID: 123457,
		Message: &telegramMessage{
			MessageID: 43,
			Date:      1700000001,
			Text:      "/agent hello-world",
		},
	}
	update.Message.From.ID = 111222333
	update.Message.From.FirstName = "Alice"
	update.Message.Chat.ID = 111222333
	update.Message.Chat.Type = "private"
	update.Message.Entities = []struct {
		Type   string `json:"type"`
		Offset int64  `json:"offset"`
		Length int64  `json:"length"`
	}{{Type: "bot_command", Offset: 0, Length: 6}}

	msg, ok := parseTelegramUpdate(update, nil)
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

func TestParseTelegramUpdateAllowedUsersFilter(t *testing.T) {
	update := telegramUpdate{
		UpdateID: 123458,
		Message: &telegramMessage{
			MessageID: 44,
			Date:      1700000002,
			Text:      "blocked",
		},
	}
	update.Message.From.ID = 999
	update.Message.From.FirstName = "Bob"
	update.Message.Chat.ID = 999
	update.Message.Chat.Type = "private"

	if _, ok := parseTelegramUpdate(update, nil); !ok {
		t.Fatal("expected empty allow-list to allow all")
	}
	if _, ok := parseTelegramUpdate(update, []int64{111, 222}); ok {
		t.Fatal("expected non-matching allow-list to filter out")
	}
	if _, ok := parseTelegramUpdate(update, []int64{999}); !ok {
		t.Fatal("expected matching allow-list to allow")
	}
}

func TestParseTelegramUpdateEditedMessage(t *testing.T) {
	update := telegramUpdate{
		UpdateID: 123459,
		EditedMessage: &telegramMessage{
			MessageID: 42,
			Date:      1700000000,
			Text:      "Edited message!",
		},
	}
	update.EditedMessage.From.ID = 111222333
	update.EditedMessage.From.FirstName = "Alice"
	update.EditedMessage.From.LastName = "Smith"
	update.EditedMessage.Chat.ID = 111222333
	update.EditedMessage.Chat.Type = "private"

	msg, ok := parseTelegramUpdate(update, nil)
	if !ok {
		t.Fatal("expected message to parse")
	}
	if msg.Content.Text != "Edited message!" {
		t.Fatalf("Content.Text = %q", msg.Content.Text)
	}
}

func TestParseTelegramUpdateCommandStripsBotName(t *testing.T) {
	update := telegramUpdate{
		UpdateID: 100,
		Message: &telegramMessage{
			MessageID: 1,
			Date:      1700000000,
			Text:      "/agents@myopenfangbot",
		},
	}
	update.Message.From.ID = 123
	update.Message.From.FirstName = "X"
	update.Message.Chat.ID = 123
	update.Message.Chat.Type = "private"
	update.Message.Entities = []struct {
		Type   string `json:"type"`
		Offset int64  `json:"offset"`
		Length int64  `json:"length"`
	}{{Type: "bot_command", Offset: 0, Length: 17}}

	msg, ok := parseTelegramUpdate(update, nil)
	if !ok {
		t.Fatal("expected message to parse")
	}
	if msg.Content.CommandName != "agents" {
		t.Fatalf("CommandName = %q", msg.Content.CommandName)
	}
	if len(msg.Content.CommandArgs) != 0 {
		t.Fatalf("CommandArgs = %v, want empty", msg.Content.CommandArgs)
	}
}
