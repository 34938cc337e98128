package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openfang/openfang/internal/openfang/channel"
	"github.com/openfang/openfang/internal/openfang/channel/transport"
)

const (
	slackAPIBase  = "https://slack.com/api"
	slackMsgLimit = 3000
)

// SlackConfig configures a Slack Socket Mode adapter.
type SlackConfig struct {
	AppToken        string // xapp- token, used for Socket Mode connection
	BotToken        string // xoxb- token, used for the Web API
	AllowedChannels []string
}

// Slack bridges a Slack workspace app into the channel.Adapter contract
// using Socket Mode (WebSocket) for receiving events and the Web API for
// sending responses, without an intermediate Slack client library.
type Slack struct {
	cfg    SlackConfig
	client *http.Client

	mu        sync.Mutex
	botUserID string
	stopCh    chan struct{}
	outbound  chan channel.Message
	started   bool
}

// NewSlack constructs a Slack adapter. It does not connect until Start is
// called.
func NewSlack(cfg SlackConfig) *Slack {
	return &Slack{cfg: cfg, client: &http.Client{}}
}

func (a *Slack) Name() string            { return "slack" }
func (a *Slack) ChannelType() channel.Tag { return channel.Slack }

func (a *Slack) validateBotToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, slackAPIBase+"/auth.test", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.BotToken)
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		OK     bool   `json:"ok"`
		UserID string `json:"user_id"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if !body.OK {
		return "", fmt.Errorf("slack auth.test failed: %s", body.Error)
	}
	return body.UserID, nil
}

func (a *Slack) getSocketModeURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, slackAPIBase+"/apps.connections.open", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.AppToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		OK    bool   `json:"ok"`
		URL   string `json:"url"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if !body.OK {
		return "", fmt.Errorf("slack apps.connections.open failed: %s", body.Error)
	}
	if body.URL == "" {
		return "", fmt.Errorf("slack apps.connections.open: missing url in response")
	}
	return body.URL, nil
}

func (a *Slack) Start(ctx context.Context) (<-chan channel.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return a.outbound, nil
	}

	botUserID, err := a.validateBotToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack adapter: %w", err)
	}
	a.botUserID = botUserID
	slog.Info("slack adapter: authenticated", "bot_user_id", botUserID)

	a.outbound = make(chan channel.Message, 256)
	a.stopCh = make(chan struct{})
	a.started = true

	go a.run(ctx)
	return a.outbound, nil
}

func (a *Slack) run(ctx context.Context) {
	backoff := transport.NewBackoff(time.Second, 60*time.Second)
	for {
		select {
		case <-a.stopCh:
			return
		default:
		}

		wsURL, err := a.getSocketModeURL(ctx)
		if err != nil {
			slog.Warn("slack adapter: failed to get socket mode url, retrying", "error", err)
			if !a.sleepOrStop(backoff.Next()) {
				return
			}
			continue
		}

		transport.RunWebSocket(ctx, "slack", wsURL, websocket.DefaultDialer, nil, a.handleConn)
		select {
		case <-a.stopCh:
			return
		default:
		}
		if !a.sleepOrStop(backoff.Next()) {
			return
		}
	}
}

func (a *Slack) sleepOrStop(d time.Duration) bool {
	select {
	case <-a.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

func (a *Slack) handleConn(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-a.stopCh:
			conn.Close()
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err != nil {
			slog.Warn("slack adapter: failed to parse envelope", "error", err)
			continue
		}
		var envType string
		json.Unmarshal(envelope["type"], &envType)

		switch envType {
		case "hello":
			slog.Debug("slack adapter: socket mode hello received")

		case "events_api":
			var envelopeID string
			json.Unmarshal(envelope["envelope_id"], &envelopeID)
			if envelopeID != "" {
				ack, _ := json.Marshal(map[string]string{"envelope_id": envelopeID})
				if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
					return fmt.Errorf("ack write failed: %w", err)
				}
			}

			var payload struct {
				Payload struct {
					Event json.RawMessage `json:"event"`
				} `json:"payload"`
			}
			if err := json.Unmarshal(raw, &payload); err != nil {
				continue
			}
			msg, ok := a.parseSlackEvent(payload.Payload.Event)
			if !ok {
				continue
			}
			select {
			case a.outbound <- msg:
			case <-a.stopCh:
				return nil
			}

		case "disconnect":
			var reason string
			json.Unmarshal(envelope["reason"], &reason)
			slog.Info("slack adapter: disconnect request", "reason", reason)
			return fmt.Errorf("server requested disconnect: %s", reason)

		default:
			slog.Debug("slack adapter: envelope", "type", envType)
		}
	}
}

func (a *Slack) parseSlackEvent(raw json.RawMessage) (channel.Message, bool) {
	var event struct {
		Type    string `json:"type"`
		Subtype string `json:"subtype"`
		User    string `json:"user"`
		Channel string `json:"channel"`
		Text    string `json:"text"`
		TS      string `json:"ts"`
		BotID   string `json:"bot_id"`
		Message *struct {
			User string `json:"user"`
			Text string `json:"text"`
			TS   string `json:"ts"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &event); err != nil || event.Type != "message" {
		return channel.Message{}, false
	}

	isEdit := event.Subtype == "message_changed"
	if event.Subtype != "" && !isEdit {
		return channel.Message{}, false
	}

	userID, text, ts := event.User, event.Text, event.TS
	if isEdit {
		if event.Message == nil {
			return channel.Message{}, false
		}
		userID, text, ts = event.Message.User, event.Message.Text, event.Message.TS
	}

	if event.BotID != "" {
		return channel.Message{}, false
	}
	a.mu.Lock()
	botUserID := a.botUserID
	a.mu.Unlock()
	if botUserID != "" && userID == botUserID {
		return channel.Message{}, false
	}
	if event.Channel == "" {
		return channel.Message{}, false
	}
	if len(a.cfg.AllowedChannels) > 0 {
		allowed := false
		for _, c := range a.cfg.AllowedChannels {
			if c == event.Channel {
				allowed = true
				break
			}
		}
		if !allowed {
			return channel.Message{}, false
		}
	}
	if text == "" {
		return channel.Message{}, false
	}

	timestamp := time.Now()
	if epochStr := strings.SplitN(ts, ".", 2)[0]; epochStr != "" {
		if epoch, err := strconv.ParseInt(epochStr, 10, 64); err == nil {
			timestamp = time.Unix(epoch, 0)
		}
	}

	content := channel.Content{Kind: channel.ContentText, Text: text}
	if cmd, ok := channel.ParseCommand(text, "/"); ok {
		content = cmd
	}

	return channel.Message{
		Channel:           channel.Slack,
		PlatformMessageID: ts,
		Sender: channel.User{
			PlatformID:  event.Channel,
			DisplayName: userID,
		},
		Content:   content,
		Timestamp: timestamp,
		IsGroup:   true,
	}, true
}

func (a *Slack) Send(ctx context.Context, target channel.User, content channel.Content) error {
	for _, chunk := range channel.SplitText(content.Text, slackMsgLimit) {
		body, _ := json.Marshal(map[string]string{
			"channel": target.PlatformID,
			"text":    chunk,
		})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, slackAPIBase+"/chat.postMessage", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+a.cfg.BotToken)
		req.Header.Set("Content-Type", "application/json")
		resp, err := a.client.Do(req)
		if err != nil {
			return fmt.Errorf("slack adapter: send: %w", err)
		}
		var respBody struct {
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&respBody)
		resp.Body.Close()
		if !respBody.OK {
			slog.Warn("slack adapter: chat.postMessage failed", "error", respBody.Error)
		}
	}
	return nil
}

func (a *Slack) SendTyping(ctx context.Context, target channel.User) error {
	return nil // Slack Socket Mode has no typing-indicator API used here
}

func (a *Slack) SendInThread(ctx context.Context, target channel.User, content channel.Content, threadID string) error {
	return a.Send(ctx, target, content)
}

func (a *Slack) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	close(a.stopCh)
	a.started = false
	return nil
}
