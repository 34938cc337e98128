package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openfang/openfang/internal/openfang/channel"
	"github.com/openfang/openfang/internal/openfang/channel/transport"
)

const (
	telegramAPIBase       = "https://api.telegram.org/bot"
	telegramLongPollSecs  = 30
	telegramRequestExtra  = 10 * time.Second
	telegramTextLimit     = 4096
	telegramPollIdleSleep = 500 * time.Millisecond
)

// TelegramConfig configures a Telegram Bot API adapter.
type TelegramConfig struct {
	Token        string
	AllowedUsers []int64 // empty means allow all
}

// telegramOutboundRate and telegramOutboundBurst hold outbound calls to 25
// messages/second with a burst of 5, under the Bot API's documented global
// ceiling of ~30 messages/second.
const (
	telegramOutboundRate  = 25
	telegramOutboundBurst = 5
)

// Telegram bridges a Telegram bot account into the channel.Adapter contract
// using the getUpdates long-poll endpoint directly over net/http, without an
// intermediate Telegram client library.
type Telegram struct {
	cfg     TelegramConfig
	client  *http.Client
	limiter *transport.RateLimiter

	mu       sync.Mutex
	stopCh   chan struct{}
	outbound chan channel.Message
	started  bool
}

// NewTelegram constructs a Telegram adapter. It does not contact the API
// until Start is called.
func NewTelegram(cfg TelegramConfig) *Telegram {
	return &Telegram{
		cfg:     cfg,
		client:  &http.Client{},
		limiter: transport.NewRateLimiter(telegramOutboundRate, telegramOutboundBurst),
	}
}

func (a *Telegram) Name() string            { return "telegram" }
func (a *Telegram) ChannelType() channel.Tag { return channel.Telegram }

func (a *Telegram) apiURL(method string) string {
	return telegramAPIBase + a.cfg.Token + "/" + method
}

// validateToken calls getMe to fail fast on a bad token before starting the
// poll loop.
func (a *Telegram) validateToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiURL("getMe"), nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		OK     bool `json:"ok"`
		Result struct {
			Username string `json:"username"`
		} `json:"result"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if !body.OK {
		return "", fmt.Errorf("telegram getMe failed: %s", body.Description)
	}
	return body.Result.Username, nil
}

func (a *Telegram) Start(ctx context.Context) (<-chan channel.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return a.outbound, nil
	}

	botName, err := a.validateToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}
	slog.Info("telegram adapter: connected", "bot", botName)

	a.outbound = make(chan channel.Message, 256)
	a.stopCh = make(chan struct{})
	a.started = true

	pollCtx, cancel := context.WithCancel(ctx)
	go func(stopCh <-chan struct{}) {
		select {
		case <-stopCh:
		case <-pollCtx.Done():
		}
		cancel()
	}(a.stopCh)
	go transport.RunLongPoll(pollCtx, "telegram", "0", a.pollOnce)
	return a.outbound, nil
}

func (a *Telegram) pollOnce(ctx context.Context, cursor string) (string, error) {
	offset, _ := strconv.ParseInt(cursor, 10, 64)

	params := map[string]interface{}{
		"timeout":         telegramLongPollSecs,
		"allowed_updates": []string{"message", "edited_message"},
	}
	if offset != 0 {
		params["offset"] = offset
	}
	body, err := json.Marshal(params)
	if err != nil {
		return cursor, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, telegramLongPollSecs*time.Second+telegramRequestExtra)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, a.apiURL("getUpdates"), bytes.NewReader(body))
	if err != nil {
		return cursor, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return cursor, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		var rl struct {
			Parameters struct {
				RetryAfter int64 `json:"retry_after"`
			} `json:"parameters"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&rl)
		retryAfter := rl.Parameters.RetryAfter
		if retryAfter == 0 {
			retryAfter = 5
		}
		slog.Warn("telegram adapter: rate limited", "retry_after_s", retryAfter)
		time.Sleep(time.Duration(retryAfter) * time.Second)
		return cursor, nil
	}
	if resp.StatusCode == http.StatusConflict {
		return cursor, fmt.Errorf("telegram getUpdates 409 conflict: another instance is polling")
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return cursor, fmt.Errorf("telegram getUpdates failed (%d): %s", resp.StatusCode, respBody)
	}

	var result struct {
		OK     bool              `json:"ok"`
		Result []json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return cursor, err
	}
	if !result.OK {
		time.Sleep(telegramPollIdleSleep)
		return cursor, nil
	}

	nextOffset := offset
	for _, raw := range result.Result {
		var update telegramUpdate
		if err := json.Unmarshal(raw, &update); err != nil {
			continue
		}
		if update.UpdateID+1 > nextOffset {
			nextOffset = update.UpdateID + 1
		}

		msg, ok := parseTelegramUpdate(update, a.cfg.AllowedUsers)
		if !ok {
			continue
		}
		select {
		case a.outbound <- msg:
		case <-ctx.Done():
			return strconv.FormatInt(nextOffset, 10), ctx.Err()
		}
	}

	time.Sleep(telegramPollIdleSleep)
	return strconv.FormatInt(nextOffset, 10), nil
}

type telegramUpdate struct {
	UpdateID      int64            `json:"update_id"`
	Message       *telegramMessage `json:"message"`
	EditedMessage *telegramMessage `json:"edited_message"`
}

type telegramMessage struct {
	MessageID int64  `json:"message_id"`
	From      struct {
		ID        int64  `json:"id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"from"`
	Chat struct {
		ID   int64  `json:"id"`
		Type string `json:"type"`
	} `json:"chat"`
	Date     int64  `json:"date"`
	Text     string `json:"text"`
	Entities []struct {
		Type   string `json:"type"`
		Offset int64  `json:"offset"`
		Length int64  `json:"length"`
	} `json:"entities"`
}

func parseTelegramUpdate(update telegramUpdate, allowedUsers []int64) (channel.Message, bool) {
	m := update.Message
	if m == nil {
		m = update.EditedMessage
	}
	if m == nil || m.Text == "" {
		return channel.Message{}, false
	}

	if len(allowedUsers) > 0 {
		allowed := false
		for _, u := range allowedUsers {
			if u == m.From.ID {
				allowed = true
				break
			}
		}
		if !allowed {
			slog.Debug("telegram adapter: ignoring message from unlisted user", "user_id", m.From.ID)
			return channel.Message{}, false
		}
	}

	displayName := m.From.FirstName
	if m.From.LastName != "" {
		displayName = m.From.FirstName + " " + m.From.LastName
	}
	isGroup := m.Chat.Type == "group" || m.Chat.Type == "supergroup"

	content := channel.Content{Kind: channel.ContentText, Text: m.Text}
	for _, e := range m.Entities {
		if e.Type == "bot_command" && e.Offset == 0 {
			parts := strings.SplitN(m.Text, " ", 2)
			name := strings.TrimPrefix(parts[0], "/")
			if at := strings.IndexByte(name, '@'); at >= 0 {
				name = name[:at]
			}
			var args []string
			if len(parts) > 1 {
				args = strings.Fields(parts[1])
			}
			content = channel.Content{Kind: channel.ContentCommand, CommandName: name, CommandArgs: args}
			break
		}
	}

	return channel.Message{
		Channel:           channel.Telegram,
		PlatformMessageID: strconv.FormatInt(m.MessageID, 10),
		Sender: channel.User{
			PlatformID:  strconv.FormatInt(m.Chat.ID, 10),
			DisplayName: displayName,
		},
		Content:   content,
		Timestamp: time.Unix(m.Date, 0),
		IsGroup:   isGroup,
	}, true
}

func (a *Telegram) Send(ctx context.Context, target channel.User, content channel.Content) error {
	for _, chunk := range channel.SplitText(content.Text, telegramTextLimit) {
		if err := a.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("telegram adapter: rate limit: %w", err)
		}
		body, _ := json.Marshal(map[string]interface{}{
			"chat_id": target.PlatformID,
			"text":    chunk,
		})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL("sendMessage"), bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := a.client.Do(req)
		if err != nil {
			return fmt.Errorf("telegram adapter: send: %w", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("telegram adapter: sendMessage returned %d", resp.StatusCode)
		}
	}
	return nil
}

func (a *Telegram) SendTyping(ctx context.Context, target channel.User) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram adapter: rate limit: %w", err)
	}
	body, _ := json.Marshal(map[string]interface{}{
		"chat_id": target.PlatformID,
		"action":  "typing",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL("sendChatAction"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (a *Telegram) SendInThread(ctx context.Context, target channel.User, content channel.Content, threadID string) error {
	return a.Send(ctx, target, content)
}

func (a *Telegram) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	close(a.stopCh)
	a.started = false
	return nil
}
