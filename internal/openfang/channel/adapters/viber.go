package adapters

import (
	"bytes"
	"context"
	"encoding/hex"
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

// readLimited reads the request body capped at n bytes, used for webhook
// payloads that arrive without a signature to verify against.
func readLimited(r *http.Request, n int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, n))
}

const (
	viberSetWebhookURL    = "https://chatapi.viber.com/pa/set_webhook"
	viberSendMessageURL   = "https://chatapi.viber.com/pa/send_message"
	viberAccountInfoURL   = "https://chatapi.viber.com/pa/get_account_info"
	viberMaxMessageLen    = 7000
	viberDefaultSender    = "OpenFang"
	viberSignatureHeader  = "X-Viber-Content-Signature"
	viberWebhookReadLimit = 1 << 20
)

// ViberConfig configures a Viber Bot API webhook adapter.
type ViberConfig struct {
	AuthToken    string
	WebhookURL   string // public URL Viber will POST events to
	WebhookPort  int
	SenderName   string // defaults to viberDefaultSender
	SenderAvatar string // optional
}

// Viber bridges a Viber Bot API account into the channel.Adapter contract.
// Inbound events arrive over an HTTP webhook server registered with Viber on
// Start; outbound messages go through the send_message REST endpoint,
// authenticated with the X-Viber-Auth-Token header on every call.
type Viber struct {
	cfg    ViberConfig
	client *http.Client

	mu       sync.Mutex
	server   *http.Server
	stopCh   chan struct{}
	outbound chan channel.Message
	started  bool
}

// NewViber constructs a Viber adapter. It does not contact the API or bind
// the webhook listener until Start is called.
func NewViber(cfg ViberConfig) *Viber {
	cfg.WebhookURL = strings.TrimRight(cfg.WebhookURL, "/")
	if cfg.SenderName == "" {
		cfg.SenderName = viberDefaultSender
	}
	return &Viber{cfg: cfg, client: &http.Client{}}
}

func (a *Viber) Name() string            { return "viber" }
func (a *Viber) ChannelType() channel.Tag { return channel.Viber }

func (a *Viber) authorize(req *http.Request) {
	req.Header.Set("X-Viber-Auth-Token", a.cfg.AuthToken)
}

func (a *Viber) validate(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, viberAccountInfoURL, nil)
	if err != nil {
		return "", err
	}
	a.authorize(req)
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Status        int    `json:"status"`
		StatusMessage string `json:"status_message"`
		Name          string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Status != 0 {
		return "", fmt.Errorf("viber get_account_info error: %s", body.StatusMessage)
	}
	if body.Name == "" {
		body.Name = "Viber Bot"
	}
	return body.Name, nil
}

func (a *Viber) registerWebhook(ctx context.Context) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"url": a.cfg.WebhookURL,
		"event_types": []string{
			"delivered", "seen", "failed", "subscribed",
			"unsubscribed", "conversation_started", "message",
		},
		"send_name":  true,
		"send_photo": true,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, viberSetWebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	a.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body struct {
		Status        int    `json:"status"`
		StatusMessage string `json:"status_message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}
	if body.Status != 0 {
		return fmt.Errorf("viber set_webhook error: %s", body.StatusMessage)
	}
	slog.Info("viber adapter: webhook registered", "url", a.cfg.WebhookURL)
	return nil
}

func (a *Viber) Start(ctx context.Context) (<-chan channel.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return a.outbound, nil
	}

	botName, err := a.validate(ctx)
	if err != nil {
		return nil, fmt.Errorf("viber adapter: %w", err)
	}
	slog.Info("viber adapter: authenticated", "bot", botName)

	if err := a.registerWebhook(ctx); err != nil {
		return nil, fmt.Errorf("viber adapter: %w", err)
	}

	a.outbound = make(chan channel.Message, 256)
	a.stopCh = make(chan struct{})
	a.started = true

	mux := http.NewServeMux()
	mux.HandleFunc("/viber/webhook", a.handleWebhook)
	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.WebhookPort),
		Handler: mux,
	}

	go func() {
		slog.Info("viber adapter: webhook server listening", "port", a.cfg.WebhookPort)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Warn("viber adapter: webhook server error", "error", err)
		}
	}()

	return a.outbound, nil
}

func (a *Viber) handleWebhook(w http.ResponseWriter, r *http.Request) {
	signatureHex := r.Header.Get(viberSignatureHeader)
	var body []byte
	var err error
	if signatureHex != "" {
		sig, decodeErr := hex.DecodeString(signatureHex)
		if decodeErr != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, err = transport.VerifyHMACSignature(r, []byte(a.cfg.AuthToken), string(sig))
		if err != nil {
			slog.Warn("viber adapter: webhook signature verification failed", "error", err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	} else {
		body, err = readLimited(r, viberWebhookReadLimit)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	var event map[string]interface{}
	if err := json.Unmarshal(body, &event); err != nil {
		w.WriteHeader(http.StatusOK) // ack anyway; Viber retries on non-2xx
		return
	}

	if msg, ok := parseViberEvent(event); ok {
		select {
		case a.outbound <- msg:
		case <-a.stopCh:
		default:
			slog.Warn("viber adapter: outbound buffer full, dropping event")
		}
	}
	w.WriteHeader(http.StatusOK)
}

// parseViberEvent decodes a Viber webhook payload into a Message. Only
// "message" events carrying text content are translated; delivery receipts,
// subscribe/unsubscribe notices, and non-text messages return ok=false.
func parseViberEvent(event map[string]interface{}) (channel.Message, bool) {
	if asString(event["event"]) != "message" {
		return channel.Message{}, false
	}

	messageRaw, ok := event["message"].(map[string]interface{})
	if !ok {
		return channel.Message{}, false
	}
	if asString(messageRaw["type"]) != "text" {
		return channel.Message{}, false
	}

	text := asString(messageRaw["text"])
	if text == "" {
		return channel.Message{}, false
	}

	senderRaw, ok := event["sender"].(map[string]interface{})
	if !ok {
		return channel.Message{}, false
	}
	senderID := asString(senderRaw["id"])
	senderName := asString(senderRaw["name"])
	if senderName == "" {
		senderName = "Unknown"
	}
	senderAvatar := asString(senderRaw["avatar"])

	messageToken := ""
	if token, ok := event["message_token"].(float64); ok {
		messageToken = strconv.FormatInt(int64(token), 10)
	}

	content := channel.Content{Kind: channel.ContentText, Text: text}
	if cmd, ok := channel.ParseCommand(text, "/"); ok {
		content = cmd
	}

	metadata := map[string]interface{}{"sender_id": senderID}
	if senderAvatar != "" {
		metadata["sender_avatar"] = senderAvatar
	}
	if tracking := asString(messageRaw["tracking_data"]); tracking != "" {
		metadata["tracking_data"] = tracking
	}

	return channel.Message{
		Channel:           channel.Viber,
		PlatformMessageID: messageToken,
		Sender: channel.User{
			PlatformID:  senderID,
			DisplayName: senderName,
		},
		Content:   content,
		Timestamp: time.Now(),
		IsGroup:   false, // Viber Bot API conversations are always 1:1
		Metadata:  metadata,
	}, true
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func (a *Viber) apiSendMessage(ctx context.Context, receiver, text string) error {
	for _, chunk := range channel.SplitText(text, viberMaxMessageLen) {
		sender := map[string]interface{}{"name": a.cfg.SenderName}
		if a.cfg.SenderAvatar != "" {
			sender["avatar"] = a.cfg.SenderAvatar
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"receiver":        receiver,
			"min_api_version": 1,
			"sender":          sender,
			"tracking_data":   "openfang",
			"type":            "text",
			"text":            chunk,
		})

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, viberSendMessageURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		a.authorize(req)
		req.Header.Set("Content-Type", "application/json")
		resp, err := a.client.Do(req)
		if err != nil {
			return fmt.Errorf("viber adapter: send: %w", err)
		}

		var respBody struct {
			Status        int    `json:"status"`
			StatusMessage string `json:"status_message"`
		}
		json.NewDecoder(resp.Body).Decode(&respBody)
		resp.Body.Close()
		if respBody.Status != 0 {
			slog.Warn("viber adapter: send_message API error", "error", respBody.StatusMessage)
		}
	}
	return nil
}

func (a *Viber) Send(ctx context.Context, target channel.User, content channel.Content) error {
	switch content.Kind {
	case channel.ContentImage:
		sender := map[string]interface{}{"name": a.cfg.SenderName}
		if a.cfg.SenderAvatar != "" {
			sender["avatar"] = a.cfg.SenderAvatar
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"receiver":        target.PlatformID,
			"min_api_version": 1,
			"sender":          sender,
			"type":            "picture",
			"text":            content.MediaCaption,
			"media":           content.MediaURL,
		})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, viberSendMessageURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		a.authorize(req)
		req.Header.Set("Content-Type", "application/json")
		resp, err := a.client.Do(req)
		if err != nil {
			return fmt.Errorf("viber adapter: send image: %w", err)
		}
		resp.Body.Close()
		return nil
	default:
		return a.apiSendMessage(ctx, target.PlatformID, content.Text)
	}
}

func (a *Viber) SendTyping(ctx context.Context, target channel.User) error {
	return nil // Viber's REST API has no typing-indicator endpoint
}

func (a *Viber) SendInThread(ctx context.Context, target channel.User, content channel.Content, threadID string) error {
	return a.Send(ctx, target, content)
}

func (a *Viber) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	close(a.stopCh)
	a.started = false
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}
