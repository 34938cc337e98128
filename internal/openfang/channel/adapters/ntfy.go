package adapters

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/openfang/openfang/internal/openfang/channel"
	"github.com/openfang/openfang/internal/openfang/channel/transport"
)

const (
	ntfyMaxMessageLen = 4096
	ntfyDefaultServer = "https://ntfy.sh"
)

// NtfyConfig configures an ntfy.sh pub/sub adapter.
type NtfyConfig struct {
	ServerURL string // empty selects ntfyDefaultServer
	Topic     string
	Token     string // bearer token; empty means no auth
}

// Ntfy bridges an ntfy.sh topic into the channel.Adapter contract. Inbound
// notifications arrive over a long-lived Server-Sent-Events subscription;
// outbound replies are published as new notifications via POST.
type Ntfy struct {
	cfg    NtfyConfig
	client *http.Client

	mu       sync.Mutex
	stopCh   chan struct{}
	outbound chan channel.Message
	started  bool
}

// NewNtfy constructs an ntfy adapter. It does not connect until Start is
// called.
func NewNtfy(cfg NtfyConfig) *Ntfy {
	if cfg.ServerURL == "" {
		cfg.ServerURL = ntfyDefaultServer
	} else {
		cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	}
	return &Ntfy{
		cfg:    cfg,
		client: &http.Client{Timeout: 0}, // the SSE stream is long-lived
	}
}

func (a *Ntfy) Name() string            { return "ntfy" }
func (a *Ntfy) ChannelType() channel.Tag { return channel.Ntfy }

func (a *Ntfy) authorize(req *http.Request) {
	if a.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.Token)
	}
}

func (a *Ntfy) Start(ctx context.Context) (<-chan channel.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return a.outbound, nil
	}

	slog.Info("ntfy adapter: subscribing", "server", a.cfg.ServerURL, "topic", a.cfg.Topic)
	a.outbound = make(chan channel.Message, 256)
	a.stopCh = make(chan struct{})
	a.started = true

	go a.run(ctx)
	return a.outbound, nil
}

func (a *Ntfy) run(ctx context.Context) {
	backoff := transport.NewBackoff(time.Second, 120*time.Second)
	for {
		select {
		case <-a.stopCh:
			return
		default:
		}

		if err := a.subscribeOnce(ctx); err != nil {
			select {
			case <-a.stopCh:
				return
			default:
			}
			slog.Warn("ntfy adapter: SSE connection error, backing off", "error", err)
		} else {
			slog.Info("ntfy adapter: SSE stream ended, reconnecting")
		}

		select {
		case <-a.stopCh:
			return
		case <-time.After(backoff.Next()):
		}
	}
}

func (a *Ntfy) subscribeOnce(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s/sse", a.cfg.ServerURL, a.cfg.Topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	a.authorize(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ntfy SSE returned HTTP %d", resp.StatusCode)
	}
	slog.Info("ntfy adapter: SSE stream connected", "topic", a.cfg.Topic)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var currentData string
	for scanner.Scan() {
		select {
		case <-a.stopCh:
			return nil
		default:
		}

		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			currentData = strings.TrimPrefix(line, "data: ")
		case line == "" && currentData != "":
			if msg, ok := parseNtfySSEData(currentData, a.cfg.Topic); ok {
				select {
				case a.outbound <- msg:
				case <-a.stopCh:
					return nil
				}
			}
			currentData = ""
		}
	}
	return scanner.Err()
}

type ntfySSEEvent struct {
	ID      string `json:"id"`
	Time    int64  `json:"time"`
	Event   string `json:"event"`
	Topic   string `json:"topic"`
	Message string `json:"message"`
	Title   string `json:"title"`
}

// parseNtfySSEData decodes one SSE "data:" payload, keeping only "message"
// events with non-empty content.
func parseNtfySSEData(data, topic string) (channel.Message, bool) {
	var evt ntfySSEEvent
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return channel.Message{}, false
	}
	if evt.Event != "message" || evt.Message == "" {
		return channel.Message{}, false
	}

	senderName := evt.Title
	if senderName == "" {
		senderName = "ntfy-user"
	}

	content := channel.Content{Kind: channel.ContentText, Text: evt.Message}
	if cmd, ok := channel.ParseCommand(evt.Message, "/"); ok {
		content = cmd
	}

	return channel.Message{
		Channel:           channel.Ntfy,
		PlatformMessageID: evt.ID,
		Sender: channel.User{
			PlatformID:  senderName,
			DisplayName: senderName,
		},
		Content:   content,
		Timestamp: time.Now(),
		IsGroup:   true,
		Metadata:  map[string]interface{}{"topic": topic},
	}, true
}

func (a *Ntfy) publish(ctx context.Context, text, title string) error {
	url := fmt.Sprintf("%s/%s", a.cfg.ServerURL, a.cfg.Topic)
	for _, chunk := range channel.SplitText(text, ntfyMaxMessageLen) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(chunk))
		if err != nil {
			return err
		}
		a.authorize(req)
		req.Header.Set("Content-Type", "text/plain")
		if title != "" {
			req.Header.Set("Title", title)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("ntfy publish returned HTTP %d", resp.StatusCode)
		}
	}
	return nil
}

func (a *Ntfy) Send(ctx context.Context, target channel.User, content channel.Content) error {
	return a.publish(ctx, content.Text, "openfang")
}

func (a *Ntfy) SendTyping(ctx context.Context, target channel.User) error {
	return nil // ntfy has no typing indicator concept
}

func (a *Ntfy) SendInThread(ctx context.Context, target channel.User, content channel.Content, threadID string) error {
	return a.Send(ctx, target, content)
}

func (a *Ntfy) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	close(a.stopCh)
	a.started = false
	return nil
}
