package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openfang/openfang/internal/openfang/channel"
	"github.com/openfang/openfang/internal/openfang/channel/transport"
)

const (
	nostrMaxMessageLen   = 4096
	nostrDefaultSeenCap  = 4096
	nostrSubscriptionTag = "openfang-sub"
)

// NostrConfig configures a Nostr NIP-01 relay adapter.
type NostrConfig struct {
	PrivateKey string
	Relays     []string
	// SeenCapacity bounds the cross-relay event-dedup set. Zero selects
	// nostrDefaultSeenCap.
	SeenCapacity int
}

// Nostr bridges one or more Nostr relays into the channel.Adapter contract.
// Each relay gets its own reconnecting WebSocket subscription; events are
// deduplicated across relays by ID using a bounded FIFO set. Signing,
// encryption (NIP-04), and verification are not implemented — events carry
// placeholder id/sig fields, matching the scope of a bridge that treats
// relays as a message transport rather than a full Nostr client.
type Nostr struct {
	cfg     NostrConfig
	pubkey  string
	seenCap int

	mu       sync.Mutex
	seen     map[string]struct{}
	seenOrd  []string
	stopCh   chan struct{}
	outbound chan channel.Message
	started  bool
}

// NewNostr constructs a Nostr adapter. It does not connect until Start is
// called.
func NewNostr(cfg NostrConfig) *Nostr {
	if cfg.SeenCapacity == 0 {
		cfg.SeenCapacity = nostrDefaultSeenCap
	}
	return &Nostr{
		cfg:     cfg,
		pubkey:  derivePubkey(cfg.PrivateKey),
		seenCap: cfg.SeenCapacity,
		seen:    make(map[string]struct{}),
	}
}

func (a *Nostr) Name() string            { return "nostr" }
func (a *Nostr) ChannelType() channel.Tag { return channel.Nostr }

// derivePubkey derives a deterministic identifier from the private key via
// SHA-256. A real Nostr client derives its public key via secp256k1 scalar
// multiplication; this bridge only needs a stable identifier to tag outgoing
// events and filter out echoes of its own messages.
func derivePubkey(privateKey string) string {
	sum := sha256.Sum256([]byte(privateKey))
	return hex.EncodeToString(sum[:])
}

func (a *Nostr) Start(ctx context.Context) (<-chan channel.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return a.outbound, nil
	}
	if len(a.cfg.Relays) == 0 {
		return nil, fmt.Errorf("nostr adapter: no relay URLs configured")
	}

	a.outbound = make(chan channel.Message, 256)
	a.stopCh = make(chan struct{})
	a.started = true

	slog.Info("nostr adapter: starting", "pubkey_prefix", a.pubkey[:16])
	for _, relay := range a.cfg.Relays {
		relay := relay
		go transport.RunWebSocket(ctx, "nostr:"+relay, relay, websocket.DefaultDialer, nil, func(ctx context.Context, conn *websocket.Conn) error {
			return a.handleRelay(relay, conn)
		})
	}
	return a.outbound, nil
}

func (a *Nostr) handleRelay(relay string, conn *websocket.Conn) error {
	sub := []interface{}{"REQ", nostrSubscriptionTag, map[string]interface{}{
		"kinds": []int{4},
		"#p":    []string{a.pubkey},
		"limit": 0,
	}}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("send REQ: %w", err)
	}

	for {
		select {
		case <-a.stopCh:
			closeMsg := []interface{}{"CLOSE", nostrSubscriptionTag}
			_ = conn.WriteJSON(closeMsg)
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var parsed []json.RawMessage
		if err := json.Unmarshal(raw, &parsed); err != nil || len(parsed) < 3 {
			continue
		}
		var msgType string
		if err := json.Unmarshal(parsed[0], &msgType); err != nil || msgType != "EVENT" {
			continue
		}

		var evt nostrEvent
		if err := json.Unmarshal(parsed[2], &evt); err != nil {
			continue
		}
		if evt.Content == "" {
			continue
		}
		if !a.markSeen(evt.ID) {
			continue
		}
		if evt.Pubkey == a.pubkey {
			continue
		}

		content := channel.Content{Kind: channel.ContentText, Text: evt.Content}
		if cmd, ok := channel.ParseCommand(evt.Content, "/"); ok {
			content = cmd
		}

		displayPrefix := evt.Pubkey
		if len(displayPrefix) > 8 {
			displayPrefix = displayPrefix[:8]
		}

		msg := channel.Message{
			Channel:           channel.Nostr,
			PlatformMessageID: evt.ID,
			Sender: channel.User{
				PlatformID:  evt.Pubkey,
				DisplayName: displayPrefix + "...",
			},
			Content:   content,
			Timestamp: time.Now(),
			IsGroup:   evt.Kind != 4,
			Metadata: map[string]interface{}{
				"pubkey": evt.Pubkey,
				"kind":   evt.Kind,
				"relay":  relay,
			},
		}

		select {
		case a.outbound <- msg:
		case <-a.stopCh:
			return nil
		}
	}
}

type nostrEvent struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// markSeen records an event ID in the bounded cross-relay dedup set and
// reports whether it was new. When the set reaches capacity, the oldest
// entry is evicted to make room.
func (a *Nostr) markSeen(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.seen[id]; ok {
		return false
	}
	if len(a.seenOrd) >= a.seenCap {
		oldest := a.seenOrd[0]
		a.seenOrd = a.seenOrd[1:]
		delete(a.seen, oldest)
	}
	a.seen[id] = struct{}{}
	a.seenOrd = append(a.seenOrd, id)
	return true
}

func buildNostrEvent(senderPubkey, recipientPubkey, content string) string {
	createdAt := time.Now().Unix()
	eventID := fmt.Sprintf("%064x", createdAt)
	sig := strings.Repeat("0", 128)

	event := []interface{}{
		"EVENT",
		map[string]interface{}{
			"id":         eventID,
			"pubkey":     senderPubkey,
			"created_at": createdAt,
			"kind":       4,
			"tags":       [][]string{{"p", recipientPubkey}},
			"content":    content,
			"sig":        sig,
		},
	}
	encoded, _ := json.Marshal(event)
	return string(encoded)
}

func (a *Nostr) Send(ctx context.Context, target channel.User, content channel.Content) error {
	for _, chunk := range channel.SplitText(content.Text, nostrMaxMessageLen) {
		eventMsg := buildNostrEvent(a.pubkey, target.PlatformID, chunk)

		sent := false
		for _, relay := range a.cfg.Relays {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, relay, nil)
			if err != nil {
				slog.Warn("nostr adapter: relay dial failed for send", "relay", relay, "error", err)
				continue
			}
			err = conn.WriteMessage(websocket.TextMessage, []byte(eventMsg))
			conn.Close()
			if err == nil {
				sent = true
				break
			}
		}
		if !sent {
			return fmt.Errorf("nostr adapter: failed to publish to any relay")
		}
	}
	return nil
}

func (a *Nostr) SendTyping(ctx context.Context, target channel.User) error {
	return nil // Nostr has no typing indicator
}

func (a *Nostr) SendInThread(ctx context.Context, target channel.User, content channel.Content, threadID string) error {
	return a.Send(ctx, target, content)
}

func (a *Nostr) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	close(a.stopCh)
	a.started = false
	return nil
}
