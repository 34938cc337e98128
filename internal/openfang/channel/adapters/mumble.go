package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/openfang/openfang/internal/openfang/channel"
	"github.com/openfang/openfang/internal/openfang/channel/transport"
)

const (
	mumbleMaxMessageLen = 5000
	mumbleDefaultPort   = 64738

	mumbleMsgTypeVersion      = 0
	mumbleMsgTypeAuthenticate = 2
	mumbleMsgTypePing         = 3
	mumbleMsgTypeTextMessage  = 11
)

// MumbleConfig configures a Mumble text-chat adapter.
type MumbleConfig struct {
	Host        string
	Port        int // 0 selects the standard Mumble port
	Password    string
	Username    string
	ChannelName string
}

// Mumble bridges a Mumble server's text chat into the channel.Adapter
// contract. Voice is out of scope; only TextMessage packets are exchanged,
// using a minimal protobuf-lite encoding over the 6-byte framed TCP
// transport (2-byte type, 4-byte length).
type Mumble struct {
	cfg MumbleConfig

	mu       sync.Mutex
	conn     *transport.BinaryConn
	stopCh   chan struct{}
	outbound chan channel.Message
	started  bool
}

// NewMumble constructs a Mumble adapter. It does not connect until Start is
// called.
func NewMumble(cfg MumbleConfig) *Mumble {
	if cfg.Port == 0 {
		cfg.Port = mumbleDefaultPort
	}
	return &Mumble{cfg: cfg}
}

func (a *Mumble) Name() string            { return "mumble" }
func (a *Mumble) ChannelType() channel.Tag { return channel.Mumble }

func (a *Mumble) addr() string {
	return fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
}

func (a *Mumble) Start(ctx context.Context) (<-chan channel.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return a.outbound, nil
	}

	slog.Info("mumble adapter: connecting", "addr", a.addr())
	conn, err := transport.DialBinary("tcp", a.addr(), 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("mumble adapter: dial: %w", err)
	}

	if err := conn.WriteFrame(transport.BinaryFrame{Type: mumbleMsgTypeVersion, Payload: buildVersionPacket()}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mumble adapter: send version: %w", err)
	}
	if err := conn.WriteFrame(transport.BinaryFrame{
		Type:    mumbleMsgTypeAuthenticate,
		Payload: buildAuthenticatePacket(a.cfg.Username, a.cfg.Password),
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mumble adapter: authenticate: %w", err)
	}
	slog.Info("mumble adapter: authenticated", "username", a.cfg.Username)

	a.conn = conn
	a.outbound = make(chan channel.Message, 256)
	a.stopCh = make(chan struct{})
	a.started = true

	go a.readLoop()
	go a.pingLoop()
	return a.outbound, nil
}

func (a *Mumble) pingLoop() {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.mu.Lock()
			conn := a.conn
			a.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := conn.WriteFrame(transport.BinaryFrame{Type: mumbleMsgTypePing, Payload: buildPingPacket()}); err != nil {
				slog.Warn("mumble adapter: ping write failed", "error", err)
			}
		}
	}
}

func (a *Mumble) readLoop() {
	backoff := transport.NewBackoff(time.Second, 60*time.Second)
	for {
		select {
		case <-a.stopCh:
			return
		default:
		}

		frame, err := a.conn.ReadFrame()
		if err != nil {
			select {
			case <-a.stopCh:
				return
			default:
			}
			slog.Warn("mumble adapter: read error, backing off", "error", err)
			time.Sleep(backoff.Next())
			continue
		}
		backoff.Reset()

		if frame.Type != mumbleMsgTypeTextMessage {
			continue
		}

		actor, channelIDs, message := parseTextMessage(frame.Payload)
		if message == "" {
			continue
		}
		cleaned := stripMumbleHTML(message)
		if cleaned == "" {
			continue
		}

		content := channel.Content{Kind: channel.ContentText, Text: cleaned}
		if cmd, ok := channel.ParseCommand(cleaned, "/"); ok {
			content = cmd
		}

		msg := channel.Message{
			Channel:           channel.Mumble,
			PlatformMessageID: fmt.Sprintf("mumble-%d-%d", actor, time.Now().UnixMilli()),
			Sender: channel.User{
				PlatformID:  fmt.Sprintf("session-%d", actor),
				DisplayName: fmt.Sprintf("user-%d", actor),
			},
			Content:   content,
			Timestamp: time.Now(),
			IsGroup:   true,
			Metadata: map[string]interface{}{
				"channel":     a.cfg.ChannelName,
				"actor":       actor,
				"channel_ids": channelIDs,
			},
		}

		select {
		case a.outbound <- msg:
		case <-a.stopCh:
			return
		}
	}
}

func (a *Mumble) Send(ctx context.Context, target channel.User, content channel.Content) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("mumble adapter: not connected")
	}

	for _, chunk := range channel.SplitText(content.Text, mumbleMaxMessageLen) {
		payload := buildTextMessagePacket(0, chunk)
		if err := conn.WriteFrame(transport.BinaryFrame{Type: mumbleMsgTypeTextMessage, Payload: payload}); err != nil {
			return fmt.Errorf("mumble adapter: send: %w", err)
		}
	}
	return nil
}

func (a *Mumble) SendTyping(ctx context.Context, target channel.User) error {
	return nil // Mumble has no typing indicator
}

func (a *Mumble) SendInThread(ctx context.Context, target channel.User, content channel.Content, threadID string) error {
	return a.Send(ctx, target, content)
}

func (a *Mumble) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	close(a.stopCh)
	a.started = false
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	return nil
}

// --- protobuf-lite field encoding for the subset of Mumble's wire messages
// this adapter needs (Version, Authenticate, Ping, TextMessage). ---

func putVarint(buf []byte, v uint64) []byte {
	tmp := make([]byte, 10)
	n := transport.PutUvarint(tmp, v)
	return append(buf, tmp[:n]...)
}

func buildVersionPacket() []byte {
	var payload []byte
	payload = append(payload, 0x0D) // field 1, wire type 5 (fixed32)
	payload = append(payload, 0x00, 0x05, 0x01, 0x00)
	release := []byte("openfang")
	payload = append(payload, 0x12, byte(len(release)))
	payload = append(payload, release...)
	osName := []byte("linux")
	payload = append(payload, 0x1A, byte(len(osName)))
	payload = append(payload, osName...)
	return payload
}

func buildAuthenticatePacket(username, password string) []byte {
	var payload []byte
	uname := []byte(username)
	payload = append(payload, 0x0A)
	payload = putVarint(payload, uint64(len(uname)))
	payload = append(payload, uname...)
	if password != "" {
		pass := []byte(password)
		payload = append(payload, 0x12)
		payload = putVarint(payload, uint64(len(pass)))
		payload = append(payload, pass...)
	}
	return payload
}

func buildTextMessagePacket(channelID uint32, message string) []byte {
	var payload []byte
	payload = append(payload, 0x18) // field 3, varint
	payload = putVarint(payload, uint64(channelID))
	msg := []byte(message)
	payload = append(payload, 0x2A) // field 5, length-delimited
	payload = putVarint(payload, uint64(len(msg)))
	payload = append(payload, msg...)
	return payload
}

func buildPingPacket() []byte {
	var payload []byte
	payload = append(payload, 0x08)
	payload = putVarint(payload, uint64(time.Now().Unix()))
	return payload
}

// parseTextMessage extracts the actor, channel IDs, and message text from a
// TextMessage protobuf-lite payload. Unknown fields are skipped by wire
// type; malformed trailing bytes stop parsing rather than erroring, since a
// partially-decoded message is still useful.
func parseTextMessage(payload []byte) (actor uint32, channelIDs []uint32, message string) {
	pos := 0
	for pos < len(payload) {
		tag := payload[pos]
		fieldNum := tag >> 3
		wireType := tag & 0x07
		pos++

		switch {
		case fieldNum == 1 && wireType == 0:
			v, n := transport.Uvarint(payload[pos:])
			actor = uint32(v)
			pos += n
		case fieldNum == 3 && wireType == 0:
			v, n := transport.Uvarint(payload[pos:])
			channelIDs = append(channelIDs, uint32(v))
			pos += n
		case fieldNum == 5 && wireType == 2:
			length, n := transport.Uvarint(payload[pos:])
			pos += n
			end := pos + int(length)
			if end > len(payload) {
				return actor, channelIDs, message
			}
			message = string(payload[pos:end])
			pos = end
		case wireType == 0:
			_, n := transport.Uvarint(payload[pos:])
			pos += n
		case wireType == 2:
			length, n := transport.Uvarint(payload[pos:])
			pos += n + int(length)
		case wireType == 5:
			pos += 4
		case wireType == 1:
			pos += 8
		default:
			return actor, channelIDs, message
		}
	}
	return actor, channelIDs, message
}

func stripMumbleHTML(s string) string {
	s = strings.ReplaceAll(s, "<br>", "\n")
	s = strings.ReplaceAll(s, "<br/>", "\n")
	s = strings.ReplaceAll(s, "<br />", "\n")

	var out strings.Builder
	out.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			out.WriteRune(r)
		}
	}
	return out.String()
}
