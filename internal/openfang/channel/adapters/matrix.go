// Package adapters holds concrete channel.Adapter implementations, one file
// per platform, built on the shared helpers in channel/transport.
package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/openfang/openfang/internal/openfang/channel"
)

// MatrixConfig configures a Matrix adapter instance.
type MatrixConfig struct {
	Homeserver  string
	UserID      string
	AccessToken string
	AdminRooms  []string
	// DB, if set, persists the sync next_batch token so a restart resumes
	// from the last position instead of replaying room history.
	DB *sql.DB
}

// Matrix bridges a Matrix account into the channel.Adapter contract.
type Matrix struct {
	cfg    MatrixConfig
	client *mautrix.Client

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	outbound chan channel.Message
}

// NewMatrix constructs a Matrix adapter. It does not connect until Start is
// called.
func NewMatrix(cfg MatrixConfig) (*Matrix, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix adapter: %w", err)
	}
	if cfg.DB != nil {
		client.Store = NewMatrixSyncStore(cfg.DB)
	} else {
		slog.Warn("matrix adapter: no DB configured, sync token will not survive a restart")
	}
	return &Matrix{cfg: cfg, client: client}, nil
}

func (m *Matrix) Name() string            { return "matrix" }
func (m *Matrix) ChannelType() channel.Tag { return channel.Matrix }

func (m *Matrix) Start(ctx context.Context) (<-chan channel.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return m.outbound, nil
	}

	m.outbound = make(chan channel.Message, 64)
	m.stopCh = make(chan struct{})

	syncer := m.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, m.handleEvent)

	for _, roomID := range m.cfg.AdminRooms {
		if err := m.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return nil, fmt.Errorf("matrix adapter: join room %s: %w", roomID, err)
		}
	}

	m.started = true
	go m.runSync()
	return m.outbound, nil
}

func (m *Matrix) runSync() {
	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		backoff = backoffMin
		if err := m.client.Sync(); err != nil {
			select {
			case <-m.stopCh:
				return
			default:
			}
			slog.Error("matrix adapter: sync stopped, reconnecting", "error", err, "backoff", backoff)
			select {
			case <-m.stopCh:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
			continue
		}
		return
	}
}

func (m *Matrix) handleEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(m.cfg.UserID) {
		return
	}
	msgContent := evt.Content.AsMessage()
	if msgContent == nil || msgContent.MsgType != event.MsgText {
		return
	}
	if !m.isAdminRoom(evt.RoomID.String()) {
		return
	}

	msg := channel.Message{
		Channel:           channel.Matrix,
		PlatformMessageID: evt.ID.String(),
		Sender: channel.User{
			PlatformID: evt.RoomID.String(),
		},
		Content:   channel.Content{Kind: channel.ContentText, Text: msgContent.Body},
		Timestamp: time.UnixMilli(evt.Timestamp),
		IsGroup:   true,
		Metadata:  map[string]interface{}{"sender_user_id": evt.Sender.String()},
	}
	if cmd, ok := channel.ParseCommand(msgContent.Body, "!"); ok {
		msg.Content = cmd
	}

	select {
	case m.outbound <- msg:
	case <-m.stopCh:
	}
}

func (m *Matrix) isAdminRoom(roomID string) bool {
	for _, r := range m.cfg.AdminRooms {
		if r == roomID {
			return true
		}
	}
	return false
}

func (m *Matrix) joinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := m.client.JoinRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("matrix adapter: already a member or access denied", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}

func (m *Matrix) Send(ctx context.Context, target channel.User, content channel.Content) error {
	roomID := id.RoomID(target.PlatformID)
	for _, chunk := range channel.SplitText(content.Text, channel.OutboundTextLimit[channel.Matrix]) {
		if _, err := m.client.SendText(ctx, roomID, chunk); err != nil {
			return fmt.Errorf("matrix adapter: send: %w", err)
		}
	}
	return nil
}

func (m *Matrix) SendTyping(ctx context.Context, target channel.User) error {
	_, err := m.client.UserTyping(ctx, id.RoomID(target.PlatformID), true, 5*time.Second)
	if err != nil {
		slog.Debug("matrix adapter: typing indicator failed", "error", err)
		return nil
	}
	return nil
}

func (m *Matrix) SendInThread(ctx context.Context, target channel.User, content channel.Content, threadID string) error {
	evtContent := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    content.Text,
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID(threadID)},
		},
	}
	_, err := m.client.SendMessageEvent(ctx, id.RoomID(target.PlatformID), event.EventMessage, &evtContent)
	return err
}

func (m *Matrix) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	close(m.stopCh)
	m.client.StopSync()
	m.started = false
	return nil
}
