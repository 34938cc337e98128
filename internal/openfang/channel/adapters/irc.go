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

// maxIRCPrivmsgPayload leaves headroom under RFC 2812's 512-byte line limit
// for the ":nick!user@host PRIVMSG #channel :" prefix overhead.
const maxIRCPrivmsgPayload = 400

// maxNickRetries bounds how many times the adapter will mutate its nickname
// in response to repeated ERR_NICKNAMEINUSE (433) before giving up on this
// connection attempt.
const maxNickRetries = 3

// IRCConfig configures an IRC adapter instance.
type IRCConfig struct {
	Server   string
	Port     int
	Nick     string
	Password string
	Channels []string
}

// IRC bridges a plaintext IRC connection into the channel.Adapter contract.
// TLS is not implemented; connections are always plaintext TCP.
type IRC struct {
	cfg IRCConfig

	mu       sync.Mutex
	writeCh  chan string
	stopCh   chan struct{}
	outbound chan channel.Message
	started  bool
}

// NewIRC constructs an IRC adapter. It does not connect until Start is
// called.
func NewIRC(cfg IRCConfig) *IRC {
	return &IRC{cfg: cfg}
}

func (a *IRC) Name() string            { return "irc" }
func (a *IRC) ChannelType() channel.Tag { return channel.IRC }

func (a *IRC) addr() string {
	return fmt.Sprintf("%s:%d", a.cfg.Server, a.cfg.Port)
}

func (a *IRC) Start(ctx context.Context) (<-chan channel.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return a.outbound, nil
	}

	a.outbound = make(chan channel.Message, 256)
	a.writeCh = make(chan string, 64)
	a.stopCh = make(chan struct{})
	a.started = true

	go a.run(ctx)
	return a.outbound, nil
}

func (a *IRC) run(ctx context.Context) {
	backoff := transport.NewBackoff(time.Second, 60*time.Second)

	for {
		select {
		case <-a.stopCh:
			return
		default:
		}

		slog.Info("irc adapter: connecting", "addr", a.addr())
		conn, err := transport.DialLine("tcp", a.addr(), 30*time.Second)
		if err != nil {
			slog.Warn("irc adapter: connection failed, retrying", "error", err, "backoff", backoff)
			if !a.sleepOrStop(backoff.Next()) {
				return
			}
			continue
		}

		backoff.Reset()
		slog.Info("irc adapter: connected", "addr", a.addr())

		reconnect := a.session(conn)
		conn.Close()
		if !reconnect {
			return
		}
		slog.Warn("irc adapter: reconnecting", "backoff", backoff)
		if !a.sleepOrStop(backoff.Next()) {
			return
		}
	}
}

func (a *IRC) sleepOrStop(d time.Duration) bool {
	select {
	case <-a.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

// session runs one connected IRC session to completion and reports whether
// the caller should reconnect.
func (a *IRC) session(conn *transport.LineConn) bool {
	nick := a.cfg.Nick
	if a.cfg.Password != "" {
		if err := conn.WriteLine("PASS " + a.cfg.Password); err != nil {
			return true
		}
	}
	if err := conn.WriteLine("NICK " + nick); err != nil {
		return true
	}
	if err := conn.WriteLine(fmt.Sprintf("USER %s 0 * :openfang", nick)); err != nil {
		return true
	}

	joined := false
	nickRetries := 0
	readDone := make(chan struct{})
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(readDone)
		for {
			line, err := conn.ReadLine()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-readDone:
				return
			}
		}
	}()

	for {
		select {
		case line := <-lines:
			parsed := parseIRCLine(line)
			if parsed == nil {
				continue
			}
			switch parsed.command {
			case "PING":
				pongParam := parsed.trailing
				if pongParam == "" && len(parsed.params) > 0 {
					pongParam = parsed.params[0]
				}
				if err := conn.WriteLine("PONG :" + pongParam); err != nil {
					return true
				}

			case "001":
				if !joined {
					slog.Info("irc adapter: registered", "nick", nick)
					for _, ch := range a.cfg.Channels {
						if err := conn.WriteLine("JOIN " + ch); err != nil {
							return true
						}
					}
					joined = true
				}

			case "PRIVMSG":
				if msg, ok := parsePrivmsg(parsed, nick); ok {
					select {
					case a.outbound <- msg:
					case <-a.stopCh:
						return false
					}
				}

			case "433":
				nickRetries++
				if nickRetries > maxNickRetries {
					slog.Error("irc adapter: nickname unavailable after retries, giving up", "nick", nick)
					return true
				}
				nick += "_"
				slog.Warn("irc adapter: nickname in use, retrying", "nick", nick)
				if err := conn.WriteLine("NICK " + nick); err != nil {
					return true
				}
			}

		case err := <-readErr:
			slog.Warn("irc adapter: read error", "error", err)
			return true

		case raw := <-a.writeCh:
			if err := conn.WriteLine(raw); err != nil {
				return true
			}

		case <-a.stopCh:
			conn.WriteLine("QUIT :openfang shutting down")
			return false
		}
	}
}

type ircLine struct {
	prefix   string
	command  string
	params   []string
	trailing string
}

func parseIRCLine(raw string) *ircLine {
	line := strings.TrimSpace(raw)
	if line == "" {
		return nil
	}

	var prefix string
	if strings.HasPrefix(line, ":") {
		space := strings.IndexByte(line, ' ')
		if space < 0 {
			return nil
		}
		prefix = line[1:space]
		line = line[space+1:]
	}

	mainPart, trailing := line, ""
	if idx := strings.Index(line, " :"); idx >= 0 {
		trailing = line[idx+2:]
		mainPart = line[:idx]
	}

	fields := strings.Fields(mainPart)
	if len(fields) == 0 {
		return nil
	}

	return &ircLine{
		prefix:   prefix,
		command:  fields[0],
		params:   fields[1:],
		trailing: trailing,
	}
}

func nickFromPrefix(prefix string) string {
	if i := strings.IndexByte(prefix, '!'); i >= 0 {
		return prefix[:i]
	}
	return prefix
}

func parsePrivmsg(line *ircLine, botNick string) (channel.Message, bool) {
	if line.command != "PRIVMSG" || line.prefix == "" {
		return channel.Message{}, false
	}
	senderNick := nickFromPrefix(line.prefix)
	if strings.EqualFold(senderNick, botNick) {
		return channel.Message{}, false
	}
	if len(line.params) == 0 {
		return channel.Message{}, false
	}
	target := line.params[0]
	text := line.trailing
	if text == "" {
		return channel.Message{}, false
	}

	isGroup := strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&")
	platformID := senderNick
	if isGroup {
		platformID = target
	}

	content := channel.Content{Kind: channel.ContentText, Text: text}
	if cmd, ok := channel.ParseCommand(text, "/"); ok {
		content = cmd
	}

	return channel.Message{
		Channel: channel.IRC,
		Sender: channel.User{
			PlatformID:  platformID,
			DisplayName: senderNick,
		},
		Content:   content,
		Timestamp: time.Now(),
		IsGroup:   isGroup,
	}, true
}

func (a *IRC) Send(ctx context.Context, target channel.User, content channel.Content) error {
	a.mu.Lock()
	writeCh := a.writeCh
	a.mu.Unlock()
	if writeCh == nil {
		return fmt.Errorf("irc adapter: not started")
	}

	for _, chunk := range channel.SplitText(content.Text, maxIRCPrivmsgPayload) {
		raw := fmt.Sprintf("PRIVMSG %s :%s", target.PlatformID, chunk)
		select {
		case writeCh <- raw:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (a *IRC) SendTyping(ctx context.Context, target channel.User) error {
	return nil // IRC has no typing indicator
}

func (a *IRC) SendInThread(ctx context.Context, target channel.User, content channel.Content, threadID string) error {
	return a.Send(ctx, target, content)
}

func (a *IRC) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	close(a.stopCh)
	a.started = false
	return nil
}
