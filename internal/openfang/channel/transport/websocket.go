package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// WSHandler is invoked once per successful connection with the live conn;
// it should read/dispatch until the connection closes or ctx is done, then
// return (a non-nil error triggers a reconnect with back-off; a nil error
// ends RunWebSocket).
type WSHandler func(ctx context.Context, conn *websocket.Conn) error

// RunWebSocket dials url in a loop, invoking handler on each successful
// connection, reconnecting with exponential back-off (reset on every
// successful dial) until ctx is done or handler returns nil.
func RunWebSocket(ctx context.Context, name, url string, dialer *websocket.Dialer, header map[string][]string, handler WSHandler) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	backoff := NewBackoff(time.Second, 60*time.Second)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, resp, err := dialer.DialContext(ctx, url, header)
		if err != nil {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			slog.Warn("websocket: dial failed, backing off", "adapter", name, "error", err, "status", status)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff.Next()):
			}
			continue
		}

		backoff.Reset()
		connectedAt := time.Now()
		err = handler(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil || err == nil {
			return
		}
		slog.Warn("websocket: connection ended, reconnecting", "adapter", name, "error", err, "lived", time.Since(connectedAt))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff.Next()):
		}
	}
}
