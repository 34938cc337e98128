package transport

import (
	"context"
	"log/slog"
	"time"
)

// LongPollFunc performs one long-poll round: given the last cursor (offset
// or last_event_id), it blocks until new items arrive or the platform's own
// long-poll timeout fires, delivers any items itself, then returns the next
// cursor. A nil error with no items is a normal empty poll, not a failure.
type LongPollFunc func(ctx context.Context, cursor string) (nextCursor string, err error)

// RunLongPoll calls poll in a loop until ctx is cancelled, applying
// exponential back-off on error and resetting it after every successful
// round trip. startCursor seeds the first call.
func RunLongPoll(ctx context.Context, name string, startCursor string, poll LongPollFunc) {
	backoff := NewBackoff(time.Second, 60*time.Second)
	cursor := startCursor

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		next, err := poll(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("longpoll: round failed, backing off", "adapter", name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff.Next()):
			}
			continue
		}

		backoff.Reset()
		cursor = next
	}
}
