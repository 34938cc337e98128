package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunLongPollAdvancesCursorAndStopsOnCancel(t *testing.T) {
	var calls atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunLongPoll(ctx, "test", "0", func(ctx context.Context, cursor string) (string, error) {
			n := calls.Add(1)
			if n >= 3 {
				cancel()
			}
			return cursor + "x", nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunLongPoll did not return after cancel")
	}

	if calls.Load() < 3 {
		t.Fatalf("expected at least 3 poll calls, got %d", calls.Load())
	}
}

func TestRunLongPollBacksOffOnError(t *testing.T) {
	var calls atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunLongPoll(ctx, "test", "0", func(ctx context.Context, cursor string) (string, error) {
			n := calls.Add(1)
			if n >= 2 {
				cancel()
				return cursor, nil
			}
			return cursor, errors.New("transient")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunLongPoll did not return after cancel")
	}
}
