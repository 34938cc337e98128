package procguard_test

import (
	"bytes"
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/openfang/openfang/internal/openfang/procguard"
)

func TestTruncateOutput(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 100)
	out := procguard.TruncateOutput(data, 10)
	if len(out) != 10+len("[truncated]") {
		t.Fatalf("got len %d", len(out))
	}
	if !bytes.HasSuffix(out, []byte("[truncated]")) {
		t.Fatalf("expected [truncated] suffix, got %q", out)
	}

	small := []byte("short")
	if out2 := procguard.TruncateOutput(small, 10); !bytes.Equal(out2, small) {
		t.Fatalf("expected untouched output, got %q", out2)
	}
}

func TestWaitWithTimeoutsExitsCleanly(t *testing.T) {
	cmd := exec.Command("sh", "-c", "echo hello")
	res, err := procguard.WaitWithTimeouts(context.Background(), cmd, 5*time.Second, 0)
	if err != nil {
		t.Fatalf("WaitWithTimeouts: %v", err)
	}
	if res.Reason != procguard.ReasonExited {
		t.Fatalf("got reason %v, want ReasonExited", res.Reason)
	}
	if !bytes.Contains(res.Output, []byte("hello")) {
		t.Fatalf("expected captured output to contain hello, got %q", res.Output)
	}
}

func TestWaitWithTimeoutsAbsoluteTimeout(t *testing.T) {
	cmd := exec.Command("sh", "-c", "sleep 5")
	res, err := procguard.WaitWithTimeouts(context.Background(), cmd, 200*time.Millisecond, 0)
	if err != nil {
		t.Fatalf("WaitWithTimeouts: %v", err)
	}
	if res.Reason != procguard.ReasonAbsoluteTimeout {
		t.Fatalf("got reason %v, want ReasonAbsoluteTimeout", res.Reason)
	}
}

func TestWaitWithTimeoutsIdleTimeout(t *testing.T) {
	cmd := exec.Command("sh", "-c", "sleep 5")
	res, err := procguard.WaitWithTimeouts(context.Background(), cmd, 5*time.Second, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitWithTimeouts: %v", err)
	}
	if res.Reason != procguard.ReasonNoOutputTimeout {
		t.Fatalf("got reason %v, want ReasonNoOutputTimeout", res.Reason)
	}
}
