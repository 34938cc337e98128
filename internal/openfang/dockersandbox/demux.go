package dockersandbox

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/docker/docker/pkg/stdcopy"

	"github.com/openfang/openfang/internal/openfang/procguard"
)

// demuxWithTimeout de-multiplexes a Docker exec attach stream into stdout
// and stderr, enforcing an absolute timeout only: unlike
// procguard.WaitWithTimeouts there is no no-output idle timeout, and
// ReasonNoOutputTimeout is never returned.
func demuxWithTimeout(ctx context.Context, r io.Reader, timeout time.Duration) (stdout, stderr []byte, reason procguard.WaitReason, err error) {
	var outBuf, errBuf bytes.Buffer
	done := make(chan error, 1)

	pr, pw := io.Pipe()
	go func() {
		_, copyErr := stdcopy.StdCopy(&outBuf, &errBuf, pr)
		done <- copyErr
	}()
	go func() {
		_, copyErr := io.Copy(pw, r)
		pw.CloseWithError(copyErr)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return outBuf.Bytes(), errBuf.Bytes(), procguard.ReasonExited, nil
	case <-timer.C:
		return outBuf.Bytes(), errBuf.Bytes(), procguard.ReasonAbsoluteTimeout, context.DeadlineExceeded
	case <-ctx.Done():
		return outBuf.Bytes(), errBuf.Bytes(), procguard.ReasonAbsoluteTimeout, ctx.Err()
	}
}
