package transport

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/openfang/openfang/internal/openfang/channel"
	"github.com/openfang/openfang/internal/openfang/guard"
)

const maxWebhookBodyBytes = 1 * 1024 * 1024

// VerifyHMACSignature reads body (capped at 1 MiB), verifies it against
// signature using guard's constant-time HMAC check, and returns the body so
// the caller doesn't have to read the request twice.
func VerifyHMACSignature(r *http.Request, secret []byte, signature string) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		return nil, err
	}
	if err := guard.VerifyHMACSHA256(secret, body, []byte(signature)); err != nil {
		return nil, err
	}
	return body, nil
}

// VerifyToken compares a bearer/shared-secret token in constant time, for
// callers that authenticate with a static token rather than a per-request
// HMAC signature (in this module: the peer wire hello handshake).
func VerifyToken(got, want string) bool {
	if len(got) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// QueueFunc enqueues a parsed webhook event for later processing. Handlers
// must never block on agent dispatch inline — signature verification and
// parsing happen in the HTTP handler, everything else happens downstream.
type QueueFunc func(channel.Message)
