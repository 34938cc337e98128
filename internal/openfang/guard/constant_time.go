package guard

import (
	"crypto/hmac"
	"crypto/sha256"
)

// ErrAuthFailed is the single generic error surfaced for every constant-time
// comparison failure (HMAC signatures, webhook tokens, passphrases). Callers
// must never wrap it with detail about which side mismatched.
type authFailedError struct{}

func (authFailedError) Error() string { return "auth failed" }

// ErrAuthFailed is returned by VerifyHMACSHA256 on mismatch.
var ErrAuthFailed error = authFailedError{}

// VerifyHMACSHA256 computes HMAC-SHA256(key, body) and compares it against
// signature (raw bytes, not hex) in constant time via hmac.Equal.
func VerifyHMACSHA256(key, body, signature []byte) error {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, signature) {
		return ErrAuthFailed
	}
	return nil
}
