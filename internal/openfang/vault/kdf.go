package vault

import (
	cryptorand "crypto/rand"
	"crypto/sha256"
	"hash"
)

func randRead(b []byte) (int, error) {
	return cryptorand.Read(b)
}

func sha256New() hash.Hash {
	return sha256.New()
}
