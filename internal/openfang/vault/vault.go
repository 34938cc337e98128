// Package vault implements the OpenFang credential vault: a single
// passphrase-encrypted file holding a name -> secret map. Values are handed
// to callers wrapped in Secret so they zeroise on Zero (or when collected)
// and never accidentally print through %v/%s.
//
// File format:
//
//	byte 0:       version (currently 1)
//	bytes 1-16:   PBKDF2 salt
//	bytes 17-...: AES-256-GCM ciphertext (nonce-prepended)
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"github.com/openfang/openfang/common/crypto"
)

const (
	fileVersion  byte = 1
	saltSize          = 16
	kdfIterations     = 100_000
)

// ErrLocked is returned by operations attempted before Unlock succeeds.
var ErrLocked = errors.New("vault: locked")

// ErrWrongPassphrase is returned by Unlock when decryption fails. It
// deliberately carries no detail about which part (salt, key, ciphertext)
// was wrong.
var ErrWrongPassphrase = errors.New("vault: wrong passphrase or corrupt vault file")

// Vault is a passphrase-encrypted name -> secret map persisted to a single
// file. Zero value is not usable; construct with Open.
type Vault struct {
	mu   sync.Mutex
	path string
	salt []byte
	key  []byte // derived key, cleared on Close
	data map[string][]byte
	open bool
}

// Open returns a Vault bound to path. The file need not exist yet; call Init
// to create it, or Unlock if it already exists.
func Open(path string) *Vault {
	return &Vault{path: path}
}

// Init creates a new, empty encrypted vault file at path, unlocked with
// passphrase. Fails if a file already exists at path.
func (v *Vault) Init(passphrase string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := os.Stat(v.path); err == nil {
		return fmt.Errorf("vault: %s already exists", v.path)
	}

	salt := make([]byte, saltSize)
	if _, err := randRead(salt); err != nil {
		return fmt.Errorf("vault: generate salt: %w", err)
	}

	v.salt = salt
	v.key = deriveKey(passphrase, salt)
	v.data = make(map[string][]byte)
	v.open = true

	return v.persistLocked()
}

// Unlock reads the vault file from disk and decrypts it with passphrase.
// On success the vault's in-memory map is populated and further operations
// are permitted. On a wrong passphrase it returns ErrWrongPassphrase without
// indicating what specifically was wrong.
func (v *Vault) Unlock(passphrase string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	raw, err := os.ReadFile(v.path)
	if err != nil {
		return fmt.Errorf("vault: read %s: %w", v.path, err)
	}
	if len(raw) < 1+saltSize {
		return ErrWrongPassphrase
	}
	if raw[0] != fileVersion {
		return fmt.Errorf("vault: unsupported file version %d", raw[0])
	}
	salt := raw[1 : 1+saltSize]
	ciphertext := raw[1+saltSize:]

	key := deriveKey(passphrase, salt)
	plaintext, err := crypto.Decrypt(key, ciphertext)
	if err != nil {
		return ErrWrongPassphrase
	}

	var m map[string][]byte
	if err := json.Unmarshal(plaintext, &m); err != nil {
		// wipe the derived key and transient plaintext before returning
		zero(plaintext)
		zero(key)
		return ErrWrongPassphrase
	}
	zero(plaintext)

	v.salt = append([]byte(nil), salt...)
	v.key = key
	v.data = m
	v.open = true
	return nil
}

// Set stores name -> secret, re-encrypts, and atomically replaces the vault
// file on disk.
func (v *Vault) Set(name string, secret []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.open {
		return ErrLocked
	}
	cp := make([]byte, len(secret))
	copy(cp, secret)
	v.data[name] = cp
	return v.persistLocked()
}

// Get returns the secret stored under name, wrapped in a zeroising Secret.
// Returns (nil, false) if name is not present.
func (v *Vault) Get(name string) (*Secret, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.open {
		return nil, false
	}
	raw, ok := v.data[name]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return NewSecret(cp), true
}

// Remove deletes name from the vault and re-persists. No error if name was
// not present.
func (v *Vault) Remove(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.open {
		return ErrLocked
	}
	if old, ok := v.data[name]; ok {
		zero(old)
		delete(v.data, name)
	}
	return v.persistLocked()
}

// ListKeys returns the names of all stored secrets (not their values).
func (v *Vault) ListKeys() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	keys := make([]string, 0, len(v.data))
	for k := range v.data {
		keys = append(keys, k)
	}
	return keys
}

// Close zeroises the in-memory key and all cached secret values. The Vault
// is unusable afterward until Unlock is called again.
func (v *Vault) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	zero(v.key)
	for _, val := range v.data {
		zero(val)
	}
	v.data = nil
	v.open = false
}

// persistLocked re-encrypts the in-memory map and atomically replaces the
// vault file. Caller must hold v.mu.
func (v *Vault) persistLocked() error {
	plaintext, err := json.Marshal(v.data)
	if err != nil {
		return fmt.Errorf("vault: marshal: %w", err)
	}
	defer zero(plaintext)

	ciphertext, err := crypto.Encrypt(v.key, plaintext)
	if err != nil {
		return fmt.Errorf("vault: encrypt: %w", err)
	}

	out := make([]byte, 0, 1+len(v.salt)+len(ciphertext))
	out = append(out, fileVersion)
	out = append(out, v.salt...)
	out = append(out, ciphertext...)

	dir := filepath.Dir(v.path)
	tmp, err := os.CreateTemp(dir, ".vault-tmp-*")
	if err != nil {
		return fmt.Errorf("vault: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("vault: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("vault: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("vault: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, v.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("vault: rename temp file: %w", err)
	}
	return nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, kdfIterations, crypto.KeySize, sha256New)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
