package vault_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/openfang/openfang/internal/openfang/vault"
)

func newVault(t *testing.T) (*vault.Vault, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.bin")
	v := vault.Open(path)
	if err := v.Init("correct horse battery staple"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return v, path
}

func TestSetGetRoundtrip(t *testing.T) {
	v, _ := newVault(t)

	if err := v.Set("api_key", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s, ok := v.Get("api_key")
	if !ok {
		t.Fatal("expected api_key present")
	}
	if !bytes.Equal(s.Bytes(), []byte("v1")) {
		t.Fatalf("got %q, want v1", s.Bytes())
	}

	if err := v.Set("api_key", []byte("v2")); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	s2, ok := v.Get("api_key")
	if !ok || !bytes.Equal(s2.Bytes(), []byte("v2")) {
		t.Fatalf("got %v, want v2", s2)
	}
}

func TestUnlockWrongPassphraseDoesNotHint(t *testing.T) {
	_, path := newVault(t)

	v2 := vault.Open(path)
	err := v2.Unlock("wrong passphrase entirely")
	if err != vault.ErrWrongPassphrase {
		t.Fatalf("expected ErrWrongPassphrase, got %v", err)
	}
}

func TestUnlockRoundtripAcrossProcesses(t *testing.T) {
	v, path := newVault(t)
	if err := v.Set("token", []byte("secret-value")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v.Close()

	v2 := vault.Open(path)
	if err := v2.Unlock("correct horse battery staple"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	s, ok := v2.Get("token")
	if !ok || !bytes.Equal(s.Bytes(), []byte("secret-value")) {
		t.Fatalf("got %v, want secret-value", s)
	}
}

func TestRemove(t *testing.T) {
	v, _ := newVault(t)
	_ = v.Set("a", []byte("1"))
	_ = v.Set("b", []byte("2"))

	if err := v.Remove("a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := v.Get("a"); ok {
		t.Fatal("expected a to be removed")
	}
	if _, ok := v.Get("b"); !ok {
		t.Fatal("expected b to remain")
	}
}

func TestListKeys(t *testing.T) {
	v, _ := newVault(t)
	_ = v.Set("x", []byte("1"))
	_ = v.Set("y", []byte("2"))

	keys := v.ListKeys()
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(keys))
	}
}

func TestOperationsBeforeUnlockFail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	v := vault.Open(path)
	if err := v.Set("x", []byte("y")); err != vault.ErrLocked {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestSecretZeroClearsBuffer(t *testing.T) {
	s := vault.NewSecret([]byte("sensitive"))
	s.Zero()
	for _, b := range s.Bytes() {
		if b != 0 {
			t.Fatalf("expected zeroed buffer, got %v", s.Bytes())
		}
	}
}
