package adapters

import (
	"strings"
	"testing"
)

func TestDerivePubkeyLength(t *testing.T) {
	pk := derivePubkey(strings.Repeat("deadbeef", 8))
	if len(pk) != 64 {
		t.Fatalf("derivePubkey length = %d, want 64", len(pk))
	}
}

func TestBuildNostrEventContainsFields(t *testing.T) {
	event := buildNostrEvent("abc123", "recipient_pubkey_hex", "Hello Nostr!")
	if !strings.Contains(event, "EVENT") {
		t.Fatal("expected EVENT marker")
	}
	if !strings.Contains(event, "Hello Nostr!") {
		t.Fatal("expected content present")
	}
	if !strings.Contains(event, "recipient_pubkey_hex") {
		t.Fatal("expected recipient pubkey present")
	}
}

func TestNostrMarkSeenDeduplicates(t *testing.T) {
	a := NewNostr(NostrConfig{PrivateKey: "key", Relays: []string{"wss://relay.example.com"}})
	if !a.markSeen("event-1") {
		t.Fatal("expected first sighting to be new")
	}
	if a.markSeen("event-1") {
		t.Fatal("expected duplicate to be rejected")
	}
}

func TestNostrMarkSeenEvictsOldestAtCapacity(t *testing.T) {
	a := NewNostr(NostrConfig{PrivateKey: "key", Relays: []string{"wss://relay.example.com"}, SeenCapacity: 2})
	a.markSeen("e1")
	a.markSeen("e2")
	a.markSeen("e3") // evicts e1

	if !a.markSeen("e1") {
		t.Fatal("expected e1 to have been evicted and accepted as new again")
	}
}

func TestNewNostrDefaultSeenCapacity(t *testing.T) {
	a := NewNostr(NostrConfig{PrivateKey: "key", Relays: []string{"wss://relay.example.com"}})
	if a.seenCap != nostrDefaultSeenCap {
		t.Fatalf("seenCap = %d, want %d", a.seenCap, nostrDefaultSeenCap)
	}
}
