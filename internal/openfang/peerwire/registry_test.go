package peerwire

import (
	"testing"
	"time"
)

func TestRegistryTouchAndGet(t *testing.T) {
	reg := NewRegistry(time.Minute)
	reg.Touch("1.2.3.4:9000", HashToken("secret"))

	entry, ok := reg.Get("1.2.3.4:9000")
	if !ok {
		t.Fatal("expected entry to be present")
	}
	if entry.TokenHash != HashToken("secret") {
		t.Fatalf("TokenHash = %q", entry.TokenHash)
	}
}

func TestRegistrySetAgents(t *testing.T) {
	reg := NewRegistry(time.Minute)
	reg.Touch("peer-a", "hash")
	reg.SetAgents("peer-a", []RemoteAgent{{Name: "scheduler"}})

	entry, ok := reg.Get("peer-a")
	if !ok || len(entry.Agents) != 1 || entry.Agents[0].Name != "scheduler" {
		t.Fatalf("entry = %+v, ok = %v", entry, ok)
	}
}

func TestRegistrySweepEvictsExpiredEntries(t *testing.T) {
	reg := NewRegistry(time.Millisecond)
	reg.Touch("stale-peer", "hash")
	time.Sleep(5 * time.Millisecond)

	evicted := reg.Sweep()
	if len(evicted) != 1 || evicted[0] != "stale-peer" {
		t.Fatalf("evicted = %v", evicted)
	}
	if _, ok := reg.Get("stale-peer"); ok {
		t.Fatal("expected stale-peer to be gone after sweep")
	}
}

func TestRegistryZeroTTLNeverExpires(t *testing.T) {
	reg := NewRegistry(0)
	reg.Touch("forever-peer", "hash")
	time.Sleep(5 * time.Millisecond)

	if evicted := reg.Sweep(); len(evicted) != 0 {
		t.Fatalf("expected no eviction with ttl=0, got %v", evicted)
	}
}

func TestHashTokenIsStableAndNonReversible(t *testing.T) {
	h1 := HashToken("my-secret")
	h2 := HashToken("my-secret")
	if h1 != h2 {
		t.Fatal("expected HashToken to be deterministic")
	}
	if h1 == "my-secret" {
		t.Fatal("expected HashToken to not equal the raw token")
	}
}
