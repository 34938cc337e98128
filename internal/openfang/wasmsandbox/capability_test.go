package wasmsandbox

import "testing"

func TestCapabilitySetAllowsExactScope(t *testing.T) {
	set := Set{{Kind: CapNetwork, Scope: "api.example.com"}}
	if !set.Allows(CapNetwork, "api.example.com") {
		t.Fatal("expected exact host match to be allowed")
	}
	if set.Allows(CapNetwork, "other.example.com") {
		t.Fatal("expected different host to be denied")
	}
}

func TestCapabilitySetAllowsPathPrefix(t *testing.T) {
	set := Set{{Kind: CapFSRead, Scope: "/workspace"}}
	if !set.Allows(CapFSRead, "/workspace/file.txt") {
		t.Fatal("expected path under granted prefix to be allowed")
	}
	if set.Allows(CapFSRead, "/etc/passwd") {
		t.Fatal("expected path outside granted prefix to be denied")
	}
	if set.Allows(CapFSRead, "/workspaceEVIL/file.txt") {
		t.Fatal("prefix match must respect path boundaries, not raw string prefix")
	}
}

func TestEmptyCapabilitySetDeniesEverything(t *testing.T) {
	var set Set
	for _, kind := range []CapabilityKind{CapFSRead, CapFSWrite, CapNetwork, CapClock, CapLogging, CapMessaging} {
		if set.Allows(kind, "") {
			t.Fatalf("empty capability set must deny kind %v", kind)
		}
		if set.Allows(kind, "anything") {
			t.Fatalf("empty capability set must deny kind %v with scope", kind)
		}
	}
}

func TestCapabilityUnscopedGrantMatchesAnyScope(t *testing.T) {
	set := Set{{Kind: CapClock}}
	if !set.Allows(CapClock, "") {
		t.Fatal("expected unscoped clock capability to be allowed")
	}
}
