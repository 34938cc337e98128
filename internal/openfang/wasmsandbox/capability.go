package wasmsandbox

// CapabilityKind enumerates the coarse permission categories a WASM guest
// can be granted at instantiation time.
type CapabilityKind int

const (
	CapFSRead CapabilityKind = iota
	CapFSWrite
	CapNetwork
	CapClock
	CapLogging
	CapMessaging
)

// Capability is a single granted permission, optionally scoped to a path or
// host. A zero-value Scope means "any" for kinds that don't need scoping
// (clock, logging).
type Capability struct {
	Kind  CapabilityKind
	Scope string // path prefix for FS kinds, hostname for Network
}

// Set is the capability list granted to one sandbox instance.
type Set []Capability

// Allows reports whether the set grants kind for the given scope. An empty
// scope argument matches any capability of that kind regardless of the
// capability's own scope (used for clock/logging/messaging checks that don't
// carry a scope).
func (s Set) Allows(kind CapabilityKind, scope string) bool {
	for _, c := range s {
		if c.Kind != kind {
			continue
		}
		if c.Scope == "" || scope == "" {
			return true
		}
		if pathOrHostMatch(c.Scope, scope) {
			return true
		}
	}
	return false
}

func pathOrHostMatch(granted, requested string) bool {
	if granted == requested {
		return true
	}
	// path-prefix match for filesystem scopes
	if len(requested) > len(granted) && requested[:len(granted)] == granted {
		return requested[len(granted)] == '/'
	}
	return false
}
