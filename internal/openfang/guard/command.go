package guard

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Policy selects how strict ValidateCommandAllowlist is. PolicyFull disables
// allow-list enforcement entirely.
type Policy int

const (
	PolicyEnforced Policy = iota
	PolicyFull
)

// defaultSafeBins are always permitted regardless of the caller's allow-list.
var defaultSafeBins = map[string]bool{
	"true": true, "false": true, "echo": true, "cat": true, "ls": true,
}

var shellMetaPattern = regexp.MustCompile("`|\\$\\(|\\$\\{")

// ValidateCommandAllowlist splits cmd on shell control operators (;, &&, ||,
// |), takes the base name of the first token of each segment, and requires
// every base name to be in allowed ∪ the built-in safe-bin set. It also
// rejects any segment containing a literal backtick, `$(`, or `${`
// substitution, regardless of policy, except under PolicyFull.
func ValidateCommandAllowlist(cmd string, allowed []string, policy Policy) error {
	if policy == PolicyFull {
		return nil
	}

	if shellMetaPattern.MatchString(cmd) {
		return fmt.Errorf("command guard: command substitution is not permitted: %q", cmd)
	}

	allowSet := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allowSet[a] = true
	}

	for _, segment := range splitOnControlOperators(cmd) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		fields := strings.Fields(segment)
		if len(fields) == 0 {
			continue
		}
		base := filepath.Base(fields[0])
		if !allowSet[base] && !defaultSafeBins[base] {
			return fmt.Errorf("command guard: %q is not in the allowed command set", base)
		}
	}
	return nil
}

// splitOnControlOperators splits on ;, &&, ||, and | without a full shell
// parser — good enough for a defensive pre-flight check, not a shell
// emulator.
func splitOnControlOperators(cmd string) []string {
	replacer := strings.NewReplacer("&&", ";", "||", ";", "|", ";")
	normalized := replacer.Replace(cmd)
	return strings.Split(normalized, ";")
}
