package guard

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// defaultDenyPrefixes can never be bind-mounted into a sandbox, regardless of
// caller-supplied deny list.
var defaultDenyPrefixes = []string{
	"/etc", "/proc", "/sys", "/dev", "/root", "/boot",
	"/var/run/docker.sock", "/run/docker.sock",
}

// ValidateBindMount requires an absolute path with no ".." component, not
// under any default- or caller-denied prefix. If the path exists on disk it
// is canonicalised (symlinks resolved) and re-checked so a symlink can't be
// used to escape the deny list.
func ValidateBindMount(path string, extraDeny []string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("mount guard: %q is not an absolute path", path)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("mount guard: %q contains a parent-directory component", path)
		}
	}

	deny := append(append([]string{}, defaultDenyPrefixes...), extraDeny...)
	if err := checkDenyPrefixes(path, deny); err != nil {
		return err
	}

	if real, err := filepath.EvalSymlinks(path); err == nil {
		if err := checkDenyPrefixes(real, deny); err != nil {
			return fmt.Errorf("mount guard: %q resolves via symlink to denied path: %w", path, err)
		}
	}
	return nil
}

func checkDenyPrefixes(path string, deny []string) error {
	clean := filepath.Clean(path)
	for _, d := range deny {
		if clean == d || strings.HasPrefix(clean, strings.TrimSuffix(d, "/")+"/") {
			return fmt.Errorf("mount guard: %q is under denied prefix %q", path, d)
		}
	}
	return nil
}

var containerNamePattern = regexp.MustCompile(`^[A-Za-z0-9._:/-]+$`)

// ValidateContainerName enforces a conservative container/image name rule:
// alphanumeric plus `-_.:/`, length <= 63, non-empty.
func ValidateContainerName(name string) error {
	if name == "" {
		return fmt.Errorf("container guard: name is empty")
	}
	if len(name) > 63 {
		return fmt.Errorf("container guard: name %q exceeds 63 characters", name)
	}
	if !containerNamePattern.MatchString(name) {
		return fmt.Errorf("container guard: name %q contains disallowed characters", name)
	}
	return nil
}
