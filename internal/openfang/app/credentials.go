package app

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// CredentialFile is the optional TOML form of one adapter's secrets,
// referenced by `channel setup <tag> <file>` instead of editing the YAML
// config (credentials don't belong in a file meant to be checked in).
//
// Example:
//
//	[secrets]
//	token = "123456:abcdef"
type CredentialFile struct {
	Secrets map[string]string `toml:"secrets"`
}

// LoadCredentialFile parses a TOML credential file at path.
func LoadCredentialFile(path string) (*CredentialFile, error) {
	var cf CredentialFile
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return nil, fmt.Errorf("app: parse credential file %s: %w", path, err)
	}
	return &cf, nil
}

// VaultKey builds the vault key a channel tag's credential is stored under:
// "<tag>.<name>", e.g. "telegram.token".
func VaultKey(tag, name string) string {
	return tag + "." + name
}
