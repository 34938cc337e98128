package a2a

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// skillSchema is the structural contract every Agent Card Skill must
// satisfy before it is served: a non-empty id and name are mandatory, the
// rest is descriptive.
const skillSchema = `{
	"type": "object",
	"required": ["id", "name"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"tags": {"type": "array", "items": {"type": "string"}},
		"examples": {"type": "array", "items": {"type": "string"}}
	}
}`

// ValidateSkills checks every skill against the Agent Card skill JSON
// Schema before an AgentCard is served, so a malformed skills[] entry
// fails at construction instead of reaching a remote peer.
func ValidateSkills(skills []Skill) error {
	if len(skills) == 0 {
		return nil
	}

	url := "mem://openfang/a2a/skill.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader([]byte(skillSchema))); err != nil {
		return fmt.Errorf("a2a: add skill schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("a2a: compile skill schema: %w", err)
	}

	for i, sk := range skills {
		b, err := json.Marshal(sk)
		if err != nil {
			return fmt.Errorf("a2a: marshal skill %d: %w", i, err)
		}
		var instance interface{}
		if err := json.Unmarshal(b, &instance); err != nil {
			return fmt.Errorf("a2a: unmarshal skill %d: %w", i, err)
		}
		if err := schema.Validate(instance); err != nil {
			return fmt.Errorf("a2a: skill %d (id %q) fails schema: %w", i, sk.ID, err)
		}
	}
	return nil
}
