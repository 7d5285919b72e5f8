package tools

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// Policy is the allow/deny tool policy. Deny always wins; an empty
// allow list permits everything not denied.
type Policy struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// LoadPolicy reads a YAML policy file. A missing file yields the
// default allow-all policy.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Policy{}, nil
		}
		return nil, fmt.Errorf("read policy: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	return &policy, nil
}

// Allowed reports whether a tool may be listed and called.
func (p *Policy) Allowed(name string) bool {
	for _, denied := range p.Deny {
		if denied == name {
			return false
		}
	}
	if len(p.Allow) == 0 {
		return true
	}
	for _, allowed := range p.Allow {
		if allowed == name {
			return true
		}
	}
	return false
}
