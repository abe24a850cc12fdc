package guard

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleSpec is the YAML form of a rule.
type RuleSpec struct {
	Method  string `yaml:"method,omitempty"`
	Pattern string `yaml:"pattern"`
	Access  string `yaml:"access"`
}

// PolicySpec is the YAML form of a policy table.
//
//	default: authenticated
//	rules:
//	  - method: OPTIONS
//	    pattern: /**
//	    access: permit
//	  - pattern: /login/**
//	    access: permit
type PolicySpec struct {
	Default string     `yaml:"default,omitempty"`
	Rules   []RuleSpec `yaml:"rules"`
}

// Build validates the spec. The default may only be "authenticated".
func (s PolicySpec) Build() (*Policy, error) {
	if s.Default != "" {
		def, err := ParseAccess(s.Default)
		if err != nil {
			return nil, fmt.Errorf("policy default: %w", err)
		}
		if def != RequireToken {
			return nil, fmt.Errorf("policy default must require a token, got %q", s.Default)
		}
	}
	rules := make([]Rule, 0, len(s.Rules))
	for i, rs := range s.Rules {
		access, err := ParseAccess(rs.Access)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, Rule{Method: strings.ToUpper(rs.Method), Pattern: rs.Pattern, Access: access})
	}
	return NewPolicy(rules...)
}

// ParsePolicy decodes a YAML policy table. Unknown fields are rejected.
func ParsePolicy(data []byte) (*Policy, error) {
	var spec PolicySpec
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return spec.Build()
}

// LoadPolicyFile reads a YAML policy table from path.
func LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}
