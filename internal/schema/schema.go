// Package schema validates record payloads against per-table rule sets
// and loads the table catalog.
package schema

import (
	"fmt"
)

// Schema is the ordered rule set and index declaration of one table
type Schema struct {
	Name    string   `yaml:"name"`
	Indexes []string `yaml:"indexes"`
	Rules   []Rule   `yaml:"rules"`

	compiled bool
}

// Compile validates rule parameters and prepares patterns. Schemas are
// compiled once when their table is registered.
func (s *Schema) Compile() error {
	if s.Name == "" {
		return fmt.Errorf("schema has no name")
	}
	for i := range s.Rules {
		if err := s.Rules[i].compile(); err != nil {
			return fmt.Errorf("schema %s: %w", s.Name, err)
		}
	}
	seen := make(map[string]struct{}, len(s.Indexes))
	for _, field := range s.Indexes {
		if field == "" {
			return fmt.Errorf("schema %s: empty index field", s.Name)
		}
		if _, dup := seen[field]; dup {
			return fmt.Errorf("schema %s: duplicate index on %s", s.Name, field)
		}
		seen[field] = struct{}{}
	}
	s.compiled = true
	return nil
}

// Validate checks a full payload. Every violated rule is reported.
func (s *Schema) Validate(data map[string]any) Violations {
	return s.validate(data, false)
}

// ValidatePartial checks only the rules whose field is present in data
func (s *Schema) ValidatePartial(data map[string]any) Violations {
	return s.validate(data, true)
}

func (s *Schema) validate(data map[string]any, partial bool) Violations {
	if s == nil {
		return nil
	}
	if !s.compiled {
		if err := s.Compile(); err != nil {
			return Violations{{Message: err.Error()}}
		}
	}

	var violations Violations
	for i := range s.Rules {
		rule := &s.Rules[i]
		value, supplied := data[rule.Field]
		if partial && !supplied {
			continue
		}
		if v := rule.check(value, supplied && value != nil); v != nil {
			violations = append(violations, *v)
		}
	}
	return violations
}
