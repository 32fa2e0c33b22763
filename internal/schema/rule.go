package schema

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// RuleKind is the closed set of validation rules
type RuleKind string

const (
	RuleRequired  RuleKind = "required"
	RuleTypeOf    RuleKind = "type"
	RuleMinLength RuleKind = "min_length"
	RuleMin       RuleKind = "min"
	RuleEnum      RuleKind = "enum"
	RulePattern   RuleKind = "pattern"
)

// Rule is a single validation rule on one field. Only the parameters
// relevant to Kind are read.
type Rule struct {
	Kind    RuleKind  `yaml:"kind"`
	Field   string    `yaml:"field"`
	Type    ValueType `yaml:"type,omitempty"`
	Length  int       `yaml:"length,omitempty"`
	Min     float64   `yaml:"min,omitempty"`
	Values  []any     `yaml:"values,omitempty"`
	Pattern string    `yaml:"pattern,omitempty"`

	re *regexp.Regexp
}

func Required(field string) Rule { return Rule{Kind: RuleRequired, Field: field} }

func TypeOf(field string, t ValueType) Rule { return Rule{Kind: RuleTypeOf, Field: field, Type: t} }

func MinLength(field string, n int) Rule { return Rule{Kind: RuleMinLength, Field: field, Length: n} }

func Min(field string, min float64) Rule { return Rule{Kind: RuleMin, Field: field, Min: min} }

func Enum(field string, values ...any) Rule { return Rule{Kind: RuleEnum, Field: field, Values: values} }

func Pattern(field, expr string) Rule { return Rule{Kind: RulePattern, Field: field, Pattern: expr} }

// Violation is one broken rule
type Violation struct {
	Field   string   `json:"field"`
	Rule    RuleKind `json:"rule"`
	Message string   `json:"message"`
}

// Violations is the aggregated result of validating a payload
type Violations []Violation

// Messages returns the human readable message of every violation
func (v Violations) Messages() []string {
	out := make([]string, len(v))
	for i, violation := range v {
		out[i] = violation.Message
	}
	return out
}

// Error joins all violation messages
func (v Violations) Error() string {
	return strings.Join(v.Messages(), "; ")
}

// compile checks the rule parameters and prepares the pattern
func (r *Rule) compile() error {
	if r.Field == "" {
		return fmt.Errorf("%s rule has no field", r.Kind)
	}
	switch r.Kind {
	case RuleRequired, RuleMin:
	case RuleTypeOf:
		switch r.Type {
		case TypeString, TypeNumber, TypeBoolean, TypeArray, TypeObject, TypeTime:
		default:
			return fmt.Errorf("type rule on %s has unknown type %q", r.Field, r.Type)
		}
	case RuleMinLength:
		if r.Length < 0 {
			return fmt.Errorf("min_length rule on %s has negative length", r.Field)
		}
	case RuleEnum:
		if len(r.Values) == 0 {
			return fmt.Errorf("enum rule on %s has no values", r.Field)
		}
		for i, v := range r.Values {
			r.Values[i] = Normalize(v)
		}
	case RulePattern:
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("pattern rule on %s: %w", r.Field, err)
		}
		r.re = re
	default:
		return fmt.Errorf("unknown rule kind %q on %s", r.Kind, r.Field)
	}
	return nil
}

// check evaluates the rule against a value. present is false when the
// field is missing or nil. Rules other than Required pass on absent values.
func (r *Rule) check(value any, present bool) *Violation {
	if r.Kind == RuleRequired {
		if !present {
			return r.violation("%s is required", r.Field)
		}
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			return r.violation("%s is required", r.Field)
		}
		return nil
	}
	if !present {
		return nil
	}

	switch r.Kind {
	case RuleTypeOf:
		if got := TypeOfValue(value); got != r.Type {
			return r.violation("%s must be of type %s, got %s", r.Field, r.Type, got)
		}
	case RuleMinLength:
		if n, ok := length(value); !ok || n < r.Length {
			return r.violation("%s must have length >= %d", r.Field, r.Length)
		}
	case RuleMin:
		n, ok := Normalize(value).(float64)
		if !ok || n < r.Min {
			return r.violation("%s must be >= %v", r.Field, r.Min)
		}
	case RuleEnum:
		for _, allowed := range r.Values {
			if Equal(allowed, value) {
				return nil
			}
		}
		return r.violation("%s must be one of %v", r.Field, r.Values)
	case RulePattern:
		s, ok := value.(string)
		if !ok || r.re == nil || !r.re.MatchString(s) {
			return r.violation("%s must match %s", r.Field, r.Pattern)
		}
	}
	return nil
}

func (r *Rule) violation(format string, args ...any) *Violation {
	return &Violation{Field: r.Field, Rule: r.Kind, Message: fmt.Sprintf(format, args...)}
}

func length(v any) (int, bool) {
	switch x := v.(type) {
	case string:
		return utf8.RuneCountInString(x), true
	case []any:
		return len(x), true
	case []string:
		return len(x), true
	case map[string]any:
		return len(x), true
	}
	return 0, false
}
