package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productSchema(t *testing.T) *Schema {
	s := &Schema{
		Name:    "products",
		Indexes: []string{"category"},
		Rules: []Rule{
			Required("name"),
			TypeOf("name", TypeString),
			MinLength("name", 2),
			Required("price"),
			Min("price", 0),
			Enum("status", "active", "draft"),
			Pattern("sku", "^[A-Z0-9-]+$"),
		},
	}
	require.NoError(t, s.Compile())
	return s
}

func TestSchema_Validate(t *testing.T) {
	s := productSchema(t)

	tests := []struct {
		name  string
		data  map[string]any
		rules []RuleKind
	}{
		{
			name: "valid payload",
			data: map[string]any{"name": "Cover", "price": 100, "status": "active", "sku": "CV-1"},
		},
		{
			name:  "missing required fields",
			data:  map[string]any{},
			rules: []RuleKind{RuleRequired, RuleRequired},
		},
		{
			name:  "blank string counts as missing",
			data:  map[string]any{"name": " ", "price": 1},
			rules: []RuleKind{RuleRequired, RuleMinLength},
		},
		{
			name:  "every broken rule is reported",
			data:  map[string]any{"name": 7, "price": -1, "status": "gone", "sku": "lower"},
			rules: []RuleKind{RuleTypeOf, RuleMinLength, RuleMin, RuleEnum, RulePattern},
		},
		{
			name:  "min rejects non numbers",
			data:  map[string]any{"name": "Cover", "price": "cheap"},
			rules: []RuleKind{RuleMin},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := s.Validate(tt.data)

			var got []RuleKind
			for _, v := range violations {
				got = append(got, v.Rule)
			}
			assert.Equal(t, tt.rules, got, violations.Error())
		})
	}
}

func TestSchema_ValidatePartial(t *testing.T) {
	s := productSchema(t)

	assert.Empty(t, s.ValidatePartial(map[string]any{"price": 5}))
	assert.Empty(t, s.ValidatePartial(map[string]any{}))

	violations := s.ValidatePartial(map[string]any{"name": nil, "status": "gone"})
	require.Len(t, violations, 2)
	assert.Equal(t, "name is required", violations[0].Message)
	assert.Equal(t, RuleEnum, violations[1].Rule)
}

func TestSchema_NilSchemaAcceptsAnything(t *testing.T) {
	var s *Schema
	assert.Empty(t, s.Validate(map[string]any{"anything": 1}))
}

func TestSchema_CompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		schema Schema
	}{
		{"no name", Schema{}},
		{"bad pattern", Schema{Name: "t", Rules: []Rule{Pattern("f", "(")}}},
		{"unknown kind", Schema{Name: "t", Rules: []Rule{{Kind: "max", Field: "f"}}}},
		{"unknown type", Schema{Name: "t", Rules: []Rule{TypeOf("f", "decimal")}}},
		{"empty enum", Schema{Name: "t", Rules: []Rule{Enum("f")}}},
		{"duplicate index", Schema{Name: "t", Indexes: []string{"a", "a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.schema.Compile())
		})
	}
}

func TestIndexKey(t *testing.T) {
	assert.Equal(t, IndexKey(100), IndexKey(100.0))
	assert.Equal(t, IndexKey(int64(3)), IndexKey(float32(3)))
	assert.NotEqual(t, IndexKey("100"), IndexKey(100))
	assert.NotEqual(t, IndexKey(true), IndexKey("true"))
	assert.Equal(t, "z:", IndexKey(nil))
	assert.True(t, Equal([]any{"a", 1.0}, []any{"a", 1.0}))
}

func TestCompare(t *testing.T) {
	now := time.Now()

	assert.Equal(t, -1, Compare(1, 2.5))
	assert.Equal(t, 0, Compare(2, 2.0))
	assert.Equal(t, 1, Compare("b", "a"))
	assert.Equal(t, -1, Compare(false, true))
	assert.Equal(t, -1, Compare(now, now.Add(time.Second)))
	assert.Equal(t, -1, Compare(nil, 0))
	assert.Equal(t, -1, Compare(5, "5"))
}

func TestTypeOfValue(t *testing.T) {
	assert.Equal(t, TypeNumber, TypeOfValue(uint8(1)))
	assert.Equal(t, TypeString, TypeOfValue("x"))
	assert.Equal(t, TypeBoolean, TypeOfValue(false))
	assert.Equal(t, TypeArray, TypeOfValue([]any{1}))
	assert.Equal(t, TypeObject, TypeOfValue(map[string]any{}))
	assert.Equal(t, TypeNull, TypeOfValue(nil))
}
