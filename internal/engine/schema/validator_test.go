package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func painPointSchema() ValueSchema {
	return ValueSchema{
		"summary":  {Kind: KindString, Required: true},
		"severity": {Kind: KindEnum, EnumValues: []string{"low", "medium", "high"}},
		"amount":   {Kind: KindNumber},
		"details": {Kind: KindObject, Fields: map[string]*FieldSpec{
			"source": {Kind: KindString},
			"open":   {Kind: KindBoolean},
		}},
		"reported_on": {Kind: KindDate},
	}
}

func TestValidateValue_Valid(t *testing.T) {
	vs := painPointSchema()

	err := ValidateValue(vs, map[string]interface{}{
		"summary":     "budget shortfall",
		"severity":    "high",
		"amount":      120000.50,
		"details":     map[string]interface{}{"source": "council minutes", "open": true},
		"reported_on": "2026-03-14",
	})
	require.NoError(t, err)
}

func TestValidateValue_NilSchemaAcceptsAnything(t *testing.T) {
	err := ValidateValue(nil, map[string]interface{}{"whatever": 1})
	assert.NoError(t, err)
}

func TestValidateValue_UnknownField(t *testing.T) {
	err := ValidateValue(painPointSchema(), map[string]interface{}{
		"summary":    "x",
		"unexpected": "y",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaViolation)
	assert.Contains(t, err.Error(), "unexpected")
}

func TestValidateValue_MissingRequired(t *testing.T) {
	err := ValidateValue(painPointSchema(), map[string]interface{}{
		"severity": "low",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaViolation)
	assert.Contains(t, err.Error(), "summary")
}

func TestValidateValue_KindMismatch(t *testing.T) {
	tests := []struct {
		name  string
		value map[string]interface{}
	}{
		{"string field gets number", map[string]interface{}{"summary": 42}},
		{"number field gets string", map[string]interface{}{"summary": "x", "amount": "many"}},
		{"enum outside values", map[string]interface{}{"summary": "x", "severity": "catastrophic"}},
		{"bad date", map[string]interface{}{"summary": "x", "reported_on": "soon"}},
		{"object field gets scalar", map[string]interface{}{"summary": "x", "details": "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateValue(painPointSchema(), tt.value)
			assert.ErrorIs(t, err, ErrSchemaViolation)
		})
	}
}

func TestValidateValue_NestedObjectViolation(t *testing.T) {
	err := ValidateValue(painPointSchema(), map[string]interface{}{
		"summary": "x",
		"details": map[string]interface{}{"open": "yes"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "details.open")
}

func TestCardinality(t *testing.T) {
	assert.True(t, OneToOne.Valid())
	assert.False(t, Cardinality("2:3").Valid())

	assert.True(t, ManyToOne.SingleTarget())
	assert.True(t, OneToOne.SingleTarget())
	assert.False(t, OneToMany.SingleTarget())

	assert.True(t, OneToMany.SingleSource())
	assert.False(t, ManyToOne.SingleSource())
}

func TestFacetTypeAppliesTo(t *testing.T) {
	ft := &FacetType{Slug: "pain_point", ApplicableEntityTypes: []string{"municipality", "district"}}
	assert.True(t, ft.AppliesTo("municipality"))
	assert.False(t, ft.AppliesTo("person"))
}
