package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeDiff_ChangedAddedRemoved(t *testing.T) {
	before := map[string]interface{}{
		"name":     "Berlin",
		"location": "DE",
		"dropped":  "gone",
	}
	after := map[string]interface{}{
		"name":     "Berlin",
		"location": "AT",
		"added":    true,
	}

	diff := ComputeDiff(before, after)

	assert.Equal(t, []string{"added", "dropped", "location"}, diff.Fields())
	assert.Equal(t, FieldChange{Old: "DE", New: "AT"}, diff["location"])
	assert.Equal(t, FieldChange{Old: "gone", New: nil}, diff["dropped"])
	assert.Equal(t, FieldChange{Old: nil, New: true}, diff["added"])
}

func TestComputeDiff_EmptyWhenNothingChanged(t *testing.T) {
	fields := map[string]interface{}{"name": "Berlin", "is_active": true}
	assert.Empty(t, ComputeDiff(fields, fields))
}

func TestComputeDiff_NumericValuesCompareAfterJSONNormalization(t *testing.T) {
	// Ints written by a caller and float64s read back from JSONB are
	// the same value and must not produce a phantom change.
	before := map[string]interface{}{"latitude": float64(52)}
	after := map[string]interface{}{"latitude": 52}
	assert.Empty(t, ComputeDiff(before, after))
}

func TestComputeDiff_NestedMaps(t *testing.T) {
	before := map[string]interface{}{
		"attributes": map[string]interface{}{"population": 3500000.0},
	}
	after := map[string]interface{}{
		"attributes": map[string]interface{}{"population": 3600000.0},
	}
	diff := ComputeDiff(before, after)
	assert.Len(t, diff, 1)
	assert.Contains(t, diff, "attributes")
}

func TestDiff_InvertRoundTrips(t *testing.T) {
	diff := Diff{
		"location": {Old: "DE", New: "AT"},
		"name":     {Old: nil, New: "Graz"},
	}

	inverted := diff.Invert()
	assert.Equal(t, FieldChange{Old: "AT", New: "DE"}, inverted["location"])
	assert.Equal(t, FieldChange{Old: "Graz", New: nil}, inverted["name"])

	// Inverting twice restores the original diff.
	assert.Equal(t, diff, inverted.Invert())
}

func TestDiff_ApplyThenInvertRestoresOriginal(t *testing.T) {
	original := map[string]interface{}{"name": "Alt", "location": "DE"}
	updated := map[string]interface{}{"name": "Neu", "location": "DE", "latitude": 52.0}

	diff := ComputeDiff(original, updated)
	assert.Equal(t, updated, diff.Apply(original))
	assert.Equal(t, original, diff.Invert().Apply(updated))
}

func TestDiff_NewValues(t *testing.T) {
	diff := Diff{
		"location": {Old: "DE", New: "AT"},
		"name":     {Old: "Alt", New: "Neu"},
	}
	assert.Equal(t, map[string]interface{}{"location": "AT", "name": "Neu"}, diff.NewValues())
}
